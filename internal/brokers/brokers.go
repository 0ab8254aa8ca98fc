// Package brokers assembles one MCP server per upstream source.
package brokers

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/RobinCoderZhao/biobroker/internal/brokers/biorxiv"
	"github.com/RobinCoderZhao/biobroker/internal/brokers/clinicaltrials"
	"github.com/RobinCoderZhao/biobroker/internal/brokers/drugbank"
	"github.com/RobinCoderZhao/biobroker/internal/brokers/opentargets"
	"github.com/RobinCoderZhao/biobroker/internal/brokers/pubmed"
	"github.com/RobinCoderZhao/biobroker/internal/config"
	"github.com/RobinCoderZhao/biobroker/pkg/mcpserver"
	"github.com/RobinCoderZhao/biobroker/pkg/normalize"
	"github.com/RobinCoderZhao/biobroker/pkg/upstream"
)

type broker struct {
	instructions string
	tools        func(cfg config.Config, rules normalize.Rules, logger *slog.Logger, opts []upstream.Option) []mcpserver.Tool
}

var catalog = map[string]broker{
	"pubmed": {
		instructions: pubmed.Instructions,
		tools: func(cfg config.Config, rules normalize.Rules, logger *slog.Logger, opts []upstream.Option) []mcpserver.Tool {
			return pubmed.Tools(pubmed.NewClient(cfg.PubMed, cfg.Timeout, logger, opts...), rules)
		},
	},
	"biorxiv": {
		instructions: biorxiv.Instructions,
		tools: func(cfg config.Config, rules normalize.Rules, logger *slog.Logger, opts []upstream.Option) []mcpserver.Tool {
			return biorxiv.Tools(biorxiv.NewClient(cfg.BioRxiv, cfg.Timeout, logger, opts...), rules, cfg.BioRxiv.Server)
		},
	},
	"clinicaltrials": {
		instructions: clinicaltrials.Instructions,
		tools: func(cfg config.Config, rules normalize.Rules, logger *slog.Logger, opts []upstream.Option) []mcpserver.Tool {
			return clinicaltrials.Tools(clinicaltrials.NewClient(cfg.ClinicalTrials, cfg.Timeout, logger, opts...), rules)
		},
	},
	"drugbank": {
		instructions: drugbank.Instructions,
		tools: func(cfg config.Config, rules normalize.Rules, logger *slog.Logger, opts []upstream.Option) []mcpserver.Tool {
			return drugbank.Tools(drugbank.NewClient(cfg.DrugBank, cfg.Timeout, logger, opts...), rules)
		},
	},
	"opentargets": {
		instructions: opentargets.Instructions,
		tools: func(cfg config.Config, rules normalize.Rules, logger *slog.Logger, opts []upstream.Option) []mcpserver.Tool {
			return opentargets.Tools(opentargets.NewClient(cfg.OpenTargets, cfg.Timeout, logger, opts...), rules)
		},
	},
}

// Names lists the available brokers in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the server for the named broker with its tools registered.
// Credentials are not checked here; a broker whose key is missing still
// starts and reports MissingCredential per invocation.
func New(name, version string, cfg config.Config, logger *slog.Logger) (*mcpserver.Server, error) {
	b, ok := catalog[name]
	if !ok {
		return nil, fmt.Errorf("unknown broker %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	logger = logger.With("broker", name)

	s := mcpserver.New(name+"-mcp", version,
		mcpserver.WithLogger(logger),
		mcpserver.WithConcurrency(cfg.MaxConcurrency),
		mcpserver.WithInvocationTimeout(cfg.InvocationTimeout),
		mcpserver.WithInstructions(b.instructions),
	)
	s.Use(mcpserver.RecoveryMiddleware(logger))
	s.Use(mcpserver.LoggingMiddleware(logger))

	rules := normalize.DefaultRules().WithExcerptLength(cfg.ExcerptLength)
	opts := []upstream.Option{upstream.WithUserAgent("biobroker/" + version)}
	if err := s.Register(b.tools(cfg, rules, logger, opts)...); err != nil {
		return nil, fmt.Errorf("register %s tools: %w", name, err)
	}
	return s, nil
}
