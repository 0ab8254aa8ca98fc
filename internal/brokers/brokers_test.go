package brokers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RobinCoderZhao/biobroker/internal/config"
	"github.com/RobinCoderZhao/biobroker/pkg/toolerr"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNames(t *testing.T) {
	got := strings.Join(Names(), ",")
	if got != "biorxiv,clinicaltrials,drugbank,opentargets,pubmed" {
		t.Fatalf("unexpected brokers %s", got)
	}
}

func TestNew_EveryBroker(t *testing.T) {
	want := map[string][]string{
		"pubmed":         {"search_pubmed", "get_pubmed_abstract", "get_related_articles", "find_by_author"},
		"biorxiv":        {"get_preprint_by_doi", "find_published_version", "get_recent_preprints", "search_preprints"},
		"clinicaltrials": {"search_trials", "get_trial_details", "find_trials_by_condition", "find_trials_by_location"},
		"drugbank":       {"search_drugs", "get_drug_details", "find_drugs_by_indication", "find_drugs_by_category", "get_drug_interactions"},
		"opentargets": {"search_targets", "get_target_details", "search_diseases",
			"get_target_associated_diseases", "get_disease_associated_targets", "search_drugs"},
	}
	for _, name := range Names() {
		s, err := New(name, "test", config.DefaultConfig(), quiet())
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		var got []string
		for _, tool := range s.Registry().List() {
			got = append(got, tool.Name)
		}
		if strings.Join(got, ",") != strings.Join(want[name], ",") {
			t.Fatalf("%s: tools %v, want %v", name, got, want[name])
		}
	}
}

func TestNew_UnknownBroker(t *testing.T) {
	if _, err := New("uniprot", "test", config.DefaultConfig(), quiet()); err == nil {
		t.Fatal("expected error for unknown broker")
	}
}

func TestNew_MissingCredentialPerInvocation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DrugBank.BaseURL = "http://127.0.0.1:1"
	s, err := New("drugbank", "test", cfg, quiet())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out := s.Invoke(context.Background(), "search_drugs", map[string]any{"query": "aspirin"})
	if out.Envelope == nil || out.Envelope.Kind != toolerr.MissingCredential {
		t.Fatalf("expected MissingCredential, got %+v", out.Envelope)
	}
}

func TestNew_UserAgentCarriesVersion(t *testing.T) {
	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.Header.Get("User-Agent"))
		w.Write([]byte(`{"data":{"search":{"total":0,"hits":[]}}}`))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.OpenTargets.BaseURL = srv.URL
	s, err := New("opentargets", "1.4.2", cfg, quiet())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out := s.Invoke(context.Background(), "search_targets", map[string]any{"query": "BRAF"})
	if out.Envelope != nil {
		t.Fatalf("unexpected envelope %+v", out.Envelope)
	}
	if got, _ := agent.Load().(string); got != "biobroker/1.4.2" {
		t.Fatalf("expected versioned User-Agent, got %q", got)
	}
}

func TestNew_InvocationTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := config.DefaultConfig()
	cfg.OpenTargets.BaseURL = srv.URL
	cfg.Timeout = time.Minute
	cfg.InvocationTimeout = 50 * time.Millisecond
	s, err := New("opentargets", "test", cfg, quiet())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	start := time.Now()
	out := s.Invoke(context.Background(), "search_targets", map[string]any{"query": "BRAF"})
	if out.Envelope == nil || out.Envelope.Kind != toolerr.UpstreamTimeout {
		t.Fatalf("expected UpstreamTimeout, got %+v", out.Envelope)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("invocation bound not applied, took %s", elapsed)
	}
}
