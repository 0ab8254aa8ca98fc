package opentargets

import (
	"context"
	"fmt"
	"strconv"

	"github.com/RobinCoderZhao/biobroker/pkg/mcpserver"
	"github.com/RobinCoderZhao/biobroker/pkg/normalize"
)

// Instructions is returned to hosts from initialize.
const Instructions = "Explore target-disease evidence on the Open Targets Platform. Search targets, diseases and drugs, then follow associations by Ensembl or EFO ID."

const (
	targetIDPattern  = `^ENSG\d{11}$`
	diseaseIDPattern = `^[A-Za-z]+_\d+$`
)

// Tools returns the Open Targets operations bound to src.
func Tools(src Source, rules normalize.Rules) []mcpserver.Tool {
	h := handlers{src: src, rules: rules}
	return []mcpserver.Tool{
		{
			Name:        "search_targets",
			Description: "Search Open Targets for gene targets by name or symbol.",
			Params:      searchParams("Search query for target names or symbols"),
			Handler:     h.search(EntityTarget, targetRecord),
		},
		{
			Name:        "get_target_details",
			Description: "Get details of a gene target by Ensembl ID (e.g. ENSG00000157764).",
			Params:      []mcpserver.Param{targetID()},
			Handler:     h.target,
		},
		{
			Name:        "search_diseases",
			Description: "Search Open Targets for diseases and phenotypes.",
			Params:      searchParams("Search query for disease names"),
			Handler:     h.search(EntityDisease, diseaseRecord),
		},
		{
			Name:        "get_target_associated_diseases",
			Description: "List diseases associated with a target, highest association score first.",
			Params:      []mcpserver.Param{targetID(), maxResults(), pageParam()},
			Handler:     h.targetDiseases,
		},
		{
			Name:        "get_disease_associated_targets",
			Description: "List targets associated with a disease, highest association score first.",
			Params: []mcpserver.Param{
				mcpserver.String("disease_id", "Disease ID (e.g. EFO_0000311, MONDO_0004992)").Require().Matching(diseaseIDPattern),
				maxResults(),
				pageParam(),
			},
			Handler: h.diseaseTargets,
		},
		{
			Name:        "search_drugs",
			Description: "Search Open Targets for drugs and clinical candidates.",
			Params:      searchParams("Search query for drug names"),
			Handler:     h.search(EntityDrug, drugRecord),
		},
	}
}

func targetID() mcpserver.Param {
	return mcpserver.String("target_id", "Ensembl gene ID of the target").Require().Matching(targetIDPattern)
}

func maxResults() mcpserver.Param {
	return mcpserver.Integer("max_results", "Maximum number of results to return").WithDefault(10).Range(1, 100)
}

func pageParam() mcpserver.Param {
	return mcpserver.Integer("page", "Result page, starting at 0").WithDefault(0).Range(0, 1000)
}

func searchParams(description string) []mcpserver.Param {
	return []mcpserver.Param{
		mcpserver.String("query", description).Require(),
		maxResults(),
		pageParam(),
	}
}

type handlers struct {
	src   Source
	rules normalize.Rules
}

func (h handlers) search(entity string, record func(Hit) normalize.Record) mcpserver.Handler {
	return func(ctx context.Context, args mcpserver.Args) (string, error) {
		size, page := args.Int("max_results"), args.Int("page")
		res, err := h.src.Search(ctx, entity, args.String("query"), size, page)
		if err != nil {
			return "", err
		}
		records := make([]normalize.Record, 0, len(res.Hits))
		for _, hit := range res.Hits {
			records = append(records, record(hit))
		}
		return normalize.List(records, h.rules, footer(len(res.Hits), res.Total, size, page, entity+"s")), nil
	}
}

func targetRecord(hit Hit) normalize.Record {
	return normalize.Record{}.
		Add("Symbol", hit.Name).
		Add("Target ID", hit.ID).
		AddExcerpt("Description", hit.Description)
}

func diseaseRecord(hit Hit) normalize.Record {
	return normalize.Record{}.
		Add("Disease", hit.Name).
		Add("Disease ID", hit.ID).
		AddExcerpt("Description", hit.Description)
}

func drugRecord(hit Hit) normalize.Record {
	return normalize.Record{}.
		Add("Drug", hit.Name).
		Add("Drug ID", hit.ID).
		AddExcerpt("Description", hit.Description)
}

func (h handlers) target(ctx context.Context, args mcpserver.Args) (string, error) {
	t, err := h.src.Target(ctx, args.String("target_id"))
	if err != nil {
		return "", err
	}
	var location string
	if t.Chromosome != "" {
		location = "chr" + t.Chromosome
		if t.Start > 0 && t.End > 0 {
			location += fmt.Sprintf(":%d-%d", t.Start, t.End)
		}
	}
	rec := normalize.Record{}.
		Add("Symbol", t.Symbol).
		Add("Name", t.Name).
		Add("Target ID", t.ID).
		Add("Biotype", t.Biotype).
		Add("Location", location).
		AddList("Synonyms", t.Synonyms).
		AddExcerpt("Function", normalize.JoinList(t.Functions))
	return normalize.Detail(rec, h.rules), nil
}

func (h handlers) targetDiseases(ctx context.Context, args mcpserver.Args) (string, error) {
	id := args.String("target_id")
	size, page := args.Int("max_results"), args.Int("page")
	res, err := h.src.TargetDiseases(ctx, id, size, page)
	if err != nil {
		return "", err
	}
	records := make([]normalize.Record, 0, len(res.Rows))
	for _, a := range res.Rows {
		records = append(records, normalize.Record{}.
			Add("Disease", a.Name).
			Add("Disease ID", a.ID).
			Add("Association Score", score(a.Score)))
	}
	rules := h.rules.WithEmptyMessage("No diseases associated with target " + id + ".")
	return normalize.List(records, rules, footer(len(res.Rows), res.Total, size, page, "associations")), nil
}

func (h handlers) diseaseTargets(ctx context.Context, args mcpserver.Args) (string, error) {
	id := args.String("disease_id")
	size, page := args.Int("max_results"), args.Int("page")
	res, err := h.src.DiseaseTargets(ctx, id, size, page)
	if err != nil {
		return "", err
	}
	records := make([]normalize.Record, 0, len(res.Rows))
	for _, a := range res.Rows {
		records = append(records, normalize.Record{}.
			Add("Symbol", a.Symbol).
			Add("Name", a.Name).
			Add("Target ID", a.ID).
			Add("Association Score", score(a.Score)))
	}
	rules := h.rules.WithEmptyMessage("No targets associated with disease " + id + ".")
	return normalize.List(records, rules, footer(len(res.Rows), res.Total, size, page, "associations")), nil
}

func score(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func footer(n, total, size, page int, noun string) string {
	if n == 0 {
		return ""
	}
	first := page*size + 1
	last := page*size + n
	if total <= last {
		return fmt.Sprintf("Showing %d-%d of %d %s.", first, last, total, noun)
	}
	return fmt.Sprintf("Showing %d-%d of %d %s. Use page=%d for more.", first, last, total, noun, page+1)
}
