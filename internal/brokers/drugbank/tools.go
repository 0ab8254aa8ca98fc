package drugbank

import (
	"context"
	"fmt"

	"github.com/RobinCoderZhao/biobroker/pkg/mcpserver"
	"github.com/RobinCoderZhao/biobroker/pkg/normalize"
)

// Instructions is returned to hosts from initialize.
const Instructions = "Query the DrugBank drug database. Requires a DrugBank API key. Search by name, indication or category; look up details and interactions by DrugBank ID."

const drugIDPattern = `^DB\d{5}$`

// Tools returns the DrugBank operations bound to src.
func Tools(src Source, rules normalize.Rules) []mcpserver.Tool {
	h := handlers{src: src, rules: rules}
	return []mcpserver.Tool{
		{
			Name:        "search_drugs",
			Description: "Search DrugBank for drugs matching a name or keyword.",
			Params:      searchParams("query", "Search query for drug names"),
			Handler:     h.search("query", ""),
		},
		{
			Name:        "get_drug_details",
			Description: "Get detailed information about a drug by its DrugBank ID.",
			Params:      []mcpserver.Param{drugID()},
			Handler:     h.details,
		},
		{
			Name:        "find_drugs_by_indication",
			Description: "Search for drugs used to treat a medical condition.",
			Params:      searchParams("indication", "Medical condition or disease"),
			Handler:     h.search("indication", "indication:"),
		},
		{
			Name:        "find_drugs_by_category",
			Description: "Search for drugs in a category (e.g. \"antibiotic\", \"antidepressant\").",
			Params:      searchParams("category", "Drug category"),
			Handler:     h.search("category", "category:"),
		},
		{
			Name:        "get_drug_interactions",
			Description: "List documented interactions of a drug by its DrugBank ID.",
			Params:      []mcpserver.Param{drugID(), maxResults()},
			Handler:     h.interactions,
		},
	}
}

func drugID() mcpserver.Param {
	return mcpserver.String("drug_id", "DrugBank ID (e.g. DB00945)").Require().Matching(drugIDPattern)
}

func maxResults() mcpserver.Param {
	return mcpserver.Integer("max_results", "Maximum number of results to return").WithDefault(10).Range(1, 100)
}

func searchParams(name, description string) []mcpserver.Param {
	return []mcpserver.Param{
		mcpserver.String(name, description).Require(),
		maxResults(),
		mcpserver.Integer("page", "Result page, starting at 1").WithDefault(1).Range(1, 1000),
	}
}

type handlers struct {
	src   Source
	rules normalize.Rules
}

func (h handlers) search(param, prefix string) mcpserver.Handler {
	return func(ctx context.Context, args mcpserver.Args) (string, error) {
		limit, page := args.Int("max_results"), args.Int("page")
		res, err := h.src.Search(ctx, prefix+args.String(param), limit, page)
		if err != nil {
			return "", err
		}
		records := make([]normalize.Record, 0, len(res.Drugs))
		for _, d := range res.Drugs {
			records = append(records, normalize.Record{}.
				Add("Name", d.Name).
				Add("DrugBank ID", d.ID).
				Add("CAS Number", d.CASNumber).
				AddList("Groups", d.Groups).
				AddExcerpt("Synonyms", normalize.JoinList(d.Synonyms)).
				AddExcerpt("Description", d.Description))
		}
		return normalize.List(records, h.rules, footer(res, limit)), nil
	}
}

func (h handlers) details(ctx context.Context, args mcpserver.Args) (string, error) {
	d, err := h.src.Drug(ctx, args.String("drug_id"))
	if err != nil {
		return "", err
	}
	rec := normalize.Record{}.
		Add("Name", d.Name).
		Add("DrugBank ID", d.ID).
		Add("CAS Number", d.CASNumber).
		AddList("Groups", d.Groups).
		AddList("Categories", d.Categories).
		AddExcerpt("Indication", d.Indication).
		AddExcerpt("Mechanism of Action", d.MechanismOfAction).
		AddExcerpt("Pharmacodynamics", d.Pharmacodynamics).
		AddExcerpt("Toxicity", d.Toxicity).
		Add("Half-life", d.HalfLife).
		AddExcerpt("Route of Elimination", d.RouteOfElimination).
		AddExcerpt("Description", d.Description)
	return normalize.Detail(rec, h.rules), nil
}

func (h handlers) interactions(ctx context.Context, args mcpserver.Args) (string, error) {
	id := args.String("drug_id")
	list, err := h.src.Interactions(ctx, id, args.Int("max_results"))
	if err != nil {
		return "", err
	}
	records := make([]normalize.Record, 0, len(list))
	for _, in := range list {
		records = append(records, normalize.Record{}.
			Add("Interacting Drug", in.Drug.Name).
			Add("DrugBank ID", in.Drug.ID).
			Add("Severity", in.Severity).
			AddExcerpt("Description", in.Description))
	}
	return normalize.List(records, h.rules.WithEmptyMessage(fmt.Sprintf("No interactions found for %s.", id)), ""), nil
}

func footer(res DrugPage, limit int) string {
	if len(res.Drugs) == 0 {
		return ""
	}
	if res.Total > 0 {
		return fmt.Sprintf("Page %d, %d of %d drugs.", res.Page, len(res.Drugs), res.Total)
	}
	if len(res.Drugs) == limit {
		return fmt.Sprintf("Page %d. Use page=%d for more.", res.Page, res.Page+1)
	}
	return ""
}
