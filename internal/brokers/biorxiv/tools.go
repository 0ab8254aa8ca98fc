package biorxiv

import (
	"context"
	"fmt"
	"time"

	"github.com/RobinCoderZhao/biobroker/pkg/mcpserver"
	"github.com/RobinCoderZhao/biobroker/pkg/normalize"
	"github.com/RobinCoderZhao/biobroker/pkg/toolerr"
)

// Instructions is returned to hosts from initialize.
const Instructions = "Browse bioRxiv and medRxiv preprints. Listings are by posting date; use get_preprint_by_doi for the full abstract and find_published_version to locate the journal article."

const (
	doiPattern  = `^10\.\d{4,9}/[-._;()/:A-Za-z0-9]+$`
	datePattern = `^\d{4}-\d{2}-\d{2}$`
	dateLayout  = "2006-01-02"
)

// Tools returns the preprint operations bound to src. defaultServer is used
// when a call does not name one.
func Tools(src Source, rules normalize.Rules, defaultServer string) []mcpserver.Tool {
	h := handlers{src: src, rules: rules}
	server := func() mcpserver.Param {
		return mcpserver.String("server", "Preprint server to query").WithDefault(defaultServer).OneOf("biorxiv", "medrxiv")
	}
	doi := func() mcpserver.Param {
		return mcpserver.String("doi", "DOI of the preprint (e.g. 10.1101/2020.01.01.123456)").Require().Matching(doiPattern)
	}
	return []mcpserver.Tool{
		{
			Name:        "get_preprint_by_doi",
			Description: "Get detailed information about a specific preprint by its DOI.",
			Params:      []mcpserver.Param{doi(), server()},
			Handler:     h.byDOI,
		},
		{
			Name:        "find_published_version",
			Description: "Find the journal-published version of a preprint by its DOI.",
			Params:      []mcpserver.Param{doi(), server()},
			Handler:     h.published,
		},
		{
			Name:        "get_recent_preprints",
			Description: "List preprints posted in the last N days, optionally within one category.",
			Params: []mcpserver.Param{
				server(),
				mcpserver.Integer("days", "Number of days to look back").WithDefault(7).Range(1, 365),
				maxResults(),
				category(),
				cursor(),
			},
			Handler: h.recent,
		},
		{
			Name:        "search_preprints",
			Description: "List preprints posted between two dates, optionally within one category.",
			Params: []mcpserver.Param{
				server(),
				mcpserver.String("start_date", "Start date (YYYY-MM-DD)").Require().Matching(datePattern),
				mcpserver.String("end_date", "End date (YYYY-MM-DD)").Require().Matching(datePattern),
				maxResults(),
				category(),
				cursor(),
			},
			Handler: h.search,
		},
	}
}

func maxResults() mcpserver.Param {
	return mcpserver.Integer("max_results", "Maximum number of results to return").WithDefault(10).Range(1, 100)
}

func category() mcpserver.Param {
	return mcpserver.String("category", "Subject category (e.g. cell_biology)")
}

func cursor() mcpserver.Param {
	return mcpserver.Integer("cursor", "Offset into the listing, for paging").WithDefault(0).Range(0, 1000000)
}

type handlers struct {
	src   Source
	rules normalize.Rules
}

func (h handlers) byDOI(ctx context.Context, args mcpserver.Args) (string, error) {
	p, err := h.src.Preprint(ctx, args.String("server"), args.String("doi"))
	if err != nil {
		return "", err
	}
	rec := normalize.Record{}.
		Add("Title", p.Title).
		Add("Authors", p.Authors).
		Add("DOI", p.DOI).
		Add("Version", p.Version).
		Add("Date", p.Date).
		Add("Category", p.Category).
		Add("License", p.License).
		Add("Corresponding Author", p.CorrespondingAuthor).
		Add("Institution", p.Institution).
		Add("Published DOI", p.PublishedDOI).
		Add("Abstract", p.Abstract)
	return normalize.Detail(rec, h.rules), nil
}

func (h handlers) published(ctx context.Context, args mcpserver.Args) (string, error) {
	p, err := h.src.Published(ctx, args.String("server"), args.String("doi"))
	if err != nil {
		return "", err
	}
	rec := normalize.Record{}.
		Add("Preprint Title", p.PreprintTitle).
		Add("Preprint DOI", p.PreprintDOI).
		Add("Preprint Date", p.PreprintDate).
		Add("Published DOI", p.PublishedDOI).
		Add("Journal", p.Journal).
		Add("Publication Date", p.PublishedDate)
	return normalize.Detail(rec, h.rules), nil
}

func (h handlers) recent(ctx context.Context, args mcpserver.Args) (string, error) {
	days := args.Int("days")
	rules := h.rules.WithEmptyMessage(fmt.Sprintf("No preprints found in the last %d days.", days))
	return h.list(ctx, args, fmt.Sprintf("%dd", days), rules)
}

func (h handlers) search(ctx context.Context, args mcpserver.Args) (string, error) {
	start, err := time.Parse(dateLayout, args.String("start_date"))
	if err != nil {
		return "", toolerr.New(toolerr.Validation, "start_date: not a calendar date: %s", args.String("start_date"))
	}
	end, err := time.Parse(dateLayout, args.String("end_date"))
	if err != nil {
		return "", toolerr.New(toolerr.Validation, "end_date: not a calendar date: %s", args.String("end_date"))
	}
	if end.Before(start) {
		return "", toolerr.New(toolerr.Validation, "end_date %s is before start_date %s", args.String("end_date"), args.String("start_date"))
	}
	interval := start.Format(dateLayout) + "/" + end.Format(dateLayout)
	return h.list(ctx, args, interval, h.rules.WithEmptyMessage("No preprints found in that date range."))
}

func (h handlers) list(ctx context.Context, args mcpserver.Args, interval string, rules normalize.Rules) (string, error) {
	limit := args.Int("max_results")
	page, err := h.src.Interval(ctx, args.String("server"), interval, args.String("category"), args.Int("cursor"))
	if err != nil {
		return "", err
	}
	shown := page.Preprints
	if len(shown) > limit {
		shown = shown[:limit]
	}
	records := make([]normalize.Record, 0, len(shown))
	for _, p := range shown {
		records = append(records, normalize.Record{}.
			Add("Title", p.Title).
			Add("Authors", p.Authors).
			Add("DOI", p.DOI).
			Add("Date", p.Date).
			Add("Category", p.Category).
			AddExcerpt("Abstract", p.Abstract))
	}
	return normalize.List(records, rules, footer(page, len(shown))), nil
}

func footer(page Page, shown int) string {
	if shown == 0 {
		return ""
	}
	next := page.Cursor + shown
	if page.Total > next {
		return fmt.Sprintf("Showing %d-%d of %d preprints. Use cursor=%d for more.", page.Cursor+1, next, page.Total, next)
	}
	return fmt.Sprintf("Showing %d-%d of %d preprints.", page.Cursor+1, next, max(page.Total, next))
}
