package pubmed

import (
	"context"
	"fmt"

	"github.com/RobinCoderZhao/biobroker/pkg/mcpserver"
	"github.com/RobinCoderZhao/biobroker/pkg/normalize"
)

// Instructions is returned to hosts from initialize.
const Instructions = "Search PubMed biomedical literature. Use search_pubmed or find_by_author to discover articles, then get_pubmed_abstract for the full abstract of a PMID."

const pmidPattern = `^\d+$`

// Tools returns the PubMed operations bound to src.
func Tools(src Source, rules normalize.Rules) []mcpserver.Tool {
	h := handlers{src: src, rules: rules}
	return []mcpserver.Tool{
		{
			Name:        "search_pubmed",
			Description: "Search PubMed for articles matching a query in PubMed syntax.",
			Params: []mcpserver.Param{
				mcpserver.String("query", "Search query in PubMed syntax").Require(),
				maxResults(10),
				offsetParam(),
			},
			Handler: h.search,
		},
		{
			Name:        "get_pubmed_abstract",
			Description: "Get the citation and full abstract of a PubMed article by its PMID.",
			Params: []mcpserver.Param{
				mcpserver.String("pmid", "PubMed ID of the article").Require().Matching(pmidPattern),
			},
			Handler: h.abstract,
		},
		{
			Name:        "get_related_articles",
			Description: "Find articles NCBI scores as related to a PubMed article.",
			Params: []mcpserver.Param{
				mcpserver.String("pmid", "PubMed ID of the seed article").Require().Matching(pmidPattern),
				maxResults(5),
			},
			Handler: h.related,
		},
		{
			Name:        "find_by_author",
			Description: "Search PubMed for articles by a specific author (e.g. \"Smith JB\").",
			Params: []mcpserver.Param{
				mcpserver.String("author", "Author name, last name followed by initials").Require(),
				maxResults(10),
				offsetParam(),
			},
			Handler: h.byAuthor,
		},
	}
}

func maxResults(def int) mcpserver.Param {
	return mcpserver.Integer("max_results", "Maximum number of results to return").WithDefault(def).Range(1, 100)
}

func offsetParam() mcpserver.Param {
	return mcpserver.Integer("offset", "Number of results to skip, for paging").WithDefault(0).Range(0, 9999)
}

type handlers struct {
	src   Source
	rules normalize.Rules
}

func (h handlers) search(ctx context.Context, args mcpserver.Args) (string, error) {
	return h.searchTerm(ctx, args.String("query"), args.Int("max_results"), args.Int("offset"))
}

func (h handlers) byAuthor(ctx context.Context, args mcpserver.Args) (string, error) {
	return h.searchTerm(ctx, args.String("author")+"[Author]", args.Int("max_results"), args.Int("offset"))
}

func (h handlers) searchTerm(ctx context.Context, term string, limit, offset int) (string, error) {
	page, err := h.src.Search(ctx, term, limit, offset)
	if err != nil {
		return "", err
	}
	records := make([]normalize.Record, 0, len(page.Articles))
	for _, a := range page.Articles {
		records = append(records, summary(a))
	}
	return normalize.List(records, h.rules, footer(page)), nil
}

func (h handlers) abstract(ctx context.Context, args mcpserver.Args) (string, error) {
	a, err := h.src.Article(ctx, args.String("pmid"))
	if err != nil {
		return "", err
	}
	rec := normalize.Record{}.
		Add("Title", a.Title).
		AddList("Authors", a.Authors).
		Add("Journal", a.Journal).
		Add("Published", a.PubDate).
		Add("PMID", a.PMID).
		Add("DOI", a.DOI).
		AddList("MeSH terms", a.MeSH).
		Add("Abstract", a.Abstract)
	return normalize.Detail(rec, h.rules), nil
}

func (h handlers) related(ctx context.Context, args mcpserver.Args) (string, error) {
	articles, err := h.src.Related(ctx, args.String("pmid"), args.Int("max_results"))
	if err != nil {
		return "", err
	}
	records := make([]normalize.Record, 0, len(articles))
	for _, a := range articles {
		records = append(records, summary(a))
	}
	return normalize.List(records, h.rules.WithEmptyMessage("No related articles found."), ""), nil
}

func summary(a Article) normalize.Record {
	published := a.PubDate
	if a.Journal != "" && a.PubDate != "" {
		published = fmt.Sprintf("%s in %s", a.PubDate, a.Journal)
	}
	return normalize.Record{}.
		Add("Title", a.Title).
		AddList("Authors", a.Authors).
		Add("Published", published).
		Add("PMID", a.PMID).
		AddExcerpt("Abstract", a.Abstract)
}

func footer(page SearchPage) string {
	if len(page.Articles) == 0 {
		return ""
	}
	first := page.Offset + 1
	last := page.Offset + len(page.Articles)
	if page.Total <= last {
		return fmt.Sprintf("Showing %d-%d of %d results.", first, last, page.Total)
	}
	return fmt.Sprintf("Showing %d-%d of %d results. Use offset=%d for more.", first, last, page.Total, last)
}
