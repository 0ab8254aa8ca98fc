// Package pubmed exposes NCBI PubMed literature search as broker tools.
package pubmed

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/RobinCoderZhao/biobroker/internal/config"
	"github.com/RobinCoderZhao/biobroker/pkg/normalize"
	"github.com/RobinCoderZhao/biobroker/pkg/toolerr"
	"github.com/RobinCoderZhao/biobroker/pkg/upstream"
)

// Article is one PubMed citation.
type Article struct {
	PMID     string
	Title    string
	Authors  []string
	Journal  string
	PubDate  string
	DOI      string
	Abstract string
	MeSH     []string
}

// SearchPage is one page of search hits in relevance order.
type SearchPage struct {
	Articles []Article
	Total    int
	Offset   int
}

// Source is the PubMed capability the tools are built on.
type Source interface {
	Search(ctx context.Context, term string, limit, offset int) (SearchPage, error)
	Article(ctx context.Context, pmid string) (Article, error)
	Related(ctx context.Context, pmid string, limit int) ([]Article, error)
}

// Client talks to the NCBI Entrez E-utilities.
type Client struct {
	api *upstream.Client
}

// NewClient creates an Entrez client. NCBI requires a contact email on every
// request; without one every call fails with MissingCredential.
func NewClient(cfg config.PubMedConfig, timeout time.Duration, logger *slog.Logger, opts ...upstream.Option) *Client {
	// NCBI allows 10 requests per second with an API key, 3 without.
	rps := 3.0
	if cfg.APIKey != "" {
		rps = 10
	}
	base := []upstream.Option{
		upstream.WithTimeout(timeout),
		upstream.WithLogger(logger),
		upstream.WithRateLimit(rps, 1),
		upstream.WithAuth(upstream.Auth{
			Mode:       upstream.AuthQueryParam,
			Param:      "email",
			Credential: cfg.Email,
			Required:   true,
			Name:       "contact email (NCBI_EMAIL)",
		}),
		upstream.WithDefaultParams(url.Values{
			"db":      {"pubmed"},
			"tool":    {cfg.Tool},
			"api_key": {cfg.APIKey},
		}),
	}
	return &Client{api: upstream.New("PubMed", cfg.BaseURL, append(base, opts...)...)}
}

// Search runs an esearch query and fetches the matching citations.
func (c *Client) Search(ctx context.Context, term string, limit, offset int) (SearchPage, error) {
	tree, err := c.api.FetchTree(ctx, upstream.Query{
		Path:    "esearch.fcgi",
		Key:     term,
		KeyName: "search term",
		Params: url.Values{
			"term":     {term},
			"retmax":   {strconv.Itoa(limit)},
			"retstart": {strconv.Itoa(offset)},
			"retmode":  {"json"},
			"sort":     {"relevance"},
		},
	})
	if err != nil {
		return SearchPage{}, err
	}
	if msg := tree.Get("esearchresult.ERROR").String(); msg != "" {
		return SearchPage{}, toolerr.New(toolerr.UpstreamError, "PubMed rejected the query: %s", msg)
	}

	page := SearchPage{
		Total:  int(tree.Get("esearchresult.count").Int()),
		Offset: offset,
	}
	var ids []string
	for _, id := range tree.Get("esearchresult.idlist").Array() {
		ids = append(ids, id.String())
	}
	if len(ids) == 0 {
		return page, nil
	}
	page.Articles, err = c.fetch(ctx, ids)
	return page, err
}

// Article fetches a single citation with its abstract.
func (c *Client) Article(ctx context.Context, pmid string) (Article, error) {
	articles, err := c.fetch(ctx, []string{pmid})
	if err != nil {
		if upstream.IsNotFound(err) {
			return Article{}, toolerr.NotFound("PubMed article", pmid)
		}
		return Article{}, err
	}
	for _, a := range articles {
		if a.PMID == pmid {
			return a, nil
		}
	}
	return Article{}, toolerr.NotFound("PubMed article", pmid)
}

// Related returns the articles NCBI scores as most similar to pmid.
func (c *Client) Related(ctx context.Context, pmid string, limit int) ([]Article, error) {
	tree, err := c.api.FetchTree(ctx, upstream.Query{
		Path:    "elink.fcgi",
		Key:     pmid,
		KeyName: "pmid",
		Params: url.Values{
			"dbfrom":   {"pubmed"},
			"id":       {pmid},
			"cmd":      {"neighbor_score"},
			"linkname": {"pubmed_pubmed"},
			"retmode":  {"json"},
		},
	})
	if err != nil {
		return nil, err
	}

	var ids []string
links:
	for _, set := range tree.Get("linksets").Array() {
		for _, db := range set.Get("linksetdbs").Array() {
			if db.Get("linkname").String() != "pubmed_pubmed" {
				continue
			}
			for _, link := range db.Get("links").Array() {
				// neighbor_score links carry {id, score}; plain links are bare ids.
				id := link.Get("id").String()
				if id == "" {
					id = link.String()
				}
				if id == "" || id == pmid {
					continue
				}
				ids = append(ids, id)
				if len(ids) == limit {
					break links
				}
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return c.fetch(ctx, ids)
}

// fetch retrieves full records for ids, preserving the order of ids.
func (c *Client) fetch(ctx context.Context, ids []string) ([]Article, error) {
	var set articleSet
	err := c.api.FetchXML(ctx, upstream.Query{
		Path:    "efetch.fcgi",
		Key:     strings.Join(ids, ","),
		KeyName: "pmid",
		Params: url.Values{
			"id":      {strings.Join(ids, ",")},
			"retmode": {"xml"},
			"rettype": {"abstract"},
		},
	}, &set)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Article, len(set.Articles))
	for _, pa := range set.Articles {
		a := pa.article()
		byID[a.PMID] = a
	}
	articles := make([]Article, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			articles = append(articles, a)
		}
	}
	return articles, nil
}

// articleSet accepts any root element: efetch answers unknown ids with an
// error document rather than an empty PubmedArticleSet.
type articleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type markup struct {
	Inner string `xml:",innerxml"`
}

type pubmedArticle struct {
	PMID    string `xml:"MedlineCitation>PMID"`
	Article struct {
		Journal struct {
			Title   string `xml:"Title"`
			PubDate struct {
				Year        string `xml:"Year"`
				Month       string `xml:"Month"`
				Day         string `xml:"Day"`
				MedlineDate string `xml:"MedlineDate"`
			} `xml:"JournalIssue>PubDate"`
		} `xml:"Journal"`
		Title    markup `xml:"ArticleTitle"`
		Abstract []struct {
			Label string `xml:"Label,attr"`
			Text  string `xml:",innerxml"`
		} `xml:"Abstract>AbstractText"`
		Authors []struct {
			LastName   string `xml:"LastName"`
			Initials   string `xml:"Initials"`
			ForeName   string `xml:"ForeName"`
			Collective string `xml:"CollectiveName"`
		} `xml:"AuthorList>Author"`
	} `xml:"MedlineCitation>Article"`
	MeSH []string `xml:"MedlineCitation>MeshHeadingList>MeshHeading>DescriptorName"`
	IDs  []struct {
		Type  string `xml:"IdType,attr"`
		Value string `xml:",chardata"`
	} `xml:"PubmedData>ArticleIdList>ArticleId"`
}

func (pa pubmedArticle) article() Article {
	a := Article{
		PMID:    strings.TrimSpace(pa.PMID),
		Title:   normalize.CleanText(pa.Article.Title.Inner),
		Journal: strings.TrimSpace(pa.Article.Journal.Title),
		MeSH:    pa.MeSH,
	}

	d := pa.Article.Journal.PubDate
	if d.MedlineDate != "" {
		a.PubDate = d.MedlineDate
	} else {
		a.PubDate = strings.Join(nonEmpty(d.Year, d.Month, d.Day), " ")
	}

	for _, au := range pa.Article.Authors {
		switch {
		case au.Collective != "":
			a.Authors = append(a.Authors, au.Collective)
		case au.LastName != "":
			a.Authors = append(a.Authors, strings.Join(nonEmpty(au.LastName, au.Initials), " "))
		}
	}

	sections := make([]string, 0, len(pa.Article.Abstract))
	for _, s := range pa.Article.Abstract {
		text := normalize.CleanText(s.Text)
		if text == "" {
			continue
		}
		if s.Label != "" {
			text = s.Label + ": " + text
		}
		sections = append(sections, text)
	}
	a.Abstract = strings.Join(sections, " ")

	for _, id := range pa.IDs {
		if id.Type == "doi" {
			a.DOI = strings.TrimSpace(id.Value)
		}
	}
	return a
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
