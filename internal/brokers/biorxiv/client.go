// Package biorxiv exposes the bioRxiv and medRxiv preprint servers as broker tools.
package biorxiv

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/RobinCoderZhao/biobroker/internal/config"
	"github.com/RobinCoderZhao/biobroker/pkg/toolerr"
	"github.com/RobinCoderZhao/biobroker/pkg/upstream"
)

// Preprint is one version of a preprint.
type Preprint struct {
	DOI                 string
	Title               string
	Authors             string
	Date                string
	Version             string
	Category            string
	Abstract            string
	License             string
	CorrespondingAuthor string
	Institution         string
	PublishedDOI        string
}

// Publication links a preprint to its journal version.
type Publication struct {
	PreprintDOI   string
	PreprintTitle string
	PreprintDate  string
	PublishedDOI  string
	Journal       string
	PublishedDate string
}

// Page is one window of an interval listing. Cursor is the offset of the
// first preprint in the full listing.
type Page struct {
	Preprints []Preprint
	Total     int
	Cursor    int
}

// Source is the preprint capability the tools are built on.
type Source interface {
	Preprint(ctx context.Context, server, doi string) (Preprint, error)
	Published(ctx context.Context, server, doi string) (Publication, error)
	Interval(ctx context.Context, server, interval, category string, cursor int) (Page, error)
}

// Client talks to api.biorxiv.org.
type Client struct {
	api *upstream.Client
}

// NewClient creates a bioRxiv API client.
func NewClient(cfg config.BioRxivConfig, timeout time.Duration, logger *slog.Logger, opts ...upstream.Option) *Client {
	base := []upstream.Option{
		upstream.WithTimeout(timeout),
		upstream.WithLogger(logger),
	}
	return &Client{api: upstream.New("bioRxiv", cfg.BaseURL, append(base, opts...)...)}
}

var doiRE = regexp.MustCompile(doiPattern)

// checkDOI rejects DOIs that would change the request path once spliced in.
func checkDOI(doi string) error {
	if !doiRE.MatchString(doi) || strings.Contains(doi, "..") {
		return toolerr.New(toolerr.InvalidQuery, "bioRxiv: malformed DOI %q", doi)
	}
	return nil
}

// Preprint returns the latest version of the preprint with the given DOI.
func (c *Client) Preprint(ctx context.Context, server, doi string) (Preprint, error) {
	if err := checkDOI(doi); err != nil {
		return Preprint{}, err
	}
	tree, err := c.api.FetchTree(ctx, upstream.Query{
		Path:    fmt.Sprintf("details/%s/%s/na/json", server, doi),
		Key:     doi,
		KeyName: "doi",
	})
	if err != nil {
		return Preprint{}, notFound(err, "preprint", doi)
	}
	versions := tree.Get("collection").Array()
	if len(versions) == 0 {
		return Preprint{}, toolerr.NotFound("preprint", doi)
	}
	return preprint(versions[len(versions)-1]), nil
}

// Published looks up the journal publication of a preprint.
func (c *Client) Published(ctx context.Context, server, doi string) (Publication, error) {
	if err := checkDOI(doi); err != nil {
		return Publication{}, err
	}
	tree, err := c.api.FetchTree(ctx, upstream.Query{
		Path:    fmt.Sprintf("pubs/%s/%s/na/json", server, doi),
		Key:     doi,
		KeyName: "doi",
	})
	if err != nil {
		return Publication{}, notFound(err, "published version of preprint", doi)
	}
	pubs := tree.Get("collection").Array()
	if len(pubs) == 0 {
		return Publication{}, toolerr.NotFound("published version of preprint", doi)
	}
	p := pubs[0]
	return Publication{
		PreprintDOI:   p.Get("biorxiv_doi").String(),
		PreprintTitle: p.Get("preprint_title").String(),
		PreprintDate:  p.Get("preprint_date").String(),
		PublishedDOI:  p.Get("published_doi").String(),
		Journal:       p.Get("published_journal").String(),
		PublishedDate: p.Get("published_date").String(),
	}, nil
}

// Interval lists preprints posted in interval ("7d" or "2024-01-01/2024-01-31"),
// starting at cursor.
func (c *Client) Interval(ctx context.Context, server, interval, category string, cursor int) (Page, error) {
	params := url.Values{}
	if category != "" {
		params.Set("category", category)
	}
	tree, err := c.api.FetchTree(ctx, upstream.Query{
		Path:    fmt.Sprintf("details/%s/%s/%d/json", server, interval, cursor),
		Params:  params,
		Key:     interval,
		KeyName: "interval",
	})
	if err != nil {
		return Page{}, err
	}

	page := Page{
		Total:  int(tree.Get("messages.0.total").Int()),
		Cursor: cursor,
	}
	for _, item := range tree.Get("collection").Array() {
		page.Preprints = append(page.Preprints, preprint(item))
	}
	return page, nil
}

func preprint(r gjson.Result) Preprint {
	p := Preprint{
		DOI:                 r.Get("doi").String(),
		Title:               r.Get("title").String(),
		Authors:             r.Get("authors").String(),
		Date:                r.Get("date").String(),
		Version:             r.Get("version").String(),
		Category:            r.Get("category").String(),
		Abstract:            r.Get("abstract").String(),
		License:             r.Get("license").String(),
		CorrespondingAuthor: r.Get("author_corresponding").String(),
		Institution:         r.Get("author_corresponding_institution").String(),
	}
	if pub := r.Get("published").String(); pub != "NA" {
		p.PublishedDOI = pub
	}
	return p
}

func notFound(err error, what, id string) error {
	if upstream.IsNotFound(err) {
		return toolerr.NotFound(what, id)
	}
	return err
}
