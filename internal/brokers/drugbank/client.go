// Package drugbank exposes the DrugBank drug database as broker tools.
package drugbank

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/RobinCoderZhao/biobroker/internal/config"
	"github.com/RobinCoderZhao/biobroker/pkg/toolerr"
	"github.com/RobinCoderZhao/biobroker/pkg/upstream"
)

// Drug is one DrugBank entry.
type Drug struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	CASNumber          string   `json:"cas_number"`
	Groups             []string `json:"groups"`
	Synonyms           []string `json:"synonyms"`
	Categories         []string `json:"categories"`
	Indication         string   `json:"indication"`
	MechanismOfAction  string   `json:"mechanism_of_action"`
	Pharmacodynamics   string   `json:"pharmacodynamics"`
	Toxicity           string   `json:"toxicity"`
	HalfLife           string   `json:"half_life"`
	RouteOfElimination string   `json:"route_of_elimination"`
}

// Interaction is a documented drug-drug interaction.
type Interaction struct {
	Drug struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"interacting_drug"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// DrugPage is one page of drug search results. Total is zero when the API
// does not report it.
type DrugPage struct {
	Drugs []Drug
	Total int
	Page  int
}

// Source is the drug database capability the tools are built on.
type Source interface {
	Search(ctx context.Context, q string, limit, page int) (DrugPage, error)
	Drug(ctx context.Context, id string) (Drug, error)
	Interactions(ctx context.Context, id string, limit int) ([]Interaction, error)
}

// Client talks to the DrugBank API.
type Client struct {
	api *upstream.Client
}

// NewClient creates a DrugBank client. Every call requires an API key;
// without one calls fail with MissingCredential before any network I/O.
func NewClient(cfg config.DrugBankConfig, timeout time.Duration, logger *slog.Logger, opts ...upstream.Option) *Client {
	base := []upstream.Option{
		upstream.WithTimeout(timeout),
		upstream.WithLogger(logger),
		upstream.WithAuth(upstream.Auth{
			Mode:       upstream.AuthBearer,
			Credential: cfg.APIKey,
			Required:   true,
			Name:       "API key (DRUGBANK_API_KEY)",
		}),
	}
	return &Client{api: upstream.New("DrugBank", cfg.BaseURL, append(base, opts...)...)}
}

// Search runs a drug query. q accepts DrugBank field prefixes such as
// "indication:asthma" or "category:antibiotic".
func (c *Client) Search(ctx context.Context, q string, limit, page int) (DrugPage, error) {
	var resp struct {
		Data []Drug `json:"data"`
		Meta struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	err := c.api.FetchJSON(ctx, upstream.Query{
		Path: "drugs",
		Params: url.Values{
			"q":     {q},
			"limit": {strconv.Itoa(limit)},
			"page":  {strconv.Itoa(page)},
		},
		Key:     q,
		KeyName: "query",
	}, &resp)
	if err != nil {
		return DrugPage{}, err
	}
	return DrugPage{Drugs: resp.Data, Total: resp.Meta.Total, Page: page}, nil
}

// Drug fetches one drug by DrugBank ID.
func (c *Client) Drug(ctx context.Context, id string) (Drug, error) {
	var resp struct {
		Data *Drug `json:"data"`
	}
	err := c.api.FetchJSON(ctx, upstream.Query{Path: "drugs/" + url.PathEscape(id), Key: id, KeyName: "drug_id"}, &resp)
	if err != nil {
		if upstream.IsNotFound(err) {
			return Drug{}, toolerr.NotFound("drug", id)
		}
		return Drug{}, err
	}
	if resp.Data == nil || (resp.Data.ID == "" && resp.Data.Name == "") {
		return Drug{}, toolerr.NotFound("drug", id)
	}
	d := *resp.Data
	if d.ID == "" {
		d.ID = id
	}
	return d, nil
}

// Interactions lists documented interactions of a drug.
func (c *Client) Interactions(ctx context.Context, id string, limit int) ([]Interaction, error) {
	var resp struct {
		Data []Interaction `json:"data"`
	}
	err := c.api.FetchJSON(ctx, upstream.Query{
		Path:    "drugs/" + url.PathEscape(id) + "/interactions",
		Params:  url.Values{"limit": {strconv.Itoa(limit)}},
		Key:     id,
		KeyName: "drug_id",
	}, &resp)
	if err != nil {
		if upstream.IsNotFound(err) {
			return nil, toolerr.NotFound("drug", id)
		}
		return nil, err
	}
	if len(resp.Data) > limit {
		resp.Data = resp.Data[:limit]
	}
	return resp.Data, nil
}
