// Package opentargets exposes the Open Targets Platform as broker tools.
package opentargets

import (
	"context"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/RobinCoderZhao/biobroker/internal/config"
	"github.com/RobinCoderZhao/biobroker/pkg/toolerr"
	"github.com/RobinCoderZhao/biobroker/pkg/upstream"
)

// Entity names accepted by the platform search.
const (
	EntityTarget  = "target"
	EntityDisease = "disease"
	EntityDrug    = "drug"
)

// Hit is one search result.
type Hit struct {
	ID          string
	Name        string
	Entity      string
	Description string
}

// SearchPage is one page of search hits.
type SearchPage struct {
	Hits  []Hit
	Total int
	Page  int
}

// Target is a gene target.
type Target struct {
	ID         string
	Symbol     string
	Name       string
	Biotype    string
	Chromosome string
	Start      int64
	End        int64
	Functions  []string
	Synonyms   []string
}

// Association links a target and a disease with an overall score. ID, Name
// and Symbol describe the associated entity; Symbol is empty for diseases.
type Association struct {
	ID     string
	Name   string
	Symbol string
	Score  float64
}

// AssociationPage is one page of associations, highest score first.
type AssociationPage struct {
	Rows  []Association
	Total int
	Page  int
}

// Source is the Open Targets capability the tools are built on.
type Source interface {
	Search(ctx context.Context, entity, q string, size, page int) (SearchPage, error)
	Target(ctx context.Context, id string) (Target, error)
	TargetDiseases(ctx context.Context, targetID string, size, page int) (AssociationPage, error)
	DiseaseTargets(ctx context.Context, diseaseID string, size, page int) (AssociationPage, error)
}

const (
	searchQuery = `query Search($q: String!, $entities: [String!], $index: Int!, $size: Int!) {
  search(queryString: $q, entityNames: $entities, page: {index: $index, size: $size}) {
    total
    hits { id name entity description }
  }
}`

	targetQuery = `query Target($id: String!) {
  target(ensemblId: $id) {
    id
    approvedSymbol
    approvedName
    biotype
    genomicLocation { chromosome start end }
    functionDescriptions
    synonyms { label }
  }
}`

	targetDiseasesQuery = `query TargetDiseases($id: String!, $index: Int!, $size: Int!) {
  target(ensemblId: $id) {
    id
    associatedDiseases(page: {index: $index, size: $size}) {
      count
      rows { score disease { id name } }
    }
  }
}`

	diseaseTargetsQuery = `query DiseaseTargets($id: String!, $index: Int!, $size: Int!) {
  disease(efoId: $id) {
    id
    associatedTargets(page: {index: $index, size: $size}) {
      count
      rows { score target { id approvedSymbol approvedName } }
    }
  }
}`
)

// Client talks to the Open Targets Platform GraphQL API.
type Client struct {
	api *upstream.Client
}

// NewClient creates an Open Targets client. The API is public; no credential
// is needed.
func NewClient(cfg config.OpenTargetsConfig, timeout time.Duration, logger *slog.Logger, opts ...upstream.Option) *Client {
	base := []upstream.Option{
		upstream.WithTimeout(timeout),
		upstream.WithLogger(logger),
	}
	return &Client{api: upstream.New("Open Targets", cfg.BaseURL, append(base, opts...)...)}
}

// graphql posts one query and returns its data tree. GraphQL reports most
// failures with status 200 and an errors array.
func (c *Client) graphql(ctx context.Context, query string, vars map[string]any, key, keyName string) (gjson.Result, error) {
	tree, err := c.api.FetchTree(ctx, upstream.Query{
		Path:    "graphql",
		Method:  "POST",
		Body:    map[string]any{"query": query, "variables": vars},
		Key:     key,
		KeyName: keyName,
	})
	if err != nil {
		return gjson.Result{}, err
	}
	if msg := tree.Get("errors.0.message").String(); msg != "" {
		return gjson.Result{}, toolerr.New(toolerr.UpstreamError, "Open Targets rejected the query: %s", msg)
	}
	return tree.Get("data"), nil
}

// Search finds entities of one kind matching q. page is zero-based.
func (c *Client) Search(ctx context.Context, entity, q string, size, page int) (SearchPage, error) {
	data, err := c.graphql(ctx, searchQuery, map[string]any{
		"q":        q,
		"entities": []string{entity},
		"index":    page,
		"size":     size,
	}, q, "query")
	if err != nil {
		return SearchPage{}, err
	}
	res := SearchPage{Total: int(data.Get("search.total").Int()), Page: page}
	for _, h := range data.Get("search.hits").Array() {
		// The search index can return neighbouring entity kinds for broad terms.
		if e := h.Get("entity").String(); e != "" && e != entity {
			continue
		}
		res.Hits = append(res.Hits, Hit{
			ID:          h.Get("id").String(),
			Name:        h.Get("name").String(),
			Entity:      h.Get("entity").String(),
			Description: h.Get("description").String(),
		})
	}
	return res, nil
}

// Target fetches a gene target by Ensembl ID.
func (c *Client) Target(ctx context.Context, id string) (Target, error) {
	data, err := c.graphql(ctx, targetQuery, map[string]any{"id": id}, id, "target_id")
	if err != nil {
		return Target{}, err
	}
	t := data.Get("target")
	if !t.IsObject() {
		return Target{}, toolerr.NotFound("target", id)
	}
	out := Target{
		ID:         t.Get("id").String(),
		Symbol:     t.Get("approvedSymbol").String(),
		Name:       t.Get("approvedName").String(),
		Biotype:    t.Get("biotype").String(),
		Chromosome: t.Get("genomicLocation.chromosome").String(),
		Start:      t.Get("genomicLocation.start").Int(),
		End:        t.Get("genomicLocation.end").Int(),
	}
	for _, f := range t.Get("functionDescriptions").Array() {
		out.Functions = append(out.Functions, f.String())
	}
	for _, s := range t.Get("synonyms.#.label").Array() {
		out.Synonyms = append(out.Synonyms, s.String())
	}
	return out, nil
}

// TargetDiseases lists diseases associated with a target.
func (c *Client) TargetDiseases(ctx context.Context, targetID string, size, page int) (AssociationPage, error) {
	data, err := c.graphql(ctx, targetDiseasesQuery, map[string]any{
		"id":    targetID,
		"index": page,
		"size":  size,
	}, targetID, "target_id")
	if err != nil {
		return AssociationPage{}, err
	}
	t := data.Get("target")
	if !t.IsObject() {
		return AssociationPage{}, toolerr.NotFound("target", targetID)
	}
	res := AssociationPage{Total: int(t.Get("associatedDiseases.count").Int()), Page: page}
	for _, row := range t.Get("associatedDiseases.rows").Array() {
		res.Rows = append(res.Rows, Association{
			ID:    row.Get("disease.id").String(),
			Name:  row.Get("disease.name").String(),
			Score: row.Get("score").Float(),
		})
	}
	return res, nil
}

// DiseaseTargets lists targets associated with a disease (EFO, MONDO ... ID).
func (c *Client) DiseaseTargets(ctx context.Context, diseaseID string, size, page int) (AssociationPage, error) {
	data, err := c.graphql(ctx, diseaseTargetsQuery, map[string]any{
		"id":    diseaseID,
		"index": page,
		"size":  size,
	}, diseaseID, "disease_id")
	if err != nil {
		return AssociationPage{}, err
	}
	d := data.Get("disease")
	if !d.IsObject() {
		return AssociationPage{}, toolerr.NotFound("disease", diseaseID)
	}
	res := AssociationPage{Total: int(d.Get("associatedTargets.count").Int()), Page: page}
	for _, row := range d.Get("associatedTargets.rows").Array() {
		res.Rows = append(res.Rows, Association{
			ID:     row.Get("target.id").String(),
			Name:   row.Get("target.approvedName").String(),
			Symbol: row.Get("target.approvedSymbol").String(),
			Score:  row.Get("score").Float(),
		})
	}
	return res, nil
}
