package opentargets

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RobinCoderZhao/biobroker/internal/config"
	"github.com/RobinCoderZhao/biobroker/pkg/toolerr"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// platform answers GraphQL requests by the operation name in the query.
func platform(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/graphql" {
			http.NotFound(w, r)
			return
		}
		var req gqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		id, _ := req.Variables["id"].(string)
		switch {
		case strings.HasPrefix(req.Query, "query Search"):
			if req.Variables["q"] != "BRAF" || req.Variables["index"] != float64(1) || req.Variables["size"] != float64(2) {
				t.Errorf("unexpected variables %v", req.Variables)
			}
			w.Write([]byte(`{"data":{"search":{"total":5,"hits":[
				{"id":"ENSG00000157764","name":"BRAF","entity":"target","description":"B-Raf proto-oncogene"},
				{"id":"EFO_0000756","name":"melanoma","entity":"disease"},
				{"id":"ENSG00000132155","name":"RAF1","entity":"target"}
			]}}}`))
		case strings.HasPrefix(req.Query, "query Target("):
			if id != "ENSG00000157764" {
				w.Write([]byte(`{"data":{"target":null}}`))
				return
			}
			w.Write([]byte(`{"data":{"target":{"id":"ENSG00000157764","approvedSymbol":"BRAF","approvedName":"B-Raf proto-oncogene, serine/threonine kinase","biotype":"protein_coding",
				"genomicLocation":{"chromosome":"7","start":140719327,"end":140924929},
				"functionDescriptions":["Protein kinase involved in MAPK signaling."],
				"synonyms":[{"label":"BRAF1"},{"label":"RAFB1"}]}}}`))
		case strings.HasPrefix(req.Query, "query TargetDiseases"):
			w.Write([]byte(`{"data":{"target":{"id":"ENSG00000157764","associatedDiseases":{"count":2,"rows":[
				{"score":0.8123,"disease":{"id":"EFO_0000756","name":"melanoma"}},
				{"score":0.5,"disease":{"id":"EFO_0000365","name":"colorectal adenocarcinoma"}}
			]}}}}`))
		case strings.HasPrefix(req.Query, "query DiseaseTargets"):
			w.Write([]byte(`{"errors":[{"message":"Invalid disease id"}],"data":null}`))
		default:
			t.Errorf("unexpected query %q", req.Query)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(url string) *Client {
	return NewClient(config.OpenTargetsConfig{BaseURL: url}, 2*time.Second, quiet())
}

func TestClient_SearchFiltersEntity(t *testing.T) {
	c := testClient(platform(t).URL)
	page, err := c.Search(context.Background(), EntityTarget, "BRAF", 2, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 5 || page.Page != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	if len(page.Hits) != 2 || page.Hits[0].ID != "ENSG00000157764" || page.Hits[1].Name != "RAF1" {
		t.Fatalf("unexpected hits %+v", page.Hits)
	}
}

func TestClient_Target(t *testing.T) {
	c := testClient(platform(t).URL)
	tg, err := c.Target(context.Background(), "ENSG00000157764")
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	if tg.Symbol != "BRAF" || tg.Chromosome != "7" || tg.Start != 140719327 {
		t.Fatalf("unexpected target %+v", tg)
	}
	if strings.Join(tg.Synonyms, ",") != "BRAF1,RAFB1" || len(tg.Functions) != 1 {
		t.Fatalf("unexpected synonyms/functions %+v", tg)
	}
}

func TestClient_NullTargetIsNotFound(t *testing.T) {
	c := testClient(platform(t).URL)
	_, err := c.Target(context.Background(), "ENSG00000000000")
	if !toolerr.Is(err, toolerr.UpstreamError) || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClient_TargetDiseases(t *testing.T) {
	c := testClient(platform(t).URL)
	page, err := c.TargetDiseases(context.Background(), "ENSG00000157764", 10, 0)
	if err != nil {
		t.Fatalf("associations: %v", err)
	}
	if page.Total != 2 || page.Rows[0].Name != "melanoma" || page.Rows[0].Score != 0.8123 {
		t.Fatalf("unexpected associations %+v", page)
	}
}

func TestClient_GraphQLErrors(t *testing.T) {
	c := testClient(platform(t).URL)
	_, err := c.DiseaseTargets(context.Background(), "EFO_1", 10, 0)
	if !toolerr.Is(err, toolerr.UpstreamError) || !strings.Contains(err.Error(), "Invalid disease id") {
		t.Fatalf("expected GraphQL error surfaced, got %v", err)
	}
}

func TestClient_EmptyQueryRejectedLocally(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer srv.Close()

	_, err := testClient(srv.URL).Search(context.Background(), EntityDrug, "  ", 10, 0)
	if !toolerr.Is(err, toolerr.InvalidQuery) {
		t.Fatalf("expected InvalidQuery, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no network calls, got %d", calls)
	}
}
