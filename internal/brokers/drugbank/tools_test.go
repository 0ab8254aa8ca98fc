package drugbank

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/RobinCoderZhao/biobroker/pkg/mcpserver"
	"github.com/RobinCoderZhao/biobroker/pkg/normalize"
	"github.com/RobinCoderZhao/biobroker/pkg/toolerr"
)

type stubSource struct {
	drugs        []Drug
	interactions []Interaction
	total        int
	lastQuery    string
	lastPage     int
	calls        atomic.Int32
}

func (s *stubSource) Search(ctx context.Context, q string, limit, page int) (DrugPage, error) {
	s.calls.Add(1)
	s.lastQuery, s.lastPage = q, page
	drugs := s.drugs
	if len(drugs) > limit {
		drugs = drugs[:limit]
	}
	return DrugPage{Drugs: drugs, Total: s.total, Page: page}, nil
}

func (s *stubSource) Drug(ctx context.Context, id string) (Drug, error) {
	s.calls.Add(1)
	for _, d := range s.drugs {
		if d.ID == id {
			return d, nil
		}
	}
	return Drug{}, toolerr.NotFound("drug", id)
}

func (s *stubSource) Interactions(ctx context.Context, id string, limit int) ([]Interaction, error) {
	s.calls.Add(1)
	return s.interactions, nil
}

func newServer(t *testing.T, src Source) *mcpserver.Server {
	t.Helper()
	s := mcpserver.New("drugbank", "test", mcpserver.WithLogger(quiet()))
	if err := s.Register(Tools(src, normalize.DefaultRules())...); err != nil {
		t.Fatalf("register: %v", err)
	}
	return s
}

func sampleDrugs() []Drug {
	return []Drug{
		{ID: "DB00945", Name: "Acetylsalicylic acid", Groups: []string{"approved"}, Description: strings.Repeat("Salicylate. ", 80)},
		{ID: "DB01050", Name: "Ibuprofen", CASNumber: "15687-27-1"},
	}
}

func TestSearchDrugs(t *testing.T) {
	src := &stubSource{drugs: sampleDrugs(), total: 40}
	s := newServer(t, src)

	out := s.Invoke(context.Background(), "search_drugs", map[string]any{"query": "pain", "max_results": 2})
	if out.State != mcpserver.StateCompleted {
		t.Fatalf("expected COMPLETED, got %+v", out.Envelope)
	}
	if src.lastQuery != "pain" || src.lastPage != 1 {
		t.Fatalf("unexpected query %q page %d", src.lastQuery, src.lastPage)
	}
	entries := strings.Split(out.Result, normalize.DefaultRules().Separator)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d:\n%s", len(entries), out.Result)
	}
	if !strings.Contains(entries[0], "Name: Acetylsalicylic acid") || !strings.Contains(entries[0], "CAS Number: Not available") {
		t.Fatalf("unexpected entry:\n%s", entries[0])
	}
	if !strings.HasSuffix(out.Result, "Page 1, 2 of 40 drugs.") {
		t.Fatalf("unexpected footer:\n%s", out.Result)
	}
}

func TestFieldSearchesPrefixQuery(t *testing.T) {
	src := &stubSource{}
	s := newServer(t, src)

	s.Invoke(context.Background(), "find_drugs_by_indication", map[string]any{"indication": "asthma", "page": 3})
	if src.lastQuery != "indication:asthma" || src.lastPage != 3 {
		t.Fatalf("unexpected query %q page %d", src.lastQuery, src.lastPage)
	}
	out := s.Invoke(context.Background(), "find_drugs_by_category", map[string]any{"category": "antibiotic"})
	if src.lastQuery != "category:antibiotic" {
		t.Fatalf("unexpected query %q", src.lastQuery)
	}
	if out.Result != "No results found." {
		t.Fatalf("unexpected result %q", out.Result)
	}
}

func TestDrugDetails(t *testing.T) {
	s := newServer(t, &stubSource{drugs: sampleDrugs()})

	out := s.Invoke(context.Background(), "get_drug_details", map[string]any{"drug_id": "DB01050"})
	if !strings.Contains(out.Result, "CAS Number: 15687-27-1") || !strings.Contains(out.Result, "Indication: Not available") {
		t.Fatalf("unexpected details:\n%s", out.Result)
	}

	out = s.Invoke(context.Background(), "get_drug_details", map[string]any{"drug_id": "DB99999"})
	if out.Envelope == nil || out.Envelope.Status != 404 {
		t.Fatalf("expected not found envelope, got %+v", out.Envelope)
	}
}

func TestDrugInteractions(t *testing.T) {
	in := Interaction{Description: "Increased bleeding risk."}
	in.Drug.ID, in.Drug.Name = "DB00682", "Warfarin"
	s := newServer(t, &stubSource{interactions: []Interaction{in}})

	out := s.Invoke(context.Background(), "get_drug_interactions", map[string]any{"drug_id": "DB00945"})
	if !strings.Contains(out.Result, "Interacting Drug: Warfarin") || !strings.Contains(out.Result, "Severity: Not available") {
		t.Fatalf("unexpected interactions:\n%s", out.Result)
	}

	s = newServer(t, &stubSource{})
	out = s.Invoke(context.Background(), "get_drug_interactions", map[string]any{"drug_id": "DB00945"})
	if out.Result != "No interactions found for DB00945." {
		t.Fatalf("unexpected result %q", out.Result)
	}
}

func TestValidation_NoUpstreamCalls(t *testing.T) {
	src := &stubSource{drugs: sampleDrugs()}
	s := newServer(t, src)

	for _, tc := range []struct {
		tool string
		args map[string]any
	}{
		{"search_drugs", map[string]any{}},
		{"search_drugs", map[string]any{"query": "x", "page": 0}},
		{"get_drug_details", map[string]any{"drug_id": "aspirin"}},
		{"get_drug_interactions", map[string]any{"drug_id": "DB0094"}},
		{"find_drugs_by_category", map[string]any{"category": "x", "max_results": 500}},
	} {
		out := s.Invoke(context.Background(), tc.tool, tc.args)
		if out.Envelope == nil || out.Envelope.Kind != toolerr.Validation {
			t.Fatalf("%s %v: expected ValidationError, got %+v", tc.tool, tc.args, out.Envelope)
		}
	}
	if n := src.calls.Load(); n != 0 {
		t.Fatalf("expected zero upstream calls, got %d", n)
	}
}
