package biorxiv

import (
	"context"
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

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.BioRxivConfig{BaseURL: srv.URL}, 2*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_PreprintLatestVersion(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/details/medrxiv/10.1101/2020.01.01.123456/na/json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"messages":[{"status":"ok"}],"collection":[
			{"doi":"10.1101/2020.01.01.123456","title":"Old","version":"1","published":"NA"},
			{"doi":"10.1101/2020.01.01.123456","title":"New","version":"2","authors":"Doe, J.; Roe, R.","published":"10.1000/journal.1"}
		]}`))
	})

	p, err := c.Preprint(context.Background(), "medrxiv", "10.1101/2020.01.01.123456")
	if err != nil {
		t.Fatalf("preprint: %v", err)
	}
	if p.Title != "New" || p.Version != "2" {
		t.Fatalf("expected latest version, got %+v", p)
	}
	if p.PublishedDOI != "10.1000/journal.1" {
		t.Fatalf("unexpected published doi %q", p.PublishedDOI)
	}
}

func TestClient_PreprintNotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"messages":[{"status":"no posts found"}],"collection":[]}`))
	})

	_, err := c.Preprint(context.Background(), "biorxiv", "10.1101/nope")
	if !toolerr.Is(err, toolerr.UpstreamError) || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found UpstreamError, got %v", err)
	}
}

func TestClient_Interval(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/details/biorxiv/7d/100/json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("category"); got != "genomics" {
			t.Errorf("expected category=genomics, got %q", got)
		}
		w.Write([]byte(`{"messages":[{"status":"ok","cursor":100,"count":2,"total":"250"}],"collection":[
			{"doi":"10.1101/a","title":"A","published":"NA"},
			{"doi":"10.1101/b","title":"B","published":"NA"}
		]}`))
	})

	page, err := c.Interval(context.Background(), "biorxiv", "7d", "genomics", 100)
	if err != nil {
		t.Fatalf("interval: %v", err)
	}
	if page.Total != 250 || page.Cursor != 100 || len(page.Preprints) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Preprints[0].PublishedDOI != "" {
		t.Fatalf("NA must map to empty, got %q", page.Preprints[0].PublishedDOI)
	}
}

func TestClient_Published(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/pubs/biorxiv/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"collection":[{"biorxiv_doi":"10.1101/a","published_doi":"10.1038/x","published_journal":"Nature","preprint_title":"A","preprint_date":"2020-01-01","published_date":"2020-06-01"}]}`))
	})

	p, err := c.Published(context.Background(), "biorxiv", "10.1101/a")
	if err != nil {
		t.Fatalf("published: %v", err)
	}
	if p.Journal != "Nature" || p.PublishedDOI != "10.1038/x" {
		t.Fatalf("unexpected publication %+v", p)
	}
}

func TestClient_RejectsPathChangingDOI(t *testing.T) {
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) { calls++ })

	for _, doi := range []string{
		"10.1101/x?server=medrxiv",
		"10.1101/x#frag",
		"10.1101/../../pubs/biorxiv/10.1101/y",
		"10.1101/a b",
	} {
		if _, err := c.Preprint(context.Background(), "biorxiv", doi); !toolerr.Is(err, toolerr.InvalidQuery) {
			t.Fatalf("Preprint(%q): expected InvalidQuery, got %v", doi, err)
		}
		if _, err := c.Published(context.Background(), "biorxiv", doi); !toolerr.Is(err, toolerr.InvalidQuery) {
			t.Fatalf("Published(%q): expected InvalidQuery, got %v", doi, err)
		}
	}
	if calls != 0 {
		t.Fatalf("expected no network calls, got %d", calls)
	}
}

func TestClient_ServerError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := c.Interval(context.Background(), "biorxiv", "7d", "", 0)
	if !toolerr.Is(err, toolerr.UpstreamError) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if env := toolerr.ToEnvelope(err); env.Status != http.StatusBadGateway || !env.Retryable {
		t.Fatalf("unexpected envelope %+v", env)
	}
}
