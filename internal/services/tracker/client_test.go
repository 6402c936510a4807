package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"sitemigrate/internal/config"
)

type fakeTracker struct {
	mu          sync.Mutex
	issues      []issue
	comments    map[string][]string
	transitions []string
}

func (f *fakeTracker) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/issues", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		q := r.URL.Query().Get("q")
		var out []issue
		for _, is := range f.issues {
			if strings.Contains(is.Summary, q) {
				out = append(out, is)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"issues": out})
	})
	mux.HandleFunc("POST /api/issues", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		is := issue{Key: fmt.Sprintf("%s-%d", body["project"], len(f.issues)+1), Summary: body["summary"], Status: "open"}
		f.issues = append(f.issues, is)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(is)
	})
	mux.HandleFunc("POST /api/issues/{key}/comments", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.comments[r.PathValue("key")] = append(f.comments[r.PathValue("key")], body["body"])
	})
	mux.HandleFunc("POST /api/issues/{key}/transitions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		key := r.PathValue("key")
		f.transitions = append(f.transitions, key+":"+body["transition"])
		for i := range f.issues {
			if f.issues[i].Key != key {
				continue
			}
			if body["transition"] == "close" {
				f.issues[i].Status = "closed"
			} else {
				f.issues[i].Status = "open"
			}
		}
	})
	return mux
}

func newClient(t *testing.T) (*Client, *fakeTracker) {
	t.Helper()
	fake := &fakeTracker{comments: map[string][]string{}}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return New(config.Tracker{
		BaseURL:          srv.URL,
		Project:          "MIG",
		ReopenTransition: "reopen",
		CloseTransition:  "close",
		TimeoutSeconds:   5,
	}), fake
}

func TestReportCreatesThenComments(t *testing.T) {
	client, fake := newClient(t)
	ctx := context.Background()

	key, err := client.Report(ctx, Issue{SiteID: "S1", Summary: "export failed", Description: "first"})
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if key != "MIG-1" || fake.issues[0].Summary != "[site:S1] export failed" {
		t.Fatalf("unexpected issue %q %+v", key, fake.issues)
	}

	again, err := client.Report(ctx, Issue{SiteID: "S1", Summary: "upload failed", Description: "second"})
	if err != nil {
		t.Fatalf("Report again: %v", err)
	}
	if again != key || len(fake.issues) != 1 {
		t.Fatalf("expected comment on existing issue, got %q with %d issues", again, len(fake.issues))
	}
	if got := fake.comments[key]; len(got) != 1 || got[0] != "second" {
		t.Fatalf("unexpected comments: %v", got)
	}
}

func TestCloseThenReportReopens(t *testing.T) {
	client, fake := newClient(t)
	ctx := context.Background()

	if _, err := client.Report(ctx, Issue{SiteID: "S2", Summary: "failed"}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	closed, err := client.Close(ctx, "S2")
	if err != nil || closed != 1 {
		t.Fatalf("Close = %d, %v", closed, err)
	}
	if closed, _ := client.Close(ctx, "S2"); closed != 0 {
		t.Fatalf("expected nothing left to close, got %d", closed)
	}
	if _, err := client.Report(ctx, Issue{SiteID: "S2", Summary: "failed again"}); err != nil {
		t.Fatalf("Report after close: %v", err)
	}
	want := []string{"MIG-1:close", "MIG-1:reopen"}
	if strings.Join(fake.transitions, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected transitions: %v", fake.transitions)
	}
}

func TestMarkerDoesNotMatchPrefixSites(t *testing.T) {
	client, fake := newClient(t)
	ctx := context.Background()
	if _, err := client.Report(ctx, Issue{SiteID: "S10", Summary: "failed"}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if _, err := client.Report(ctx, Issue{SiteID: "S1", Summary: "failed"}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(fake.issues) != 2 {
		t.Fatalf("expected separate issues per site, got %+v", fake.issues)
	}
}
