package target

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"sitemigrate/internal/config"
	"sitemigrate/internal/services"
)

func newServer(t *testing.T) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, `{"token":"sess-1"}`)
	})
	mux.HandleFunc("GET /api/imports/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sess-1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		writeJSON(w, `{"status":" Completed ","log_ref":"logs/`+r.PathValue("id")+`"}`)
	})
	mux.HandleFunc("GET /api/sites", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("transfer_id") == "X1" {
			writeJSON(w, `{"sites":[{"id":"T1"}]}`)
			return
		}
		writeJSON(w, `{"sites":[]}`)
	})
	mux.HandleFunc("POST /api/imports", func(w http.ResponseWriter, r *http.Request) {
		var req ImportRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ArtifactKey == "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, `{"transfer_site_id":"X-`+req.SiteID+`"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(config.Target{BaseURL: srv.URL, Username: "u", Password: "pw", TimeoutSeconds: 5})
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func TestLoginAndJobStatus(t *testing.T) {
	client := newServer(t)
	ctx := context.Background()
	session, err := client.Login(ctx)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	status, err := client.JobStatus(ctx, session, "T1")
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if status.Status != "completed" || status.LogRef != "logs/T1" {
		t.Fatalf("unexpected status %+v", status)
	}
	if _, err := client.JobStatus(ctx, &Session{Token: "stale"}, "T1"); !errors.Is(err, services.ErrSecurity) {
		t.Fatalf("expected security error for bad session, got %v", err)
	}
}

func TestLoginRejected(t *testing.T) {
	client := newServer(t)
	client.password = "wrong"
	if _, err := client.Login(context.Background()); !errors.Is(err, services.ErrSecurity) {
		t.Fatalf("expected security error, got %v", err)
	}
}

func TestFindSite(t *testing.T) {
	client := newServer(t)
	ctx := context.Background()
	id, err := client.FindSite(ctx, nil, "X1")
	if err != nil || id != "T1" {
		t.Fatalf("FindSite = %q, %v", id, err)
	}
	if _, err := client.FindSite(ctx, nil, "X2"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStartImport(t *testing.T) {
	client := newServer(t)
	ctx := context.Background()
	id, err := client.StartImport(ctx, nil, ImportRequest{SiteID: "S1", ArtifactKey: "sitemigrate/L1/S1/fixed.zip"})
	if err != nil || id != "X-S1" {
		t.Fatalf("StartImport = %q, %v", id, err)
	}
	if _, err := client.StartImport(ctx, nil, ImportRequest{SiteID: "S1"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
