package services_test

import (
	"context"
	"testing"

	"sitemigrate/internal/services"
)

func TestRecordIdentityRoundTrips(t *testing.T) {
	ctx := services.WithRequestID(
		services.WithStage(services.WithRecord(context.Background(), "L1", "S1"), "export"),
		"run-42",
	)

	checks := []struct {
		name string
		get  func(context.Context) (string, bool)
		want string
	}{
		{"link", services.LinkIDFromContext, "L1"},
		{"site", services.SiteIDFromContext, "S1"},
		{"stage", services.StageFromContext, "export"},
		{"request", services.RequestIDFromContext, "run-42"},
	}
	for _, c := range checks {
		got, ok := c.get(ctx)
		if !ok || got != c.want {
			t.Errorf("%s: got %q (ok=%v), want %q", c.name, got, ok, c.want)
		}
	}
}

func TestBlankIdentityIsNotStored(t *testing.T) {
	ctx := services.WithRecord(services.WithStage(context.Background(), ""), "", "S9")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("blank stage should not be stored")
	}
	if _, ok := services.LinkIDFromContext(ctx); ok {
		t.Fatal("blank link id should not be stored")
	}
	if site, ok := services.SiteIDFromContext(ctx); !ok || site != "S9" {
		t.Fatalf("expected site S9, got %q", site)
	}
}
