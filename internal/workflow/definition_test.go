package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sitemigrate/internal/migration"
)

func registryWith(names ...string) *Registry {
	reg := NewRegistry()
	noop := ActionFunc(func(context.Context, *ActionContext) error { return nil })
	for _, name := range names {
		reg.MustRegister(name, noop)
	}
	return reg
}

func TestDefaultDefinitionsValidate(t *testing.T) {
	defs, err := LoadDefinitions("")
	if err != nil {
		t.Fatalf("LoadDefinitions: %v", err)
	}
	if got := strings.Join(defs.Names(), ","); got != "export,update,upload" {
		t.Fatalf("unexpected workflows: %s", got)
	}
	reg := registryWith("notify", "delay", "export-archive", "command", "upload-artifact", "start-import", "cross-reference")
	if err := defs.Validate(reg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	export, _ := defs.Get("export")
	if export.FinalState != migration.StateQueued {
		t.Fatalf("unexpected export final state %q", export.FinalState)
	}
	if _, err := defs.Get("missing"); err == nil {
		t.Fatal("expected unknown workflow error")
	}
}

func TestLoadDefinitionsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.yaml")
	content := `
workflows:
  - name: update
    final_state: completed
    steps:
      - action: notify
        params: {template: migration-completed}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	defs, err := LoadDefinitions(path)
	if err != nil {
		t.Fatalf("LoadDefinitions: %v", err)
	}
	update, _ := defs.Get("update")
	if len(update.Steps) != 1 || update.Steps[0].Params["template"] != "migration-completed" {
		t.Fatalf("override not applied: %+v", update.Steps)
	}
	if _, err := defs.Get("export"); err != nil {
		t.Fatal("embedded workflows should remain")
	}
}

func TestValidateRejects(t *testing.T) {
	reg := registryWith("known")
	tests := []struct {
		name string
		def  Definition
		want string
	}{
		{"no steps", Definition{Name: "x"}, "no steps"},
		{"unknown action", Definition{Name: "x", Steps: []Step{{Action: "other"}}}, "unknown action"},
		{"bad state", Definition{Name: "x", Steps: []Step{{Action: "known", State: "flying"}}}, "unknown state"},
		{"rest state", Definition{Name: "x", Steps: []Step{{Action: "known", State: migration.StatePaused}}}, "cannot be set"},
		{"bad field", Definition{Name: "x", Steps: []Step{{Action: "known", Context: []string{"colour"}}}}, "unknown context field"},
		{"bad condition", Definition{Name: "x", Steps: []Step{{Action: "known", Condition: "flags.test_run +"}}}, "condition"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate(reg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestParseDefinitionsRejectsDuplicates(t *testing.T) {
	_, err := ParseDefinitions([]byte("workflows:\n  - name: a\n  - name: a\n"))
	if err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestEvaluateCondition(t *testing.T) {
	rec := &migration.Record{SiteID: "S1", ZipSize: 500}
	tests := []struct {
		cond  string
		flags Flags
		want  bool
	}{
		{"", Flags{}, true},
		{"test_run", Flags{}, false},
		{"test_run", Flags{TestRun: true}, true},
		{"production", Flags{}, true},
		{"debug", Flags{Debug: true}, true},
		{"never", Flags{}, false},
		{"record.zip_size > 100", Flags{}, true},
		{"record.zip_size > 1000 || flags.test_run", Flags{TestRun: true}, true},
		{`flags.variant == "staging"`, Flags{Variant: "staging"}, true},
	}
	for _, tc := range tests {
		got, err := EvaluateCondition(tc.cond, tc.flags, rec)
		if err != nil {
			t.Fatalf("%q: %v", tc.cond, err)
		}
		if got != tc.want {
			t.Fatalf("%q with %+v: got %v want %v", tc.cond, tc.flags, got, tc.want)
		}
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := registryWith("a")
	if err := reg.Register("a", ActionFunc(func(context.Context, *ActionContext) error { return nil })); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
