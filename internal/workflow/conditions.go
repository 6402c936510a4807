package workflow

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"sitemigrate/internal/migration"
)

// Flags are the run-wide switches conditions can test.
type Flags struct {
	TestRun bool
	Debug   bool
	Variant string
}

func (f Flags) env() map[string]any {
	return map[string]any{
		"test_run":   f.TestRun,
		"debug":      f.Debug,
		"production": !f.TestRun,
		"variant":    f.Variant,
	}
}

// Named predicates usable as a bare condition.
var predicates = map[string]func(Flags) bool{
	"always":     func(Flags) bool { return true },
	"never":      func(Flags) bool { return false },
	"test_run":   func(f Flags) bool { return f.TestRun },
	"production": func(f Flags) bool { return !f.TestRun },
	"debug":      func(f Flags) bool { return f.Debug },
}

type condition struct {
	predicate func(Flags) bool
	program   *vm.Program
}

var (
	conditionMu    sync.Mutex
	conditionCache = map[string]*condition{}
)

func conditionEnv(flags Flags, rec *migration.Record) map[string]any {
	record := map[string]any{}
	if rec != nil {
		record = map[string]any{
			"link_id":          rec.LinkID,
			"site_id":          rec.SiteID,
			"state":            string(rec.State),
			"title":            rec.Title,
			"started_by":       rec.StartedBy,
			"transfer_site_id": rec.TransferSiteID,
			"imported_site_id": rec.ImportedSiteID,
			"target_site_id":   rec.TargetSiteID,
			"zip_size":         rec.ZipSize,
			"files":            rec.Files,
		}
	}
	return map[string]any{"flags": flags.env(), "record": record}
}

func compileCondition(src string) (*condition, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	conditionMu.Lock()
	defer conditionMu.Unlock()
	if c, ok := conditionCache[src]; ok {
		return c, nil
	}
	c := &condition{}
	if p, ok := predicates[src]; ok {
		c.predicate = p
	} else {
		program, err := expr.Compile(src, expr.Env(conditionEnv(Flags{}, &migration.Record{})), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", src, err)
		}
		c.program = program
	}
	conditionCache[src] = c
	return c, nil
}

// EvaluateCondition reports whether a step with condition src should run. An
// empty condition always runs.
func EvaluateCondition(src string, flags Flags, rec *migration.Record) (bool, error) {
	c, err := compileCondition(src)
	if err != nil {
		return false, err
	}
	if c == nil {
		return true, nil
	}
	if c.predicate != nil {
		return c.predicate(flags), nil
	}
	out, err := expr.Run(c.program, conditionEnv(flags, rec))
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", src, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}
