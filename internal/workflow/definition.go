package workflow

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"sitemigrate/internal/migration"
)

//go:embed definitions.yaml
var defaultDefinitions []byte

// Context field names a step may request.
const (
	FieldSiteID         = "site_id"
	FieldLinkID         = "link_id"
	FieldRunTimestamp   = "run_timestamp"
	FieldTransferSiteID = "transfer_site_id"
	FieldImportedSiteID = "imported_site_id"
	FieldTargetSiteID   = "target_site_id"
	FieldStartedBy      = "started_by"
	FieldTitle          = "title"
	FieldFiles          = "files"
	FieldZipSize        = "zip_size"
)

var knownFields = map[string]struct{}{
	FieldSiteID: {}, FieldLinkID: {}, FieldRunTimestamp: {}, FieldTransferSiteID: {},
	FieldImportedSiteID: {}, FieldTargetSiteID: {}, FieldStartedBy: {}, FieldTitle: {},
	FieldFiles: {}, FieldZipSize: {},
}

// Step is one entry of a workflow.
type Step struct {
	Name      string          `yaml:"name"`
	Action    string          `yaml:"action"`
	State     migration.State `yaml:"state"`
	Condition string          `yaml:"condition"`
	Context   []string        `yaml:"context"`
	Params    map[string]any  `yaml:"params"`
}

// Label returns the name used in logs, defaulting to the action name.
func (s Step) Label() string {
	if strings.TrimSpace(s.Name) != "" {
		return s.Name
	}
	return s.Action
}

// Definition is a named ordered list of steps.
type Definition struct {
	Name       string          `yaml:"name"`
	FinalState migration.State `yaml:"final_state"`
	Steps      []Step          `yaml:"steps"`
}

// Definitions indexes workflows by name.
type Definitions map[string]*Definition

type definitionsFile struct {
	Workflows []*Definition `yaml:"workflows"`
}

// ParseDefinitions decodes a YAML workflow document.
func ParseDefinitions(data []byte) (Definitions, error) {
	var doc definitionsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse workflow definitions: %w", err)
	}
	defs := make(Definitions, len(doc.Workflows))
	for _, def := range doc.Workflows {
		if def == nil {
			continue
		}
		def.Name = strings.TrimSpace(def.Name)
		if def.Name == "" {
			return nil, errors.New("workflow definition without a name")
		}
		if _, dup := defs[def.Name]; dup {
			return nil, fmt.Errorf("workflow %q defined twice", def.Name)
		}
		defs[def.Name] = def
	}
	return defs, nil
}

// LoadDefinitions returns the embedded workflows, with any workflows from
// path replacing those of the same name.
func LoadDefinitions(path string) (Definitions, error) {
	defs, err := ParseDefinitions(defaultDefinitions)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return defs, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow definitions: %w", err)
	}
	overrides, err := ParseDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for name, def := range overrides {
		defs[name] = def
	}
	return defs, nil
}

// Get returns the named workflow.
func (d Definitions) Get(name string) (*Definition, error) {
	def, ok := d[name]
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q (known: %s)", name, strings.Join(d.Names(), ", "))
	}
	return def, nil
}

// Names lists the workflow names in sorted order.
func (d Definitions) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every definition against the registry.
func (d Definitions) Validate(reg *Registry) error {
	var errs []error
	for _, name := range d.Names() {
		if err := d[name].Validate(reg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Validate checks action names, states, context fields and conditions.
func (def *Definition) Validate(reg *Registry) error {
	if len(def.Steps) == 0 {
		return fmt.Errorf("workflow %s: no steps", def.Name)
	}
	if def.FinalState != "" {
		if err := checkState(def.FinalState); err != nil {
			return fmt.Errorf("workflow %s: final_state: %w", def.Name, err)
		}
	}
	for i, step := range def.Steps {
		where := fmt.Sprintf("workflow %s step %d (%s)", def.Name, i+1, step.Label())
		if strings.TrimSpace(step.Action) == "" {
			return fmt.Errorf("%s: action is required", where)
		}
		if reg != nil {
			if _, ok := reg.Lookup(step.Action); !ok {
				return fmt.Errorf("%s: unknown action %q", where, step.Action)
			}
		}
		if step.State != "" {
			if err := checkState(step.State); err != nil {
				return fmt.Errorf("%s: %w", where, err)
			}
		}
		for _, field := range step.Context {
			if _, ok := knownFields[field]; !ok {
				return fmt.Errorf("%s: unknown context field %q", where, field)
			}
		}
		if _, err := compileCondition(step.Condition); err != nil {
			return fmt.Errorf("%s: condition: %w", where, err)
		}
	}
	return nil
}

func checkState(state migration.State) error {
	parsed, ok := migration.ParseState(string(state))
	if !ok {
		return fmt.Errorf("unknown state %q", state)
	}
	if parsed.IsRest() || parsed == migration.StateInit {
		return fmt.Errorf("state %q cannot be set by a workflow", state)
	}
	return nil
}
