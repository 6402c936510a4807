package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	templatesOnce sync.Once
	templates     map[string]*template.Template
	templatesErr  error
)

func funcMap() template.FuncMap {
	titler := cases.Title(language.English)
	return template.FuncMap{
		"title": func(s string) string {
			return titler.String(strings.ReplaceAll(s, "-", " "))
		},
		"join": strings.Join,
	}
}

func loadTemplates() (map[string]*template.Template, error) {
	templatesOnce.Do(func() {
		entries, err := templateFS.ReadDir("templates")
		if err != nil {
			templatesErr = fmt.Errorf("read templates: %w", err)
			return
		}
		templates = make(map[string]*template.Template, len(entries))
		for _, entry := range entries {
			name := strings.TrimSuffix(entry.Name(), ".tmpl")
			tmpl, err := template.New(name).Option("missingkey=zero").Funcs(funcMap()).ParseFS(templateFS, "templates/"+entry.Name())
			if err != nil {
				templatesErr = fmt.Errorf("parse template %s: %w", name, err)
				return
			}
			templates[name] = tmpl
		}
	})
	return templates, templatesErr
}

// Templates lists the embedded template names.
func Templates() []string {
	loaded, err := loadTemplates()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(loaded))
	for name := range loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render fills the named template with values.
func Render(name string, values map[string]any) (subject, body string, err error) {
	loaded, err := loadTemplates()
	if err != nil {
		return "", "", err
	}
	tmpl, ok := loaded[name]
	if !ok {
		return "", "", fmt.Errorf("unknown notification template %q", name)
	}
	if values == nil {
		values = map[string]any{}
	}
	var subjectBuf, bodyBuf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subjectBuf, "subject", values); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := tmpl.ExecuteTemplate(&bodyBuf, "body", values); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return strings.TrimSpace(subjectBuf.String()), strings.TrimLeft(bodyBuf.String(), "\n"), nil
}
