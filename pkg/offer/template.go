package offer

import (
	"encoding/json"
	"fmt"

	"github.com/cbroglie/mustache"
)

// Template is a compiled credential-offer template. It is parsed once per
// run and rendered once per CSV row.
type Template struct {
	tpl *mustache.Template
}

// ParseTemplateFile compiles a mustache offer template from disk.
func ParseTemplateFile(path string) (*Template, error) {
	tpl, err := mustache.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("invalid offer template %s: %w", path, err)
	}
	return &Template{tpl: tpl}, nil
}

// ParseTemplate compiles a mustache offer template from a string.
func ParseTemplate(raw string) (*Template, error) {
	tpl, err := mustache.ParseString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid offer template: %w", err)
	}
	return &Template{tpl: tpl}, nil
}

// Render renders one variable set through the template. The rendered text
// must be valid JSON; anything else aborts the run.
func (t *Template) Render(vars VariableSet) (map[string]any, error) {
	rendered, err := t.tpl.Render(map[string]string(vars))
	if err != nil {
		return nil, fmt.Errorf("rendering offer template: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(rendered), &doc); err != nil {
		return nil, fmt.Errorf("rendered offer is not valid JSON: %w", err)
	}
	return doc, nil
}
