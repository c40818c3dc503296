// Package templates provides event payload template loading and rendering.
package templates

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrTemplateNotFound is returned when no template is registered under a name.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrMissingVariable is returned when a placeholder has no value to substitute.
	ErrMissingVariable = errors.New("missing variable")
	// ErrInvalidPayload is returned when a rendered template is not valid JSON.
	ErrInvalidPayload = errors.New("rendered payload is not valid JSON")
)

// Template represents a single webhook event template.
type Template struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Event       string        `yaml:"event"`
	Body        string        `yaml:"body"`
	Variables   []TemplateVar `yaml:"variables,omitempty"`
	Tags        []string      `yaml:"tags,omitempty"`
	Source      string        `yaml:"-"` // file path or "builtin"
}

// TemplateVar describes a variable used in a template.
type TemplateVar struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Default     string `yaml:"default,omitempty"`
	Required    bool   `yaml:"required"`
}

// MissingVariableError lists the placeholders a render call could not resolve.
type MissingVariableError struct {
	Template string
	Names    []string
}

func (e *MissingVariableError) Error() string {
	quoted := make([]string, len(e.Names))
	for i, name := range e.Names {
		quoted[i] = fmt.Sprintf("%q", name)
	}
	return fmt.Sprintf("template %q: missing variable %s", e.Template, strings.Join(quoted, ", "))
}

// Is reports whether target is ErrMissingVariable.
func (e *MissingVariableError) Is(target error) bool {
	return target == ErrMissingVariable
}

// Source resolves templates by name.
type Source interface {
	Get(name string) (*Template, error)
}

// Registry is a read-only set of templates keyed by name.
type Registry struct {
	templates map[string]*Template
	order     []string
}

// NewRegistry builds a registry. When two templates share a name the first wins.
func NewRegistry(tmpls ...*Template) *Registry {
	r := &Registry{
		templates: make(map[string]*Template, len(tmpls)),
		order:     make([]string, 0, len(tmpls)),
	}
	for _, tmpl := range tmpls {
		if tmpl == nil {
			continue
		}
		key := registryKey(tmpl.Name)
		if key == "" {
			continue
		}
		if _, exists := r.templates[key]; exists {
			continue
		}
		r.templates[key] = tmpl
		r.order = append(r.order, key)
	}
	sort.Strings(r.order)
	return r
}

// LoadRegistry builds a registry from the template search paths and builtins.
func LoadRegistry(projectDir string, extraDirs ...string) (*Registry, error) {
	tmpls, err := LoadTemplatesFromSearchPaths(projectDir, extraDirs...)
	if err != nil {
		return nil, err
	}
	return NewRegistry(tmpls...), nil
}

// Get returns the template registered under name. Lookup is case-insensitive.
func (r *Registry) Get(name string) (*Template, error) {
	if r != nil {
		if tmpl, ok := r.templates[registryKey(name)]; ok {
			return tmpl, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, strings.TrimSpace(name))
}

// List returns all registered templates sorted by name.
func (r *Registry) List() []*Template {
	if r == nil {
		return nil
	}
	out := make([]*Template, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.templates[key])
	}
	return out
}

func registryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
