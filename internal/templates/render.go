package templates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"
)

// Renderer renders templates resolved from a Source.
type Renderer struct {
	source Source
}

// NewRenderer creates a renderer backed by source.
func NewRenderer(source Source) *Renderer {
	return &Renderer{source: source}
}

// Render resolves the named template and renders it with vars.
func (r *Renderer) Render(name string, vars map[string]string) ([]byte, error) {
	if r == nil || r.source == nil {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	tmpl, err := r.source.Get(name)
	if err != nil {
		return nil, err
	}
	return RenderTemplate(tmpl, vars)
}

// RenderTemplate renders a template with the provided variables.
//
// Values are substituted as the contents of JSON string literals: they are
// escaped with encoding/json rules (HTML escaping off) and inserted without
// the surrounding quotes. The result must be valid JSON.
func RenderTemplate(tmpl *Template, vars map[string]string) ([]byte, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("template is required")
	}

	parsed, err := parseBody(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", tmpl.Name, err)
	}

	data := make(map[string]string, len(vars))
	for key, value := range vars {
		data[key] = value
	}
	for _, variable := range tmpl.Variables {
		if _, ok := data[variable.Name]; !ok && variable.Default != "" {
			data[variable.Name] = variable.Default
		}
	}

	if missing := missingVariables(tmpl, parsed, data); len(missing) > 0 {
		return nil, &MissingVariableError{Template: tmpl.Name, Names: missing}
	}

	escaped := make(map[string]string, len(data))
	for key, value := range data {
		escaped[key] = escapeJSONString(value)
	}

	var out bytes.Buffer
	if err := parsed.Execute(&out, escaped); err != nil {
		return nil, fmt.Errorf("render template %q: %w", tmpl.Name, err)
	}

	payload := out.Bytes()
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: template %q", ErrInvalidPayload, tmpl.Name)
	}

	return payload, nil
}

// Placeholders returns the sorted variable names referenced by the template body.
func Placeholders(tmpl *Template) ([]string, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("template is required")
	}
	parsed, err := parseBody(tmpl)
	if err != nil {
		return nil, err
	}
	return referencedFields(parsed), nil
}

func parseBody(tmpl *Template) (*template.Template, error) {
	return template.New(tmpl.Name).Option("missingkey=error").Parse(tmpl.Body)
}

func missingVariables(tmpl *Template, parsed *template.Template, data map[string]string) []string {
	missing := make(map[string]struct{})
	for _, name := range referencedFields(parsed) {
		if _, ok := data[name]; !ok {
			missing[name] = struct{}{}
		}
	}
	for _, variable := range tmpl.Variables {
		if variable.Required && strings.TrimSpace(data[variable.Name]) == "" {
			missing[variable.Name] = struct{}{}
		}
	}

	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func referencedFields(parsed *template.Template) []string {
	seen := make(map[string]struct{})
	if parsed != nil && parsed.Tree != nil {
		walkNode(parsed.Tree.Root, seen)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func walkNode(node parse.Node, seen map[string]struct{}) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			walkNode(child, seen)
		}
	case *parse.ActionNode:
		walkNode(n.Pipe, seen)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			walkNode(cmd, seen)
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			walkNode(arg, seen)
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			seen[n.Ident[0]] = struct{}{}
		}
	case *parse.VariableNode:
		// $.name refers to the root data map.
		if len(n.Ident) > 1 && n.Ident[0] == "$" {
			seen[n.Ident[1]] = struct{}{}
		}
	case *parse.IfNode:
		walkBranch(&n.BranchNode, seen)
	case *parse.WithNode:
		walkBranch(&n.BranchNode, seen)
	case *parse.RangeNode:
		walkBranch(&n.BranchNode, seen)
	case *parse.TemplateNode:
		walkNode(n.Pipe, seen)
	}
}

func walkBranch(n *parse.BranchNode, seen map[string]struct{}) {
	walkNode(n.Pipe, seen)
	walkNode(n.List, seen)
	walkNode(n.ElseList, seen)
}

func escapeJSONString(value string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return ""
	}
	encoded := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return string(encoded[1 : len(encoded)-1])
}
