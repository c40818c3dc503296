package templates

import (
	"os"
	"path/filepath"
	"strings"
)

// TemplateSearchPaths returns template search directories in precedence order.
// Extra directories (from configuration) come first.
func TemplateSearchPaths(projectDir string, extraDirs ...string) []string {
	paths := make([]string, 0, len(extraDirs)+3)
	for _, dir := range extraDirs {
		if strings.TrimSpace(dir) != "" {
			paths = append(paths, dir)
		}
	}

	if projectDir != "" {
		paths = append(paths, filepath.Join(projectDir, ".spoof", "templates"))
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "spoof", "templates"))
	}

	paths = append(paths, filepath.Join(string(filepath.Separator), "usr", "share", "spoof", "templates"))
	return paths
}

// LoadTemplatesFromSearchPaths loads templates from search paths with first-hit precedence,
// falling back to the builtin templates.
func LoadTemplatesFromSearchPaths(projectDir string, extraDirs ...string) ([]*Template, error) {
	paths := TemplateSearchPaths(projectDir, extraDirs...)
	seen := make(map[string]*Template)
	order := make([]string, 0)

	add := func(tmpl *Template) {
		key := registryKey(tmpl.Name)
		if _, exists := seen[key]; exists {
			return
		}
		seen[key] = tmpl
		order = append(order, key)
	}

	for _, path := range paths {
		tmpls, err := LoadTemplatesFromDir(path)
		if err != nil {
			return nil, err
		}
		for _, tmpl := range tmpls {
			add(tmpl)
		}
	}

	builtins, err := LoadBuiltinTemplates()
	if err != nil {
		return nil, err
	}
	for _, tmpl := range builtins {
		add(tmpl)
	}

	resolved := make([]*Template, 0, len(order))
	for _, key := range order {
		resolved = append(resolved, seen[key])
	}

	return resolved, nil
}
