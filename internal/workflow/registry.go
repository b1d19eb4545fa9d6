package workflow

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"comfyd/internal/common/fsutil"
)

// builtinDefinitions are the workflow kinds this deployment ships.
var builtinDefinitions = map[string]string{
	"t2v":        "t2v.json",
	"i2v":        "i2v.json",
	"fun_camera": "fun_camera.json",
	"vace":       "vace.json",
}

// Registry resolves workflow identifiers to job graphs stored under a
// directory. Definitions are re-read on every resolve: graphs are cheap
// to parse and each request mutates its own copy, so caching parsed
// graphs would only create sharing hazards.
type Registry struct {
	dir     string
	entries map[string]string
}

// NewRegistry builds a registry over dir with the builtin definitions.
func NewRegistry(dir string) (*Registry, error) {
	expanded, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries := make(map[string]string, len(builtinDefinitions))
	for name, file := range builtinDefinitions {
		entries[name] = file
	}
	return &Registry{dir: abs, entries: entries}, nil
}

// Register adds or replaces a workflow definition entry.
func (r *Registry) Register(name, file string) {
	r.entries[name] = file
}

// Names returns the registered workflow identifiers, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve loads the graph registered under name. Unknown names report
// the valid set; a registered name whose file is absent reports the
// missing path.
func (r *Registry) Resolve(name string) (Graph, error) {
	file, ok := r.entries[name]
	if !ok {
		return nil, unknownWorkflowError{name: name, available: r.Names()}
	}
	path := filepath.Join(r.dir, file)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, definitionNotFoundError{path: path}
		}
		return nil, fmt.Errorf("read workflow %s: %w", name, err)
	}
	g, err := ParseGraph(b)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", name, err)
	}
	return g, nil
}
