// Package catalog holds the ordered list of class names the model scores
// against. The catalog is loaded exactly once at startup; the position of a
// name is the canonical identity of that class for the process lifetime and
// lines up one-to-one with the model's output vector.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Catalog is an immutable, index-addressable list of class names.
type Catalog struct {
	names []string
}

// New builds a catalog from an ordered list of names.
func New(names []string) (*Catalog, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	owned := make([]string, len(names))
	copy(owned, names)
	return &Catalog{names: owned}, nil
}

// manifest mirrors the mushroom_names.json layout.
type manifest struct {
	Classes []string `json:"mushroom_classes"`
}

// LoadManifest reads class names from a JSON manifest file. The manifest
// order is the catalog order.
func LoadManifest(path string) (*Catalog, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read names manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse names manifest: %w", err)
	}
	if len(m.Classes) == 0 {
		return nil, fmt.Errorf("names manifest %s has no mushroom_classes", path)
	}
	return New(m.Classes)
}

// LoadDir derives class names from the immediate subdirectories of a dataset
// root, sorted lexicographically.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("data dir %s has no class subdirectories", dir)
	}
	sort.Strings(names)
	return New(names)
}

// Len returns the number of classes.
func (c *Catalog) Len() int { return len(c.names) }

// Name returns the class name at index i.
func (c *Catalog) Name(i int) string { return c.names[i] }

// Names returns a copy of the full class list in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}
