// Package registry lists the item ids each app is allowed to report.
package registry

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Registry maps app ids to their known item ids.
// A nil or empty Registry knows no apps and accepts everything.
type Registry struct {
	items map[string]map[string]struct{}
}

type file struct {
	Apps map[string][]string `yaml:"apps"`
}

// Load reads a YAML registry of the form:
//
//	apps:
//	  nback_v2:
//	    - nback_trial__rt
//	    - nback_trial__correct
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read item registry: %w", err)
	}
	return Parse(data)
}

// Parse builds a Registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse item registry: %w", err)
	}
	return New(f.Apps), nil
}

// New builds a Registry from an in-memory mapping.
func New(apps map[string][]string) *Registry {
	r := &Registry{items: make(map[string]map[string]struct{}, len(apps))}
	for appID, ids := range apps {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		r.items[appID] = set
	}
	return r
}

// Knows reports whether the registry has an entry for appID.
func (r *Registry) Knows(appID string) bool {
	if r == nil {
		return false
	}
	_, ok := r.items[appID]
	return ok
}

// IsValidItem reports whether itemID is registered for appID.
// Apps missing from the registry are unconstrained.
func (r *Registry) IsValidItem(appID, itemID string) bool {
	if !r.Knows(appID) {
		return true
	}
	_, ok := r.items[appID][itemID]
	return ok
}

// Apps returns the registered app ids in sorted order.
func (r *Registry) Apps() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.items))
	for id := range r.items {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
