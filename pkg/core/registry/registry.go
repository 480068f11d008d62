// Package registry implements the verified source registry (spec.md §6):
// a static, queryable catalogue of data sources the bundled fetcher
// adapters know how to handle, bundled into the binary and unmarshalled
// at package init.
//
// Grounded on the teacher's cmd/api/main.go config-loading sequence
// (read bytes, yaml.Unmarshal into a typed struct); here the bytes come
// from an embedded file rather than a runtime config path, since
// spec.md calls this table static.
package registry

import (
	_ "embed"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

//go:embed sources.yaml
var sourcesYAML []byte

// Entry is one verified data-source catalogue row.
type Entry struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Provider        string   `yaml:"provider"`
	Adapter         string   `yaml:"adapter"`
	Category        string   `yaml:"category"`
	URL             string   `yaml:"url"`
	Fields          []string `yaml:"fields"`
	Geo             []string `yaml:"geo"`
	Refresh         string   `yaml:"refresh"`
	Free            bool     `yaml:"free"`
	APIKeyRequired  bool     `yaml:"api_key_required"`
	Description     string   `yaml:"description"`
	LastVerified    string   `yaml:"last_verified"`
	ExampleBind     string   `yaml:"example_bind"`
}

// Registry is the loaded, queryable catalogue.
type Registry struct {
	entries []Entry
}

var defaultRegistry *Registry

func init() {
	r, err := loadFromYAML(sourcesYAML)
	if err != nil {
		panic("registry: malformed embedded sources.yaml: " + err.Error())
	}
	defaultRegistry = r
}

func loadFromYAML(data []byte) (*Registry, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return &Registry{entries: entries}, nil
}

// Default returns the registry built from the bundled source catalogue.
func Default() *Registry { return defaultRegistry }

// All returns every catalogued entry.
func (r *Registry) All() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// ByID looks up a single entry by its catalogue id.
func (r *Registry) ByID(id string) (Entry, bool) {
	for _, e := range r.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// ByCategory returns every entry in category, sorted by id.
func (r *Registry) ByCategory(category string) []Entry {
	return r.filter(func(e Entry) bool { return e.Category == category })
}

// ByProvider returns every entry from provider, sorted by id.
func (r *Registry) ByProvider(provider string) []Entry {
	return r.filter(func(e Entry) bool { return e.Provider == provider })
}

// ByAdapter returns every entry served by the named adapter, sorted by id.
func (r *Registry) ByAdapter(adapter string) []Entry {
	return r.filter(func(e Entry) bool { return e.Adapter == adapter })
}

// ByURL returns the entry whose url is a prefix of (or matches) url, if any.
func (r *Registry) ByURL(url string) (Entry, bool) {
	for _, e := range r.entries {
		if e.URL == url || strings.HasPrefix(url, e.URL) {
			return e, true
		}
	}
	return Entry{}, false
}

func (r *Registry) filter(pred func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range r.entries {
		if pred(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
