package model

import (
	_ "embed"
	"os"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var builtinModels []byte

var ErrUnknownProvider = errors.New("unknown provider")

// registryFile is the on-disk layout of models.yaml and of operator overrides
type registryFile struct {
	Models []ModelInfo `yaml:"models"`
}

// Registry is an immutable id → ModelInfo table. It is safe for concurrent
// use because nothing mutates it after construction.
type Registry struct {
	models map[string]ModelInfo
	order  []string
}

// NewRegistry builds a registry from the given records. Later records with a
// duplicate id replace earlier ones but keep the original position.
func NewRegistry(models []ModelInfo) (*Registry, error) {
	r := &Registry{models: make(map[string]ModelInfo, len(models))}
	for _, m := range models {
		if err := m.validate(); err != nil {
			return nil, err
		}
		if _, exists := r.models[m.ID]; !exists {
			r.order = append(r.order, m.ID)
		}
		r.models[m.ID] = m
	}
	return r, nil
}

// LoadBuiltin loads the registry embedded in the binary
func LoadBuiltin() (*Registry, error) {
	models, err := parseRegistry(builtinModels)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse embedded model registry")
	}
	return NewRegistry(models)
}

// Load returns the builtin registry extended by the YAML file at overridePath.
// An empty path yields the builtin registry unchanged.
func Load(overridePath string) (*Registry, error) {
	models, err := parseRegistry(builtinModels)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse embedded model registry")
	}
	if overridePath == "" {
		return NewRegistry(models)
	}

	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read model registry %s", overridePath)
	}
	extra, err := parseRegistry(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse model registry %s", overridePath)
	}
	return NewRegistry(append(models, extra...))
}

func parseRegistry(data []byte) ([]ModelInfo, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return file.Models, nil
}

// Lookup returns the metadata of id, or FallbackInfo(id) when the id is not
// registered. It never fails.
func (r *Registry) Lookup(id string) ModelInfo {
	if info, ok := r.models[id]; ok {
		return info
	}
	return FallbackInfo(id)
}

// Get returns the registered metadata of id
func (r *Registry) Get(id string) (ModelInfo, bool) {
	info, ok := r.models[id]
	return info, ok
}

// Known reports whether id is registered
func (r *Registry) Known(id string) bool {
	_, ok := r.models[id]
	return ok
}

// Unknown returns the ids that are not registered, in input order
func (r *Registry) Unknown(ids []string) []string {
	var unknown []string
	for _, id := range ids {
		if !r.Known(id) {
			unknown = append(unknown, id)
		}
	}
	return unknown
}

// IDs returns the registered ids in registry order
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Models returns every record in registry order
func (r *Registry) Models() []ModelInfo {
	models := make([]ModelInfo, 0, len(r.order))
	for _, id := range r.order {
		models = append(models, r.models[id])
	}
	return models
}

// ByProvider returns the records served by p, in registry order
func (r *Registry) ByProvider(p Provider) []ModelInfo {
	var models []ModelInfo
	for _, m := range r.Models() {
		if m.Provider == p {
			models = append(models, m)
		}
	}
	return models
}

// Families returns the distinct family names, sorted
func (r *Registry) Families() []string {
	seen := make(map[string]bool)
	var families []string
	for _, m := range r.models {
		if !seen[m.Family] {
			seen[m.Family] = true
			families = append(families, m.Family)
		}
	}
	sort.Strings(families)
	return families
}

// filterEnv exposes model fields to filter expressions under their wire names
type filterEnv struct {
	ID          string  `expr:"id"`
	Provider    string  `expr:"provider"`
	Family      string  `expr:"family"`
	TokenLimit  int     `expr:"tokenLimit"`
	OutputLimit int     `expr:"outputLimit"`
	InputPrice  float64 `expr:"inputPrice"`
	OutputPrice float64 `expr:"outputPrice"`
	Deprecated  bool    `expr:"deprecated"`
}

func newFilterEnv(m ModelInfo) filterEnv {
	return filterEnv{
		ID:          m.ID,
		Provider:    string(m.Provider),
		Family:      m.Family,
		TokenLimit:  m.TokenLimit,
		OutputLimit: m.OutputLimit,
		InputPrice:  m.InputPrice,
		OutputPrice: m.OutputPrice,
		Deprecated:  m.Deprecated,
	}
}

// Filter returns the records for which the boolean expression holds, e.g.
// `provider == "openai" && inputPrice < 0.01 && !deprecated`.
// An empty expression matches everything.
func (r *Registry) Filter(expression string) ([]ModelInfo, error) {
	if expression == "" {
		return r.Models(), nil
	}

	program, err := expr.Compile(expression, expr.Env(filterEnv{}), expr.AsBool())
	if err != nil {
		return nil, errors.Wrapf(err, "invalid filter expression %q", expression)
	}

	var matched []ModelInfo
	for _, m := range r.Models() {
		out, err := expr.Run(program, newFilterEnv(m))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to evaluate filter on %s", m.ID)
		}
		if ok, _ := out.(bool); ok {
			matched = append(matched, m)
		}
	}
	return matched, nil
}
