package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/goccy/go-yaml"
)

// Variant names one of the two drafts each module manifest exists in.
type Variant string

const (
	VariantA Variant = "A"
	VariantB Variant = "B"
)

// Plugin module names.
const (
	ModuleCore   = "LiveBPCore"
	ModuleEditor = "LiveBPEditor"
)

var (
	ErrNotFound       = errors.New("manifest not found")
	ErrUnknownVariant = errors.New("unknown manifest variant")
)

//go:embed manifests.yaml
var manifestsYAML []byte

// ParseVariant accepts "A", "B" and their lower-case forms.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "A", "a":
		return VariantA, nil
	case "B", "b":
		return VariantB, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

// Manifest is one module's declared dependencies.
type Manifest struct {
	Module  string   `yaml:"module" json:"module"`
	Variant Variant  `yaml:"variant" json:"variant"`
	Public  []string `yaml:"public" json:"public"`
	Private []string `yaml:"private" json:"private"`
}

// Dependencies returns the public and private dependencies, sorted and
// without duplicates.
func (m Manifest) Dependencies() []string {
	all := append(append([]string(nil), m.Public...), m.Private...)
	sort.Strings(all)
	return slices.Compact(all)
}

// DependsOn reports whether the manifest declares name, publicly or
// privately.
func (m Manifest) DependsOn(name string) bool {
	return slices.Contains(m.Public, name) || slices.Contains(m.Private, name)
}

// IsPublic reports whether name is a public dependency.
func (m Manifest) IsPublic(name string) bool {
	return slices.Contains(m.Public, name)
}

// fileManifest is the on-disk form. PublicExtra extends an aliased public
// list.
type fileManifest struct {
	Manifest    `yaml:",inline"`
	PublicExtra []string `yaml:"public_extra"`
}

type file struct {
	Manifests []fileManifest `yaml:"manifests"`
}

// Table holds every module manifest in every variant.
type Table struct {
	manifests []Manifest
}

var defaultTable *Table

func init() {
	t, err := Parse(manifestsYAML)
	if err != nil {
		panic(fmt.Sprintf("manifest: embedded table: %v", err))
	}
	defaultTable = t
}

// Default returns the LiveBP plugin's manifest table.
func Default() *Table {
	return defaultTable
}

// Parse decodes a manifest table from YAML.
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse manifests: %w", err)
	}

	t := &Table{}
	seen := make(map[string]bool)
	for _, fm := range f.Manifests {
		m := fm.Manifest
		if m.Module == "" {
			return nil, fmt.Errorf("parse manifests: entry without module")
		}
		if _, err := ParseVariant(string(m.Variant)); err != nil {
			return nil, fmt.Errorf("parse manifests: %s: %w", m.Module, err)
		}
		key := m.Module + "/" + string(m.Variant)
		if seen[key] {
			return nil, fmt.Errorf("parse manifests: duplicate %s", key)
		}
		seen[key] = true

		m.Public = append(append([]string(nil), m.Public...), fm.PublicExtra...)
		m.Private = append([]string(nil), m.Private...)
		t.manifests = append(t.manifests, m)
	}
	sort.SliceStable(t.manifests, func(i, j int) bool {
		a, b := t.manifests[i], t.manifests[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		return a.Variant < b.Variant
	})
	return t, nil
}

// All returns every manifest ordered by module, then variant.
func (t *Table) All() []Manifest {
	out := make([]Manifest, len(t.manifests))
	copy(out, t.manifests)
	return out
}

// Get returns the manifest of module in variant v.
func (t *Table) Get(module string, v Variant) (Manifest, error) {
	for _, m := range t.manifests {
		if m.Module == module && m.Variant == v {
			return m, nil
		}
	}
	return Manifest{}, fmt.Errorf("%w: %s variant %s", ErrNotFound, module, v)
}

// Query filters manifests by module and variant; empty values match all.
func (t *Table) Query(module string, v Variant) []Manifest {
	var out []Manifest
	for _, m := range t.manifests {
		if (module == "" || m.Module == module) && (v == "" || m.Variant == v) {
			out = append(out, m)
		}
	}
	return out
}

// Modules lists the plugin modules in the table.
func (t *Table) Modules() []string {
	var out []string
	for _, m := range t.manifests {
		if !slices.Contains(out, m.Module) {
			out = append(out, m.Module)
		}
	}
	return out
}

// Dependents lists the manifests that declare dep.
func (t *Table) Dependents(dep string) []Manifest {
	var out []Manifest
	for _, m := range t.manifests {
		if m.DependsOn(dep) {
			out = append(out, m)
		}
	}
	return out
}

// Diff describes how one variant's dependencies differ from another's.
type Diff struct {
	Module         string   `json:"module"`
	From           Variant  `json:"from"`
	To             Variant  `json:"to"`
	PublicAdded    []string `json:"public_added"`
	PublicRemoved  []string `json:"public_removed"`
	PrivateAdded   []string `json:"private_added"`
	PrivateRemoved []string `json:"private_removed"`
}

// Empty reports whether both variants declare the same dependencies.
func (d Diff) Empty() bool {
	return len(d.PublicAdded)+len(d.PublicRemoved)+len(d.PrivateAdded)+len(d.PrivateRemoved) == 0
}

// Compare diffs module's manifest in variant from against variant to.
func (t *Table) Compare(module string, from, to Variant) (Diff, error) {
	a, err := t.Get(module, from)
	if err != nil {
		return Diff{}, err
	}
	b, err := t.Get(module, to)
	if err != nil {
		return Diff{}, err
	}
	return Diff{
		Module:         module,
		From:           from,
		To:             to,
		PublicAdded:    minus(b.Public, a.Public),
		PublicRemoved:  minus(a.Public, b.Public),
		PrivateAdded:   minus(b.Private, a.Private),
		PrivateRemoved: minus(a.Private, b.Private),
	}, nil
}

// minus returns the elements of a not in b, sorted.
func minus(a, b []string) []string {
	out := []string{}
	for _, s := range a {
		if !slices.Contains(b, s) && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
