package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed engine_modules.yaml
var engineModulesYAML []byte

// Registry answers whether a module name can be resolved by the build.
type Registry interface {
	Has(name string) bool
}

// ModuleSet is a Registry backed by a set of names.
type ModuleSet map[string]struct{}

// NewModuleSet creates a set holding names.
func NewModuleSet(names ...string) ModuleSet {
	s := make(ModuleSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s ModuleSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Add inserts names.
func (s ModuleSet) Add(names ...string) {
	for _, n := range names {
		s[n] = struct{}{}
	}
}

// Names lists the set, sorted.
func (s ModuleSet) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ParseRegistry decodes a YAML document of the form "modules: [...]".
func ParseRegistry(data []byte) (ModuleSet, error) {
	var doc struct {
		Modules []string `yaml:"modules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse module registry: %w", err)
	}
	return NewModuleSet(doc.Modules...), nil
}

// LoadRegistry reads a registry file.
func LoadRegistry(path string) (ModuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module registry: %w", err)
	}
	return ParseRegistry(data)
}

// EngineRegistry returns the engine modules the plugin builds against, plus
// the plugin's own modules.
func EngineRegistry() ModuleSet {
	s, err := ParseRegistry(engineModulesYAML)
	if err != nil {
		panic(fmt.Sprintf("manifest: embedded registry: %v", err))
	}
	s.Add(ModuleCore, ModuleEditor)
	return s
}

// Problem is one validation failure in a manifest.
type Problem struct {
	Module  string  `json:"module"`
	Variant Variant `json:"variant"`
	Kind    string  `json:"kind"`
	Name    string  `json:"name"`
}

// Problem kinds.
const (
	ProblemUnknown   = "unknown_module"
	ProblemDuplicate = "duplicate"
	ProblemBoth      = "public_and_private"
	ProblemSelf      = "self_dependency"
)

func (p Problem) String() string {
	return fmt.Sprintf("%s (%s): %s %s", p.Module, p.Variant, strings.ReplaceAll(p.Kind, "_", " "), p.Name)
}

// ValidationError lists every problem found.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return "invalid manifest: " + strings.Join(parts, "; ")
}

// Validate checks that every module m declares resolves in reg, that no
// dependency is listed twice or as both public and private, and that the
// module does not depend on itself.
func Validate(m Manifest, reg Registry) error {
	var problems []Problem
	add := func(kind, name string) {
		problems = append(problems, Problem{Module: m.Module, Variant: m.Variant, Kind: kind, Name: name})
	}

	seen := make(map[string]bool)
	check := func(list []string) {
		local := make(map[string]bool)
		for _, dep := range list {
			switch {
			case dep == m.Module:
				add(ProblemSelf, dep)
			case local[dep]:
				add(ProblemDuplicate, dep)
			case seen[dep]:
				add(ProblemBoth, dep)
			case !reg.Has(dep):
				add(ProblemUnknown, dep)
			}
			local[dep] = true
		}
		for dep := range local {
			seen[dep] = true
		}
	}
	check(m.Public)
	check(m.Private)

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// Result is the validation outcome of one manifest.
type Result struct {
	Module   string    `json:"module"`
	Variant  Variant   `json:"variant"`
	Valid    bool      `json:"valid"`
	Problems []Problem `json:"problems,omitempty"`
}

// ValidateAll validates every manifest in the table against reg.
func (t *Table) ValidateAll(reg Registry) []Result {
	out := make([]Result, 0, len(t.manifests))
	for _, m := range t.manifests {
		r := Result{Module: m.Module, Variant: m.Variant, Valid: true}
		if err := Validate(m, reg); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				r.Problems = verr.Problems
			}
			r.Valid = false
		}
		out = append(out, r)
	}
	return out
}

// UnknownModules lists the dependencies across the table that reg cannot
// resolve.
func (t *Table) UnknownModules(reg Registry) []string {
	var out []string
	for _, m := range t.manifests {
		for _, dep := range m.Dependencies() {
			if !reg.Has(dep) && !slices.Contains(out, dep) {
				out = append(out, dep)
			}
		}
	}
	sort.Strings(out)
	return out
}
