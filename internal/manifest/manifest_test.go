package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	table := Default()

	assert.Len(t, table.All(), 4)
	assert.Equal(t, []string{ModuleCore, ModuleEditor}, table.Modules())

	core, err := table.Get(ModuleCore, VariantA)
	require.NoError(t, err)
	assert.Equal(t, []string{"Core", "CoreUObject", "Engine", "Slate", "SlateCore"}, core.Public)
	assert.Len(t, core.Private, 13)
	assert.True(t, core.DependsOn("ConcertSyncClient"))
	assert.False(t, core.IsPublic("Json"))

	editorA, err := table.Get(ModuleEditor, VariantA)
	require.NoError(t, err)
	editorB, err := table.Get(ModuleEditor, VariantB)
	require.NoError(t, err)
	assert.Len(t, editorA.Public, 17)
	assert.Equal(t, append(append([]string(nil), editorA.Public...), "BlueprintEditorModule"), editorB.Public)
	assert.True(t, editorA.IsPublic(ModuleCore), "the editor module links the runtime module publicly")

	_, err = table.Get("LiveBPRuntime", VariantA)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuery(t *testing.T) {
	table := Default()

	tests := []struct {
		name    string
		module  string
		variant Variant
		want    int
	}{
		{"everything", "", "", 4},
		{"one module", ModuleCore, "", 2},
		{"one variant", "", VariantB, 2},
		{"exact", ModuleEditor, VariantA, 1},
		{"no match", "Nope", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, table.Query(tt.module, tt.variant), tt.want)
		})
	}
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("b")
	require.NoError(t, err)
	assert.Equal(t, VariantB, v)

	_, err = ParseVariant("C")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestDependencies(t *testing.T) {
	m := Manifest{Public: []string{"Slate", "Core"}, Private: []string{"Json", "Core"}}
	assert.Equal(t, []string{"Core", "Json", "Slate"}, m.Dependencies())
}

func TestDependents(t *testing.T) {
	got := Default().Dependents("MultiUserClientLibrary")
	require.Len(t, got, 1)
	assert.Equal(t, ModuleCore, got[0].Module)
	assert.Equal(t, VariantB, got[0].Variant)

	assert.Len(t, Default().Dependents("RHI"), 4)
}

func TestCompare(t *testing.T) {
	diff, err := Default().Compare(ModuleCore, VariantA, VariantB)
	require.NoError(t, err)
	assert.Equal(t, []string{"Concert", "ConcertSyncCore", "ConcertTransport", "MultiUserClientLibrary"}, diff.PublicAdded)
	assert.Empty(t, diff.PublicRemoved)
	assert.Equal(t, []string{"JsonObjectConverter"}, diff.PrivateAdded)
	assert.Equal(t, []string{
		"Concert", "ConcertMain", "ConcertSyncClient", "ConcertSyncCore", "ConcertTransport", "JsonUtilities", "Projects",
	}, diff.PrivateRemoved)
	assert.False(t, diff.Empty())

	diff, err = Default().Compare(ModuleEditor, VariantA, VariantB)
	require.NoError(t, err)
	assert.Equal(t, []string{"BlueprintEditorModule"}, diff.PublicAdded)
	assert.Equal(t, []string{"Framework", "JsonObjectConverter"}, diff.PrivateAdded)
	assert.Equal(t, []string{
		"AssetRegistry", "Concert", "ConcertMain", "ConcertSyncClient", "ConcertSyncCore",
		"ConcertTransport", "JsonUtilities", "ToolkitApplication",
	}, diff.PrivateRemoved)

	same, err := Default().Compare(ModuleCore, VariantA, VariantA)
	require.NoError(t, err)
	assert.True(t, same.Empty())
}

func TestValidateAgainstEngineRegistry(t *testing.T) {
	table := Default()
	reg := EngineRegistry()

	results := table.ValidateAll(reg)
	require.Len(t, results, 4)

	byKey := make(map[string]Result)
	for _, r := range results {
		byKey[r.Module+"/"+string(r.Variant)] = r
	}
	assert.True(t, byKey["LiveBPCore/A"].Valid)
	assert.True(t, byKey["LiveBPEditor/A"].Valid)

	coreB := byKey["LiveBPCore/B"]
	assert.False(t, coreB.Valid)
	assert.Equal(t, []Problem{{Module: ModuleCore, Variant: VariantB, Kind: ProblemUnknown, Name: "JsonObjectConverter"}}, coreB.Problems)

	assert.Equal(t, []string{"BlueprintEditorModule", "Framework", "JsonObjectConverter"}, table.UnknownModules(reg))
}

func TestValidateProblems(t *testing.T) {
	reg := NewModuleSet("Core", "Json", "Slate")

	tests := []struct {
		name string
		m    Manifest
		want []Problem
	}{
		{
			name: "valid",
			m:    Manifest{Module: "Mod", Public: []string{"Core"}, Private: []string{"Json"}},
		},
		{
			name: "unknown",
			m:    Manifest{Module: "Mod", Public: []string{"Core", "Ghost"}},
			want: []Problem{{Module: "Mod", Kind: ProblemUnknown, Name: "Ghost"}},
		},
		{
			name: "duplicate",
			m:    Manifest{Module: "Mod", Private: []string{"Json", "Json"}},
			want: []Problem{{Module: "Mod", Kind: ProblemDuplicate, Name: "Json"}},
		},
		{
			name: "public and private",
			m:    Manifest{Module: "Mod", Public: []string{"Slate"}, Private: []string{"Slate"}},
			want: []Problem{{Module: "Mod", Kind: ProblemBoth, Name: "Slate"}},
		},
		{
			name: "self",
			m:    Manifest{Module: "Mod", Public: []string{"Mod"}},
			want: []Problem{{Module: "Mod", Kind: ProblemSelf, Name: "Mod"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.m, reg)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.want, verr.Problems)
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := Validate(Manifest{Module: "Mod", Variant: VariantA, Public: []string{"Ghost"}}, NewModuleSet())
	require.Error(t, err)
	assert.Equal(t, "invalid manifest: Mod (A): unknown module Ghost", err.Error())
}

func TestParseRejectsBadTables(t *testing.T) {
	tests := map[string]string{
		"bad yaml":  "manifests: [",
		"no module": "manifests:\n  - variant: A\n",
		"variant":   "manifests:\n  - module: X\n    variant: Z\n",
		"duplicate": "manifests:\n  - module: X\n    variant: A\n  - module: X\n    variant: A\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modules:\n  - Core\n  - Json\n"), 0o644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Core", "Json"}, reg.Names())
	assert.True(t, reg.Has("Json"))
	assert.False(t, reg.Has("Slate"))

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
