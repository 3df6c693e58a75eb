// ABOUTME: Tests for the edit overlay on recipe Data.
// ABOUTME: Covers default-collapsing, overlay immutability, and scalar detection.
package recipe_test

import (
	"testing"

	"github.com/allen-cell-animated/packing-workbench/recipe"
)

func sampleData() *recipe.Data {
	return &recipe.Data{
		RecipeID:          "r1",
		ConfigID:          "config-123",
		DefaultRecipeData: sampleDoc(),
		Edits:             map[string]any{},
	}
}

func TestWithEditInstallsOverride(t *testing.T) {
	d := sampleData()
	d2 := d.WithEdit("objects.nucleus.radius", 42.0)

	if got := d2.Edits["objects.nucleus.radius"]; got != 42.0 {
		t.Errorf("edit = %v, want 42", got)
	}
	if len(d.Edits) != 0 {
		t.Error("WithEdit mutated the receiver's overlay")
	}
}

func TestWithEditCollapsesToDefault(t *testing.T) {
	d := sampleData().WithEdit("objects.nucleus.radius", 42.0)

	// writing the default back removes the entry rather than storing it
	d2 := d.WithEdit("objects.nucleus.radius", 10.0)
	if _, ok := d2.Edits["objects.nucleus.radius"]; ok {
		t.Error("override equal to default should be removed")
	}
	if len(d2.Edits) != 0 {
		t.Errorf("overlay = %v, want empty", d2.Edits)
	}
}

func TestWithEditCollapsesAcrossNumericTypes(t *testing.T) {
	// defaults decoded from JSON are float64; UI values may arrive as int
	d := sampleData().WithEdit("objects.nucleus.radius", 42)
	if got := d.Edits["objects.nucleus.radius"]; got != 42 {
		t.Fatalf("edit = %v, want 42", got)
	}
	d2 := d.WithEdit("objects.nucleus.radius", 10)
	if len(d2.Edits) != 0 {
		t.Errorf("int 10 should collapse against float64 default 10, got %v", d2.Edits)
	}
}

func TestWithEditFreshMapIdentity(t *testing.T) {
	d := sampleData()
	d2 := d.WithEdit("objects.peroxisome.radius", 3.1)
	d3 := d2.WithEdit("objects.peroxisome.radius", 3.2)

	if got := d2.Edits["objects.peroxisome.radius"]; got != 3.1 {
		t.Errorf("earlier snapshot changed: %v, want 3.1", got)
	}
	if got := d3.Edits["objects.peroxisome.radius"]; got != 3.2 {
		t.Errorf("edit = %v, want 3.2", got)
	}
}

func TestWithoutEditsClearsOverlay(t *testing.T) {
	d := sampleData().
		WithEdit("objects.nucleus.radius", 42.0).
		WithEdit("objects.peroxisome.radius", 3.1)
	d2 := d.WithoutEdits()
	if len(d2.Edits) != 0 {
		t.Errorf("overlay = %v, want empty", d2.Edits)
	}
	if len(d.Edits) != 2 {
		t.Error("WithoutEdits mutated the receiver")
	}
}

func TestEffectiveReflectsOverlay(t *testing.T) {
	d := sampleData().WithEdit("composition.membrane.regions.interior[2].count", 150.0)
	eff, err := d.Effective()
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if got, _ := recipe.GetAt(eff, "composition.membrane.regions.interior[2].count"); got != 150.0 {
		t.Errorf("effective count = %v, want 150", got)
	}
	if got, _ := recipe.GetAt(d.DefaultRecipeData, "composition.membrane.regions.interior[2].count"); got != 121.0 {
		t.Errorf("default mutated: count = %v, want 121", got)
	}
}

func TestDeepEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"numbers cross-type", 10, 10.0, true},
		{"numbers differ", 10, 10.5, false},
		{"strings", "a", "a", true},
		{"string vs number", "10", 10, false},
		{"nil", nil, nil, true},
		{"nested maps", sampleDoc(), sampleDoc(), true},
		{"slices", []any{1, 2.0}, []any{1.0, 2}, true},
		{"slice length", []any{1}, []any{1, 2}, false},
		{"map extra key", map[string]any{"a": 1}, map[string]any{"a": 1, "b": 2}, false},
	}
	for _, tt := range tests {
		if got := recipe.DeepEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("%s: DeepEqual = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsScalar(t *testing.T) {
	for _, v := range []any{"s", 1, 2.5, int64(3)} {
		if !recipe.IsScalar(v) {
			t.Errorf("IsScalar(%v) = false, want true", v)
		}
	}
	for _, v := range []any{nil, true, map[string]any{}, []any{1}} {
		if recipe.IsScalar(v) {
			t.Errorf("IsScalar(%v) = true, want false", v)
		}
	}
}
