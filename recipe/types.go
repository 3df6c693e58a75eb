// ABOUTME: Data model for the packing control panel: catalog metadata, editable
// ABOUTME: field definitions, and per-recipe state (default document + edit overlay).
package recipe

// Field data types, matching the editable_fields documents in the backend.
const (
	DataTypeInteger = "integer"
	DataTypeFloat   = "float"
	DataTypeString  = "string"
	DataTypeEnum    = "enum"
)

// Field input widgets, matching the editable_fields documents in the backend.
const (
	InputTypeSlider   = "slider"
	InputTypeDropdown = "dropdown"
	InputTypeGradient = "gradient"
	InputTypeText     = "text"
)

// Metadata is one catalog entry for a selectable recipe. Loaded once from the
// packing_inputs collection and immutable afterwards.
type Metadata struct {
	RecipeID          string   `json:"recipe_id"`
	ConfigID          string   `json:"config_id"`
	DisplayName       string   `json:"display_name"`
	EditableFieldIDs  []string `json:"editable_fields,omitempty"`
	DefaultResultPath string   `json:"default_result_path,omitempty"`
}

// EditableField describes one user-adjustable recipe parameter and where it
// lives inside the recipe document.
type EditableField struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description,omitempty"`
	DataType         string           `json:"data_type"`
	InputType        string           `json:"input_type"`
	Path             string           `json:"path"`
	Min              *float64         `json:"min,omitempty"`
	Max              *float64         `json:"max,omitempty"`
	Options          []string         `json:"options,omitempty"`
	GradientOptions  []GradientOption `json:"gradient_options,omitempty"`
	ConversionFactor *float64         `json:"conversion_factor,omitempty"`
	Unit             string           `json:"unit,omitempty"`
}

// GradientOption is one selectable gradient for a gradient-type field,
// including the optional strength sub-control wiring.
type GradientOption struct {
	DisplayName         string   `json:"display_name"`
	Value               string   `json:"value"`
	Path                string   `json:"path"`
	StrengthPath        string   `json:"strength_path,omitempty"`
	StrengthDefault     *float64 `json:"strength_default,omitempty"`
	StrengthMin         *float64 `json:"strength_min,omitempty"`
	StrengthMax         *float64 `json:"strength_max,omitempty"`
	PackingMode         string   `json:"packing_mode,omitempty"`
	PackingModePath     string   `json:"packing_mode_path,omitempty"`
	StrengthDescription string   `json:"strength_description,omitempty"`
	StrengthDisplayName string   `json:"strength_display_name,omitempty"`
}

// Data is the loaded state for one recipe: the canonical default document
// plus a sparse overlay of user edits.
//
// Edits maps a path string to the overridden scalar (string or number).
// Absence of a key means "use the default". The overlay never stores a value
// deep-equal to the default at that path; collapsing back to the default
// removes the entry. The effective document is always derived on demand via
// Effective, never persisted, so the two cannot drift.
type Data struct {
	RecipeID          string
	ConfigID          string
	DefaultRecipeData Document
	Edits             map[string]any
	EditableFields    []EditableField
}

// Effective returns the default document with the edit overlay applied.
func (d *Data) Effective() (Document, error) {
	return BuildEffectiveDocument(d.DefaultRecipeData, d.Edits)
}

// WithEdit returns a copy of d whose overlay reflects setting path to value:
// the entry is dropped when value deep-equals the default at path, installed
// otherwise. The receiver's Edits map is never mutated, so the returned Data
// is safe for identity-based change detection by subscribers.
func (d *Data) WithEdit(path string, value any) *Data {
	edits := make(map[string]any, len(d.Edits)+1)
	for k, v := range d.Edits {
		edits[k] = v
	}

	defaultValue, _ := GetAt(d.DefaultRecipeData, path)
	if DeepEqual(defaultValue, value) {
		delete(edits, path)
	} else {
		edits[path] = value
	}

	out := *d
	out.Edits = edits
	return &out
}

// WithoutEdits returns a copy of d with an empty overlay.
func (d *Data) WithoutEdits() *Data {
	out := *d
	out.Edits = map[string]any{}
	return &out
}
