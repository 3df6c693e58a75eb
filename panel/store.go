// ABOUTME: The recipe store: catalog metadata, loaded recipes with edit overlays, selection,
// ABOUTME: and per-recipe packing results. All mutation funnels through its action methods.
package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/allen-cell-animated/packing-workbench/docstore"
	"github.com/allen-cell-animated/packing-workbench/packing"
	"github.com/allen-cell-animated/packing-workbench/recipe"
)

// Runner drives one packing run: submit the job, poll it to a terminal
// status, and resolve result locations. Implemented by *packing.Client;
// injected so the store stays decoupled from the literal HTTP and document
// backend calls.
type Runner interface {
	SubmitJob(ctx context.Context, recipeID, recipeJSON, configID string) (*packing.SubmitResult, error)
	PollJobStatus(ctx context.Context, jobID string, onStatus func(packing.JobStatus)) (packing.JobStatusRecord, error)
	ResultURL(ctx context.Context, jobID string) (string, error)
	OutputsDirectory(ctx context.Context, jobID string) (string, error)
}

// Store holds all control-panel state. It exclusively owns its maps; callers
// read through selector methods and mutate through named actions. Selector
// results are copies or treated as read-only snapshots.
//
// Unknown-id guards (SelectRecipe, EditRecipe, RestoreRecipeDefault,
// LoadRecipe) are deliberate silent no-ops so the UI stays forgiving of
// stale ids.
type Store struct {
	docs   docstore.Store
	runner Runner

	mu               sync.Mutex
	selectedRecipeID string
	inputOptions     map[string]recipe.Metadata
	recipes          map[string]*recipe.Data
	packingResults   map[string]PackingResult
	isPacking        bool

	// now is the clock used to measure run times. Overridable in tests.
	now func() time.Time
}

// New creates an empty Store over the given document backend and runner.
func New(docs docstore.Store, runner Runner) *Store {
	return &Store{
		docs:           docs,
		runner:         runner,
		recipes:        make(map[string]*recipe.Data),
		packingResults: make(map[string]PackingResult),
		now:            time.Now,
	}
}

// LoadInputOptions fetches the recipe metadata catalog. Idempotent: a
// second call is a no-op once the catalog is installed.
func (s *Store) LoadInputOptions(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.inputOptions != nil
	s.mu.Unlock()
	if loaded {
		return nil
	}

	docs, err := s.docs.QueryAll(ctx, docstore.CollectionPackingInputs)
	if err != nil {
		return fmt.Errorf("load input options: %w", err)
	}

	options := make(map[string]recipe.Metadata)
	for _, doc := range docs {
		name, _ := doc.Data[docstore.FieldName].(string)
		configID, _ := doc.Data[docstore.FieldConfig].(string)
		recipeID, _ := doc.Data[docstore.FieldRecipe].(string)
		if name == "" || configID == "" || recipeID == "" {
			log.Printf("component=panel action=skip_catalog_entry id=%s reason=missing_fields", doc.ID)
			continue
		}
		options[recipeID] = recipe.Metadata{
			RecipeID:          recipeID,
			ConfigID:          configID,
			DisplayName:       name,
			EditableFieldIDs:  toStringSlice(doc.Data[docstore.FieldEditableFields]),
			DefaultResultPath: stringField(doc.Data, "default_result_path"),
		}
	}

	s.mu.Lock()
	if s.inputOptions == nil {
		s.inputOptions = options
	}
	s.mu.Unlock()
	log.Printf("component=panel action=input_options_loaded recipes=%d", len(options))
	return nil
}

// LoadRecipe fetches the canonical recipe document and resolves its editable
// fields, installing a fresh Data with an empty overlay. Idempotent per id;
// silently a no-op for ids missing from the catalog.
func (s *Store) LoadRecipe(ctx context.Context, recipeID string) error {
	s.mu.Lock()
	meta, known := s.inputOptions[recipeID]
	_, loaded := s.recipes[recipeID]
	s.mu.Unlock()
	if !known || loaded {
		return nil
	}

	fields, err := s.loadEditableFields(ctx, meta.EditableFieldIDs)
	if err != nil {
		return fmt.Errorf("load recipe %s: %w", recipeID, err)
	}

	doc, ok, err := s.docs.QueryByID(ctx, docstore.CollectionRecipes, recipeID)
	if err != nil {
		return fmt.Errorf("load recipe %s: %w", recipeID, err)
	}
	if !ok {
		return fmt.Errorf("load recipe %s: canonical document not found", recipeID)
	}

	s.mu.Lock()
	if _, already := s.recipes[recipeID]; !already {
		s.recipes[recipeID] = &recipe.Data{
			RecipeID:          recipeID,
			ConfigID:          meta.ConfigID,
			DefaultRecipeData: doc.Data,
			Edits:             map[string]any{},
			EditableFields:    fields,
		}
	}
	s.mu.Unlock()
	return nil
}

// loadEditableFields resolves field ids into full definitions. Ids with no
// matching document are skipped.
func (s *Store) loadEditableFields(ctx context.Context, ids []string) ([]recipe.EditableField, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	docs, err := s.docs.QueryByIDs(ctx, docstore.CollectionEditableFields, ids)
	if err != nil {
		return nil, fmt.Errorf("load editable fields: %w", err)
	}

	fields := make([]recipe.EditableField, 0, len(docs))
	for _, doc := range docs {
		raw, err := json.Marshal(doc.Data)
		if err != nil {
			return nil, fmt.Errorf("encode editable field %s: %w", doc.ID, err)
		}
		var field recipe.EditableField
		if err := json.Unmarshal(raw, &field); err != nil {
			return nil, fmt.Errorf("decode editable field %s: %w", doc.ID, err)
		}
		field.ID = doc.ID
		fields = append(fields, field)
	}
	// stable order regardless of backend iteration order
	sort.Slice(fields, func(i, j int) bool { return fields[i].ID < fields[j].ID })
	return fields, nil
}

// LoadAllRecipes loads one bootstrap recipe synchronously — so the panel has
// an immediately usable selection — then loads the remaining catalog recipes
// concurrently without blocking the caller. Requires LoadInputOptions to
// have run. Background load failures are logged, not surfaced; reads of a
// recipe may report "not yet loaded" at any time after this returns.
func (s *Store) LoadAllRecipes(ctx context.Context) error {
	s.mu.Lock()
	if s.inputOptions == nil {
		s.mu.Unlock()
		return fmt.Errorf("load all recipes: input options not loaded")
	}
	ids := make([]string, 0, len(s.inputOptions))
	for id := range s.inputOptions {
		ids = append(ids, id)
	}
	selected := s.selectedRecipeID
	s.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)

	bootstrap := selected
	if bootstrap == "" {
		bootstrap = ids[0]
	}

	if err := s.LoadRecipe(ctx, bootstrap); err != nil {
		return err
	}

	s.mu.Lock()
	if s.selectedRecipeID == "" {
		s.selectedRecipeID = bootstrap
	}
	s.mu.Unlock()

	for _, id := range ids {
		if id == bootstrap {
			continue
		}
		go func(id string) {
			if err := s.LoadRecipe(ctx, id); err != nil {
				log.Printf("component=panel action=background_load_failed recipe=%s err=%v", id, err)
			}
		}(id)
	}
	return nil
}

// SelectRecipe makes recipeID the current selection, loading its data first
// if needed. Silently a no-op for ids missing from the catalog.
func (s *Store) SelectRecipe(ctx context.Context, recipeID string) error {
	s.mu.Lock()
	_, known := s.inputOptions[recipeID]
	_, loaded := s.recipes[recipeID]
	s.mu.Unlock()
	if !known {
		return nil
	}

	if !loaded {
		if err := s.LoadRecipe(ctx, recipeID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.selectedRecipeID = recipeID
	s.mu.Unlock()
	return nil
}

// EditRecipe sets the overlay value at path for recipeID. A value deep-equal
// to the default at that path removes the override instead. The recipe's
// Edits map is replaced, never mutated, so snapshot identity comparisons
// remain valid. Silently a no-op when the recipe is not loaded.
func (s *Store) EditRecipe(recipeID, path string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recipes[recipeID]
	if !ok {
		return
	}
	s.recipes[recipeID] = rec.WithEdit(path, value)
}

// RestoreRecipeDefault clears the edit overlay for recipeID. Silently a
// no-op when the recipe is not loaded.
func (s *Store) RestoreRecipeDefault(recipeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recipes[recipeID]
	if !ok {
		return
	}
	s.recipes[recipeID] = rec.WithoutEdits()
}

// CurrentValue returns the effective scalar at path for the selected recipe:
// the edited value when present, the default otherwise. Non-scalar values
// are never exposed; only leaf editable fields surface this way.
func (s *Store) CurrentValue(path string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recipes[s.selectedRecipeID]
	if !ok {
		return nil, false
	}

	if v, edited := rec.Edits[path]; edited {
		if recipe.IsScalar(v) {
			return v, true
		}
		return nil, false
	}

	v, found := recipe.GetAt(rec.DefaultRecipeData, path)
	if !found || !recipe.IsScalar(v) {
		return nil, false
	}
	return v, true
}

// OriginalValue returns the default scalar at path for the selected recipe,
// ignoring edits. Used to show reference values beside edited ones.
func (s *Store) OriginalValue(path string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recipes[s.selectedRecipeID]
	if !ok {
		return nil, false
	}
	v, found := recipe.GetAt(rec.DefaultRecipeData, path)
	if !found || !recipe.IsScalar(v) {
		return nil, false
	}
	return v, true
}

// SelectedRecipeID returns the current selection ("" before any load).
func (s *Store) SelectedRecipeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedRecipeID
}

// InputOptions returns a copy of the catalog, keyed by recipe id.
func (s *Store) InputOptions() map[string]recipe.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]recipe.Metadata, len(s.inputOptions))
	for id, meta := range s.inputOptions {
		out[id] = meta
	}
	return out
}

// Recipe returns the loaded data for recipeID. The returned snapshot must be
// treated as read-only.
func (s *Store) Recipe(recipeID string) (*recipe.Data, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recipes[recipeID]
	return rec, ok
}

// EffectiveDocument derives the effective document for recipeID on demand.
func (s *Store) EffectiveDocument(recipeID string) (recipe.Document, error) {
	rec, ok := s.Recipe(recipeID)
	if !ok {
		return nil, fmt.Errorf("recipe %s not loaded", recipeID)
	}
	return rec.Effective()
}

// Result returns the packing result for recipeID, or the empty sentinel when
// that recipe has never packed.
func (s *Store) Result(recipeID string) PackingResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if result, ok := s.packingResults[recipeID]; ok {
		return result
	}
	return EmptyPackingResult()
}

// IsPacking reports whether a submission is currently in flight.
func (s *Store) IsPacking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPacking
}

// Reset returns the store to its initial empty state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedRecipeID = ""
	s.inputOptions = nil
	s.recipes = make(map[string]*recipe.Data)
	s.packingResults = make(map[string]PackingResult)
	s.isPacking = false
}

func toStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
