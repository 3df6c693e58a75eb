// ABOUTME: Document backend interface and the collection/field names the panel uses.
// ABOUTME: Mirrors the generic query surface of the hosted document store (query by id, id list, all, time range).
package docstore

import (
	"context"
	"time"
)

// Collections used by the control panel.
const (
	CollectionPackingInputs  = "packing_inputs"
	CollectionRecipes        = "recipes"
	CollectionEditedRecipes  = "recipes_edited"
	CollectionEditableFields = "editable_fields"
	CollectionJobStatus      = "job_status"
	CollectionResults        = "results"
)

// Well-known document field names.
const (
	FieldName           = "name"
	FieldRecipe         = "recipe"
	FieldConfig         = "config"
	FieldEditableFields = "editable_fields"
	FieldRecipePath     = "recipe_path"
	FieldURL            = "url"
)

// Doc is one stored document with its backend id.
type Doc struct {
	ID   string
	Data map[string]any
}

// Store is the document backend consumed by the panel: upsert, delete, and
// the query shapes the original system issues. Implementations must be safe
// for concurrent use.
type Store interface {
	// QueryByID returns the document with the given id, or ok=false when the
	// collection has no such document.
	QueryByID(ctx context.Context, collection, id string) (Doc, bool, error)

	// QueryByIDs returns the documents whose ids appear in ids, in no
	// particular order. Missing ids are skipped, not errors.
	QueryByIDs(ctx context.Context, collection string, ids []string) ([]Doc, error)

	// QueryAll returns every document in the collection.
	QueryAll(ctx context.Context, collection string) ([]Doc, error)

	// QueryUpdatedBefore returns documents whose update timestamp is strictly
	// before cutoff. Backs the retention sweep.
	QueryUpdatedBefore(ctx context.Context, collection string, cutoff time.Time) ([]Doc, error)

	// Put upserts a document by id and stamps its update timestamp.
	Put(ctx context.Context, collection, id string, data map[string]any) error

	// Delete removes a document by id. Deleting a missing document is not an
	// error.
	Delete(ctx context.Context, collection, id string) error
}
