// ABOUTME: Recipe change detection and the transform applied before storing an edited recipe.
// ABOUTME: Canonical serialization is JSON with sorted keys, so repeated calls are deterministic.
package packing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/allen-cell-animated/packing-workbench/docstore"
	"github.com/allen-cell-animated/packing-workbench/recipe"
)

// CanonicalJSON serializes a document to its canonical string form. Map keys
// are sorted by encoding/json, so two structurally equal documents always
// produce the same string.
func CanonicalJSON(doc recipe.Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("serialize recipe: %w", err)
	}
	return string(raw), nil
}

// RecipeHasChanged reports whether the candidate recipe differs from the
// canonical stored document for recipeID. It reads the stored recipe on
// every call; submission deliberately re-checks rather than caching.
// An unknown recipe id counts as changed.
func (c *Client) RecipeHasChanged(ctx context.Context, recipeID, recipeJSON string) (bool, error) {
	doc, ok, err := c.Docs.QueryByID(ctx, docstore.CollectionRecipes, recipeID)
	if err != nil {
		return false, fmt.Errorf("fetch canonical recipe %s: %w", recipeID, err)
	}
	if !ok {
		return true, nil
	}

	canonical, err := CanonicalJSON(doc.Data)
	if err != nil {
		return false, err
	}

	var candidate recipe.Document
	if err := json.Unmarshal([]byte(recipeJSON), &candidate); err != nil {
		return false, fmt.Errorf("parse candidate recipe: %w", err)
	}
	candidateCanonical, err := CanonicalJSON(candidate)
	if err != nil {
		return false, err
	}

	return canonical != candidateCanonical, nil
}

// ToStoredDocument converts an effective recipe's JSON into the document
// shape the backend stores for edited recipes: a bounding_box held as an
// array of arrays is flattened into an index-keyed object (the stored shape
// differs from the in-recipe shape), and the document is stamped with its
// storage path and id.
func ToStoredDocument(recipeJSON, path, id string) (recipe.Document, error) {
	var doc recipe.Document
	if err := json.Unmarshal([]byte(recipeJSON), &doc); err != nil {
		return nil, fmt.Errorf("parse recipe for storage: %w", err)
	}

	if bb, ok := doc["bounding_box"].([]any); ok {
		flattened := make(map[string]any, len(bb))
		for i, row := range bb {
			flattened[strconv.Itoa(i)] = row
		}
		doc["bounding_box"] = flattened
	}

	doc[docstore.FieldRecipePath] = path
	doc[docstore.FieldName] = id
	return doc, nil
}
