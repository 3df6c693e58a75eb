// ABOUTME: YAML seed loader that populates the document store from a fixtures file.
// ABOUTME: Gives a fresh instance a usable catalog (packing inputs, editable fields, recipes).
package docstore

import (
	"context"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk shape of a seed fixtures file:
//
//	collections:
//	  packing_inputs:
//	    r1:
//	      name: Sphere demo
//	      recipe: r1
//	      config: config-123
//	      editable_fields: [ef-radius]
//	  recipes:
//	    r1: { ... full recipe document ... }
type seedFile struct {
	Collections map[string]map[string]map[string]any `yaml:"collections"`
}

// SeedFromFile reads a YAML fixtures file and upserts every document it
// contains. Existing documents with the same ids are overwritten. Returns
// the number of documents written.
func SeedFromFile(ctx context.Context, store Store, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return 0, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	written := 0
	for collection, docs := range seed.Collections {
		for id, data := range docs {
			if err := store.Put(ctx, collection, id, data); err != nil {
				return written, fmt.Errorf("seed %s/%s: %w", collection, id, err)
			}
			written++
		}
		log.Printf("component=docstore action=seed_collection collection=%s docs=%d", collection, len(docs))
	}
	return written, nil
}
