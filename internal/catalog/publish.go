package catalog

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/retailsearch/retailsearch/internal/storage"
)

// PublishParquet writes items as a parquet snapshot of the apparels table and
// returns the object key.
func PublishParquet(ctx context.Context, store storage.ObjectStore, items []Apparel, at time.Time) (string, error) {
	if store == nil {
		return "", fmt.Errorf("object store is required")
	}
	encoded, err := EncodeParquet(items)
	if err != nil {
		return "", err
	}
	key, err := storage.BuildCatalogPath(TableApparels, at)
	if err != nil {
		return "", err
	}
	if _, err := store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: storage.ParquetContentType}); err != nil {
		return "", fmt.Errorf("publish catalog snapshot: %w", err)
	}
	return key, nil
}
