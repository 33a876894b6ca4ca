package ingestion

import (
	"context"
	"fmt"

	"github.com/tsio/tsio/internal/objectstore"
)

// objectStoreReader adapts objectstore.Store to the minimal ObjectReader
// contract the Parser interface is defined against, so a parser
// implementation never needs to know about the object store client itself.
type objectStoreReader struct {
	ctx     context.Context
	objects objectstore.Store
	key     string
}

// newObjectReader returns an ObjectReader for one JSON file's storage key.
func newObjectReader(ctx context.Context, objects objectstore.Store, key string) ObjectReader {
	return &objectStoreReader{ctx: ctx, objects: objects, key: key}
}

func (r *objectStoreReader) Read() ([]byte, string, error) {
	data, contentType, err := r.objects.Get(r.ctx, r.key)
	if err != nil {
		return nil, "", fmt.Errorf("read object %q: %w", r.key, err)
	}

	return data, contentType, nil
}
