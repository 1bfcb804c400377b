// Package objectstore stores opaque blobs by name in a bucket.
package objectstore

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Get for missing objects.
var ErrNotExist = errors.New("object does not exist")

// Store is a flat namespace of objects.
type Store interface {
	// Get returns the object body or ErrNotExist.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put creates or replaces an object.
	Put(ctx context.Context, name string, body []byte, contentType string) error
	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the names of objects under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// Close releases client resources.
	Close() error
}
