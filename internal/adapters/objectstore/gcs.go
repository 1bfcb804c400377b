package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/variantgroup/dashboard/pkg/metrics"
	"github.com/variantgroup/dashboard/pkg/retry"
)

// GCS is a Store backed by a Cloud Storage bucket. Every call is retried
// on transient errors by pkg/retry; the client's own retries are off.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	retry  *retry.Config
}

// NewGCS opens a client using application default credentials.
func NewGCS(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("objectstore: empty bucket name")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: new client: %w", err)
	}
	return newGCS(client, bucket, retry.DefaultConfig()), nil
}

func newGCS(client *storage.Client, bucket string, rc *retry.Config) *GCS {
	client.SetRetry(storage.WithPolicy(storage.RetryNever))
	return &GCS{client: client, bucket: client.Bucket(bucket), retry: rc}
}

// do runs fn under the retry policy, counting retries per op.
func (g *GCS) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	rc := *g.retry
	rc.OnRetry = func(int, error) { metrics.RecordCacheRetry(op) }
	return retry.Do(ctx, &rc, fn)
}

func (g *GCS) Get(ctx context.Context, name string) ([]byte, error) {
	var body []byte
	err := g.do(ctx, "get", func(ctx context.Context) error {
		r, err := g.bucket.Object(name).NewReader(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotExist) {
				return ErrNotExist
			}
			return err
		}
		defer r.Close()

		body, err = io.ReadAll(r)
		return err
	})
	if errors.Is(err, ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %s: %w", name, err)
	}
	return body, nil
}

func (g *GCS) Put(ctx context.Context, name string, body []byte, contentType string) error {
	err := g.do(ctx, "put", func(ctx context.Context) error {
		w := g.bucket.Object(name).NewWriter(ctx)
		w.ContentType = contentType
		if _, err := w.Write(body); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	})
	if err != nil {
		return fmt.Errorf("objectstore: write %s: %w", name, err)
	}
	return nil
}

func (g *GCS) Delete(ctx context.Context, name string) error {
	err := g.do(ctx, "delete", func(ctx context.Context) error {
		err := g.bucket.Object(name).Delete(ctx)
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("objectstore: delete %s: %w", name, err)
	}
	return nil
}

func (g *GCS) List(ctx context.Context, prefix string) ([]string, error) {
	q := &storage.Query{Prefix: prefix}
	if err := q.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, fmt.Errorf("objectstore: list %s: %w", prefix, err)
	}

	var names []string
	err := g.do(ctx, "list", func(ctx context.Context) error {
		names = names[:0]
		it := g.bucket.Objects(ctx, q)
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				return err
			}
			names = append(names, attrs.Name)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: list %s: %w", prefix, err)
	}
	sort.Strings(names)
	return names, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
