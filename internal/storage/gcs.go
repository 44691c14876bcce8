package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores objects in a Google Cloud Storage bucket.
type GCS struct {
	client *gcs.Client
	bucket string
}

var _ ObjectStore = (*GCS)(nil)

// NewGCS opens a client for bucket. An empty credentialsFile uses
// application default credentials.
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	if bucket == "" {
		return nil, ErrDisabled
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Upload(ctx context.Context, object, contentType string, r io.Reader) (string, error) {
	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	// Single-request upload.
	w.ChunkSize = 0
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %s: %w", object, err)
	}
	return PublicURL(g.bucket, object), nil
}

func (g *GCS) Delete(ctx context.Context, url string) error {
	object, err := ObjectFromURL(g.bucket, url)
	if err != nil {
		return err
	}
	if err := g.client.Bucket(g.bucket).Object(object).Delete(ctx); err != nil {
		return fmt.Errorf("delete object %s: %w", object, err)
	}
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
