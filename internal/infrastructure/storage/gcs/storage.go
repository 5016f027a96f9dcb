package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

// Storage keeps ticket images in a Google Cloud Storage bucket.
type Storage struct {
	client *storage.Client
	bucket string
	prefix string
}

// New connects with application default credentials unless credentialsJSON is set.
func New(ctx context.Context, bucket, prefix, credentialsJSON string) (*Storage, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("gcs bucket %q not accessible: %w", bucket, err)
	}
	return &Storage{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) Save(ctx context.Context, key string, data io.Reader) error {
	name, err := objectName(s.prefix, key)
	if err != nil {
		return err
	}
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentTypeFor(key)
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return domain.WrapError(domain.ErrTemporary, "gcs write", err)
	}
	if err := w.Close(); err != nil {
		return domain.WrapError(domain.ErrTemporary, "gcs finalize", err)
	}
	return nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := objectName(s.prefix, key)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, domain.WrapError(domain.ErrExtractionFailed, "open ticket image", fmt.Errorf("object %s is missing", name))
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "gcs read", err)
	}
	return r, nil
}

func objectName(prefix, key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", domain.WrapError(domain.ErrInvalidInput, "storage key", fmt.Errorf("invalid key %q", key))
	}
	if prefix == "" {
		return key, nil
	}
	return path.Join(prefix, key), nil
}

func contentTypeFor(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
