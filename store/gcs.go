package store

import (
	"context"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSStore persists artifacts as objects in a Google Cloud Storage bucket.
// The namespace is flat; EnsureContainer writes a zero-byte marker object so
// console browsing shows a folder.
type GCSStore struct {
	bucket     *storage.BucketHandle
	bucketName string
	prefix     string
}

// NewGCSStore verifies bucket access and returns the store. prefix is an
// optional key prefix prepended to every path.
func NewGCSStore(ctx context.Context, client *storage.Client, bucketName, prefix string) (*GCSStore, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}

	bucket := client.Bucket(bucketName)
	if _, err := bucket.Attrs(ctx); err != nil {
		return nil, fmt.Errorf("access bucket %q: %w", bucketName, err)
	}

	return &GCSStore{
		bucket:     bucket,
		bucketName: bucketName,
		prefix:     strings.Trim(prefix, "/"),
	}, nil
}

// PutObject uploads data to the object at path.
func (s *GCSStore) PutObject(ctx context.Context, p string, data []byte, contentType string) error {
	w := s.bucket.Object(s.key(p)).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("upload %q: %w", p, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload %q: %w", p, err)
	}
	return nil
}

// PutTabular uploads the table as an xlsx object at path.
func (s *GCSStore) PutTabular(ctx context.Context, p string, table *Table) error {
	data, err := EncodeTable(table)
	if err != nil {
		return err
	}
	return s.PutObject(ctx, p, data, ContentTypeXLSX)
}

// EnsureContainer writes an empty directory-marker object at path/.
func (s *GCSStore) EnsureContainer(ctx context.Context, p string) error {
	marker := s.key(p)
	if !strings.HasSuffix(marker, "/") {
		marker += "/"
	}
	w := s.bucket.Object(marker).NewWriter(ctx)
	w.ContentType = ContentTypeDirectory
	if err := w.Close(); err != nil {
		return fmt.Errorf("create container %q: %w", p, err)
	}
	return nil
}

// List returns object keys under prefix, relative to the store prefix.
// Directory markers are skipped.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.key(prefix)})

	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		key := attrs.Name
		if s.prefix != "" {
			key = strings.TrimPrefix(key, s.prefix+"/")
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *GCSStore) key(p string) string {
	p = strings.Trim(p, "/")
	if s.prefix == "" {
		return p
	}
	return path.Join(s.prefix, p)
}
