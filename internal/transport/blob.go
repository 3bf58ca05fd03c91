package transport

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/shaiso/Downloader/internal/domain"
)

// BucketOpener открывает бакет по URL вида scheme://bucket?params.
type BucketOpener func(ctx context.Context, bucketURL string) (*blob.Bucket, error)

// Blob — транспорт для объектов в бакетах gocloud.
//
// URL запроса разбивается на бакет и ключ:
//
//	s3://bucket/dir/file.bin?region=eu-west-1 → бакет s3://bucket?region=eu-west-1, ключ dir/file.bin
//	file:///data/dir/file.bin                → бакет file:///data/dir, ключ file.bin
type Blob struct {
	open BucketOpener
}

// NewBlob создаёт blob транспорт. Если open == nil, используется blob.OpenBucket.
func NewBlob(open BucketOpener) *Blob {
	if open == nil {
		open = blob.OpenBucket
	}
	return &Blob{open: open}
}

// Start запускает чтение объекта в req.Destination.
func (b *Blob) Start(ctx context.Context, req domain.Request) (*Transfer, error) {
	bucketURL, key, err := SplitObjectURL(req.URL)
	if err != nil {
		return nil, err
	}

	return start(ctx, func(ctx context.Context, report reportFunc) error {
		return b.download(ctx, bucketURL, key, req.Destination, report)
	}), nil
}

func (b *Blob) download(ctx context.Context, bucketURL, key, dest string, report reportFunc) error {
	bucket, err := b.open(ctx, bucketURL)
	if err != nil {
		return fmt.Errorf("open bucket: %w", err)
	}
	defer bucket.Close()

	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("open object %s: %w", key, err)
	}
	defer r.Close()

	return writeFile(ctx, dest, r, r.Size(), report)
}

// SplitObjectURL разбивает URL объекта на URL бакета и ключ.
func SplitObjectURL(raw string) (bucketURL, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse object url: %w", err)
	}

	if u.Scheme == "file" {
		dir, file := path.Split(u.Path)
		if file == "" {
			return "", "", fmt.Errorf("object url %q: empty key", raw)
		}
		bucket := url.URL{Scheme: u.Scheme, Path: strings.TrimSuffix(dir, "/"), RawQuery: u.RawQuery}
		if bucket.Path == "" {
			bucket.Path = "/"
		}
		return bucket.String(), file, nil
	}

	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("object url %q: empty key", raw)
	}
	bucket := url.URL{Scheme: u.Scheme, Host: u.Host, RawQuery: u.RawQuery}
	return bucket.String(), key, nil
}
