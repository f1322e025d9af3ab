package refdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
)

// GCSFetcher reads the reference feed object from a cloud storage bucket.
type GCSFetcher struct {
	client *storage.Client
	bucket string
	object string
}

func NewGCSFetcher(ctx context.Context, bucket, object string) (*GCSFetcher, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSFetcher{client: client, bucket: bucket, object: object}, nil
}

func (f *GCSFetcher) FetchText(ctx context.Context) (string, error) {
	reader, err := f.client.Bucket(f.bucket).Object(f.object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", fmt.Errorf("%w: gs://%s/%s", ErrFeedNotFound, f.bucket, f.object)
		}
		return "", fmt.Errorf("open gs://%s/%s: %w", f.bucket, f.object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read gs://%s/%s: %w", f.bucket, f.object, err)
	}
	return string(data), nil
}

// FileFetcher reads the reference feed from the local filesystem, used for
// development and tests.
type FileFetcher struct {
	path string
}

func NewFileFetcher(path string) *FileFetcher {
	return &FileFetcher{path: path}
}

func (f *FileFetcher) FetchText(ctx context.Context) (string, error) {
	_ = ctx
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrFeedNotFound, f.path)
		}
		return "", err
	}
	return string(data), nil
}
