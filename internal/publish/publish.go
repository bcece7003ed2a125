// Package publish uploads build results to a blob bucket.
package publish

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	"golang.org/x/sync/errgroup"

	"github.com/olavph/builds/internal/config"
	"github.com/olavph/builds/logging"
)

const defaultWorkers = 4

// Publisher copies a local directory tree into a bucket, preserving
// relative paths as keys. Any blob scheme registered by the imported
// drivers is accepted (file://, and whatever the binary links in).
type Publisher struct {
	bucketURL string
	workers   int
}

func NewPublisher(cfg *config.PublishConfig) *Publisher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Publisher{bucketURL: cfg.BucketURL, workers: workers}
}

// Publish uploads every regular file under dir to the bucket, prefixing
// keys with keyPrefix.
func (p *Publisher) Publish(ctx context.Context, dir string, keyPrefix string) error {
	bucket, err := blob.OpenBucket(ctx, p.bucketURL)
	if err != nil {
		return fmt.Errorf("failed to open bucket %s: %w", p.bucketURL, err)
	}
	defer bucket.Close()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.workers)
	count := 0
	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		relativePath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(filepath.Join(keyPrefix, relativePath))
		count++
		group.Go(func() error {
			return p.uploadFile(groupCtx, bucket, path, key)
		})
		return nil
	})
	if err != nil {
		return err
	}
	if err := group.Wait(); err != nil {
		return err
	}
	logging.Logger.Infow("published build results",
		"bucket", p.bucketURL, "prefix", keyPrefix, "files", count)
	return nil
}

func (p *Publisher) uploadFile(ctx context.Context, bucket *blob.Bucket, path string, key string) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	writer, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return err
	}
	if _, err := writer.ReadFrom(source); err != nil {
		writer.Close()
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return writer.Close()
}
