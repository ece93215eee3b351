package cmd

import (
	"context"
	"errors"
	"fmt"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/jsbridge/lode"
)

// readStorageChoice resolves the storage flags of a read-only command.
// Both --storage-backend and --storage-path are required.
func readStorageChoice(c *cli.Context) (storageChoice, error) {
	s := storageChoice{
		dataset:   c.String("storage-dataset"),
		backend:   c.String("storage-backend"),
		path:      c.String("storage-path"),
		region:    c.String("storage-region"),
		endpoint:  c.String("storage-endpoint"),
		pathStyle: c.Bool("storage-s3-path-style"),
	}
	if s.backend == "" || s.path == "" {
		return s, errors.New("both --storage-backend and --storage-path are required for archive reads")
	}
	return s, s.validate()
}

func (s storageChoice) s3Config() lode.S3Config {
	bucket, prefix := lode.ParseS3Path(s.path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       s.region,
		Endpoint:     s.endpoint,
		UsePathStyle: s.pathStyle,
	}
}

// buildReadDataset creates a Lode Dataset for reading.
func buildReadDataset(ctx context.Context, s storageChoice) (lodelibrary.Dataset, error) {
	switch s.backend {
	case "fs":
		return lode.NewReadDatasetFS(s.dataset, s.path)
	case "s3":
		return lode.NewReadDatasetS3(ctx, s.dataset, s.s3Config())
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", s.backend)
	}
}

// openArchive creates a session archive for writing.
func openArchive(ctx context.Context, s storageChoice, cfg lode.Config) (*lode.Archive, error) {
	switch s.backend {
	case "fs":
		return lode.NewArchive(cfg, s.path)
	case "s3":
		return lode.NewS3Archive(ctx, cfg, s.s3Config())
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", s.backend)
	}
}
