package evidence

import (
	"context"
	"fmt"

	"vtrack/internal/platform/config"
)

// New selects the backend named by the evidence configuration.
func New(ctx context.Context, cfg config.Evidence, s3cfg config.S3) (Store, error) {
	switch cfg.Backend {
	case config.EvidenceBackendFile, "":
		return NewFileStore(cfg.Dir, cfg.MaxBytes)
	case config.EvidenceBackendS3:
		return NewS3Store(ctx, S3Config{
			Bucket:   s3cfg.Bucket,
			Region:   s3cfg.Region,
			Endpoint: s3cfg.Endpoint,
			Prefix:   s3cfg.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown evidence backend %q", cfg.Backend)
	}
}

// LimitsFrom reads the upload limits from configuration.
func LimitsFrom(cfg config.Evidence) Limits {
	return Limits{MaxFiles: cfg.MaxFiles, MaxBytes: cfg.MaxBytes}
}
