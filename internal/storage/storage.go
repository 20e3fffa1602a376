// Package storage persists synthesized audio so results can be fetched
// after the HTTP response or MQTT result message went out. Outputs are
// derived artifacts; the pruner clears them once the retention passes.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ajirohack/echo/internal/audio"
	"github.com/Ajirohack/echo/internal/config"
)

// AudioStore abstracts the output audio backends.
type AudioStore interface {
	// Save stores audio data under the given key.
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// LocalPath returns the local filesystem path if the file exists on disk.
	// Returns "" if not available locally.
	LocalPath(key string) string

	// URL returns a presigned URL for the audio file.
	// Returns "" for local-only backends.
	URL(ctx context.Context, key string) (string, error)

	// Open returns a reader for the audio file.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an audio file exists.
	Exists(ctx context.Context, key string) bool

	// Type returns "local" or "s3".
	Type() string
}

// BackgroundService is a stoppable background goroutine.
type BackgroundService interface {
	Start()
	Stop()
}

// BuildKey lays out output keys as {source}-{target}/{YYYY-MM-DD}/{id}.{ext}.
// The language-pair directory keeps related outputs together and the date
// segment gives the pruner cheap empty-directory cleanup.
func BuildKey(sourceLang, targetLang, requestID, contentType string, now time.Time) string {
	return fmt.Sprintf("%s-%s/%s/%s.%s",
		sourceLang, targetLang, now.UTC().Format("2006-01-02"), requestID,
		audio.ExtForContentType(contentType))
}

// New creates an AudioStore based on config. S3 is selected when a
// bucket is configured; startup fails fast on bad credentials.
func New(cfg config.S3Config, audioDir string, log zerolog.Logger) (AudioStore, error) {
	if !cfg.Enabled() {
		return NewLocalStore(audioDir), nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	return s3store, nil
}
