package creator

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

// Config holds the configuration for the snapshot creator.
type Config struct {
	// ChunkMaxEntries bounds the number of storage log entries per chunk.
	// The chunk count for a checkpoint is ceil(total / ChunkMaxEntries), so
	// re-running the same checkpoint with the same setting produces the same
	// number of chunks.
	ChunkMaxEntries uint64 `env:"SNAPSHOT_CHUNK_MAX_ENTRIES" envDefault:"1000000"`

	// Concurrency bounds how many chunk workers run at once.
	Concurrency int64 `env:"SNAPSHOT_CONCURRENCY" envDefault:"8"`

	// ChunkMaxRetries is how many times a failed chunk write is retried
	// before the whole run is aborted.
	ChunkMaxRetries uint64 `env:"SNAPSHOT_CHUNK_MAX_RETRIES" envDefault:"5"`

	// ChunkRetryBackoff is the initial backoff between chunk write retries;
	// subsequent retries back off exponentially.
	ChunkRetryBackoff time.Duration `env:"SNAPSHOT_CHUNK_RETRY_BACKOFF" envDefault:"500ms"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkMaxEntries:   1_000_000,
		Concurrency:       8,
		ChunkMaxRetries:   5,
		ChunkRetryBackoff: 500 * time.Millisecond,
	}
}

// Load loads creator configuration from environment variables.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		logger, logErr := zap.NewProduction()
		if logErr == nil {
			logger.Sugar().Errorw("failed to parse creator config", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "failed to parse creator config: %v\n", err)
		}
		os.Exit(1)
	}
	return cfg
}

var (
	ErrInvalidChunkMaxEntries = errors.New("invalid chunk max entries: must be greater than 0")
	ErrInvalidConcurrency     = errors.New("invalid concurrency: must be greater than 0")
)

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.ChunkMaxEntries == 0 {
		return ErrInvalidChunkMaxEntries
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	return nil
}
