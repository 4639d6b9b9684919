package api

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

// Config holds the configuration for the snapshots API server.
type Config struct {
	ListenAddr      string        `env:"API_LISTEN_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"API_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"API_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"API_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Load loads API configuration from environment variables.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		logger, logErr := zap.NewProduction()
		if logErr == nil {
			logger.Sugar().Errorw("failed to parse api config", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "failed to parse api config: %v\n", err)
		}
		os.Exit(1)
	}
	return cfg
}
