// Package config provides configuration loading for ottcluster.
package config

import (
	"fmt"
	"time"

	"github.com/snufilmfest/ottcluster/internal/logging"
)

// Config holds all configuration for ottcluster.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Clustering ClusteringConfig `koanf:"clustering"`
	Encoding   EncodingConfig   `koanf:"encoding"`
	Projection ProjectionConfig `koanf:"projection"`
	Logging    logging.Config   `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	MaxUploadMB     int      `koanf:"max_upload_mb"`
}

// StorageConfig locates run output files.
type StorageConfig struct {
	OutputDir string `koanf:"output_dir"`
}

// ClusteringConfig holds k-means and sampling settings.
type ClusteringConfig struct {
	DefaultK    int   `koanf:"default_k"`
	MaxIter     int   `koanf:"max_iter"`
	NInit       int   `koanf:"n_init"`
	Seed        int64 `koanf:"seed"`
	SampleLimit int   `koanf:"sample_limit"` // 0 = use every row
}

// EncodingConfig selects the categorical encoder.
type EncodingConfig struct {
	Method  string `koanf:"method"`  // onehot | ordinal
	Scaling string `koanf:"scaling"` // none | standard | minmax
}

// ProjectionConfig selects the 2-D projection used for the plot.
type ProjectionConfig struct {
	Method     string  `koanf:"method"` // tsne | pca | none
	Perplexity float64 `koanf:"perplexity"`
	MaxIter    int     `koanf:"max_iter"`
	MaxRows    int     `koanf:"max_rows"` // larger surveys are plotted from a sample
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MaxUploadBytes returns the upload cap in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}

// Default returns a config populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for fields left at their zero value.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 150
	}

	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = "uploads"
	}

	if cfg.Clustering.DefaultK == 0 {
		cfg.Clustering.DefaultK = 4
	}
	if cfg.Clustering.MaxIter == 0 {
		cfg.Clustering.MaxIter = 300
	}
	if cfg.Clustering.NInit == 0 {
		cfg.Clustering.NInit = 10
	}
	if cfg.Clustering.Seed == 0 {
		cfg.Clustering.Seed = 42
	}

	if cfg.Encoding.Method == "" {
		cfg.Encoding.Method = "onehot"
	}
	if cfg.Encoding.Scaling == "" {
		cfg.Encoding.Scaling = "none"
	}

	if cfg.Projection.Method == "" {
		cfg.Projection.Method = "tsne"
	}
	if cfg.Projection.Perplexity == 0 {
		cfg.Projection.Perplexity = 30
	}
	if cfg.Projection.MaxIter == 0 {
		cfg.Projection.MaxIter = 1000
	}
	if cfg.Projection.MaxRows == 0 {
		cfg.Projection.MaxRows = 5000
	}

	defaults := logging.NewDefaultConfig()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Format
	}
	if cfg.Logging.Fields == nil {
		cfg.Logging.Fields = defaults.Fields
	}
	if cfg.Logging.Output == nil {
		cfg.Logging.Output = defaults.Output
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Storage.OutputDir == "" {
		return fmt.Errorf("storage.output_dir is required")
	}

	if c.Clustering.DefaultK < 2 {
		return fmt.Errorf("clustering.default_k must be at least 2, got %d", c.Clustering.DefaultK)
	}
	if c.Clustering.MaxIter < 1 || c.Clustering.NInit < 1 {
		return fmt.Errorf("clustering.max_iter and clustering.n_init must be positive")
	}
	if c.Clustering.SampleLimit < 0 {
		return fmt.Errorf("clustering.sample_limit cannot be negative, got %d", c.Clustering.SampleLimit)
	}

	switch c.Encoding.Method {
	case "onehot", "ordinal":
	default:
		return fmt.Errorf("encoding.method must be 'onehot' or 'ordinal', got %q", c.Encoding.Method)
	}
	switch c.Encoding.Scaling {
	case "none", "standard", "minmax":
	default:
		return fmt.Errorf("encoding.scaling must be 'none', 'standard' or 'minmax', got %q", c.Encoding.Scaling)
	}

	switch c.Projection.Method {
	case "tsne", "pca", "none":
	default:
		return fmt.Errorf("projection.method must be 'tsne', 'pca' or 'none', got %q", c.Projection.Method)
	}
	if c.Projection.Perplexity <= 0 {
		return fmt.Errorf("projection.perplexity must be positive, got %v", c.Projection.Perplexity)
	}
	if c.Projection.MaxIter < 1 {
		return fmt.Errorf("projection.max_iter must be positive, got %d", c.Projection.MaxIter)
	}
	if c.Projection.MaxRows < 3 {
		return fmt.Errorf("projection.max_rows must be at least 3, got %d", c.Projection.MaxRows)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
