package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/ajitpratap0/flightprep/pkg/compression"
	"github.com/ajitpratap0/flightprep/pkg/errors"
	"github.com/ajitpratap0/flightprep/pkg/logger"
	"github.com/ajitpratap0/flightprep/pkg/optimize"
)

// DefaultAirportDetailsURL is the OpenFlights airport database
const DefaultAirportDetailsURL = "https://raw.githubusercontent.com/jpatokal/openflights/master/data/airports.dat"

// Config is the complete flightprep configuration
type Config struct {
	// DatasetsDir holds the raw partition files
	DatasetsDir string `yaml:"datasets_dir" mapstructure:"datasets_dir"`
	// ArtifactDir holds optimized artifacts; empty means DatasetsDir
	ArtifactDir string `yaml:"artifact_dir" mapstructure:"artifact_dir"`
	// Threshold is the categorical cutoff in percent of distinct values
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
	// Workers sizes the conversion pool; 0 means one per logical CPU
	Workers int `yaml:"workers" mapstructure:"workers"`
	// DatetimeFeatures are text columns parsed as timestamps
	DatetimeFeatures []string `yaml:"datetime_features" mapstructure:"datetime_features"`
	// DatasetURL is a direct link to the dataset archive; empty disables downloads
	DatasetURL string `yaml:"dataset_url" mapstructure:"dataset_url"`
	// AirportDetailsURL is fetched when the airport details artifact is missing
	AirportDetailsURL string `yaml:"airport_details_url" mapstructure:"airport_details_url"`

	Artifact ArtifactConfig `yaml:"artifact" mapstructure:"artifact"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// ArtifactConfig selects the block codec
type ArtifactConfig struct {
	Codec string `yaml:"codec" mapstructure:"codec"`
	Level string `yaml:"level" mapstructure:"level"`
}

// LogConfig mirrors logger.Config
type LogConfig struct {
	Level       string `yaml:"level" mapstructure:"level"`
	Encoding    string `yaml:"encoding" mapstructure:"encoding"`
	Development bool   `yaml:"development" mapstructure:"development"`
}

// MetricsConfig controls metric export
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr"`
	// Textfile, when set, receives a metrics dump at the end of each command
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		DatasetsDir:       "datasets",
		Threshold:         float64(optimize.DefaultThreshold),
		AirportDetailsURL: DefaultAirportDetailsURL,
		Artifact: ArtifactConfig{
			Codec: string(compression.Zstd),
			Level: compression.Default.String(),
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatasetsDir) == "" {
		return errors.New(errors.ErrorTypeConfig, "datasets_dir is required")
	}
	if err := optimize.Threshold(c.Threshold).Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid threshold")
	}
	if c.Workers < 0 {
		return errors.Newf(errors.ErrorTypeConfig, "workers must be >= 0, got %d", c.Workers)
	}
	if _, err := compression.ParseAlgorithm(c.Artifact.Codec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid artifact codec")
	}
	if _, err := compression.ParseLevel(c.Artifact.Level); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid artifact level")
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return errors.New(errors.ErrorTypeConfig, "metrics.listen_addr is required when metrics are enabled")
	}
	return nil
}

// ResolvedArtifactDir returns where artifacts live
func (c *Config) ResolvedArtifactDir() string {
	if c.ArtifactDir == "" {
		return c.DatasetsDir
	}
	return c.ArtifactDir
}

// ResolvedWorkers returns the pool size to use
func (c *Config) ResolvedWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return DefaultWorkers()
}

// DefaultWorkers returns the number of logical CPUs
func DefaultWorkers() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Compression returns the artifact compressor configuration
func (c *Config) Compression() (*compression.Config, error) {
	algo, err := compression.ParseAlgorithm(c.Artifact.Codec)
	if err != nil {
		return nil, err
	}
	level, err := compression.ParseLevel(c.Artifact.Level)
	if err != nil {
		return nil, err
	}
	return &compression.Config{Algorithm: algo, Level: level}, nil
}

// Optimizer returns the column optimizer configuration
func (c *Config) Optimizer() optimize.Config {
	return optimize.Config{
		Threshold:        optimize.Threshold(c.Threshold),
		DatetimeFeatures: c.DatetimeFeatures,
	}
}

// Logger returns the logger configuration
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:       c.Log.Level,
		Development: c.Log.Development,
		Encoding:    c.Log.Encoding,
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("datasets=%s artifacts=%s threshold=%g workers=%d codec=%s",
		filepath.Clean(c.DatasetsDir), filepath.Clean(c.ResolvedArtifactDir()),
		c.Threshold, c.Workers, c.Artifact.Codec)
}
