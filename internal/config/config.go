// Package config loads the trace server configuration from YAML with
// FIBERTRACE_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/fibertrace/core"
	"github.com/signalsfoundry/fibertrace/internal/logging"
	"github.com/signalsfoundry/fibertrace/internal/observability"
	"github.com/signalsfoundry/fibertrace/internal/store"
)

// ErrInvalidConfig wraps every validation failure reported by Validate.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New()

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig                `yaml:"server"`
	Snapshot SnapshotConfig              `yaml:"snapshot"`
	Store    StoreConfig                 `yaml:"store"`
	Trace    TraceConfig                 `yaml:"trace"`
	Log      logging.Config              `yaml:"log"`
	Tracing  observability.TracingConfig `yaml:"tracing"`
}

type ServerConfig struct {
	GRPCAddr string `yaml:"grpcAddr" validate:"omitempty,hostname_port"`
	HTTPAddr string `yaml:"httpAddr" validate:"omitempty,hostname_port"`

	// RateLimit is the sustained HTTP request rate per second; zero disables
	// limiting.
	RateLimit float64 `yaml:"rateLimit" validate:"gte=0"`
	Burst     int     `yaml:"burst" validate:"gte=0"`
}

type SnapshotConfig struct {
	URL      string        `yaml:"url" validate:"required"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

// StoreConfig enables the version archive. When disabled only the current
// snapshot can be traced.
type StoreConfig struct {
	Enabled      bool `yaml:"enabled"`
	store.Config `yaml:",inline"`
}

type TraceConfig struct {
	// MaxHops overrides the per-trace cable ceiling; zero uses the
	// snapshot's cable count plus one.
	MaxHops   int        `yaml:"maxHops" validate:"gte=0"`
	CacheSize int        `yaml:"cacheSize" validate:"gte=1"`
	Loss      LossConfig `yaml:"loss"`
}

// LossConfig overrides entries of the default loss model. Zero values keep
// the default.
type LossConfig struct {
	PerKmDb               map[string]float64 `yaml:"perKmDb" validate:"dive,gt=0"`
	DefaultPerKmDb        float64            `yaml:"defaultPerKmDb" validate:"gte=0"`
	SpliceLossDb          float64            `yaml:"spliceLossDb" validate:"gte=0"`
	SplitterLossDb        map[string]float64 `yaml:"splitterLossDb" validate:"dive,gt=0"`
	DefaultSplitterLossDb float64            `yaml:"defaultSplitterLossDb" validate:"gte=0"`
}

// Default returns a configuration that serves ./snapshot.json on the default
// ports without an archive.
func Default() Config {
	return Config{
		Server: ServerConfig{
			GRPCAddr:  ":50051",
			HTTPAddr:  ":8080",
			RateLimit: 200,
			Burst:     400,
		},
		Snapshot: SnapshotConfig{
			URL:      "snapshot.json",
			Watch:    true,
			Debounce: 250 * time.Millisecond,
		},
		Store: StoreConfig{
			Config: store.DefaultConfig(),
		},
		Trace: TraceConfig{
			CacheSize: 8,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// Load reads the YAML file at path over Default, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(bytes.NewReader(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Variables
// already set win, and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from FIBERTRACE_* variables, LOG_LEVEL and
// LOG_FORMAT.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"FIBERTRACE_GRPC_ADDR":    &c.Server.GRPCAddr,
		"FIBERTRACE_HTTP_ADDR":    &c.Server.HTTPAddr,
		"FIBERTRACE_SNAPSHOT_URL": &c.Snapshot.URL,
		"FIBERTRACE_STORE_PATH":   &c.Store.Path,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"FIBERTRACE_SNAPSHOT_WATCH":  &c.Snapshot.Watch,
		"FIBERTRACE_STORE_ENABLED":   &c.Store.Enabled,
		"FIBERTRACE_STORE_IN_MEMORY": &c.Store.InMemory,
	}
	for key, dst := range bools {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, key, v)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"FIBERTRACE_MAX_HOPS":   &c.Trace.MaxHops,
		"FIBERTRACE_CACHE_SIZE": &c.Trace.CacheSize,
		"FIBERTRACE_BURST":      &c.Server.Burst,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
			}
			*dst = n
		}
	}

	if v, ok := os.LookupEnv("FIBERTRACE_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: FIBERTRACE_RATE_LIMIT=%q is not a number", ErrInvalidConfig, v)
		}
		c.Server.RateLimit = f
	}

	c.Log = logging.ConfigFromEnv(c.Log)
	c.Tracing = observability.TracingConfigFromEnv(c.Tracing)
	return nil
}

// Validate checks field constraints and cross-field requirements.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Server.GRPCAddr == "" && c.Server.HTTPAddr == "" {
		return fmt.Errorf("%w: at least one of server.grpcAddr and server.httpAddr is required", ErrInvalidConfig)
	}
	if c.Store.Enabled && !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required when the store is enabled", ErrInvalidConfig)
	}
	return nil
}

// LossModel returns the default loss model with the configured overrides.
func (c Config) LossModel() core.LossModel {
	l := c.Trace.Loss
	return core.DefaultLossModel().Merge(core.LossModel{
		PerKmDb:               l.PerKmDb,
		DefaultPerKmDb:        l.DefaultPerKmDb,
		SpliceLossDb:          l.SpliceLossDb,
		SplitterLossDb:        l.SplitterLossDb,
		DefaultSplitterLossDb: l.DefaultSplitterLossDb,
	})
}

// TracerOptions returns the core tracer options this configuration implies.
func (c Config) TracerOptions() []core.Option {
	opts := []core.Option{core.WithLossModel(c.LossModel())}
	if c.Trace.MaxHops > 0 {
		opts = append(opts, core.WithMaxHops(c.Trace.MaxHops))
	}
	return opts
}
