package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/vango-dev/slicestore/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "slicestore.json"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SLICESTORE_"

	// DefaultPort is the default devtools server port.
	DefaultPort = 4100

	// DefaultHost is the default devtools server host.
	DefaultHost = "localhost"

	// DefaultDriver is the default storage driver.
	DefaultDriver = "memory"

	// DefaultDebounce is the default delay between a change and its save.
	DefaultDebounce = 500 * time.Millisecond
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverS3       = "s3"
)

// Config represents the complete slicestore.json configuration.
type Config struct {
	// Name is the project name. It is the default snapshot name.
	Name string `json:"name,omitempty"`

	// Devtools contains devtools server configuration.
	Devtools DevtoolsConfig `json:"devtools,omitempty"`

	// Storage selects where snapshots are kept.
	Storage StorageConfig `json:"storage,omitempty"`

	// Persist contains snapshot settings.
	Persist PersistConfig `json:"persist,omitempty"`

	// Middleware toggles dispatch middleware.
	Middleware MiddlewareConfig `json:"middleware,omitempty"`

	// Log configures the process logger.
	Log LogConfig `json:"log,omitempty"`

	// Slices are registered when the server starts.
	Slices []SliceConfig `json:"slices,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// DevtoolsConfig contains devtools server settings.
type DevtoolsConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty" env:"HOST"`

	// Port is the port to serve on.
	Port int `json:"port,omitempty" env:"PORT"`

	// ReadOnly rejects mutating requests.
	ReadOnly bool `json:"readOnly,omitempty" env:"READ_ONLY"`

	// Metrics exposes /metrics.
	Metrics bool `json:"metrics,omitempty" env:"METRICS"`

	// AllowedOrigins lists origins allowed to open the action stream.
	// Empty allows same-origin requests only.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// StorageConfig selects and configures the snapshot backend.
type StorageConfig struct {
	// Driver is one of memory, sqlite, postgres, mysql or s3.
	Driver string `json:"driver,omitempty" env:"DRIVER"`

	// DSN is the database connection string for SQL drivers. Relative
	// SQLite paths resolve against the config directory.
	DSN string `json:"dsn,omitempty" env:"DSN"`

	// Table is the snapshot table for SQL drivers.
	Table string `json:"table,omitempty" env:"TABLE"`

	// Bucket is the S3 bucket.
	Bucket string `json:"bucket,omitempty" env:"BUCKET"`

	// Prefix is prepended to S3 object keys.
	Prefix string `json:"prefix,omitempty" env:"PREFIX"`

	// Region is the S3 region.
	Region string `json:"region,omitempty" env:"REGION"`

	// Endpoint overrides the S3 endpoint, for S3-compatible stores.
	Endpoint string `json:"endpoint,omitempty" env:"ENDPOINT"`

	// AccessKeyID and SecretAccessKey are static S3 credentials. They are
	// never written back by Save.
	AccessKeyID     string `json:"-" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `json:"-" env:"SECRET_ACCESS_KEY"`
}

// PersistConfig contains snapshot settings.
type PersistConfig struct {
	// Disabled turns persistence off.
	Disabled bool `json:"disabled,omitempty" env:"DISABLED"`

	// Name is the snapshot name. Default: the project name.
	Name string `json:"name,omitempty"`

	// Version is the snapshot schema version.
	Version int `json:"version,omitempty" env:"VERSION"`

	// Debounce is the delay between a change and its save.
	Debounce Duration `json:"debounce,omitempty" env:"DEBOUNCE"`

	// Keys limits persistence to these keys.
	Keys []string `json:"keys,omitempty" env:"KEYS" envSeparator:","`

	// Exclude skips these keys.
	Exclude []string `json:"exclude,omitempty" env:"EXCLUDE" envSeparator:","`
}

// MiddlewareConfig toggles dispatch middleware.
type MiddlewareConfig struct {
	// Strict rejects non-serializable values instead of warning.
	Strict bool `json:"strict,omitempty" env:"STRICT"`

	// LogActions logs every dispatched action.
	LogActions bool `json:"logActions,omitempty" env:"LOG_ACTIONS"`

	// Tracing records an OpenTelemetry span per dispatch.
	Tracing bool `json:"tracing,omitempty" env:"TRACING"`

	// TracingEndpoint is the OTLP/HTTP collector URL. Empty keeps spans in
	// the process-global provider.
	TracingEndpoint string `json:"tracingEndpoint,omitempty" env:"TRACING_ENDPOINT"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" env:"LEVEL"`

	// Format is text or json.
	Format string `json:"format,omitempty" env:"FORMAT"`
}

// SliceConfig declares a slice registered at startup.
type SliceConfig struct {
	Key     string          `json:"key"`
	Initial json.RawMessage `json:"initial,omitempty"`
}

// Duration is a time.Duration written as a string ("250ms") in JSON and
// in the environment.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Devtools: DevtoolsConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Storage: StorageConfig{
			Driver: DefaultDriver,
		},
		Persist: PersistConfig{
			Version:  1,
			Debounce: Duration(DefaultDebounce),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for slicestore.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path and applies
// environment overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E101").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path)).
				WithSuggestion("Pass --config or create " + ConfigFileName)
		}
		return nil, errors.New("E100").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E100").
			WithDetail("Failed to parse " + ConfigFileName + ": " + err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON")
	}
	cfg.configPath = path

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadOrDefault loads path when given, otherwise slicestore.json from the
// project root above the working directory, otherwise defaults with
// environment overrides.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}

	wd, err := os.Getwd()
	if err == nil {
		if root, err := FindProjectRoot(wd); err == nil {
			return Load(root)
		}
	}

	cfg := New()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// ApplyEnv overrides fields from SLICESTORE_* environment variables.
// Unset variables leave the current values alone.
func (c *Config) ApplyEnv() error {
	if name, ok := os.LookupEnv(EnvPrefix + "NAME"); ok {
		c.Name = name
	}

	sections := []struct {
		prefix string
		target any
	}{
		{"DEVTOOLS_", &c.Devtools},
		{"STORAGE_", &c.Storage},
		{"PERSIST_", &c.Persist},
		{"MIDDLEWARE_", &c.Middleware},
		{"LOG_", &c.Log},
	}
	for _, s := range sections {
		if err := env.ParseWithOptions(s.target, env.Options{Prefix: EnvPrefix + s.prefix}); err != nil {
			return errors.New("E102").Wrap(err)
		}
	}
	return nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E100").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E100").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Devtools.Host == "" {
		c.Devtools.Host = DefaultHost
	}
	if c.Devtools.Port == 0 {
		c.Devtools.Port = DefaultPort
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultDriver
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Persist.Version == 0 {
		c.Persist.Version = 1
	}
	if c.Persist.Debounce == 0 {
		c.Persist.Debounce = Duration(DefaultDebounce)
	}
	if c.Persist.Name == "" {
		c.Persist.Name = c.Name
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Devtools.Port < 0 || c.Devtools.Port > 65535 {
		return errors.New("E103").
			WithDetail("devtools.port is " + strconv.Itoa(c.Devtools.Port))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres, DriverMySQL:
		if c.Storage.DSN == "" {
			return errors.New("E105").
				WithDetail("storage.dsn is required for the " + c.Storage.Driver + " driver").
				WithSuggestion("Set storage.dsn or SLICESTORE_STORAGE_DSN")
		}
	case DriverS3:
		if c.Storage.Bucket == "" {
			return errors.New("E105").
				WithDetail("storage.bucket is required for the s3 driver").
				WithSuggestion("Set storage.bucket or SLICESTORE_STORAGE_BUCKET")
		}
		if (c.Storage.AccessKeyID == "") != (c.Storage.SecretAccessKey == "") {
			return errors.New("E105").
				WithDetail("S3 access key id and secret must be set together")
		}
	default:
		return errors.New("E104").
			WithDetail("storage.driver is " + strconv.Quote(c.Storage.Driver))
	}

	if c.Persist.Debounce < 0 {
		return errors.New("E107").
			WithDetail("persist.debounce must not be negative")
	}

	if _, ok := parseLevel(c.Log.Level); !ok {
		return errors.New("E106").WithDetail("log.level is " + strconv.Quote(c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("E106").WithDetail("log.format is " + strconv.Quote(c.Log.Format))
	}

	seen := make(map[string]bool, len(c.Slices))
	for i, s := range c.Slices {
		if s.Key == "" {
			return errors.New("E108").WithDetail("slices[" + strconv.Itoa(i) + "] has no key")
		}
		if seen[s.Key] {
			return errors.New("E108").WithDetail("slice " + strconv.Quote(s.Key) + " is declared twice")
		}
		seen[s.Key] = true
		if len(s.Initial) > 0 && !json.Valid(s.Initial) {
			return errors.New("E108").WithDetail("slice " + strconv.Quote(s.Key) + " has an invalid initial value")
		}
	}
	return nil
}

// LogLevel returns the configured slog level, or Info when unset.
func (c *Config) LogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// DevtoolsAddress returns the address string for the devtools server.
func (c *Config) DevtoolsAddress() string {
	return c.Devtools.Host + ":" + strconv.Itoa(c.Devtools.Port)
}

// DevtoolsURL returns the full URL for the devtools server.
func (c *Config) DevtoolsURL() string {
	return "http://" + c.DevtoolsAddress()
}

// SnapshotName returns the snapshot name, falling back to "slicestore".
func (c *Config) SnapshotName() string {
	if c.Persist.Name != "" {
		return c.Persist.Name
	}
	if c.Name != "" {
		return c.Name
	}
	return "slicestore"
}

// StorageDSN returns the DSN, resolving relative SQLite paths against the
// config directory.
func (c *Config) StorageDSN() string {
	dsn := c.Storage.DSN
	if c.Storage.Driver != DriverSQLite || dsn == "" || dsn == ":memory:" ||
		strings.HasPrefix(dsn, "file:") || filepath.IsAbs(dsn) || c.Dir() == "" {
		return dsn
	}
	return filepath.Join(c.Dir(), dsn)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing slicestore.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E101").
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}
