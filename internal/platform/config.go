package platform

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration of a client, usually lims.yaml.
// ${VAR} references are expanded from the environment before parsing, so
// secrets need not live in the file.
type Config struct {
	BaseURI      string        `yaml:"base_uri"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Adapter      string        `yaml:"adapter"`
	ReadOnly     bool          `yaml:"read_only"`
	Timeout      time.Duration `yaml:"timeout"`
	Parallelism  int           `yaml:"parallelism"`
	CheckVersion bool          `yaml:"check_version"`

	FS  FSConfig  `yaml:"fs"`
	S3  S3Config  `yaml:"s3"`
	SQL SQLConfig `yaml:"sql"`
}

// FSConfig holds the fs adapter settings.
type FSConfig struct {
	Path       string `yaml:"path"`
	Versioning *bool  `yaml:"versioning"`
	AutoInit   bool   `yaml:"auto_init"`
	SystemDir  string `yaml:"system_dir"`
}

// S3Config holds the s3 adapter settings.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// SQLConfig holds the sql adapter settings.
type SQLConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(raw)
}

// ParseConfig parses YAML configuration data.
func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	switch cfg.Adapter {
	case "", AdapterREST, AdapterFS, AdapterS3, AdapterSQL, AdapterMemory:
	default:
		return nil, fmt.Errorf("parse config: unknown adapter %q", cfg.Adapter)
	}
	return &cfg, nil
}

// Options converts the configuration into functional options. Options
// passed after these override them.
func (c *Config) Options() []Option {
	var opts []Option
	if c.Adapter != "" {
		opts = append(opts, WithAdapter(c.Adapter))
	}
	if c.Username != "" || c.Password != "" {
		opts = append(opts, WithCredentials(c.Username, c.Password))
	}
	if c.ReadOnly {
		opts = append(opts, WithReadOnly(true))
	}
	if c.Timeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: c.Timeout}))
	}
	if c.Parallelism > 0 {
		opts = append(opts, WithParallelism(c.Parallelism))
	}
	if c.CheckVersion {
		opts = append(opts, WithVersionCheck(true))
	}

	if c.FS.Path != "" {
		opts = append(opts, WithFixtureDir(c.FS.Path))
	}
	if c.FS.Versioning != nil {
		opts = append(opts, WithVersioning(*c.FS.Versioning))
	}
	if c.FS.AutoInit {
		opts = append(opts, WithAutoInit(true))
	}
	if c.FS.SystemDir != "" {
		opts = append(opts, WithSystemDir(c.FS.SystemDir))
	}

	if c.S3.Bucket != "" {
		opts = append(opts, WithBucket(c.S3.Bucket, c.S3.Prefix))
	}
	if c.S3.Endpoint != "" || c.S3.Region != "" {
		opts = append(opts, WithS3Endpoint(c.S3.Endpoint, c.S3.Region, c.S3.PathStyle))
	}
	if c.SQL.DSN != "" {
		opts = append(opts, WithDSN(c.SQL.Driver, c.SQL.DSN))
	}
	return opts
}
