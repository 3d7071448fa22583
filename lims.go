package lims

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/lims/internal/platform"
	"github.com/aretw0/lims/pkg/core"
)

// Version exposes the version of the library.
// See version.go for the implementation using go:embed.

// --- Types ---

// Session owns the identity cache and the facade every entity reads through.
type Session = core.Session

// Entity is a lazily fetched resource.
type Entity = core.Entity

// Kind describes a resource kind and its field bindings.
type Kind = core.Kind

// Facade is the document access port implemented by every adapter.
type Facade = core.Facade

// Value is a typed UDF value.
type Value = core.Value

// UDFDictionary is the editable view over an entity's user-defined fields.
type UDFDictionary = core.UDFDictionary

// Event is a change reported by a watchable facade.
type Event = core.Event

// Config is the YAML configuration of a client.
type Config = platform.Config

// --- Configuration ---

// Option defines a functional option for configuring a session.
type Option = platform.Option

// Adapter names accepted by WithAdapter.
const (
	AdapterREST   = platform.AdapterREST
	AdapterFS     = platform.AdapterFS
	AdapterS3     = platform.AdapterS3
	AdapterSQL    = platform.AdapterSQL
	AdapterMemory = platform.AdapterMemory
)

// WithLogger sets the logger for the session and its adapter.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithAdapter selects the document backend by name.
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithFacade allows injecting a custom document backend.
func WithFacade(f Facade) Option {
	return platform.WithFacade(f)
}

// WithCredentials sets the basic auth credentials of the rest adapter.
func WithCredentials(username, password string) Option {
	return platform.WithCredentials(username, password)
}

// WithHTTPClient sets the HTTP client used by network adapters.
func WithHTTPClient(c *http.Client) Option {
	return platform.WithHTTPClient(c)
}

// WithFixtureDir sets the directory of the fs adapter.
func WithFixtureDir(dir string) Option {
	return platform.WithFixtureDir(dir)
}

// WithVersioning enables or disables git commits in the fs adapter.
func WithVersioning(enabled bool) Option {
	return platform.WithVersioning(enabled)
}

// WithAutoInit lets the fs adapter create its directory (and git repository).
func WithAutoInit(auto bool) Option {
	return platform.WithAutoInit(auto)
}

// WithMustExist ensures the fs directory must already exist.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithSystemDir allows specifying the hidden directory name (e.g. ".lims").
func WithSystemDir(name string) Option {
	return platform.WithSystemDir(name)
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithDevSafety controls the fs sandbox used under `go run`.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithBucket selects the bucket and key prefix of the s3 adapter.
func WithBucket(bucket, prefix string) Option {
	return platform.WithBucket(bucket, prefix)
}

// WithS3Endpoint points the s3 adapter at a custom endpoint.
func WithS3Endpoint(endpoint, region string, pathStyle bool) Option {
	return platform.WithS3Endpoint(endpoint, region, pathStyle)
}

// WithDSN selects the driver and data source of the sql adapter.
func WithDSN(driver, dsn string) Option {
	return platform.WithDSN(driver, dsn)
}

// WithMetrics instruments the facade with prometheus collectors.
func WithMetrics(reg prometheus.Registerer) Option {
	return platform.WithMetrics(reg)
}

// WithReadOnly rejects every write.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithParallelism bounds the concurrent requests of batch fetches.
func WithParallelism(n int) Option {
	return platform.WithParallelism(n)
}

// WithVersionCheck verifies the server API version when the session opens.
func WithVersionCheck(enabled bool) Option {
	return platform.WithVersionCheck(enabled)
}

// --- Factory ---

// New opens the configured backend and returns a session over it.
func New(ctx context.Context, baseURI string, opts ...Option) (*Session, error) {
	return platform.New(ctx, baseURI, opts...)
}

// OpenFacade builds the configured backend without a session.
func OpenFacade(ctx context.Context, baseURI string, opts ...Option) (Facade, error) {
	return platform.OpenFacade(ctx, baseURI, opts...)
}

// NewSession creates a session over an existing facade.
func NewSession(f Facade, baseURI string) *Session {
	return core.NewSession(f, baseURI)
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	return platform.LoadConfig(path)
}

// --- Safety & Utils ---

// FindConfig looks upwards from startDir for a lims.yaml file.
func FindConfig(startDir string) (string, error) {
	return platform.FindConfig(startDir)
}

// ResolveStorePath determines the actual fs store path based on safety rules.
func ResolveStorePath(userPath string, forceTemp bool) string {
	return platform.ResolveStorePath(userPath, forceTemp)
}

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}
