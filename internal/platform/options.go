package platform

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/lims/pkg/core"
)

// Adapter names accepted by WithAdapter.
const (
	AdapterREST   = "rest"
	AdapterFS     = "fs"
	AdapterS3     = "s3"
	AdapterSQL    = "sql"
	AdapterMemory = "memory"
)

// options holds the internal configuration of a session.
type options struct {
	facade     core.Facade
	logger     *slog.Logger
	adapter    string
	httpClient *http.Client
	registerer prometheus.Registerer
	config     map[string]interface{}
}

// Option defines a functional option for configuring a session.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		adapter: AdapterREST,
		config:  make(map[string]interface{}),
	}
}

func (o *options) str(key string) string {
	s, _ := o.config[key].(string)
	return s
}

func (o *options) flag(key string) bool {
	b, _ := o.config[key].(bool)
	return b
}

func (o *options) num(key string) int {
	n, _ := o.config[key].(int)
	return n
}

// WithLogger sets the logger for the session and its adapter.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithAdapter selects the document backend by name: "rest" (default), "fs",
// "s3", "sql" or "memory".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithFacade injects a ready-made facade. The adapter setting is ignored.
func WithFacade(f core.Facade) Option {
	return func(o *options) {
		o.facade = f
	}
}

// WithCredentials sets the basic auth credentials of the rest adapter.
func WithCredentials(username, password string) Option {
	return func(o *options) {
		o.config["username"] = username
		o.config["password"] = password
	}
}

// WithHTTPClient sets the HTTP client used by the rest and s3 adapters.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithFixtureDir sets the directory of the fs adapter.
func WithFixtureDir(dir string) Option {
	return func(o *options) {
		o.config["fs_path"] = dir
	}
}

// WithVersioning enables or disables git commits in the fs adapter.
// By default, versioning is enabled for newly created stores.
func WithVersioning(enabled bool) Option {
	return func(o *options) {
		o.config["gitless"] = !enabled
	}
}

// WithAutoInit lets the fs adapter create its directory and git repository.
func WithAutoInit(auto bool) Option {
	return func(o *options) {
		o.config["auto_init"] = auto
	}
}

// WithMustExist requires the fs directory to exist already.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.config["must_exist"] = must
	}
}

// WithSystemDir sets the hidden directory name of the fs adapter.
// Defaults to ".lims".
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.config["system_dir"] = name
	}
}

// WithForceTemp forces the fs adapter into a temporary directory.
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.config["temp_dir"] = force
	}
}

// WithDevSafety controls the sandbox used when running via `go run`.
// By default (true), a writable fs store is redirected to a temporary
// directory in that case. Setting this to false uses the real path.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.config["dev_safety"] = enabled
	}
}

// WithWatcherErrorHandler registers a callback for errors raised inside the
// fs watch loop, which are otherwise only logged.
func WithWatcherErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.config["watcher_error_handler"] = fn
	}
}

// WithBucket selects the bucket and key prefix of the s3 adapter.
func WithBucket(bucket, prefix string) Option {
	return func(o *options) {
		o.config["s3_bucket"] = bucket
		o.config["s3_prefix"] = prefix
	}
}

// WithS3Endpoint points the s3 adapter at a custom endpoint such as MinIO.
func WithS3Endpoint(endpoint, region string, pathStyle bool) Option {
	return func(o *options) {
		o.config["s3_endpoint"] = endpoint
		o.config["s3_region"] = region
		o.config["s3_path_style"] = pathStyle
	}
}

// WithDSN selects the driver ("sqlite" or "pgx") and data source of the
// sql adapter.
func WithDSN(driver, dsn string) Option {
	return func(o *options) {
		o.config["sql_driver"] = driver
		o.config["sql_dsn"] = dsn
	}
}

// WithMetrics instruments the facade and registers its collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithReadOnly rejects every Update with core.ErrReadOnly.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.config["read_only"] = enabled
	}
}

// WithParallelism bounds the concurrent requests of batch fetches.
func WithParallelism(n int) Option {
	return func(o *options) {
		o.config["parallelism"] = n
	}
}

// WithVersionCheck makes New verify that the server speaks the API version
// of the base URI, when the adapter can tell.
func WithVersionCheck(enabled bool) Option {
	return func(o *options) {
		o.config["check_version"] = enabled
	}
}
