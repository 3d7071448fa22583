package platform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/lims/pkg/adapters/fs"
	"github.com/aretw0/lims/pkg/adapters/metrics"
	"github.com/aretw0/lims/pkg/adapters/rest"
	"github.com/aretw0/lims/pkg/adapters/s3"
	"github.com/aretw0/lims/pkg/adapters/sqlstore"
	"github.com/aretw0/lims/pkg/core"
)

// OpenFacade builds the document backend selected by opts. baseURI is the
// versioned API root; stores other than rest use it to name their documents.
func OpenFacade(ctx context.Context, baseURI string, opts ...Option) (core.Facade, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return open(ctx, baseURI, o)
}

func open(ctx context.Context, baseURI string, o *options) (core.Facade, error) {
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	f := o.facade
	if f == nil {
		var err error
		switch o.adapter {
		case AdapterREST:
			f, err = initREST(baseURI, o)
		case AdapterFS:
			f, err = initFS(ctx, baseURI, o)
		case AdapterS3:
			f, err = initS3(ctx, baseURI, o)
		case AdapterSQL:
			f, err = initSQL(ctx, baseURI, o)
		case AdapterMemory:
			f = core.NewMemoryFacade()
		default:
			return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
		}
		if err != nil {
			return nil, err
		}
	}

	if o.registerer != nil {
		m, err := metrics.Wrap(f, o.registerer)
		if err != nil {
			return nil, err
		}
		f = m
	}
	if o.flag("read_only") {
		f = ReadOnly(f)
	}
	return f, nil
}

func initREST(baseURI string, o *options) (core.Facade, error) {
	return rest.New(rest.Config{
		BaseURI:     baseURI,
		Username:    o.str("username"),
		Password:    o.str("password"),
		HTTPClient:  o.httpClient,
		Logger:      o.logger,
		Parallelism: o.num("parallelism"),
	})
}

// initFS handles the initialization logic for the filesystem adapter.
func initFS(ctx context.Context, baseURI string, o *options) (core.Facade, error) {
	path := o.str("fs_path")
	autoInit := o.flag("auto_init")
	readOnly := o.flag("read_only")
	systemDir := o.str("system_dir")
	if systemDir == "" {
		systemDir = ".lims"
	}
	errorHandler, _ := o.config["watcher_error_handler"].(func(error))

	devSafety := true
	if val, ok := o.config["dev_safety"].(bool); ok {
		devSafety = val
	}
	bypassSafety := readOnly || !devSafety
	useTemp := o.flag("temp_dir") || (IsDevRun() && !bypassSafety)
	resolved := ResolveStorePath(path, useTemp)
	if useTemp && resolved != filepath.Clean(path) {
		o.logger.Warn("running in SAFE MODE (dev sandbox)", "original_path", path, "resolved_path", resolved)
	}

	// Without an explicit setting, an existing .git decides; new stores
	// created by AutoInit are versioned unless the system dir shows an
	// existing gitless store.
	gitless, explicit := o.config["gitless"].(bool)
	if !explicit {
		if _, err := os.Stat(filepath.Join(resolved, ".git")); err == nil {
			gitless = false
		} else if autoInit {
			_, err := os.Stat(filepath.Join(resolved, systemDir))
			gitless = err == nil
		} else {
			gitless = true
		}
		if gitless {
			o.logger.Debug("auto-detected gitless mode", "reason", ".git missing")
		}
	}

	repo := fs.NewRepository(fs.Config{
		Path:         resolved,
		BaseURI:      baseURI,
		AutoInit:     autoInit && !readOnly,
		Gitless:      gitless,
		MustExist:    o.flag("must_exist") || readOnly || (!autoInit && !useTemp),
		ReadOnly:     readOnly,
		SystemDir:    systemDir,
		Parallelism:  o.num("parallelism"),
		Logger:       o.logger,
		ErrorHandler: errorHandler,
	})
	if readOnly {
		return repo, nil
	}
	if err := repo.Initialize(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func initS3(ctx context.Context, baseURI string, o *options) (core.Facade, error) {
	return s3.New(ctx, s3.Config{
		Bucket:      o.str("s3_bucket"),
		Prefix:      o.str("s3_prefix"),
		Region:      o.str("s3_region"),
		Endpoint:    o.str("s3_endpoint"),
		PathStyle:   o.flag("s3_path_style"),
		BaseURI:     baseURI,
		ReadOnly:    o.flag("read_only"),
		Parallelism: o.num("parallelism"),
		HTTPClient:  o.httpClient,
		Logger:      o.logger,
	})
}

func initSQL(ctx context.Context, baseURI string, o *options) (core.Facade, error) {
	return sqlstore.Open(ctx, sqlstore.Config{
		Driver:      o.str("sql_driver"),
		DSN:         o.str("sql_dsn"),
		BaseURI:     baseURI,
		ReadOnly:    o.flag("read_only"),
		Parallelism: o.num("parallelism"),
		Logger:      o.logger,
	})
}
