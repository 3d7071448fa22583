package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/lifecycle"
	"github.com/spf13/cobra"

	"github.com/aretw0/lims"
	"github.com/aretw0/lims/pkg/core"
	"github.com/aretw0/lims/pkg/entities"
)

var (
	verbose     bool
	configPath  string
	adapterName string
	baseURI     string
	storeDir    string
	reason      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lims",
	Short: "Read and edit LIMS entities from the command line",
	Long: `lims binds the XML resources of a LIMS REST API to typed entities.
The same commands work against the live API, a directory mirror, an S3
bucket or a SQL table, as selected by lims.yaml or --adapter.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if code := execute(context.Background()); code != 0 {
		os.Exit(code)
	}
}

// execute runs the command tree under a context cancelled by the first
// interrupt or SIGTERM, and returns the process exit code.
func execute(parent context.Context) int {
	ctx := lifecycle.NewSignalContext(parent)
	defer ctx.Stop()
	defer ctx.Cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $LIMS_CONFIG or the nearest lims.yaml)")
	rootCmd.PersistentFlags().StringVar(&adapterName, "adapter", "", "Backend: rest, fs, s3, sql or memory")
	rootCmd.PersistentFlags().StringVar(&baseURI, "base-uri", "", "Versioned API root, e.g. https://lims.example.org/api/v2")
	rootCmd.PersistentFlags().StringVar(&storeDir, "dir", "", "Directory of the fs adapter")
	rootCmd.PersistentFlags().StringVarP(&reason, "reason", "m", "", "Change reason recorded by versioned stores")
}

// loadConfig resolves the configuration file. A missing file is only an
// error when it was named explicitly.
func loadConfig() (*lims.Config, string, error) {
	path := configPath
	explicit := path != ""
	if !explicit {
		path = os.Getenv("LIMS_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		found, err := lims.FindConfig(".")
		if err != nil {
			return &lims.Config{}, "", nil
		}
		path = found
	}
	cfg, err := lims.LoadConfig(path)
	if err != nil {
		return nil, "", err
	}
	slog.Debug("loaded config", "path", path)
	return cfg, filepath.Dir(path), nil
}

func openSession(ctx context.Context) (*core.Session, error) {
	cfg, dir, err := loadConfig()
	if err != nil {
		return nil, err
	}
	base := cfg.BaseURI
	if baseURI != "" {
		base = baseURI
	}
	if base == "" {
		return nil, errors.New("no base uri: set base_uri in lims.yaml or pass --base-uri")
	}
	// Relative store paths are relative to the config file.
	if cfg.FS.Path != "" && !filepath.IsAbs(cfg.FS.Path) && dir != "" {
		cfg.FS.Path = filepath.Join(dir, cfg.FS.Path)
	}

	opts := append(cfg.Options(), lims.WithLogger(slog.Default()))
	if adapterName != "" {
		opts = append(opts, lims.WithAdapter(adapterName))
	}
	if storeDir != "" {
		opts = append(opts, lims.WithFixtureDir(storeDir))
	}
	return lims.New(ctx, base, opts...)
}

// withReason attaches the --reason flag for stores that record history.
func withReason(ctx context.Context) context.Context {
	if reason == "" {
		return ctx
	}
	return context.WithValue(ctx, core.ChangeReasonKey, reason)
}

func resolveKind(name string) (*core.Kind, error) {
	k, ok := entities.KindByName(name)
	if !ok {
		names := make([]string, 0, len(entities.Kinds()))
		for _, k := range entities.Kinds() {
			names = append(names, k.Collection)
		}
		return nil, fmt.Errorf("unknown kind %q (one of %s)", name, strings.Join(names, ", "))
	}
	return k, nil
}

// formatValue renders a field value on one line.
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case []string:
		return strings.Join(v, ", ")
	case map[string]string:
		return joinSorted(v, func(s string) string { return s })
	case *core.Entity:
		return v.ID()
	case []*core.Entity:
		ids := make([]string, 0, len(v))
		for _, e := range v {
			ids = append(ids, e.ID())
		}
		return strings.Join(ids, ", ")
	case core.Dimension:
		return fmt.Sprintf("size=%d offset=%d alpha=%t", v.Size, v.Offset, v.IsAlpha)
	case core.Location:
		if v.Container == nil {
			return v.Position
		}
		return v.Container.ID() + " " + v.Position
	case map[string]*core.Entity:
		return joinSorted(v, func(e *core.Entity) string { return e.ID() })
	case []core.ExternalID:
		parts := make([]string, 0, len(v))
		for _, x := range v {
			parts = append(parts, x.ID+" <"+x.URI+">")
		}
		return strings.Join(parts, ", ")
	case *core.UDFDictionary:
		return joinSorted(v.Items(), core.Value.String)
	}
	return fmt.Sprint(v)
}

func joinSorted[V any](m map[string]V, str func(V) string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+str(m[k]))
	}
	return strings.Join(parts, ", ")
}
