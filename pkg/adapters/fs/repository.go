// Package fs stores LIMS documents as XML files, one per resource, under
// root/<collection>/<id>.xml. It serves as an offline mirror of the server
// and as a fixture store for tests. Writes are atomic and, unless the
// repository is gitless, committed to git.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/lims/pkg/core"
	"github.com/aretw0/lims/pkg/git"
)

const docExt = ".xml"

var indent = func() *etree.IndentSettings {
	s := etree.NewIndentSettings()
	s.Spaces = 2
	s.PreserveLeafWhitespace = true
	return s
}()

// Repository implements core.Facade over a directory tree.
type Repository struct {
	Path   string
	git    *git.Client
	cache  *cache
	config Config

	mu            sync.RWMutex
	watcherActive bool
	lastEvent     *time.Time
}

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path string
	// BaseURI prefixes the URIs reported by List and Watch. Fetch and
	// Update accept any URI ending in <collection>/<id>.
	BaseURI     string
	AutoInit    bool
	Gitless     bool
	MustExist   bool
	ReadOnly    bool
	SystemDir   string // holds the writer lock, e.g. ".lims"
	Parallelism int    // concurrent reads in BatchFetch; zero means 8
	AuthorName  string
	AuthorEmail string
	Logger      *slog.Logger
	// ErrorHandler receives errors raised inside the watch loop.
	ErrorHandler func(error)
}

var (
	_ core.Facade    = (*Repository)(nil)
	_ core.Lister    = (*Repository)(nil)
	_ core.Watchable = (*Repository)(nil)
)

// NewRepository creates a new filesystem-backed repository.
func NewRepository(config Config) *Repository {
	if config.SystemDir == "" {
		config.SystemDir = ".lims"
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 8
	}
	config.BaseURI = strings.TrimRight(config.BaseURI, "/")
	g := git.NewClient(config.Path, filepath.Join(config.SystemDir, "git.lock"), config.Logger)
	g.AuthorName, g.AuthorEmail = config.AuthorName, config.AuthorEmail
	return &Repository{
		Path:   config.Path,
		git:    g,
		config: config,
		cache:  newCache(),
	}
}

// Initialize prepares the directory and, unless gitless, the git repository.
func (r *Repository) Initialize(ctx context.Context) error {
	if r.config.MustExist {
		info, err := os.Stat(r.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("store path does not exist: %s", r.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", r.Path)
		}
	} else if err := os.MkdirAll(r.Path, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(r.Path, r.config.SystemDir), 0o755); err != nil {
		return fmt.Errorf("failed to create system directory: %w", err)
	}

	if r.config.Gitless {
		return nil
	}
	if !git.IsInstalled() {
		return fmt.Errorf("git is not installed")
	}
	if !r.git.IsRepo(ctx) {
		if !r.config.AutoInit {
			return fmt.Errorf("path is not a git repository: %s", r.Path)
		}
		if err := r.git.Init(ctx); err != nil {
			return fmt.Errorf("failed to git init: %w", err)
		}
	}
	if _, err := r.ensureIgnore(); err != nil {
		return fmt.Errorf("failed to ensure .gitignore: %w", err)
	}
	return nil
}

// ensureIgnore keeps the system directory out of version control.
func (r *Repository) ensureIgnore() (bool, error) {
	ignorePath := filepath.Join(r.Path, ".gitignore")
	entry := r.config.SystemDir + "/"

	content, err := os.ReadFile(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}
	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) == entry {
			return false, nil
		}
	}

	f, err := os.OpenFile(ignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, err
	}
	defer f.Close()
	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return false, err
		}
	}
	if _, err := f.WriteString(entry + "\n"); err != nil {
		return false, err
	}
	return true, nil
}

// relPath maps a resource URI onto <collection>/<id>.xml.
func relPath(uri string) (string, error) {
	coll, id := core.CollectionOf(uri)
	if coll == "" || id == "" || id == "." || id == ".." || coll == ".." ||
		strings.ContainsAny(id, `\`) || strings.ContainsAny(coll, `\`) {
		return "", fmt.Errorf("%w: cannot map %q to a file", core.ErrNotFound, uri)
	}
	return coll + "/" + id + docExt, nil
}

// uriOf is the inverse of relPath.
func (r *Repository) uriOf(rel string) string {
	return r.config.BaseURI + "/" + strings.TrimSuffix(filepath.ToSlash(rel), docExt)
}

// Fetch reads and parses the document of uri.
func (r *Repository) Fetch(ctx context.Context, uri string) (*etree.Document, error) {
	rel, err := relPath(uri)
	if err != nil {
		return nil, err
	}
	return r.read(rel)
}

func (r *Repository) read(rel string) (*etree.Document, error) {
	full := filepath.Join(r.Path, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		r.cache.Delete(rel)
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, rel)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	if doc, ok := r.cache.Get(rel, info.ModTime(), info.Size()); ok {
		return doc, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(full); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrMalformedResponse, rel, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: %s has no root element", core.ErrMalformedResponse, rel)
	}
	r.cache.Set(rel, doc, info.ModTime(), info.Size())
	return doc, nil
}

// Update writes doc to the file of uri, creating it if needed, and commits
// the change unless the repository is gitless. The commit message is taken
// from core.ChangeReasonKey in ctx when present.
func (r *Repository) Update(ctx context.Context, uri string, doc *etree.Document) error {
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	rel, err := relPath(uri)
	if err != nil {
		return err
	}
	full := filepath.Join(r.Path, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	out := doc.Copy()
	out.IndentWithSettings(indent)
	if err := writeFileAtomic(full, 0o644, func(w io.Writer) error {
		_, err := out.WriteTo(w)
		return err
	}); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	r.cache.Delete(rel)
	r.config.Logger.Debug("document written", "path", rel)

	return r.commit(ctx, "update "+strings.TrimSuffix(rel, docExt), func(ctx context.Context) error {
		return r.git.Add(ctx, rel)
	}, rel)
}

// Delete removes the file of uri.
func (r *Repository) Delete(ctx context.Context, uri string) error {
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	rel, err := relPath(uri)
	if err != nil {
		return err
	}
	full := filepath.Join(r.Path, filepath.FromSlash(rel))
	if _, err := os.Stat(full); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", core.ErrNotFound, rel)
	}
	r.cache.Delete(rel)

	if r.config.Gitless {
		return os.Remove(full)
	}
	return r.commit(ctx, "delete "+strings.TrimSuffix(rel, docExt), func(ctx context.Context) error {
		if err := r.git.Rm(ctx, rel); err != nil {
			// Never committed: a plain remove is enough.
			return os.Remove(full)
		}
		return nil
	}, rel)
}

func (r *Repository) commit(ctx context.Context, defaultMsg string, stage func(context.Context) error, rel string) error {
	if r.config.Gitless {
		return nil
	}
	unlock, err := r.git.Lock(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire git lock: %w", err)
	}
	defer unlock()

	if err := stage(ctx); err != nil {
		return fmt.Errorf("failed to stage %s: %w", rel, err)
	}
	staged, err := r.git.Staged(ctx, rel)
	if err != nil {
		return err
	}
	if !staged {
		return nil
	}
	msg := defaultMsg
	if val, ok := ctx.Value(core.ChangeReasonKey).(string); ok && val != "" {
		msg = val
	}
	if err := r.git.Commit(ctx, git.AppendTrailer(msg)); err != nil {
		return fmt.Errorf("failed to git commit: %w", err)
	}
	return nil
}

// BatchFetch reads the documents concurrently. Missing files are left out.
func (r *Repository) BatchFetch(ctx context.Context, uris []string) (map[string]*etree.Document, error) {
	docs := make([]*etree.Document, len(uris))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Parallelism)
	for i, uri := range uris {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := r.Fetch(ctx, uri)
			if errors.Is(err, core.ErrNotFound) {
				return nil
			}
			docs[i] = doc
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]*etree.Document, len(uris))
	for i, uri := range uris {
		if docs[i] != nil {
			out[uri] = docs[i]
		}
	}
	return out, nil
}

// List returns the documents of collection matching query, sorted by id.
// Entries carry the document root, so callers get fully populated entities.
func (r *Repository) List(ctx context.Context, collection string, query url.Values) ([]core.ListEntry, error) {
	matches, err := doublestar.Glob(os.DirFS(r.Path), collection+"/*"+docExt)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	sort.Strings(matches)

	var out []core.ListEntry
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if isTempFile(rel) {
			continue
		}
		doc, err := r.read(rel)
		if errors.Is(err, core.ErrNotFound) {
			continue // removed while listing
		}
		if err != nil {
			return nil, err
		}
		if !core.MatchesQuery(doc.Root(), query) {
			continue
		}
		uri := r.uriOf(rel)
		_, id := core.CollectionOf(uri)
		out = append(out, core.ListEntry{ID: id, URI: uri, Element: doc.Root()})
	}
	return out, nil
}

// Collections lists the collection directories present in the store.
func (r *Repository) Collections() ([]string, error) {
	entries, err := os.ReadDir(r.Path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !r.isSystemPath(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Prune drops cached documents whose files are gone.
func (r *Repository) Prune() error {
	keep := make(map[string]bool)
	err := fs.WalkDir(os.DirFS(r.Path), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && p != "." && r.isSystemPath(p) {
			return fs.SkipDir
		}
		if !d.IsDir() && strings.HasSuffix(p, docExt) {
			keep[p] = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.cache.Prune(keep)
	return nil
}

// History lists the commits that touched the document of uri, newest first.
func (r *Repository) History(ctx context.Context, uri string, n int) ([]git.Commit, error) {
	if r.config.Gitless {
		return nil, fmt.Errorf("history is not available in gitless mode")
	}
	rel, err := relPath(uri)
	if err != nil {
		return nil, err
	}
	return r.git.Log(ctx, rel, n)
}

func (r *Repository) isSystemPath(rel string) bool {
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return first == ".git" || first == r.config.SystemDir
}
