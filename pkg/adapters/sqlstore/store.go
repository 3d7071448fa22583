// Package sqlstore keeps LIMS documents in a single SQL table, one row per
// resource. SQLite (modernc, pure Go) and Postgres (pgx) are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/beevik/etree"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/aretw0/lims/pkg/core"
)

// Driver names as registered with database/sql.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

const (
	table     = "lims_documents"
	batchSize = 200
)

// Config holds the store settings.
type Config struct {
	Driver string // DriverSQLite (default) or DriverPostgres
	DSN    string // file path for sqlite, connection URL for postgres
	// BaseURI is the canonical prefix of stored URIs. Rows are keyed by
	// BaseURI/<collection>/<id> whatever host the caller used.
	BaseURI     string
	ReadOnly    bool
	Parallelism int // concurrent batch queries; zero means 4
	Logger      *slog.Logger
}

// Store implements core.Facade and core.Lister on a database.
type Store struct {
	db  *sql.DB
	cfg Config

	reads  atomic.Int64
	writes atomic.Int64
}

var (
	_ core.Facade = (*Store)(nil)
	_ core.Lister = (*Store)(nil)
)

// Open connects to the database and creates the documents table if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.Driver != DriverSQLite && cfg.Driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sql dsn required")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		// One writer at a time avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	s := newStore(db, cfg)
	if err := s.ensureTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newStore(db *sql.DB, cfg Config) *Store {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.BaseURI = strings.TrimRight(cfg.BaseURI, "/")
	return &Store{db: db, cfg: cfg}
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for tests and maintenance.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) ensureTable(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + table + ` (
		uri TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		body TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure %s table: %w", table, err)
	}
	idx := `CREATE INDEX IF NOT EXISTS ` + table + `_collection ON ` + table + ` (collection)`
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("ensure %s index: %w", table, err)
	}
	return nil
}

// bind rewrites ? placeholders for the dialect.
func (s *Store) bind(query string) string {
	if s.cfg.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// key returns the canonical row key and collection of uri.
func (s *Store) key(uri string) (string, string, error) {
	coll, id := core.CollectionOf(uri)
	if coll == "" || id == "" {
		return "", "", fmt.Errorf("%w: cannot map %q to a row", core.ErrNotFound, uri)
	}
	return s.cfg.BaseURI + "/" + coll + "/" + id, coll, nil
}

// Fetch loads the document of uri.
func (s *Store) Fetch(ctx context.Context, uri string) (*etree.Document, error) {
	key, _, err := s.key(uri)
	if err != nil {
		return nil, err
	}
	s.reads.Add(1)
	var body string
	err = s.db.QueryRowContext(ctx, s.bind(`SELECT body FROM `+table+` WHERE uri = ?`), key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select %s: %w", core.ErrTransport, key, err)
	}
	return parse(key, body)
}

func parse(key, body string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(body); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrMalformedResponse, key, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: %s has no root element", core.ErrMalformedResponse, key)
	}
	return doc, nil
}

// Update inserts or replaces the document of uri.
func (s *Store) Update(ctx context.Context, uri string, doc *etree.Document) error {
	if s.cfg.ReadOnly {
		return core.ErrReadOnly
	}
	key, coll, err := s.key(uri)
	if err != nil {
		return err
	}
	body, err := doc.WriteToString()
	if err != nil {
		return fmt.Errorf("serialize %s: %w", key, err)
	}
	s.writes.Add(1)
	_, err = s.db.ExecContext(ctx, s.bind(`INSERT INTO `+table+` (uri, collection, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (uri) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`),
		key, coll, body, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %w", core.ErrTransport, key, err)
	}
	s.cfg.Logger.Debug("document stored", "uri", key)
	return nil
}

// Delete removes the document of uri.
func (s *Store) Delete(ctx context.Context, uri string) error {
	if s.cfg.ReadOnly {
		return core.ErrReadOnly
	}
	key, _, err := s.key(uri)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM `+table+` WHERE uri = ?`), key)
	if err != nil {
		return fmt.Errorf("%w: delete %s: %w", core.ErrTransport, key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return nil
}

// BatchFetch loads the documents with IN queries of bounded size, run
// concurrently. Missing rows are left out of the result.
func (s *Store) BatchFetch(ctx context.Context, uris []string) (map[string]*etree.Document, error) {
	byKey := make(map[string][]string, len(uris))
	var keys []string
	for _, uri := range uris {
		key, _, err := s.key(uri)
		if err != nil {
			continue
		}
		if _, seen := byKey[key]; !seen {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], uri)
	}

	chunks := make([]map[string]string, (len(keys)+batchSize-1)/batchSize)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for i := range chunks {
		part := keys[i*batchSize : min((i+1)*batchSize, len(keys))]
		g.Go(func() error {
			rows, err := s.selectBodies(ctx, part)
			chunks[i] = rows
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*etree.Document, len(uris))
	for _, rows := range chunks {
		for key, body := range rows {
			doc, err := parse(key, body)
			if err != nil {
				return nil, err
			}
			for i, uri := range byKey[key] {
				if i > 0 {
					doc = doc.Copy()
				}
				out[uri] = doc
			}
		}
	}
	return out, nil
}

func (s *Store) selectBodies(ctx context.Context, keys []string) (map[string]string, error) {
	s.reads.Add(1)
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT uri, body FROM `+table+` WHERE uri IN (`+marks+`)`), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: batch select: %w", core.ErrTransport, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string, len(keys))
	for rows.Next() {
		var uri, body string
		if err := rows.Scan(&uri, &body); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out[uri] = body
	}
	return out, rows.Err()
}

// List returns the documents of collection matching query, ordered by URI.
func (s *Store) List(ctx context.Context, collection string, query url.Values) ([]core.ListEntry, error) {
	s.reads.Add(1)
	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT uri, body FROM `+table+` WHERE collection = ? ORDER BY uri`), collection)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", core.ErrTransport, collection, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []core.ListEntry
	for rows.Next() {
		var uri, body string
		if err := rows.Scan(&uri, &body); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		doc, err := parse(uri, body)
		if err != nil {
			return nil, err
		}
		if !core.MatchesQuery(doc.Root(), query) {
			continue
		}
		_, id := core.CollectionOf(uri)
		entries = append(entries, core.ListEntry{ID: id, URI: uri, Element: doc.Root()})
	}
	return entries, rows.Err()
}

// Count returns the number of stored documents in collection, or in all
// collections when collection is empty.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	q, args := `SELECT COUNT(*) FROM `+table, []any{}
	if collection != "" {
		q += ` WHERE collection = ?`
		args = append(args, collection)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, s.bind(q), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", core.ErrTransport, err)
	}
	return n, nil
}
