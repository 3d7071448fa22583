package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/lims/pkg/core"
)

const base = "https://lims.test/api/v2"

func openSQLite(t *testing.T, cfg Config) *Store {
	t.Helper()
	cfg.Driver = DriverSQLite
	cfg.DSN = filepath.Join(t.TempDir(), "lims.db")
	if cfg.BaseURI == "" {
		cfg.BaseURI = base
	}
	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sample(id, name string) *etree.Document {
	doc := etree.NewDocument()
	root := doc.CreateElement("smp:sample")
	root.CreateAttr("xmlns:smp", "http://genologics.com/ri/sample")
	root.CreateAttr("uri", base+"/samples/"+id)
	root.CreateElement("name").SetText(name)
	return doc
}

func TestBind(t *testing.T) {
	pg := newStore(nil, Config{Driver: DriverPostgres})
	assert.Equal(t, "a = $1 AND b IN ($2, $3)", pg.bind("a = ? AND b IN (?, ?)"))
	lite := newStore(nil, Config{Driver: DriverSQLite})
	assert.Equal(t, "a = ?", lite.bind("a = ?"))
}

func TestOpenValidates(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
	_, err = Open(context.Background(), Config{})
	assert.Error(t, err)
}

func TestFetchUpdateDelete(t *testing.T) {
	s := openSQLite(t, Config{})
	ctx := context.Background()

	_, err := s.Fetch(ctx, base+"/samples/S1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.Update(ctx, base+"/samples/S1", sample("S1", "first")))
	require.NoError(t, s.Update(ctx, "http://other/api/v2/samples/S1", sample("S1", "second")))

	doc, err := s.Fetch(ctx, base+"/samples/S1?state=4")
	require.NoError(t, err)
	assert.Equal(t, "second", doc.Root().SelectElement("name").Text())

	n, err := s.Count(ctx, "samples")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Delete(ctx, base+"/samples/S1"))
	assert.ErrorIs(t, s.Delete(ctx, base+"/samples/S1"), core.ErrNotFound)
}

func TestMalformedRow(t *testing.T) {
	s := openSQLite(t, Config{})
	ctx := context.Background()
	_, err := s.DB().ExecContext(ctx, `INSERT INTO lims_documents (uri, collection, body, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		base+"/samples/BAD", "samples", "<sample>")
	require.NoError(t, err)

	_, err = s.Fetch(ctx, base+"/samples/BAD")
	assert.ErrorIs(t, err, core.ErrMalformedResponse)
}

func TestBatchFetchAcrossChunks(t *testing.T) {
	s := openSQLite(t, Config{})
	ctx := context.Background()

	var uris []string
	for i := 0; i < batchSize+10; i++ {
		uri := fmt.Sprintf("%s/samples/S%d", base, i)
		require.NoError(t, s.Update(ctx, uri, sample(fmt.Sprint(i), fmt.Sprint(i))))
		uris = append(uris, uri)
	}
	uris = append(uris, base+"/samples/missing", uris[0]+"?state=1")

	docs, err := s.BatchFetch(ctx, uris)
	require.NoError(t, err)
	assert.Len(t, docs, batchSize+11)
	assert.Equal(t, "7", docs[base+"/samples/S7"].Root().SelectElement("name").Text())
	assert.NotSame(t, docs[uris[0]], docs[uris[0]+"?state=1"])
}

func TestList(t *testing.T) {
	s := openSQLite(t, Config{})
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, base+"/samples/S2", sample("S2", "beta")))
	require.NoError(t, s.Update(ctx, base+"/samples/S1", sample("S1", "alpha")))
	require.NoError(t, s.Update(ctx, base+"/projects/P1", sample("P1", "alpha")))

	all, err := s.List(ctx, "samples", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "S1", all[0].ID)
	assert.Equal(t, base+"/samples/S2", all[1].URI)

	alpha, err := s.List(ctx, "samples", url.Values{"name": {"alpha"}})
	require.NoError(t, err)
	require.Len(t, alpha, 1)
	assert.Equal(t, "S1", alpha[0].ID)
}

func TestReadOnly(t *testing.T) {
	s := openSQLite(t, Config{ReadOnly: true})
	assert.ErrorIs(t, s.Update(context.Background(), base+"/samples/S1", sample("S1", "x")), core.ErrReadOnly)

	state := s.State().(StoreState)
	assert.True(t, state.ReadOnly)
	assert.Equal(t, DriverSQLite, state.Driver)
}

// TestPostgres runs against a live server when LIMS_TEST_POSTGRES_DSN is set.
func TestPostgres(t *testing.T) {
	dsn := os.Getenv("LIMS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LIMS_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverPostgres, DSN: dsn, BaseURI: base})
	require.NoError(t, err)
	defer s.Close()

	uri := base + "/samples/PGTEST"
	require.NoError(t, s.Update(ctx, uri, sample("PGTEST", "pg")))
	defer s.Delete(ctx, uri)

	docs, err := s.BatchFetch(ctx, []string{uri})
	require.NoError(t, err)
	assert.Equal(t, "pg", docs[uri].Root().SelectElement("name").Text())
}
