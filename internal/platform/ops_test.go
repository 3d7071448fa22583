package platform_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/etree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/lims/internal/platform"
	"github.com/aretw0/lims/pkg/adapters/fs"
	"github.com/aretw0/lims/pkg/adapters/metrics"
	"github.com/aretw0/lims/pkg/adapters/rest"
	"github.com/aretw0/lims/pkg/core"
)

const base = "https://lims.test/api/v2"

func TestOpenFacade(t *testing.T) {
	ctx := context.Background()

	t.Run("Unknown Adapter", func(t *testing.T) {
		_, err := platform.OpenFacade(ctx, base, platform.WithAdapter("ftp"))
		assert.Error(t, err)
	})

	t.Run("Memory Adapter", func(t *testing.T) {
		f, err := platform.OpenFacade(ctx, base, platform.WithAdapter(platform.AdapterMemory))
		require.NoError(t, err)
		assert.IsType(t, &core.MemoryFacade{}, f)
	})

	t.Run("Injected Facade Wins", func(t *testing.T) {
		mem := core.NewMemoryFacade()
		f, err := platform.OpenFacade(ctx, base, platform.WithAdapter("ftp"), platform.WithFacade(mem))
		require.NoError(t, err)
		assert.Same(t, mem, f)
	})

	t.Run("Rest Adapter Requires Versioned Base", func(t *testing.T) {
		_, err := platform.OpenFacade(ctx, "https://lims.test")
		assert.Error(t, err)
		f, err := platform.OpenFacade(ctx, base, platform.WithCredentials("api", "secret"))
		require.NoError(t, err)
		assert.IsType(t, &rest.Client{}, f)
	})

	t.Run("FS Adapter Without Versioning", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "mirror")
		f, err := platform.OpenFacade(ctx, base,
			platform.WithAdapter(platform.AdapterFS),
			platform.WithFixtureDir(dir),
			platform.WithAutoInit(true),
			platform.WithVersioning(false),
		)
		require.NoError(t, err)
		repo, ok := f.(*fs.Repository)
		require.True(t, ok, "got %T", f)
		assert.Equal(t, dir, repo.Path)
		assert.DirExists(t, filepath.Join(dir, ".lims"))
		assert.NoDirExists(t, filepath.Join(dir, ".git"))
	})

	t.Run("FS Adapter Missing Directory", func(t *testing.T) {
		_, err := platform.OpenFacade(ctx, base,
			platform.WithAdapter(platform.AdapterFS),
			platform.WithFixtureDir(filepath.Join(t.TempDir(), "missing")),
			platform.WithMustExist(true),
		)
		assert.Error(t, err)
	})

	t.Run("Read Only And Metrics Decorate", func(t *testing.T) {
		mem := core.NewMemoryFacade()
		require.NoError(t, mem.AddXML(base+"/samples/S1", `<smp:sample xmlns:smp="http://genologics.com/ri/sample"><name>x</name></smp:sample>`))
		reg := prometheus.NewRegistry()

		f, err := platform.OpenFacade(ctx, base,
			platform.WithFacade(mem),
			platform.WithMetrics(reg),
			platform.WithReadOnly(true),
		)
		require.NoError(t, err)

		doc, err := f.Fetch(ctx, base+"/samples/S1")
		require.NoError(t, err)
		err = f.Update(ctx, base+"/samples/S1", doc)
		assert.ErrorIs(t, err, core.ErrReadOnly)
		_, _, updates := mem.Calls()
		assert.Zero(t, updates)

		inner := f.(interface{ Unwrap() core.Facade }).Unwrap()
		assert.IsType(t, &metrics.Facade{}, inner)

		entries, err := f.(core.Lister).List(ctx, "samples", nil)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func fakeServer(t *testing.T, major string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api":
			w.Write([]byte(`<ver:versions xmlns:ver="http://genologics.com/ri/version"><version major="` + major + `"/></ver:versions>`))
		case "/api/v2/samples/S1":
			w.Write([]byte(`<smp:sample xmlns:smp="http://genologics.com/ri/sample" limsid="S1"><name>remote</name></smp:sample>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	_, err := platform.New(ctx, "")
	assert.Error(t, err)

	srv := fakeServer(t, "v2")
	s, err := platform.New(ctx, srv.URL+"/api/v2", platform.WithVersionCheck(true))
	require.NoError(t, err)
	doc, err := s.Facade().Fetch(ctx, s.BaseURI()+"/samples/S1")
	require.NoError(t, err)
	assert.Equal(t, "remote", doc.Root().SelectElement("name").Text())

	old := fakeServer(t, "v1")
	_, err = platform.New(ctx, old.URL+"/api/v2", platform.WithVersionCheck(true))
	assert.True(t, errors.Is(err, rest.ErrUnsupportedVersion), "got %v", err)

	// Stores that cannot tell the version are accepted.
	_, err = platform.New(ctx, base, platform.WithAdapter(platform.AdapterMemory), platform.WithVersionCheck(true))
	assert.NoError(t, err)
}

func TestReadOnlyIsIdempotent(t *testing.T) {
	mem := core.NewMemoryFacade()
	once := platform.ReadOnly(mem)
	assert.Same(t, once, platform.ReadOnly(once))
	err := once.Update(context.Background(), base+"/samples/S1", etree.NewDocument())
	assert.ErrorIs(t, err, core.ErrReadOnly)
	_, err = once.(core.Watchable).Watch(context.Background(), "**")
	assert.ErrorIs(t, err, core.ErrUnsupported)
}

func TestResolveStorePath(t *testing.T) {
	assert.Equal(t, ".", platform.ResolveStorePath("", false))
	assert.Equal(t, "/some/path", platform.ResolveStorePath("/some/path", false))

	devBase := filepath.Join(os.TempDir(), "lims-dev")
	assert.Equal(t, filepath.Join(devBase, "default"), platform.ResolveStorePath(".", true))
	assert.Equal(t, filepath.Join(devBase, "mirror"), platform.ResolveStorePath("data/mirror", true))

	inTemp := filepath.Join(os.TempDir(), "already-safe")
	assert.Equal(t, inTemp, platform.ResolveStorePath(inTemp, true))
}
