package fs_test

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"github.com/aretw0/lims/pkg/adapters/fs"
	"github.com/aretw0/lims/pkg/core"
	"github.com/aretw0/lims/pkg/entities"
	"github.com/aretw0/lims/pkg/git"
)

const base = "https://lims.test/api/v2"

const sampleXML = `<smp:sample xmlns:smp="http://genologics.com/ri/sample" xmlns:udf="http://genologics.com/ri/userdefined" uri="https://lims.test/api/v2/samples/S1" limsid="S1">
  <name>first</name>
  <project uri="https://lims.test/api/v2/projects/P1" limsid="P1"/>
  <udf:field type="String" name="Color">Blue</udf:field>
</smp:sample>`

// setupRepo creates an initialized repository in a temp dir.
func setupRepo(t *testing.T, opts ...func(*fs.Config)) (*fs.Repository, string) {
	t.Helper()

	root := filepath.Join(t.TempDir(), "store")
	cfg := fs.Config{
		Path:     root,
		BaseURI:  base,
		AutoInit: true,
		Gitless:  true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	repo := fs.NewRepository(cfg)
	if err := repo.Initialize(context.Background()); err != nil {
		if !cfg.Gitless && !git.IsInstalled() {
			t.Skip("git not installed")
		}
		t.Fatalf("Initialize failed: %v", err)
	}
	return repo, root
}

func writeFixture(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func parse(t *testing.T, raw string) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(raw); err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestInitialize(t *testing.T) {
	t.Run("Creates Directory if Missing", func(t *testing.T) {
		_, root := setupRepo(t)
		if _, err := os.Stat(filepath.Join(root, ".lims")); err != nil {
			t.Errorf("system directory not created: %v", err)
		}
	})

	t.Run("Fails if MustExist and Missing", func(t *testing.T) {
		repo := fs.NewRepository(fs.Config{Path: filepath.Join(t.TempDir(), "nope"), MustExist: true, Gitless: true})
		if err := repo.Initialize(context.Background()); err == nil {
			t.Error("expected error for missing directory")
		}
	})

	t.Run("Git Ignores System Dir", func(t *testing.T) {
		_, root := setupRepo(t, func(c *fs.Config) { c.Gitless = false })
		data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), ".lims/") {
			t.Errorf(".gitignore = %q", data)
		}
	})
}

func TestFetchAndUpdate(t *testing.T) {
	repo, root := setupRepo(t)
	ctx := context.Background()
	writeFixture(t, root, "samples/S1.xml", sampleXML)

	doc, err := repo.Fetch(ctx, base+"/samples/S1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := doc.Root().SelectElement("name").Text(); got != "first" {
		t.Errorf("name = %q", got)
	}

	// The state query and the host do not matter, only collection and id.
	if _, err := repo.Fetch(ctx, "http://elsewhere/api/v2/samples/S1?state=3"); err != nil {
		t.Errorf("Fetch with query: %v", err)
	}

	if _, err := repo.Fetch(ctx, base+"/samples/S9"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing document: err = %v, want ErrNotFound", err)
	}

	writeFixture(t, root, "samples/BAD.xml", "<sample>")
	if _, err := repo.Fetch(ctx, base+"/samples/BAD"); !errors.Is(err, core.ErrMalformedResponse) {
		t.Errorf("broken document: err = %v, want ErrMalformedResponse", err)
	}

	doc.Root().SelectElement("name").SetText("renamed")
	if err := repo.Update(ctx, base+"/samples/S1", doc); err != nil {
		t.Fatalf("Update: %v", err)
	}
	again, err := repo.Fetch(ctx, base+"/samples/S1")
	if err != nil {
		t.Fatal(err)
	}
	if got := again.Root().SelectElement("name").Text(); got != "renamed" {
		t.Errorf("name after update = %q", got)
	}

	// Update creates documents in new collections.
	if err := repo.Update(ctx, base+"/projects/P1", parse(t, `<prj:project xmlns:prj="http://genologics.com/ri/project"><name>p</name></prj:project>`)); err != nil {
		t.Fatalf("Update new: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "projects", "P1.xml")); err != nil {
		t.Errorf("new document not written: %v", err)
	}
}

func TestReturnedDocumentsAreCopies(t *testing.T) {
	repo, root := setupRepo(t)
	ctx := context.Background()
	writeFixture(t, root, "samples/S1.xml", sampleXML)

	first, _ := repo.Fetch(ctx, base+"/samples/S1")
	first.Root().SelectElement("name").SetText("local edit")

	second, _ := repo.Fetch(ctx, base+"/samples/S1")
	if got := second.Root().SelectElement("name").Text(); got != "first" {
		t.Errorf("cached document leaked a local edit: %q", got)
	}
}

func TestReadOnly(t *testing.T) {
	repo, root := setupRepo(t, func(c *fs.Config) { c.ReadOnly = true })
	writeFixture(t, root, "samples/S1.xml", sampleXML)
	ctx := context.Background()

	doc, err := repo.Fetch(ctx, base+"/samples/S1")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Update(ctx, base+"/samples/S1", doc); !errors.Is(err, core.ErrReadOnly) {
		t.Errorf("Update err = %v, want ErrReadOnly", err)
	}
	if err := repo.Delete(ctx, base+"/samples/S1"); !errors.Is(err, core.ErrReadOnly) {
		t.Errorf("Delete err = %v, want ErrReadOnly", err)
	}
}

func TestBatchFetch(t *testing.T) {
	repo, root := setupRepo(t)
	for _, id := range []string{"A1", "A2", "A3"} {
		writeFixture(t, root, "artifacts/"+id+".xml", `<art:artifact xmlns:art="http://genologics.com/ri/artifact"><name>`+id+`</name></art:artifact>`)
	}
	uris := []string{base + "/artifacts/A1", base + "/artifacts/A2", base + "/artifacts/A3", base + "/artifacts/A4"}

	docs, err := repo.BatchFetch(context.Background(), uris)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d documents, want 3", len(docs))
	}
	if docs[base+"/artifacts/A2"].Root().SelectElement("name").Text() != "A2" {
		t.Error("documents keyed by the wrong URI")
	}
}

func TestList(t *testing.T) {
	repo, root := setupRepo(t)
	writeFixture(t, root, "samples/S1.xml", sampleXML)
	writeFixture(t, root, "samples/S2.xml", strings.NewReplacer("S1", "S2", "first", "second", "Blue", "Orange").Replace(sampleXML))
	writeFixture(t, root, "samples/notes.txt", "ignored")
	writeFixture(t, root, "projects/P1.xml", `<prj:project xmlns:prj="http://genologics.com/ri/project"><name>p</name></prj:project>`)
	ctx := context.Background()

	all, err := repo.List(ctx, "samples", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID != "S1" || all[1].URI != base+"/samples/S2" {
		t.Fatalf("List = %+v", all)
	}

	orange, err := repo.List(ctx, "samples", url.Values{"udf.Color": {"Orange"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(orange) != 1 || orange[0].ID != "S2" {
		t.Errorf("udf filter = %+v", orange)
	}

	byProject, _ := repo.List(ctx, "samples", url.Values{"projectlimsid": {"P1"}, "name": {"first"}})
	if len(byProject) != 1 || byProject[0].ID != "S1" {
		t.Errorf("combined filter = %+v", byProject)
	}

	colls, err := repo.Collections()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(colls, ",") != "projects,samples" {
		t.Errorf("Collections = %v", colls)
	}
}

func TestSessionOverFS(t *testing.T) {
	repo, root := setupRepo(t)
	writeFixture(t, root, "samples/S1.xml", sampleXML)
	ctx := context.Background()

	s := core.NewSession(repo, base)
	listed, err := entities.Samples(s).List(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 || !listed[0].Fetched() {
		t.Fatalf("listed = %v; want one fetched sample", listed)
	}

	udf, err := listed[0].UDF(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := udf.Set("Count", 2); err != nil {
		t.Fatal(err)
	}
	if err := listed[0].Put(ctx); err != nil {
		t.Fatal(err)
	}

	raw, _ := os.ReadFile(filepath.Join(root, "samples", "S1.xml"))
	if !strings.Contains(string(raw), `<udf:field type="Numeric" name="Count">2</udf:field>`) {
		t.Errorf("written document:\n%s", raw)
	}
}

func TestDeleteAndHistory(t *testing.T) {
	repo, root := setupRepo(t, func(c *fs.Config) {
		c.Gitless = false
		c.AuthorName = "Lims Test"
		c.AuthorEmail = "test@lims.invalid"
	})
	ctx := context.Background()
	uri := base + "/samples/S1"

	if err := repo.Update(ctx, uri, parse(t, sampleXML)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	// Rewriting identical content must not fail on an empty commit.
	if err := repo.Update(ctx, uri, parse(t, sampleXML)); err != nil {
		t.Fatalf("Update unchanged: %v", err)
	}
	reason := context.WithValue(ctx, core.ChangeReasonKey, "rename S1")
	doc := parse(t, sampleXML)
	doc.Root().SelectElement("name").SetText("renamed")
	if err := repo.Update(reason, uri, doc); err != nil {
		t.Fatalf("Update renamed: %v", err)
	}

	commits, err := repo.History(ctx, uri, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 || commits[0].Subject != "rename S1" || commits[1].Subject != "update samples/S1" {
		t.Errorf("history = %+v", commits)
	}

	if err := repo.Delete(ctx, uri); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "samples", "S1.xml")); !os.IsNotExist(err) {
		t.Error("file still present after Delete")
	}
	if err := repo.Delete(ctx, uri); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestState(t *testing.T) {
	repo, root := setupRepo(t)
	writeFixture(t, root, "samples/S1.xml", sampleXML)
	ctx := context.Background()
	repo.Fetch(ctx, base+"/samples/S1")
	repo.Fetch(ctx, base+"/samples/S1")

	state, ok := repo.State().(fs.RepositoryState)
	if !ok {
		t.Fatalf("State() = %T", repo.State())
	}
	if state.CacheSize != 1 || state.CacheHits != 1 || !state.Gitless || state.BaseURI != base {
		t.Errorf("state = %+v", state)
	}

	os.Remove(filepath.Join(root, "samples", "S1.xml"))
	if err := repo.Prune(); err != nil {
		t.Fatal(err)
	}
	if state := repo.State().(fs.RepositoryState); state.CacheSize != 0 {
		t.Errorf("cache size after prune = %d", state.CacheSize)
	}
}
