package fs

import (
	"testing"
	"time"

	"github.com/beevik/etree"
)

func TestCache(t *testing.T) {
	c := newCache()
	now := time.Now()

	doc := etree.NewDocument()
	doc.CreateElement("sample").CreateElement("name").SetText("one")
	c.Set("samples/S1.xml", doc, now, 42)

	t.Run("Hit returns a private copy", func(t *testing.T) {
		got, ok := c.Get("samples/S1.xml", now, 42)
		if !ok {
			t.Fatal("expected hit")
		}
		got.Root().SelectElement("name").SetText("changed")

		again, _ := c.Get("samples/S1.xml", now, 42)
		if txt := again.Root().SelectElement("name").Text(); txt != "one" {
			t.Errorf("cached document was mutated through a copy: %q", txt)
		}
	})

	t.Run("Stale stamps miss", func(t *testing.T) {
		if _, ok := c.Get("samples/S1.xml", now.Add(time.Second), 42); ok {
			t.Error("newer mtime should miss")
		}
		if _, ok := c.Get("samples/S1.xml", now, 43); ok {
			t.Error("other size should miss")
		}
	})

	t.Run("Source changes do not leak in", func(t *testing.T) {
		doc.Root().SelectElement("name").SetText("mutated after Set")
		got, _ := c.Get("samples/S1.xml", now, 42)
		if txt := got.Root().SelectElement("name").Text(); txt != "one" {
			t.Errorf("got %q", txt)
		}
	})

	t.Run("Prune and Delete", func(t *testing.T) {
		c.Set("samples/S2.xml", doc, now, 1)
		c.Set("samples/S3.xml", doc, now, 1)
		c.Prune(map[string]bool{"samples/S1.xml": true, "samples/S2.xml": true})
		if c.Len() != 2 {
			t.Errorf("Len after prune = %d, want 2", c.Len())
		}
		c.Delete("samples/S2.xml")
		if c.Len() != 1 {
			t.Errorf("Len after delete = %d, want 1", c.Len())
		}
	})

	hits, misses := c.Stats()
	if hits == 0 || misses == 0 {
		t.Errorf("stats = %d hits, %d misses", hits, misses)
	}
}
