package docs

import (
	"strings"
	"testing"
)

func TestContext_RendersNewestFirst(t *testing.T) {
	b := NewBuilder()
	got := b.Context([]Document{
		{Name: "newest.md", Markdown: "new content"},
		{Name: "older.md", Markdown: "old content"},
	}, 3)

	first := strings.Index(got, "# Document: newest.md")
	second := strings.Index(got, "# Document: older.md")
	if first == -1 || second == -1 || first > second {
		t.Errorf("order wrong:\n%s", got)
	}
	if !strings.Contains(got, "\n\n---\n\n") {
		t.Errorf("missing separator:\n%s", got)
	}
}

func TestContext_CapsAtMax(t *testing.T) {
	b := NewBuilder()
	docs := []Document{
		{Name: "a.md", Markdown: "a"},
		{Name: "b.md", Markdown: "b"},
		{Name: "c.md", Markdown: "c"},
	}
	got := b.Context(docs, 2)
	if strings.Contains(got, "c.md") {
		t.Errorf("document beyond cap rendered:\n%s", got)
	}
	if !strings.Contains(got, "a.md") || !strings.Contains(got, "b.md") {
		t.Errorf("capped render missing documents:\n%s", got)
	}
}

func TestContext_Empty(t *testing.T) {
	b := NewBuilder()
	if got := b.Context(nil, 3); got != "" {
		t.Errorf("got %q", got)
	}
	if got := b.Context([]Document{{Name: "x"}}, 0); got != "" {
		t.Errorf("zero max: got %q", got)
	}
}

func TestContext_CacheReturnsSameSection(t *testing.T) {
	b := NewBuilder()
	d := Document{Name: "notes.md", Markdown: "body"}
	first := b.Context([]Document{d}, 1)
	second := b.Context([]Document{d}, 1)
	if first != second {
		t.Errorf("cached render differs:\n%s\nvs\n%s", first, second)
	}
	// distinct content must not collide
	other := b.Context([]Document{{Name: "notes.md", Markdown: "different"}}, 1)
	if other == first {
		t.Error("different content produced identical section")
	}
}

func TestCollect_NewestFirstCapped(t *testing.T) {
	a := &Document{Name: "a"}
	b := &Document{Name: "b"}
	c := &Document{Name: "c"}
	got := Collect([]*Document{a, nil, b, c}, 2)
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Name != "c" || got[1].Name != "b" {
		t.Errorf("order = %s, %s", got[0].Name, got[1].Name)
	}
}
