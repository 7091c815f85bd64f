package registry

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func urls(regs []Registration) []string {
	out := make([]string, 0, len(regs))
	for _, r := range regs {
		out = append(out, r.Group+":"+r.URL)
	}
	return out
}

func TestSetOrder(t *testing.T) {
	s := New()
	s.Add(End, "/js/c.js", nil)
	s.Add(Head, "/js/a.js", nil)
	s.Add(End, "/js/d.js", Attrs{"defer": "defer"})
	s.Add(Head, "/js/b.js", nil)

	if s.Add(End, "/js/c.js", Attrs{"async": "async"}) {
		t.Fatal("expected duplicate add to report false")
	}

	exp := []string{"end:/js/c.js", "end:/js/d.js", "head:/js/a.js", "head:/js/b.js"}
	if diff := cmp.Diff(exp, urls(s.All())); diff != "" {
		t.Fatalf("unexpected order (-want, +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{End, Head}, s.Groups()); diff != "" {
		t.Fatalf("unexpected groups (-want, +got):\n%s", diff)
	}

	if s.Len() != 4 {
		t.Fatalf("expected 4 registrations, got %d", s.Len())
	}

	if attrs := s.Group(End)[0].Attrs; attrs != nil {
		t.Fatalf("expected first registration attributes to win, got %v", attrs)
	}
}

func TestSetReplace(t *testing.T) {
	s := New()
	s.Add("screen", "/a.css", nil)
	s.Add("print", "/p.css", nil)
	s.Add("screen", "/b.css", nil)

	s.Replace("screen", []Registration{{URL: "/nls/x.css", Group: "screen"}})

	exp := []string{"screen:/nls/x.css", "print:/p.css"}
	if diff := cmp.Diff(exp, urls(s.All())); diff != "" {
		t.Fatalf("unexpected registrations (-want, +got):\n%s", diff)
	}

	s.Replace("print", nil)
	if s.Has("print", "/p.css") || len(s.Groups()) != 1 {
		t.Fatalf("expected print group removed, got %v", s.Groups())
	}
}

func TestSetCloneAndReset(t *testing.T) {
	s := New()
	s.Add(Head, "/a.js", Attrs{"id": "a"})

	c := s.Clone()
	s.Reset()
	s.Add(Head, "/b.js", nil)

	if !c.Has(Head, "/a.js") || c.Has(Head, "/b.js") {
		t.Fatalf("clone is not independent: %v", urls(c.All()))
	}

	if s.Has(Head, "/a.js") {
		t.Fatal("expected reset to remove registrations")
	}

	c.Remove(Head, "/a.js")
	if c.Len() != 0 || len(c.Groups()) != 0 {
		t.Fatalf("expected empty set after remove, got %v", urls(c.All()))
	}
}
