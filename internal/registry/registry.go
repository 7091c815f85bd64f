// Package registry holds the scripts and stylesheets registered during a page
// render, grouped by script position or stylesheet media, in insertion order.
package registry

import (
	"maps"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Script positions.
const (
	Head  = "head"
	Begin = "begin"
	End   = "end"
)

// Positions lists the script positions in render order.
var Positions = []string{Head, Begin, End}

// Attrs are extra HTML attributes rendered on the tag.
type Attrs map[string]string

// Registration is a single registered resource. Group is the script position
// or the stylesheet media.
type Registration struct {
	URL   string
	Group string
	Attrs Attrs
}

// Set is an ordered mapping group -> URL -> attributes. Groups keep the order
// in which they first appeared and URLs keep the order in which they were
// first added to their group.
type Set struct {
	groups *orderedmap.OrderedMap[string, *orderedmap.OrderedMap[string, Attrs]]
}

func New() *Set {
	return &Set{groups: orderedmap.New[string, *orderedmap.OrderedMap[string, Attrs]]()}
}

// Add registers url in group. Re-adding a URL keeps its original slot and
// reports false.
func (s *Set) Add(group, url string, attrs Attrs) bool {
	g, ok := s.groups.Get(group)
	if !ok {
		g = orderedmap.New[string, Attrs]()
		s.groups.Set(group, g)
	}

	if _, ok := g.Get(url); ok {
		return false
	}

	g.Set(url, attrs)
	return true
}

func (s *Set) Has(group, url string) bool {
	g, ok := s.groups.Get(group)
	if !ok {
		return false
	}
	_, ok = g.Get(url)
	return ok
}

// Remove drops url from group, and the group when it becomes empty.
func (s *Set) Remove(group, url string) {
	g, ok := s.groups.Get(group)
	if !ok {
		return
	}
	g.Delete(url)
	if g.Len() == 0 {
		s.groups.Delete(group)
	}
}

// Len returns the number of registrations across all groups.
func (s *Set) Len() int {
	var n int
	for p := s.groups.Oldest(); p != nil; p = p.Next() {
		n += p.Value.Len()
	}
	return n
}

func (s *Set) Groups() []string {
	out := make([]string, 0, s.groups.Len())
	for p := s.groups.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

// Group returns the registrations of group in insertion order.
func (s *Set) Group(group string) []Registration {
	g, ok := s.groups.Get(group)
	if !ok {
		return nil
	}

	out := make([]Registration, 0, g.Len())
	for p := g.Oldest(); p != nil; p = p.Next() {
		out = append(out, Registration{URL: p.Key, Group: group, Attrs: p.Value})
	}
	return out
}

// All returns every registration, group by group.
func (s *Set) All() []Registration {
	var out []Registration
	for p := s.groups.Oldest(); p != nil; p = p.Next() {
		out = append(out, s.Group(p.Key)...)
	}
	return out
}

// Replace swaps the content of group for regs, keeping the group's slot. An
// empty regs removes the group.
func (s *Set) Replace(group string, regs []Registration) {
	if len(regs) == 0 {
		s.groups.Delete(group)
		return
	}

	g := orderedmap.New[string, Attrs]()
	for _, r := range regs {
		if _, ok := g.Get(r.URL); !ok {
			g.Set(r.URL, r.Attrs)
		}
	}
	s.groups.Set(group, g)
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	c := New()
	for gp := s.groups.Oldest(); gp != nil; gp = gp.Next() {
		g := orderedmap.New[string, Attrs]()
		for p := gp.Value.Oldest(); p != nil; p = p.Next() {
			g.Set(p.Key, maps.Clone(p.Value))
		}
		c.groups.Set(gp.Key, g)
	}
	return c
}

// Reset removes every registration.
func (s *Set) Reset() {
	s.groups = orderedmap.New[string, *orderedmap.OrderedMap[string, Attrs]]()
}
