package clientscript

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/assetpack/assetpack/internal/merge"
	"github.com/assetpack/assetpack/internal/naming"
	"github.com/assetpack/assetpack/internal/registry"
)

var ErrUnknownPackage = errors.New("unknown package")

// Page accumulates the registrations of a single render. It is not safe for
// concurrent use.
type Page struct {
	m         *Manager
	req       merge.Request
	scripts   *registry.Set // position -> URL
	styles    *registry.Set // media -> URL
	packages  map[string]struct{}
	separated []*separated
	rendered  map[string]bool
}

type separated struct {
	name string
	page *Page
}

// Page starts a render.
func (m *Manager) Page(req merge.Request) *Page {
	return &Page{
		m:        m,
		req:      req,
		scripts:  registry.New(),
		styles:   registry.New(),
		packages: make(map[string]struct{}),
		rendered: make(map[string]bool),
	}
}

// RegisterScriptFile adds a script at a position. The application version is
// appended to non-absolute URLs. Registering the same URL twice at a position
// keeps the first registration.
func (p *Page) RegisterScriptFile(url, position string, attrs registry.Attrs) error {
	position = cmp.Or(position, registry.Head)
	if !slices.Contains(registry.Positions, position) {
		return fmt.Errorf("unknown script position %q", position)
	}

	p.scripts.Add(position, naming.WithVersion(url, p.m.cfg.AppVersion), attrs)
	return nil
}

// RegisterCSSFile adds a stylesheet for a media type; an empty media applies
// to all.
func (p *Page) RegisterCSSFile(url, media string) {
	p.styles.Add(media, naming.WithVersion(url, p.m.cfg.AppVersion), nil)
}

// RegisterPackage registers a configured package after its dependencies. A
// package registered before, here or by a separated package, is skipped. A
// separate package takes everything registered so far with it: the page
// continues empty and the separated state renders ahead of it.
func (p *Page) RegisterPackage(name string) error {
	if p.owns(name) {
		return nil
	}

	pkg, ok := p.m.cfg.Packages[name]
	if !ok || pkg == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPackage, name)
	}

	for _, dep := range pkg.Depends {
		if err := p.RegisterPackage(dep); err != nil {
			return fmt.Errorf("package %s: %w", name, err)
		}
	}

	p.packages[name] = struct{}{}

	for _, js := range pkg.JS {
		if err := p.RegisterScriptFile(packageURL(pkg.BaseURL, js), pkg.Position, nil); err != nil {
			return fmt.Errorf("package %s: %w", name, err)
		}
	}
	for _, css := range pkg.CSS {
		p.RegisterCSSFile(packageURL(pkg.BaseURL, css), pkg.Media)
	}

	if pkg.Separate {
		p.separated = append(p.separated, &separated{name: name, page: p.fork()})
		p.reset()
	}

	return nil
}

func (p *Page) owns(name string) bool {
	if _, ok := p.packages[name]; ok {
		return true
	}
	for _, s := range p.separated {
		if s.name == name || s.page.owns(name) {
			return true
		}
	}
	return false
}

// fork copies the accumulated state into an independent page without any
// separated packages of its own.
func (p *Page) fork() *Page {
	return &Page{
		m:        p.m,
		req:      p.req,
		scripts:  p.scripts.Clone(),
		styles:   p.styles.Clone(),
		packages: maps.Clone(p.packages),
		rendered: maps.Clone(p.rendered),
	}
}

func (p *Page) reset() {
	p.scripts.Reset()
	p.styles.Reset()
	clear(p.packages)
}

func packageURL(base, file string) string {
	if base == "" || naming.IsAbsolute(file) {
		return file
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(file, "/")
}

// Scripts returns the current scripts, in position then registration order.
// After a checkpoint they reflect its merge.
func (p *Page) Scripts() []registry.Registration {
	var out []registry.Registration
	for _, pos := range registry.Positions {
		out = append(out, p.scripts.Group(pos)...)
	}
	return out
}

// ScriptsAt returns the current scripts of one position.
func (p *Page) ScriptsAt(position string) []registry.Registration {
	return p.scripts.Group(position)
}

// Styles returns the current stylesheets grouped by media.
func (p *Page) Styles() []registry.Registration {
	return p.styles.All()
}

// Packages lists the packages registered on this page, excluding those taken
// by separated packages.
func (p *Page) Packages() []string {
	return slices.Sorted(maps.Keys(p.packages))
}

// Separated returns the pages forked by separate packages, in render order.
func (p *Page) Separated() []*Page {
	out := make([]*Page, 0, len(p.separated))
	for _, s := range p.separated {
		out = append(out, s.page)
	}
	return out
}
