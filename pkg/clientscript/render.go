package clientscript

import (
	"context"
	"html"
	"maps"
	"slices"
	"strings"

	"github.com/assetpack/assetpack/internal/registry"
)

// Fragments are the HTML snippets emitted at the three checkpoints.
type Fragments struct {
	Head      string
	BodyBegin string
	BodyEnd   string
}

// Head merges the stylesheets and the head scripts and returns their tags.
func (p *Page) Head(ctx context.Context) (string, error) {
	return p.checkpoint(ctx, registry.Head)
}

// BodyBegin merges the scripts placed at the start of the body.
func (p *Page) BodyBegin(ctx context.Context) (string, error) {
	return p.checkpoint(ctx, registry.Begin)
}

// BodyEnd merges the scripts placed at the end of the body.
func (p *Page) BodyEnd(ctx context.Context) (string, error) {
	return p.checkpoint(ctx, registry.End)
}

// Render runs all checkpoints in order.
func (p *Page) Render(ctx context.Context) (Fragments, error) {
	var (
		f   Fragments
		err error
	)
	if f.Head, err = p.Head(ctx); err != nil {
		return Fragments{}, err
	}
	if f.BodyBegin, err = p.BodyBegin(ctx); err != nil {
		return Fragments{}, err
	}
	if f.BodyEnd, err = p.BodyEnd(ctx); err != nil {
		return Fragments{}, err
	}
	return f, nil
}

// checkpoint renders separated pages first. Each page handles a checkpoint
// at most once; later calls emit nothing for it.
func (p *Page) checkpoint(ctx context.Context, position string) (string, error) {
	var b strings.Builder

	for _, s := range p.separated {
		out, err := s.page.checkpoint(ctx, position)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}

	if p.rendered[position] {
		return b.String(), nil
	}
	p.rendered[position] = true

	if position == registry.Head {
		if err := p.mergeStyles(ctx); err != nil {
			return "", err
		}
		for _, r := range p.styles.All() {
			b.WriteString(styleTag(r))
		}
	}

	if err := p.mergeScripts(ctx, position); err != nil {
		return "", err
	}
	for _, r := range p.scripts.Group(position) {
		b.WriteString(scriptTag(r))
	}

	return b.String(), nil
}

func (p *Page) mergeScripts(ctx context.Context, position string) error {
	regs := p.scripts.Group(position)
	if len(regs) == 0 {
		return nil
	}

	res, err := p.m.engine.Scripts(ctx, position, regs, p.req)
	if err != nil {
		return err
	}
	p.scripts.Replace(position, res.Registrations)
	return nil
}

func (p *Page) mergeStyles(ctx context.Context) error {
	regs := p.styles.All()
	if len(regs) == 0 {
		return nil
	}

	res, err := p.m.engine.Styles(ctx, regs)
	if err != nil {
		return err
	}

	p.styles.Reset()
	for _, r := range res.Registrations {
		p.styles.Add(r.Group, r.URL, r.Attrs)
	}
	return nil
}

func scriptTag(r registry.Registration) string {
	return `<script type="text/javascript" src="` + html.EscapeString(r.URL) + `"` + attrs(r.Attrs) + "></script>\n"
}

func styleTag(r registry.Registration) string {
	var media string
	if r.Group != "" {
		media = ` media="` + html.EscapeString(r.Group) + `"`
	}
	return `<link rel="stylesheet" type="text/css" href="` + html.EscapeString(r.URL) + `"` + media + attrs(r.Attrs) + " />\n"
}

func attrs(a registry.Attrs) string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(a)) {
		b.WriteString(" " + k + `="` + html.EscapeString(a[k]) + `"`)
	}
	return b.String()
}
