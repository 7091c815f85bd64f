package clientscript

import (
	"fmt"

	"github.com/assetpack/assetpack/internal/merge"
	"github.com/assetpack/assetpack/internal/naming"
	"github.com/assetpack/assetpack/internal/registry"
)

// PageSpec lists what a page registers. Packages are registered first, then
// scripts and stylesheets in order.
type PageSpec struct {
	Name     string       `json:"name,omitempty"`
	Packages []string     `json:"packages,omitempty"`
	JS       []ScriptFile `json:"js,omitempty"`
	CSS      []CSSFile    `json:"css,omitempty"`
}

type ScriptFile struct {
	URL      string         `json:"url"`
	Position string         `json:"position,omitempty"`
	Attrs    registry.Attrs `json:"attrs,omitempty"`
}

type CSSFile struct {
	URL   string `json:"url"`
	Media string `json:"media,omitempty"`
}

// Apply registers everything in s.
func (p *Page) Apply(s PageSpec) error {
	for _, name := range s.Packages {
		if err := p.RegisterPackage(name); err != nil {
			return err
		}
	}
	for _, js := range s.JS {
		if err := p.RegisterScriptFile(js.URL, js.Position, js.Attrs); err != nil {
			return fmt.Errorf("script %s: %w", js.URL, err)
		}
	}
	for _, css := range s.CSS {
		p.RegisterCSSFile(css.URL, css.Media)
	}
	return nil
}

// Plan lists the artifacts rendering the page would reference for a full
// page request, separated pages first. Nothing is fetched or written.
func (p *Page) Plan() []merge.Artifact {
	var out []merge.Artifact
	for _, s := range p.separated {
		out = append(out, s.page.Plan()...)
	}

	e := p.m.engine
	out = append(out, e.Plan(naming.KindCSS, "", p.styles.All())...)
	for _, pos := range registry.Positions {
		out = append(out, e.Plan(naming.KindJS, pos, p.scripts.Group(pos))...)
	}
	return out
}
