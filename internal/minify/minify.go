// Package minify compacts merged JavaScript and CSS artifacts.
package minify

import (
	"fmt"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
)

const (
	mediaJS  = "application/javascript"
	mediaCSS = "text/css"
)

// Minifier minifies whole artifacts. It is safe for concurrent use.
type Minifier struct {
	m *minify.M
}

func New() *Minifier {
	m := minify.New()
	m.AddFunc(mediaJS, js.Minify)
	m.AddFunc(mediaCSS, css.Minify)
	return &Minifier{m: m}
}

func (m *Minifier) JS(src []byte) ([]byte, error) {
	out, err := m.m.Bytes(mediaJS, src)
	if err != nil {
		return nil, fmt.Errorf("failed to minify javascript: %w", err)
	}
	return out, nil
}

func (m *Minifier) CSS(src []byte) ([]byte, error) {
	out, err := m.m.Bytes(mediaCSS, src)
	if err != nil {
		return nil, fmt.Errorf("failed to minify css: %w", err)
	}
	return out, nil
}
