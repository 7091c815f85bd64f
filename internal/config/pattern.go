package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"
	"github.com/swaggest/jsonschema-go"
)

const globPrefix = "glob:"

type matcher interface {
	Match(string) bool
}

type regexpMatcher struct{ re *regexp.Regexp }

func (m regexpMatcher) Match(s string) bool { return m.re.MatchString(s) }

// Pattern is an exclude or include expression matched against absolute,
// version-tagged resource URLs. Expressions are Go regular expressions unless
// prefixed with "glob:", in which case the remainder is a glob where '/' is a
// separator.
type Pattern struct {
	expr string
	m    matcher
}

func NewPattern(expr string) (Pattern, error) {
	p := Pattern{expr: expr}
	return p, p.compile()
}

func MustNewPattern(expr string) Pattern {
	p, err := NewPattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) compile() error {
	if p.m != nil {
		return nil
	}

	if g, ok := strings.CutPrefix(p.expr, globPrefix); ok {
		m, err := glob.Compile(g, '/')
		if err != nil {
			return &PatternError{Pattern: p.expr, Err: err}
		}
		p.m = m
		return nil
	}

	re, err := regexp.Compile(p.expr)
	if err != nil {
		return &PatternError{Pattern: p.expr, Err: err}
	}
	p.m = regexpMatcher{re: re}
	return nil
}

// Match reports whether url matches. An uncompiled pattern matches nothing.
func (p Pattern) Match(url string) bool {
	return p.m != nil && p.m.Match(url)
}

func (p Pattern) String() string {
	return p.expr
}

func (Pattern) PrepareJSONSchema(schema *jsonschema.Schema) error {
	schema.Type = nil
	schema.AddType(jsonschema.String)
	return nil
}

func (p Pattern) MarshalYAML() (any, error) {
	return p.expr, nil
}

func (p Pattern) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.expr)
}

func (p *Pattern) UnmarshalYAML(bs []byte) error {
	var s string
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return fmt.Errorf("expected scalar node: %w", err)
	}
	*p = Pattern{expr: s}
	return nil
}

func (p *Pattern) UnmarshalJSON(bs []byte) error {
	var s string
	if err := json.Unmarshal(bs, &s); err != nil {
		return err
	}
	*p = Pattern{expr: s}
	return nil
}

// Patterns is a set of expressions; it matches when any member matches.
type Patterns []Pattern

func MustNewPatterns(exprs ...string) Patterns {
	ps := make(Patterns, 0, len(exprs))
	for _, expr := range exprs {
		ps = append(ps, MustNewPattern(expr))
	}
	return ps
}

func (ps Patterns) Match(url string) bool {
	for _, p := range ps {
		if p.Match(url) {
			return true
		}
	}
	return false
}

func (ps Patterns) Equal(other Patterns) bool {
	if len(ps) != len(other) {
		return false
	}
	for i := range ps {
		if ps[i].expr != other[i].expr {
			return false
		}
	}
	return true
}

func (ps Patterns) compile() error {
	for i := range ps {
		if err := ps[i].compile(); err != nil {
			return err
		}
	}
	return nil
}
