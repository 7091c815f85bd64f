package merge

import (
	"github.com/assetpack/assetpack/internal/config"
	"github.com/assetpack/assetpack/internal/registry"
)

// Mergeable reports whether a resource is a merge candidate. An exclude match
// always wins; when include patterns are set the URL must match one of them.
func Mergeable(absURL string, exclude, include config.Patterns) bool {
	if exclude.Match(absURL) {
		return false
	}
	if len(include) > 0 && !include.Match(absURL) {
		return false
	}
	return true
}

type member struct {
	index int // position in the bucket's registrations
	reg   registry.Registration
	abs   string
}

// classify returns the merge candidates among regs. The patterns see the
// absolute, version-tagged URL; everything else passes through untouched.
func (e *Engine) classify(regs []registry.Registration, exclude, include config.Patterns) []member {
	var candidates []member
	for i, r := range regs {
		m := member{index: i, reg: r, abs: e.fetcher.AbsoluteURL(r.URL)}
		if Mergeable(m.abs, exclude, include) {
			candidates = append(candidates, m)
		}
	}
	return candidates
}
