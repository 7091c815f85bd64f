package clientscript

import (
	"context"
	"errors"
	"io/fs"

	"github.com/akedrou/textdiff"

	"github.com/assetpack/assetpack/internal/cache"
	"github.com/assetpack/assetpack/internal/merge"
	"github.com/assetpack/assetpack/internal/metrics"
)

// Artifacts plans every page and returns the distinct artifacts they
// reference, in first-use order.
func (m *Manager) Artifacts(pages []PageSpec) ([]merge.Artifact, error) {
	var out []merge.Artifact
	seen := make(map[string]struct{})

	for _, spec := range pages {
		p := m.Page(merge.Request{})
		if err := p.Apply(spec); err != nil {
			return nil, err
		}
		for _, a := range p.Plan() {
			if _, ok := seen[a.Name]; ok {
				continue
			}
			seen[a.Name] = struct{}{}
			out = append(out, a)
		}
	}
	return out, nil
}

type WarmReport struct {
	Built  int `json:"built"`
	Cached int `json:"cached"`
	Failed int `json:"failed"`
}

// Warm builds the artifacts of pages that are not cached yet. Artifacts that
// cannot be fetched are counted and skipped; a cache write failure stops the
// run. progress, if set, is called after each artifact.
func (m *Manager) Warm(ctx context.Context, pages []PageSpec, progress func(merge.Artifact, error)) (WarmReport, error) {
	var report WarmReport

	artifacts, err := m.Artifacts(pages)
	if err != nil {
		return report, err
	}

	for _, a := range artifacts {
		outcome, err := m.engine.Build(ctx, a)
		if progress != nil {
			progress(a, err)
		}

		var werr *cache.WriteError
		switch {
		case errors.As(err, &werr):
			return report, err
		case err != nil:
			m.log.Warnf("failed to warm artifact %q: %v", a.Name, err)
			report.Failed++
		case outcome == metrics.OutcomeHit:
			report.Cached++
		default:
			report.Built++
		}
	}

	m.log.Infof("Warmed %d artifacts: %d built, %d cached, %d failed.", len(artifacts), report.Built, report.Cached, report.Failed)
	return report, nil
}

// Stale is an artifact whose cached content no longer matches its members.
type Stale struct {
	Artifact merge.Artifact
	Missing  bool
	Diff     string // unified diff from the cached to the rebuilt content
}

// Verify rebuilds the artifacts of pages in memory and compares them with the
// cache. Fetch failures abort the check.
func (m *Manager) Verify(ctx context.Context, pages []PageSpec) ([]Stale, error) {
	artifacts, err := m.Artifacts(pages)
	if err != nil {
		return nil, err
	}

	var stale []Stale
	store := m.engine.Store()

	for _, a := range artifacts {
		cached, err := store.Read(a.Name)
		if errors.Is(err, fs.ErrNotExist) {
			stale = append(stale, Stale{Artifact: a, Missing: true})
			continue
		} else if err != nil {
			return nil, err
		}

		rebuilt, err := m.engine.Render(ctx, a)
		if err != nil {
			return nil, err
		}

		if string(cached) != string(rebuilt) {
			stale = append(stale, Stale{
				Artifact: a,
				Diff:     textdiff.Unified("cached/"+a.Name, "rebuilt/"+a.Name, string(cached), string(rebuilt)),
			})
		}
	}

	return stale, nil
}
