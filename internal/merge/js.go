package merge

import (
	"context"

	"github.com/assetpack/assetpack/internal/metrics"
	"github.com/assetpack/assetpack/internal/naming"
	"github.com/assetpack/assetpack/internal/registry"
)

// Scripts rewrites the scripts of one position. Candidates are merged into a
// single artifact that takes the slot of the first candidate; pass-through
// scripts keep their order. On an XHR request scripts the client already
// holds are dropped.
func (e *Engine) Scripts(ctx context.Context, group string, regs []registry.Registration, req Request) (Result, error) {
	res := Result{Registrations: regs}

	if !e.cfg.JS.Merge || len(regs) == 0 {
		return res, nil
	}
	if req.XHR && !e.cfg.MergeIfXHR {
		metrics.MergeBucket(string(naming.KindJS), metrics.OutcomePassThrough)
		return res, nil
	}

	all := e.classify(regs, e.cfg.JS.Exclude, e.cfg.JS.Include)

	held := make(map[int]struct{})
	candidates := make([]member, 0, len(all))
	for _, m := range all {
		if req.XHR && req.Manifest.Holds(m.abs) {
			held[m.index] = struct{}{}
			res.Held = append(res.Held, m.reg.URL)
			continue
		}
		candidates = append(candidates, m)
	}

	if len(candidates) <= e.cfg.MergeAbove {
		metrics.MergeBucket(string(naming.KindJS), metrics.OutcomePassThrough)
		res.Registrations = without(regs, held)
		return res, nil
	}

	b := e.newBucket(naming.KindJS, group, candidates)

	outcome, err := e.ensure(ctx, b)
	if err != nil {
		if err := e.settle(b, err); err != nil {
			return Result{}, err
		}
		res.Registrations = without(regs, held)
		return res, nil
	}
	metrics.MergeBucket(string(naming.KindJS), outcome)

	res.Registrations = e.replace(regs, held, b)
	res.Artifacts = []string{b.name}
	return res, nil
}

func without(regs []registry.Registration, drop map[int]struct{}) []registry.Registration {
	if len(drop) == 0 {
		return regs
	}
	out := make([]registry.Registration, 0, len(regs)-len(drop))
	for i, r := range regs {
		if _, ok := drop[i]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// replace drops held entries and swaps the bucket's members for a single
// registration of its artifact, placed where the first member was.
func (e *Engine) replace(regs []registry.Registration, drop map[int]struct{}, buckets ...*bucket) []registry.Registration {
	first := make(map[int]*bucket)
	merged := make(map[int]struct{})
	for _, b := range buckets {
		for i, m := range b.members {
			if i == 0 {
				first[m.index] = b
			}
			merged[m.index] = struct{}{}
		}
	}

	out := make([]registry.Registration, 0, len(regs))
	for i, r := range regs {
		if b, ok := first[i]; ok {
			out = append(out, registry.Registration{URL: e.ArtifactURL(b.name), Group: b.group})
			continue
		}
		if _, ok := merged[i]; ok {
			continue
		}
		if _, ok := drop[i]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}
