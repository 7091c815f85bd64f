package merge

import (
	"context"

	"github.com/assetpack/assetpack/internal/metrics"
	"github.com/assetpack/assetpack/internal/naming"
	"github.com/assetpack/assetpack/internal/registry"
)

// Styles rewrites the registered stylesheets. Candidates are bucketed by
// media; each bucket above the threshold becomes one artifact registered under
// the bucket's media. Smaller buckets, and buckets whose build fails, keep
// their original files.
func (e *Engine) Styles(ctx context.Context, regs []registry.Registration) (Result, error) {
	res := Result{Registrations: regs}

	if !e.cfg.CSS.Merge || len(regs) == 0 {
		return res, nil
	}

	buckets := e.styleBuckets(regs)

	var built []*bucket
	for _, b := range buckets {
		if len(b.members) <= e.cfg.MergeAbove {
			metrics.MergeBucket(string(naming.KindCSS), metrics.OutcomePassThrough)
			continue
		}

		outcome, err := e.ensure(ctx, b)
		if err != nil {
			if err := e.settle(b, err); err != nil {
				return Result{}, err
			}
			continue
		}
		metrics.MergeBucket(string(naming.KindCSS), outcome)

		built = append(built, b)
		res.Artifacts = append(res.Artifacts, b.name)
	}

	if len(built) > 0 {
		res.Registrations = e.replace(regs, nil, built...)
	}
	return res, nil
}

// styleBuckets groups the merge candidates by media, in order of first
// appearance. Artifacts are named and flagged but not yet built.
func (e *Engine) styleBuckets(regs []registry.Registration) []*bucket {
	candidates := e.classify(regs, e.cfg.CSS.Exclude, e.cfg.CSS.Include)

	var order []string
	byMedia := make(map[string][]member)
	for _, m := range candidates {
		if _, ok := byMedia[m.reg.Group]; !ok {
			order = append(order, m.reg.Group)
		}
		byMedia[m.reg.Group] = append(byMedia[m.reg.Group], m)
	}

	buckets := make([]*bucket, 0, len(order))
	for _, media := range order {
		buckets = append(buckets, e.newBucket(naming.KindCSS, media, byMedia[media]))
	}
	return buckets
}
