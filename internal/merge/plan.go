package merge

import (
	"context"

	"github.com/assetpack/assetpack/internal/naming"
	"github.com/assetpack/assetpack/internal/registry"
)

// Artifact describes an artifact a merge pass would reference.
type Artifact struct {
	Kind    naming.Kind
	Group   string
	Name    string
	Members []string // registered URLs, in artifact order
}

// Plan reports the artifacts a merge of regs would produce, without fetching
// or writing anything. Scripts are planned as for a full page request.
func (e *Engine) Plan(kind naming.Kind, group string, regs []registry.Registration) []Artifact {
	var buckets []*bucket

	switch kind {
	case naming.KindJS:
		if !e.cfg.JS.Merge {
			return nil
		}
		if candidates := e.classify(regs, e.cfg.JS.Exclude, e.cfg.JS.Include); len(candidates) > e.cfg.MergeAbove {
			buckets = append(buckets, e.newBucket(naming.KindJS, group, candidates))
		}
	case naming.KindCSS:
		if !e.cfg.CSS.Merge {
			return nil
		}
		for _, b := range e.styleBuckets(regs) {
			if len(b.members) > e.cfg.MergeAbove {
				buckets = append(buckets, b)
			}
		}
	}

	out := make([]Artifact, 0, len(buckets))
	for _, b := range buckets {
		a := Artifact{Kind: b.kind, Group: b.group, Name: b.name}
		for _, m := range b.members {
			a.Members = append(a.Members, m.reg.URL)
		}
		out = append(out, a)
	}
	return out
}

// Render builds the content of a planned artifact in memory.
func (e *Engine) Render(ctx context.Context, a Artifact) ([]byte, error) {
	defer e.closeIdle()
	return e.render(ctx, e.bucketOf(a))
}

// Build writes a planned artifact to the cache, or leaves it when already
// present. It reports the outcome recorded for the bucket.
func (e *Engine) Build(ctx context.Context, a Artifact) (string, error) {
	return e.ensure(ctx, e.bucketOf(a))
}

func (e *Engine) bucketOf(a Artifact) *bucket {
	members := make([]member, 0, len(a.Members))
	for i, u := range a.Members {
		members = append(members, member{
			index: i,
			reg:   registry.Registration{URL: u, Group: a.Group},
			abs:   e.fetcher.AbsoluteURL(u),
		})
	}
	return e.newBucket(a.Kind, a.Group, members)
}
