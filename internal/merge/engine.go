// Package merge decides which registered scripts and stylesheets are combined
// into cached artifacts, builds those artifacts, and rewrites the
// registrations to reference them.
package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/assetpack/assetpack/internal/cache"
	"github.com/assetpack/assetpack/internal/config"
	"github.com/assetpack/assetpack/internal/cssrewrite"
	"github.com/assetpack/assetpack/internal/logging"
	"github.com/assetpack/assetpack/internal/manifest"
	"github.com/assetpack/assetpack/internal/metrics"
	"github.com/assetpack/assetpack/internal/minify"
	"github.com/assetpack/assetpack/internal/naming"
	"github.com/assetpack/assetpack/internal/registry"
)

const (
	// ResourcesDir is the subdirectory of the artifact directory holding
	// downloaded stylesheet resources.
	ResourcesDir = "resources"

	defaultConcurrency = 4
)

type Fetcher interface {
	Fetch(ctx context.Context, absURL string) ([]byte, error)
	AbsoluteURL(url string) string
}

type StyleRewriter interface {
	Rewrite(ctx context.Context, absURL string) (string, error)
}

type Minifier interface {
	JS([]byte) ([]byte, error)
	CSS([]byte) ([]byte, error)
}

// Publisher receives every artifact written to the cache, e.g. to mirror it
// to object storage.
type Publisher interface {
	Publish(ctx context.Context, name string, data []byte) error
	Kind() string
}

// Request carries the per-request inputs of a merge pass.
type Request struct {
	XHR      bool
	Manifest manifest.Manifest
}

// Result is a rewritten bucket.
type Result struct {
	Registrations []registry.Registration
	Artifacts     []string // names of the artifacts referenced
	Held          []string // registered URLs dropped because the client holds them
}

type Engine struct {
	cfg         *config.Root
	store       *cache.Store
	fetcher     Fetcher
	rewriter    StyleRewriter
	minifier    Minifier
	publisher   Publisher
	log         *logging.Logger
	builds      singleflight.Group
	concurrency int
}

// New returns an engine writing artifacts to store. When stylesheet resources
// are downloaded they go to the store's resources subdirectory.
func New(cfg *config.Root, store *cache.Store, fetcher Fetcher) (*Engine, error) {
	e := &Engine{
		cfg:         cfg,
		store:       store,
		fetcher:     fetcher,
		minifier:    minify.New(),
		log:         logging.NewNop(),
		concurrency: defaultConcurrency,
	}

	rw := cssrewrite.New(fetcher)
	if cfg.CSS.DownloadResources {
		resources, err := store.Sub(ResourcesDir)
		if err != nil {
			return nil, err
		}
		rw = rw.WithResources(resources, e.ArtifactBaseURL()+"/"+ResourcesDir)
	}
	e.rewriter = rw

	return e, nil
}

func (e *Engine) WithRewriter(rw StyleRewriter) *Engine {
	e.rewriter = rw
	return e
}

func (e *Engine) WithMinifier(m Minifier) *Engine {
	e.minifier = m
	return e
}

func (e *Engine) WithPublisher(p Publisher) *Engine {
	e.publisher = p
	return e
}

func (e *Engine) WithLogger(log *logging.Logger) *Engine {
	e.log = log
	if rw, ok := e.rewriter.(*cssrewrite.Rewriter); ok {
		rw.WithLogger(log)
	}
	return e
}

// WithConcurrency bounds the number of parallel member fetches per artifact.
func (e *Engine) WithConcurrency(n int) *Engine {
	e.concurrency = max(n, 1)
	return e
}

func (e *Engine) Store() *cache.Store {
	return e.store
}

// ArtifactBaseURL is the URL the artifact directory is served under.
func (e *Engine) ArtifactBaseURL() string {
	return strings.TrimSuffix(e.cfg.Assets.BaseURL, "/") + "/nls"
}

// ArtifactURL is the version-tagged URL of a named artifact.
func (e *Engine) ArtifactURL(name string) string {
	return naming.WithVersion(e.ArtifactBaseURL()+"/"+name, e.cfg.AppVersion)
}

// bucket is a set of merge candidates that will share one artifact.
type bucket struct {
	kind    naming.Kind
	group   string
	members []member
	desc    *naming.Descriptor
	name    string
	force   bool
	minify  bool
}

func (e *Engine) newBucket(kind naming.Kind, group string, members []member) *bucket {
	b := &bucket{kind: kind, group: group, members: members, desc: naming.NewDescriptor()}
	for _, m := range members {
		b.desc.Add(m.reg.URL)
	}

	var flags naming.Flags
	switch kind {
	case naming.KindJS:
		flags.Minify = e.cfg.JS.Compress
		b.force = e.cfg.JS.Force
	case naming.KindCSS:
		flags.Minify = e.cfg.CSS.Compress
		flags.DownloadResources = e.cfg.CSS.DownloadResources
		b.force = e.cfg.CSS.Force
	}
	b.minify = flags.Minify
	b.name = b.desc.Name(e.cfg.AppVersion, kind, flags)
	return b
}

// ensure makes sure the bucket's artifact is in the cache and reports whether
// it was found or built. Builds of the same name are shared in-process and,
// when configured, serialized across processes.
func (e *Engine) ensure(ctx context.Context, b *bucket) (string, error) {
	if !b.force && e.store.Exists(b.name) {
		return metrics.OutcomeHit, nil
	}

	v, err, _ := e.builds.Do(b.name, func() (any, error) {
		return e.build(ctx, b)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (e *Engine) build(ctx context.Context, b *bucket) (string, error) {
	if e.cfg.Cache.LockBuilds {
		unlock, err := e.store.Lock(ctx, b.name)
		if err != nil {
			return "", &cache.WriteError{Name: b.name, Err: err}
		}
		defer unlock()
	}

	// Another build may have finished since the caller looked.
	if !b.force && e.store.Exists(b.name) {
		return metrics.OutcomeHit, nil
	}

	startTime := time.Now()
	defer e.closeIdle()

	data, err := e.render(ctx, b)
	if err != nil {
		return "", err
	}

	if err := e.store.Write(b.name, data, b.force); err != nil {
		return "", err
	}

	metrics.ArtifactBuilt(string(b.kind), startTime)
	e.log.Debugf("Artifact %q built from %d members.", b.name, len(b.members))

	e.publish(ctx, b.name, data)
	return metrics.OutcomeBuilt, nil
}

// render produces the artifact bytes: the descriptor comment followed by the
// (optionally minified) joined members.
func (e *Engine) render(ctx context.Context, b *bucket) ([]byte, error) {
	var body []byte

	switch b.kind {
	case naming.KindJS:
		parts, err := fetchAll(ctx, e.concurrency, b.members, func(ctx context.Context, m member) (string, error) {
			bs, err := e.fetcher.Fetch(ctx, m.abs)
			return string(bs), err
		})
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		for _, p := range parts {
			sb.WriteString(p)
			sb.WriteString(";\r\n")
		}
		body = []byte(sb.String())
		if b.minify {
			if body, err = e.minifier.JS(body); err != nil {
				return nil, err
			}
		}

	case naming.KindCSS:
		parts, err := fetchAll(ctx, e.concurrency, b.members, func(ctx context.Context, m member) (string, error) {
			return e.rewriter.Rewrite(ctx, m.abs)
		})
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		for i, p := range parts {
			sb.WriteString("/* " + b.members[i].abs + " */\r\n")
			sb.WriteString(p)
			sb.WriteString("\r\n")
		}
		body = []byte(sb.String())
		if b.minify {
			if body, err = e.minifier.CSS(body); err != nil {
				return nil, err
			}
		}

	default:
		return nil, fmt.Errorf("unknown artifact kind %q", b.kind)
	}

	return append([]byte(b.desc.String()), body...), nil
}

// fetchAll runs get for every member with bounded parallelism and returns
// the results in member order. The first failure cancels the rest.
func fetchAll(ctx context.Context, limit int, members []member, get func(context.Context, member) (string, error)) ([]string, error) {
	out := make([]string, len(members))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, m := range members {
		g.Go(func() error {
			s, err := get(ctx, m)
			if err != nil {
				return err
			}
			out[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) publish(ctx context.Context, name string, data []byte) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, name, data); err != nil {
		e.log.Warnf("failed to publish artifact %q to %s: %v", name, e.publisher.Kind(), err)
		metrics.PublishFailed(e.publisher.Kind())
	}
}

func (e *Engine) closeIdle() {
	if c, ok := e.fetcher.(interface{ Close() }); ok {
		c.Close()
	}
}

// settle decides whether a failed build is fatal. Only cache write failures
// are; anything else leaves the bucket unmerged.
func (e *Engine) settle(b *bucket, err error) error {
	var werr *cache.WriteError
	if errors.As(err, &werr) {
		metrics.MergeBucket(string(b.kind), metrics.OutcomeWriteFailed)
		e.log.Errorf("failed to write artifact %q: %v", b.name, err)
		return err
	}

	metrics.MergeBucket(string(b.kind), metrics.OutcomeFetchFailed)
	metrics.FetchFailed(string(b.kind))
	e.log.Warnf("failed to build artifact %q, serving %d members unmerged: %v", b.name, len(b.members), err)
	return nil
}
