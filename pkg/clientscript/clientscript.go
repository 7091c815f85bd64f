// Package clientscript collects the scripts and stylesheets registered while
// a page renders and emits them at the head, body-begin and body-end
// checkpoints, merged into cached artifacts where configured.
//
// A Manager is created once per process and holds the configuration, the
// artifact cache and the HTTP client used to fetch members. Each render gets
// its own Page:
//
//	m, err := clientscript.New(ctx, cfg)
//	...
//	page := m.Page(clientscript.RequestFromHTTP(r))
//	page.RegisterPackage("app")
//	page.RegisterScriptFile("/js/page.js", registry.End, nil)
//	head, err := page.Head(ctx)
package clientscript

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/assetpack/assetpack/internal/cache"
	"github.com/assetpack/assetpack/internal/config"
	"github.com/assetpack/assetpack/internal/fetch"
	"github.com/assetpack/assetpack/internal/logging"
	"github.com/assetpack/assetpack/internal/manifest"
	"github.com/assetpack/assetpack/internal/merge"
	"github.com/assetpack/assetpack/internal/storage"
)

// ArtifactDir is the directory under assets.base_path holding artifacts.
const ArtifactDir = "nls"

type Manager struct {
	cfg     *config.Root
	engine  *merge.Engine
	fetcher *fetch.Client
	log     *logging.Logger
}

// New prepares the artifact directory and the collaborators of the merge
// engine. An unusable directory or fetch configuration is reported as a
// *config.Error.
func New(ctx context.Context, cfg *config.Root) (*Manager, error) {
	if cfg.Assets.BasePath == "" {
		return nil, &config.Error{Field: "assets.base_path", Err: errors.New("asset directory is not set")}
	}

	store, err := cache.New(filepath.Join(cfg.Assets.BasePath, ArtifactDir))
	if err != nil {
		return nil, err
	}

	fetcher, err := fetch.New(cfg.Fetch)
	if err != nil {
		return nil, err
	}

	engine, err := merge.New(cfg, store, fetcher)
	if err != nil {
		return nil, err
	}

	publisher, err := storage.New(ctx, cfg.ObjectStorage)
	if err != nil {
		return nil, err
	}
	if publisher != nil {
		engine.WithPublisher(publisher)
	}

	return &Manager{cfg: cfg, engine: engine, fetcher: fetcher, log: logging.NewNop()}, nil
}

func (m *Manager) WithLogger(log *logging.Logger) *Manager {
	m.log = log
	m.engine.WithLogger(log)
	return m
}

func (m *Manager) Config() *config.Root {
	return m.cfg
}

func (m *Manager) Engine() *merge.Engine {
	return m.engine
}

// Close releases idle connections to the origin.
func (m *Manager) Close() {
	m.fetcher.Close()
}

// RequestFromHTTP derives the merge inputs of a render from the request that
// triggered it: whether it is an AJAX request, and the scripts the client
// reports as already loaded.
func RequestFromHTTP(r *http.Request) merge.Request {
	return merge.Request{
		XHR:      r.Header.Get("X-Requested-With") == "XMLHttpRequest",
		Manifest: manifest.FromRequest(r),
	}
}
