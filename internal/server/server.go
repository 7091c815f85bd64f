// Package server exposes the artifact directory, the render pipeline and the
// metrics of a Manager over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/assetpack/assetpack/internal/cache"
	"github.com/assetpack/assetpack/internal/logging"
	"github.com/assetpack/assetpack/pkg/clientscript"
)

// WarmJob is the name of the pool job rebuilding the configured pages.
const WarmJob = "warm"

type Triggerer interface {
	Trigger(name string) error
}

type Server struct {
	router  *http.ServeMux
	manager *clientscript.Manager
	jobs    Triggerer
	log     *logging.Logger
	prefix  string
	readyFn func(context.Context) error
}

func New() *Server {
	return &Server{log: logging.NewNop()}
}

func (s *Server) WithRouter(router *http.ServeMux) *Server {
	s.router = router
	return s
}

func (s *Server) WithManager(m *clientscript.Manager) *Server {
	s.manager = m
	return s
}

// WithJobs enables the warm endpoint.
func (s *Server) WithJobs(jobs Triggerer) *Server {
	s.jobs = jobs
	return s
}

func (s *Server) WithLogger(log *logging.Logger) *Server {
	s.log = log
	return s
}

// WithPrefix mounts every endpoint under prefix, e.g. "/assetpack".
func (s *Server) WithPrefix(prefix string) *Server {
	s.prefix = prefix
	return s
}

func (s *Server) WithReadyFn(fn func(context.Context) error) *Server {
	s.readyFn = fn
	return s
}

func (s *Server) Init() *Server {
	if s.router == nil {
		s.router = http.NewServeMux()
	}

	if s.readyFn == nil {
		s.readyFn = func(context.Context) error {
			_, err := s.manager.Engine().Store().Stats()
			return err
		}
	}

	store := s.manager.Engine().Store()
	artifacts := s.prefix + "/" + clientscript.ArtifactDir + "/"

	s.router.Handle("GET "+artifacts, http.StripPrefix(artifacts, artifactHandler(store)))
	s.router.Handle("GET "+s.prefix+"/metrics", promhttp.Handler())
	s.router.HandleFunc("GET "+s.prefix+"/health", s.health)
	s.router.HandleFunc("GET "+s.prefix+"/v1/artifacts", s.v1ArtifactsGet)
	s.router.HandleFunc("POST "+s.prefix+"/v1/render", s.v1RenderPost)
	s.router.HandleFunc("POST "+s.prefix+"/v1/warm", s.v1WarmPost)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// artifactHandler serves files of the store. Artifacts never change once
// written, so clients may cache them for good. Directories and dot files
// (build locks, temporary files) are not served.
func artifactHandler(store *cache.Store) http.Handler {
	files := http.FileServer(http.Dir(store.Dir()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !servable(r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		files.ServeHTTP(w, r)
	})
}

func servable(name string) bool {
	name = strings.TrimPrefix(name, "/")
	if name == "" || strings.HasSuffix(name, "/") {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.readyFn(r.Context()); err != nil {
		errorReply(w, http.StatusInternalServerError, err)
		return
	}
	jsonReply(w, http.StatusOK, map[string]any{})
}

type ArtifactsResponse struct {
	Artifacts int   `json:"artifacts"`
	Bytes     int64 `json:"bytes"`
}

func (s *Server) v1ArtifactsGet(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.manager.Engine().Store().Stats()
	if err != nil {
		errorReply(w, http.StatusInternalServerError, err)
		return
	}
	jsonReply(w, http.StatusOK, ArtifactsResponse{Artifacts: stats.Artifacts, Bytes: stats.Bytes})
}

type RenderResponse struct {
	Head      string   `json:"head"`
	BodyBegin string   `json:"body_begin"`
	BodyEnd   string   `json:"body_end"`
	Scripts   []string `json:"scripts"`
	Styles    []string `json:"styles"`
}

// v1RenderPost renders a page described by the request body. XHR detection
// and the client manifest are taken from the request itself.
func (s *Server) v1RenderPost(w http.ResponseWriter, r *http.Request) {
	var spec clientscript.PageSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		errorReply(w, http.StatusBadRequest, err)
		return
	}

	page := s.manager.Page(clientscript.RequestFromHTTP(r))
	if err := page.Apply(spec); err != nil {
		errorReply(w, http.StatusBadRequest, err)
		return
	}

	f, err := page.Render(r.Context())
	if err != nil {
		s.log.Errorf("failed to render page %q: %v", spec.Name, err)
		errorReply(w, http.StatusInternalServerError, err)
		return
	}

	resp := RenderResponse{Head: f.Head, BodyBegin: f.BodyBegin, BodyEnd: f.BodyEnd, Scripts: []string{}, Styles: []string{}}
	for _, p := range append(page.Separated(), page) {
		for _, reg := range p.Scripts() {
			resp.Scripts = append(resp.Scripts, reg.URL)
		}
		for _, reg := range p.Styles() {
			resp.Styles = append(resp.Styles, reg.URL)
		}
	}
	jsonReply(w, http.StatusOK, resp)
}

func (s *Server) v1WarmPost(w http.ResponseWriter, _ *http.Request) {
	if s.jobs == nil {
		errorReply(w, http.StatusNotFound, errors.New("no pages configured for warming"))
		return
	}
	if err := s.jobs.Trigger(WarmJob); err != nil {
		errorReply(w, http.StatusNotFound, err)
		return
	}
	jsonReply(w, http.StatusAccepted, map[string]any{})
}

type ErrorResponse struct {
	Message string `json:"message"`
}

func errorReply(w http.ResponseWriter, code int, err error) {
	jsonReply(w, code, ErrorResponse{Message: err.Error()})
}

func jsonReply(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
