package main

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/assetpack/assetpack/internal/metrics"
	"github.com/assetpack/assetpack/internal/pool"
	"github.com/assetpack/assetpack/internal/server"
)

const defaultAddr = ":8080"

var (
	serveAddr         string
	servePages        string
	serveWarmInterval time.Duration
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve artifacts, the render API and metrics",
		Long: `The serve command serves the artifact directory under /nls/, a render API
under /v1/ and Prometheus metrics under /metrics. The cache size is sampled
periodically. With --pages, the listed pages are warmed at start, every
--warm-interval and on POST /v1/warm.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default service.addr or "+defaultAddr+")")
	cmd.Flags().StringVar(&servePages, "pages", "", "Pages file to keep warm")
	cmd.Flags().DurationVar(&serveWarmInterval, "warm-interval", time.Hour, "Interval between warm runs")
	rootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, log, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	cfg := m.Config()
	store := m.Engine().Store()

	jobs := pool.New(ctx, 2)
	jobs.Every("cache-sample", time.Duration(cfg.Cache.SampleInterval), func(context.Context) {
		stats, err := store.Stats()
		if err != nil {
			log.Warnf("failed to sample artifact cache: %v", err)
			return
		}
		metrics.CacheSampled(stats.Artifacts, stats.Bytes)
	})

	srv := server.New().WithManager(m).WithLogger(log)

	if servePages != "" {
		pages, err := loadPages(servePages)
		if err != nil {
			return err
		}

		jobs.Add(server.WarmJob, func(ctx context.Context) time.Time {
			if _, err := m.Warm(ctx, pages, nil); err != nil {
				log.Errorf("failed to warm pages: %v", err)
			}
			return time.Now().Add(serveWarmInterval)
		})
		srv = srv.WithJobs(jobs)
	}

	var addr string
	if cfg.Service != nil {
		srv = srv.WithPrefix(cfg.Service.ApiPrefix)
		addr = cfg.Service.Addr
	}

	httpServer := &http.Server{
		Addr:              cmp.Or(serveAddr, addr, defaultAddr),
		Handler:           srv.Init().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("Listening on %s.", httpServer.Addr)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	jobs.Wait()
	return nil
}
