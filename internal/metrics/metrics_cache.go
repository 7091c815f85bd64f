package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheArtifacts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assetpack_cache_artifacts",
			Help: "Number of artifacts in the cache directory at the last sample",
		},
	)

	cacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assetpack_cache_bytes",
			Help: "Total size of the artifacts in the cache directory at the last sample",
		},
	)

	publishFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetpack_publish_failed_total",
			Help: "Number of artifact uploads to object storage that failed",
		},
		[]string{"storage"},
	)
)

func CacheSampled(artifacts int, bytes int64) {
	cacheArtifacts.Set(float64(artifacts))
	cacheBytes.Set(float64(bytes))
}

func PublishFailed(storage string) {
	publishFailed.WithLabelValues(storage).Inc()
}
