package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mergeBuckets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetpack_merge_buckets_total",
			Help: "Number of merge buckets processed, by artifact kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	fetchFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetpack_fetch_failed_total",
			Help: "Number of member or resource fetches that failed",
		},
		[]string{"kind"},
	)

	artifactBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetpack_artifact_build_duration_seconds",
			Help:    "Artifact build duration in seconds, from first fetch to cache write",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	lastArtifactBuild = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assetpack_last_artifact_build_timestamp",
			Help: "Unix timestamp of when the last artifact of a kind was written",
		},
		[]string{"kind"},
	)
)

// Bucket outcomes.
const (
	OutcomePassThrough = "pass_through"
	OutcomeHit         = "hit"
	OutcomeBuilt       = "built"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeWriteFailed = "write_failed"
)

func MergeBucket(kind, outcome string) {
	mergeBuckets.WithLabelValues(kind, outcome).Inc()
}

func FetchFailed(kind string) {
	fetchFailed.WithLabelValues(kind).Inc()
}

func ArtifactBuilt(kind string, startTime time.Time) {
	artifactBuildDuration.WithLabelValues(kind).Observe(time.Since(startTime).Seconds())
	lastArtifactBuild.WithLabelValues(kind).SetToCurrentTime()
}
