// Package metrics exposes the prometheus counters and histograms for the
// keygen/signing jobs, following the same registry + promhttp.Start shape
// drand uses for its own node metrics.
package metrics

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tangle-network/bls-blueprint/common/log"
)

// Registry is the single registry this service publishes under /metrics.
var Registry = prometheus.NewRegistry()

var (
	// JobsStarted counts keygen/signing jobs by job kind ("keygen"|"sign").
	JobsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bls_jobs_started_total",
		Help: "Number of keygen/signing jobs started",
	}, []string{"job"})

	// JobsFailed counts job failures by job kind and error kind.
	JobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bls_jobs_failed_total",
		Help: "Number of keygen/signing jobs that returned an error",
	}, []string{"job", "error_kind"})

	// JobDuration records wall-clock job duration by job kind.
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bls_job_duration_seconds",
		Help:    "Duration of a keygen/signing job from dispatch to result",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	// PartySetSize tracks the roster size (n) of the most recently completed
	// job, by job kind.
	PartySetSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bls_party_set_size",
		Help: "Number of parties (n) in the most recent job",
	}, []string{"job"})

	// StoreEntries tracks how many meta_hash entries the key-share store
	// currently holds.
	StoreEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bls_store_entries",
		Help: "Number of persisted key-share entries",
	})
)

var registerOnce sync.Once

func register() {
	registerOnce.Do(func() {
		Registry.MustRegister(
			JobsStarted,
			JobsFailed,
			JobDuration,
			PartySetSize,
			StoreEntries,
		)
	})
}

// Start serves /metrics on bind (host:port, or a bare port) and returns the
// listener so the caller can close it on shutdown.
func Start(logger log.Logger, bind string) net.Listener {
	register()

	if !strings.Contains(bind, ":") {
		bind = "127.0.0.1:" + bind
	}

	//nolint:noctx
	l, err := net.Listen("tcp", bind)
	if err != nil {
		logger.Warnw("metrics listener failed to start", "err", err)
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))

	srv := &http.Server{Addr: l.Addr().String(), ReadHeaderTimeout: 3 * time.Second, Handler: mux}
	go func() {
		logger.Warnw("metrics server stopped", "err", srv.Serve(l))
	}()

	logger.Infow("metrics listening", "addr", l.Addr())
	return l
}
