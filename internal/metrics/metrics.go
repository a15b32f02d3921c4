package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbobulk_jobs_submitted_total",
			Help: "Total number of bulk jobs submitted, by kind.",
		},
		[]string{"kind"},
	)

	jobsTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbobulk_jobs_terminal_total",
			Help: "Total number of bulk jobs observed reaching a terminal status.",
		},
		[]string{"status"},
	)

	jobPollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "turbobulk_job_polls_total",
		Help: "Total number of job status polls issued.",
	})

	jobWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "turbobulk_job_wait_seconds",
		Help:    "Wall time spent waiting for jobs to reach a terminal status.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	exportOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turbobulk_export_outcomes_total",
			Help: "Export cache negotiation outcomes.",
		},
		[]string{"outcome"},
	)

	downloadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "turbobulk_download_bytes_total",
		Help: "Total bytes of export files downloaded.",
	})
)

// JobSubmitted records a job submission of the given kind (load, delete,
// export).
func JobSubmitted(kind string) {
	jobsSubmittedTotal.WithLabelValues(kind).Inc()
}

// JobTerminal records a job reaching the given terminal status.
func JobTerminal(status string) {
	jobsTerminalTotal.WithLabelValues(status).Inc()
}

// PollObserved records a single job status poll.
func PollObserved() {
	jobPollsTotal.Inc()
}

// JobWaitObserved records the total wait for one job in seconds.
func JobWaitObserved(seconds float64) {
	jobWaitSeconds.Observe(seconds)
}

// ExportOutcome records one export cache negotiation outcome.
func ExportOutcome(outcome string) {
	exportOutcomesTotal.WithLabelValues(outcome).Inc()
}

// AddDownloadBytes records bytes downloaded from the export file endpoint.
func AddDownloadBytes(n int64) {
	downloadBytesTotal.Add(float64(n))
}

// CacheCounter is the subset of the local cache store needed to report cache
// index sizes.
type CacheCounter interface {
	CountByModel() (map[string]int, error)
}

// cacheCollector queries the local export-cache index on each scrape.
type cacheCollector struct {
	store       CacheCounter
	entriesDesc *prometheus.Desc
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entriesDesc
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.store.CountByModel()
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.entriesDesc, err)
		return
	}
	for model, n := range counts {
		ch <- prometheus.MustNewConstMetric(
			c.entriesDesc,
			prometheus.GaugeValue,
			float64(n),
			model,
		)
	}
}

// Register registers all metrics with the default Prometheus registry.
// Call once at startup. store may be nil when no local cache index is open.
func Register(store CacheCounter) {
	prometheus.MustRegister(
		// Standard Go runtime and process metrics
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),

		// Bulk job client metrics
		jobsSubmittedTotal,
		jobsTerminalTotal,
		jobPollsTotal,
		jobWaitSeconds,
		exportOutcomesTotal,
		downloadBytesTotal,
	)
	if store != nil {
		prometheus.MustRegister(&cacheCollector{
			store: store,
			entriesDesc: prometheus.NewDesc(
				"turbobulk_export_cache_entries",
				"Entries in the local export cache index, partitioned by model.",
				[]string{"model"},
				nil,
			),
		})
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
