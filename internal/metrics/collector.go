package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector manages Prometheus metrics for the scan pipeline
type Collector struct {
	scansTotal       *prometheus.CounterVec
	scanDuration     prometheus.Histogram
	probesTotal      *prometheus.CounterVec
	analysisAttempts prometheus.Counter
	ledgerWrites     *prometheus.CounterVec
}

// NewCollector registers pipeline metrics on the given registerer
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		scansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadguard_scans_total",
			Help: "Completed scans by outcome (verdict value or error class)",
		}, []string{"outcome"}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadguard_scan_duration_seconds",
			Help:    "End-to-end scan pipeline duration",
			Buckets: prometheus.DefBuckets,
		}),
		probesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadguard_domain_probes_total",
			Help: "Registry probes by result",
		}, []string{"result"}),
		analysisAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadguard_analysis_attempts_total",
			Help: "Individual attempts against the analysis endpoint",
		}),
		ledgerWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadguard_ledger_writes_total",
			Help: "Best-effort ledger writes by result",
		}, []string{"result"}),
	}
}

// ObserveScan records one finished scan
func (c *Collector) ObserveScan(outcome string, duration time.Duration) {
	c.scansTotal.WithLabelValues(outcome).Inc()
	c.scanDuration.Observe(duration.Seconds())
}

// ObserveProbe records one registry probe result
func (c *Collector) ObserveProbe(failed bool) {
	result := "ok"
	if failed {
		result = "failed"
	}
	c.probesTotal.WithLabelValues(result).Inc()
}

// ObserveAnalysisAttempt counts one attempt against the analysis endpoint
func (c *Collector) ObserveAnalysisAttempt() {
	c.analysisAttempts.Inc()
}

// ObserveLedgerWrite records one best-effort ledger write
func (c *Collector) ObserveLedgerWrite(err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	c.ledgerWrites.WithLabelValues(result).Inc()
}
