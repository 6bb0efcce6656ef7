package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"prboard/internal/model"
)

// Metrics holds the dashboard's collectors on a private registry. There is no
// scrape endpoint; the registry is dumped to a node_exporter textfile on exit.
type Metrics struct {
	Registry *prometheus.Registry

	APICalls       *prometheus.CounterVec
	APIDuration    *prometheus.HistogramVec
	QuotaRemaining *prometheus.GaugeVec
	QuotaLimit     *prometheus.GaugeVec
	Enrichments    *prometheus.CounterVec
	Actions        *prometheus.CounterVec
	Refreshes      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		APICalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prboard_api_calls_total",
			Help: "GitHub API calls by operation and outcome",
		}, []string{"op", "outcome"}),
		APIDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prboard_api_call_duration_ms",
			Help:    "GitHub API call duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"op"}),
		QuotaRemaining: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "prboard_rate_limit_remaining",
			Help: "Remaining API quota as last reported",
		}, []string{"resource"}),
		QuotaLimit: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "prboard_rate_limit_limit",
			Help: "API quota limit as last reported",
		}, []string{"resource"}),
		Enrichments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prboard_ci_enrichments_total",
			Help: "Per pull request CI enrichments by resulting state",
		}, []string{"state"}),
		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prboard_actions_total",
			Help: "Action phase transitions",
		}, []string{"command", "phase"}),
		Refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prboard_refreshes_total",
			Help: "Dashboard refreshes by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveCall matches forge.CallObserver.
func (m *Metrics) ObserveCall(op, outcome string, elapsed time.Duration) {
	m.APICalls.WithLabelValues(op, outcome).Inc()
	m.APIDuration.WithLabelValues(op).Observe(float64(elapsed.Milliseconds()))
}

// ObserveQuota matches quota.Observer.
func (m *Metrics) ObserveQuota(rl model.RateLimit) {
	resource := rl.Resource
	if resource == "" {
		resource = "unknown"
	}
	m.QuotaRemaining.WithLabelValues(resource).Set(float64(rl.Remaining))
	m.QuotaLimit.WithLabelValues(resource).Set(float64(rl.Limit))
}

func (m *Metrics) ObserveEnrichment(state model.CIState) {
	m.Enrichments.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) ObserveAction(command, phase string) {
	m.Actions.WithLabelValues(command, phase).Inc()
}

func (m *Metrics) ObserveRefresh(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes every collected metric to path in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return errors.Wrapf(err, "write metrics to %s", path)
	}
	return nil
}
