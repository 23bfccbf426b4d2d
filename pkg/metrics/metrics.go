package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var HistogramBuckets = []float64{
	// --- Fast responses (0 - 500ms) ---
	25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Medium responses (500ms - 2s) ---
	750, 1000, 1250, 1500, 1750, 2000,

	// --- Slow responses (2s - 15s), gateway calls live here ---
	2500, 3000, 4000, 5000, 7500, 10000, 15000,

	// --- Timeouts ---
	20000, 30000, 60000,
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	switch m.Type {
	case "counter_vec":
		return prometheus.NewCounterVec(prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case "gauge_vec":
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case "histogram_vec":
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets}, m.Args)
	case "summary_vec":
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	}
	return nil
}

// register registers c, reusing an already registered collector of the same
// shape so repeated construction (tests, fx restarts) does not panic.
func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
	}
	return c
}

var MetricsBusinessProcess = &Metric{
	ID:          "bpDur",
	Name:        "bp_dur",
	Description: "process latency in milliseconds",
	Type:        "histogram_vec",
	Args:        []string{"type", "subtype"},
}

var MetricsBillingTransitions = &Metric{
	ID:          "billingTransitions",
	Name:        "billing_transitions_total",
	Description: "billing state machine transitions partitioned by outcome",
	Type:        "counter_vec",
	Args:        []string{"transition", "outcome"},
}

const (
	RefererKey = "X-Referer"

	ProcessTypeGateway   = "gateway"
	ProcessTypeBilling   = "billing"
	ProcessTypeJob       = "job"
	ProcessTypeExecution = "execution"
)

// Recorder records business metrics. A nil *Recorder is a no-op.
type Recorder struct {
	process     *prometheus.HistogramVec
	transitions *prometheus.CounterVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	return &Recorder{
		process:     register(reg, NewMetric(MetricsBusinessProcess, "")).(*prometheus.HistogramVec),
		transitions: register(reg, NewMetric(MetricsBillingTransitions, "")).(*prometheus.CounterVec),
	}
}

// ObserveProcess records the time since start under bp_dur{type,subtype}.
func (r *Recorder) ObserveProcess(typ, subtype string, start time.Time) {
	if r == nil {
		return
	}
	r.process.WithLabelValues(typ, subtype).Observe(MillisecondsSince(start))
}

func (r *Recorder) IncTransition(transition string, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.transitions.WithLabelValues(transition, outcome).Inc()
}

func MillisecondsSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}

func newDefaultRecorder() *Recorder {
	return NewRecorder(prometheus.DefaultRegisterer)
}

var Module = fx.Options(
	fx.Provide(newDefaultRecorder),
)
