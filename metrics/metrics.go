package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsGenerator interface {
	IncBuild(status string)
	IncPhantomCallGasFallback()

	IncSponsorship(outcome string)

	IncReceiptPoll()
	IncReceiptOutcome(outcome string)
}

// BuilderMetrics contains instrumented metrics that should be incremented by the userop builder using the methods below
type BuilderMetrics struct {
	numBuild                  *prometheus.CounterVec
	numPhantomCallGasFallback prometheus.Counter
	numSponsorship            *prometheus.CounterVec
	numReceiptPoll            prometheus.Counter
	numReceiptOutcome         *prometheus.CounterVec
}

const (
	apNamespace = "ap"
	apSubsystem = "userop_builder"
)

func NewBuilderMetrics(reg prometheus.Registerer) *BuilderMetrics {
	return &BuilderMetrics{
		numBuild: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Subsystem: apSubsystem,
				Name:      "builds_total",
				Help:      "The number of unsigned user operations built, by status",
			}, []string{"status"}),

		numPhantomCallGasFallback: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Subsystem: apSubsystem,
				Name:      "phantom_call_gas_fallback_total",
				Help:      "The number of times an undeployed account estimate was too low and the fallback call gas limit was used",
			}),

		numSponsorship: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Subsystem: apSubsystem,
				Name:      "sponsorship_total",
				Help:      "The number of paymaster sponsorship requests, by outcome (sponsored, declined, error)",
			}, []string{"outcome"}),

		numReceiptPoll: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Subsystem: apSubsystem,
				Name:      "receipt_polls_total",
				Help:      "The number of UserOperationEvent log queries issued while waiting for a receipt",
			}),

		numReceiptOutcome: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Subsystem: apSubsystem,
				Name:      "receipt_total",
				Help:      "The number of receipt waits, by outcome (found, timeout, error)",
			}, []string{"outcome"}),
	}
}

func (m *BuilderMetrics) IncBuild(status string) {
	m.numBuild.WithLabelValues(status).Inc()
}

func (m *BuilderMetrics) IncPhantomCallGasFallback() {
	m.numPhantomCallGasFallback.Inc()
}

func (m *BuilderMetrics) IncSponsorship(outcome string) {
	m.numSponsorship.WithLabelValues(outcome).Inc()
}

func (m *BuilderMetrics) IncReceiptPoll() {
	m.numReceiptPoll.Inc()
}

func (m *BuilderMetrics) IncReceiptOutcome(outcome string) {
	m.numReceiptOutcome.WithLabelValues(outcome).Inc()
}

// NoopMetrics discards everything. Used when no registerer is configured.
type NoopMetrics struct{}

func (NoopMetrics) IncBuild(string)            {}
func (NoopMetrics) IncPhantomCallGasFallback() {}
func (NoopMetrics) IncSponsorship(string)      {}
func (NoopMetrics) IncReceiptPoll()            {}
func (NoopMetrics) IncReceiptOutcome(string)   {}
