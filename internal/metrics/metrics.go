// Package metrics exposes Prometheus metrics for the monitoring workers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/timmy/linkwatch/internal/domain"
)

// Namespace is the namespace for all linkwatch metrics.
const Namespace = "linkwatch"

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// Collection metrics
	CollectionsTotal   *prometheus.CounterVec
	CollectionDuration *prometheus.HistogramVec
	ItemsDiscovered    *prometheus.CounterVec
	ItemsNew           *prometheus.CounterVec

	// Credential metrics
	CredentialSelections *prometheus.CounterVec
	CredentialFailures   *prometheus.CounterVec
	CredentialBurns      *prometheus.CounterVec

	// Browser metrics
	SessionsOpen   prometheus.Gauge
	SessionsOpened *prometheus.CounterVec
	LaunchFailures *prometheus.CounterVec
	ReapedTotal    prometheus.Counter

	// Worker metrics
	SchedulerRunning prometheus.Gauge
	SchedulerCycles  prometheus.Counter
	OperationsTotal  *prometheus.CounterVec
}

// New creates and registers all metrics on reg (DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initCollectionMetrics(factory)
	m.initCredentialMetrics(factory)
	m.initBrowserMetrics(factory)
	m.initWorkerMetrics(factory)

	return m
}

func (m *Metrics) initCollectionMetrics(factory promauto.Factory) {
	m.CollectionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "collector",
			Name:      "collections_total",
			Help:      "Account collections by worker, provider and result",
		},
		[]string{"worker", "provider", "result"},
	)
	m.CollectionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "collector",
			Name:      "collection_duration_seconds",
			Help:      "Duration of one account collection",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider"},
	)
	m.ItemsDiscovered = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "collector",
			Name:      "items_discovered_total",
			Help:      "Item URLs returned by fetchers",
		},
		[]string{"provider"},
	)
	m.ItemsNew = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "collector",
			Name:      "items_new_total",
			Help:      "Item URLs recorded for the first time",
		},
		[]string{"provider"},
	)
}

func (m *Metrics) initCredentialMetrics(factory promauto.Factory) {
	m.CredentialSelections = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "credentials",
			Name:      "selections_total",
			Help:      "Credential selections by provider",
		},
		[]string{"provider"},
	)
	m.CredentialFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "credentials",
			Name:      "failures_total",
			Help:      "Credential failures recorded by provider",
		},
		[]string{"provider"},
	)
	m.CredentialBurns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "credentials",
			Name:      "burns_total",
			Help:      "Credentials burnt by provider",
		},
		[]string{"provider"},
	)
}

func (m *Metrics) initBrowserMetrics(factory promauto.Factory) {
	m.SessionsOpen = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "browser",
		Name:      "sessions_open",
		Help:      "Browser sessions currently acquired",
	})
	m.SessionsOpened = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "browser",
			Name:      "sessions_opened_total",
			Help:      "Browser sessions opened by launch strategy",
		},
		[]string{"strategy"},
	)
	m.LaunchFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "browser",
			Name:      "launch_failures_total",
			Help:      "Failed browser launches by strategy",
		},
		[]string{"strategy"},
	)
	m.ReapedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "browser",
		Name:      "processes_reaped_total",
		Help:      "Browser processes terminated by force cleanup",
	})
}

func (m *Metrics) initWorkerMetrics(factory promauto.Factory) {
	m.SchedulerRunning = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "running",
		Help:      "1 while the round-robin scheduler is running",
	})
	m.SchedulerCycles = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "cycles_total",
		Help:      "Completed scheduler cycles",
	})
	m.OperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "operations_total",
			Help:      "On-demand operations by final status",
		},
		[]string{"status"},
	)
}

// CredentialSelected implements credential.Observer.
func (m *Metrics) CredentialSelected(p domain.Provider) {
	m.CredentialSelections.WithLabelValues(string(p)).Inc()
}

// CredentialFailed implements credential.Observer.
func (m *Metrics) CredentialFailed(p domain.Provider) {
	m.CredentialFailures.WithLabelValues(string(p)).Inc()
}

// CredentialBurnt implements credential.Observer.
func (m *Metrics) CredentialBurnt(p domain.Provider) {
	m.CredentialBurns.WithLabelValues(string(p)).Inc()
}

// SessionOpened implements browser.Observer.
func (m *Metrics) SessionOpened(strategy string) {
	m.SessionsOpen.Inc()
	m.SessionsOpened.WithLabelValues(strategy).Inc()
}

// SessionClosed implements browser.Observer.
func (m *Metrics) SessionClosed() {
	m.SessionsOpen.Dec()
}

// LaunchFailed implements browser.Observer.
func (m *Metrics) LaunchFailed(strategy string) {
	m.LaunchFailures.WithLabelValues(strategy).Inc()
}

// ProcessesReaped implements browser.Observer.
func (m *Metrics) ProcessesReaped(n int) {
	m.ReapedTotal.Add(float64(n))
}

// ObserveCollection records the outcome of one account collection.
func (m *Metrics) ObserveCollection(worker string, p domain.Provider, err error, found, fresh int, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.CollectionsTotal.WithLabelValues(worker, string(p), result).Inc()
	m.CollectionDuration.WithLabelValues(string(p)).Observe(elapsed.Seconds())
	m.ItemsDiscovered.WithLabelValues(string(p)).Add(float64(found))
	m.ItemsNew.WithLabelValues(string(p)).Add(float64(fresh))
}

// SetSchedulerRunning records the scheduler run state.
func (m *Metrics) SetSchedulerRunning(running bool) {
	if running {
		m.SchedulerRunning.Set(1)
		return
	}
	m.SchedulerRunning.Set(0)
}

// SchedulerCycleCompleted counts one full pass over the eligible accounts.
func (m *Metrics) SchedulerCycleCompleted() {
	m.SchedulerCycles.Inc()
}

// OperationFinished counts an on-demand operation reaching a terminal status.
func (m *Metrics) OperationFinished(status domain.OperationStatus) {
	m.OperationsTotal.WithLabelValues(string(status)).Inc()
}
