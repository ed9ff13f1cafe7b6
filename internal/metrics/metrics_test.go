package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/timmy/linkwatch/internal/domain"
)

func TestObservers(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CredentialSelected(domain.ProviderInstagram)
	m.CredentialFailed(domain.ProviderInstagram)
	m.CredentialBurnt(domain.ProviderInstagram)
	m.SessionOpened("preferred")
	m.SessionOpened("fallback")
	m.SessionClosed()
	m.ProcessesReaped(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CredentialSelections.WithLabelValues("instagram")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CredentialBurns.WithLabelValues("instagram")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsOpen))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ReapedTotal))
}

func TestObserveCollection(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCollection("scheduler", domain.ProviderX, nil, 5, 2, time.Second)
	m.ObserveCollection("queue", domain.ProviderX, errors.New("rate limited"), 0, 0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollectionsTotal.WithLabelValues("scheduler", "x", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollectionsTotal.WithLabelValues("queue", "x", "failure")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ItemsDiscovered.WithLabelValues("x")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ItemsNew.WithLabelValues("x")))
}

func TestWorkerMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetSchedulerRunning(true)
	m.SchedulerCycleCompleted()
	m.OperationFinished(domain.OperationStatusCompleted)
	m.OperationFinished(domain.OperationStatusFailed)
	m.OperationFinished(domain.OperationStatusFailed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerCycles))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("failed")))

	m.SetSchedulerRunning(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SchedulerRunning))
}
