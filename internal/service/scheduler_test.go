package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/linkwatch/internal/browser"
	"github.com/timmy/linkwatch/internal/domain"
)

func TestSchedulerCycleVisitsActiveAndErroredSkipsPaused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")

	a := h.addAccount(t, "https://x.com/alpha", domain.AccountStatusActive)
	b := h.addAccount(t, "https://x.com/bravo", domain.AccountStatusError)
	c := h.addAccount(t, "https://x.com/charlie", domain.AccountStatusPaused)

	h.fetcher.set(a.URL, []string{"https://x.com/alpha/status/1", "https://x.com/alpha/status/2"}, nil)
	h.fetcher.set(b.URL, []string{"https://twitter.com/bravo/status/9?s=20"}, nil)
	h.fetcher.set(c.URL, []string{"https://x.com/charlie/status/5"}, nil)

	visited, err := h.newScheduler(failOnFatal(t)).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, visited)
	assert.Equal(t, []string{a.URL, b.URL}, h.fetcher.calledWith())

	assert.Equal(t, domain.AccountStatusActive, h.account(t, a.ID).Status)
	bravo := h.account(t, b.ID)
	assert.Equal(t, domain.AccountStatusActive, bravo.Status)
	assert.Empty(t, bravo.LastError)
	assert.NotNil(t, bravo.LastCheckedAt)
	assert.Equal(t, domain.AccountStatusPaused, h.account(t, c.ID).Status)

	items, total, err := h.items.ListByAccount(ctx, b.ID, 10, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, "https://x.com/bravo/status/9", items[0].URL)

	n, err := h.items.CountByAccount(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Zero(t, h.sessions.Outstanding())
}

func TestSchedulerRepeatedCyclesRecordItemsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")
	a := h.addAccount(t, "https://x.com/alpha", domain.AccountStatusActive)
	h.fetcher.set(a.URL, []string{"https://x.com/alpha/status/1", "https://x.com/alpha/status/2"}, nil)

	s := h.newScheduler(failOnFatal(t))
	_, err := s.RunOnce(ctx)
	require.NoError(t, err)

	h.fetcher.set(a.URL, []string{"https://x.com/alpha/status/3", "https://x.com/alpha/status/1/"}, nil)
	_, err = s.RunOnce(ctx)
	require.NoError(t, err)

	n, err := h.items.CountByAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestSchedulerFailureIsolatedToAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")

	a := h.addAccount(t, "https://x.com/alpha", domain.AccountStatusActive)
	b := h.addAccount(t, "https://x.com/bravo", domain.AccountStatusActive)
	h.fetcher.set(a.URL, nil, errors.New("rate limited"))
	h.fetcher.set(b.URL, []string{"https://x.com/bravo/status/1"}, nil)

	visited, err := h.newScheduler(failOnFatal(t)).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, visited)

	alpha := h.account(t, a.ID)
	assert.Equal(t, domain.AccountStatusError, alpha.Status)
	assert.Contains(t, alpha.LastError, "rate limited")
	assert.Equal(t, domain.AccountStatusActive, h.account(t, b.ID).Status)

	// The failure counted against the credential, the success after it reset it.
	stats, err := h.creds.Stats(ctx, domain.ProviderX)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveCount)
	assert.Empty(t, stats.Failures)

	assert.Zero(t, h.sessions.Outstanding())
}

func TestSchedulerWithoutCredentialMarksAccountError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.addAccount(t, "https://x.com/alpha", domain.AccountStatusActive)

	_, err := h.newScheduler(failOnFatal(t)).RunOnce(ctx)
	require.NoError(t, err)

	alpha := h.account(t, a.ID)
	assert.Equal(t, domain.AccountStatusError, alpha.Status)
	assert.Contains(t, alpha.LastError, domain.ErrCredentialExhausted.Error())
	assert.Empty(t, h.fetcher.calledWith())
}

func TestSingleCredentialBurnsAfterThreeFailedCycles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "only.txt")
	a := h.addAccount(t, "https://x.com/alpha", domain.AccountStatusActive)
	h.fetcher.set(a.URL, nil, errors.New("login required"))

	s := h.newScheduler(failOnFatal(t))
	for i := 0; i < 3; i++ {
		_, err := s.RunOnce(ctx)
		require.NoError(t, err)
	}

	stats, err := h.creds.Stats(ctx, domain.ProviderX)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ActiveCount)
	assert.Equal(t, []string{"only.txt"}, stats.Burnt)

	_, err = h.creds.Select(ctx, domain.ProviderX)
	assert.ErrorIs(t, err, domain.ErrCredentialExhausted)

	_, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Contains(t, h.account(t, a.ID).LastError, domain.ErrCredentialExhausted.Error())
	assert.Len(t, h.fetcher.calledWith(), 3)
}

func TestSchedulerStartStopPersistsStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")
	s := h.newScheduler(failOnFatal(t))

	resumed, err := s.ResumeIfRunning(ctx)
	require.NoError(t, err)
	assert.False(t, resumed)

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.Running())

	value, ok, err := h.settings.Get(ctx, domain.SettingSchedulerStatus)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.SchedulerRunning, value)

	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Running())

	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, domain.SchedulerStopped, status.PersistedStatus)
}

func TestSchedulerResumesAfterRestart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")
	a := h.addAccount(t, "https://x.com/alpha", domain.AccountStatusActive)
	h.fetcher.set(a.URL, []string{"https://x.com/alpha/status/1"}, nil)

	require.NoError(t, h.settings.Set(ctx, domain.SettingSchedulerStatus, domain.SchedulerRunning))

	s := h.newScheduler(failOnFatal(t))
	resumed, err := s.ResumeIfRunning(ctx)
	require.NoError(t, err)
	assert.True(t, resumed)

	require.Eventually(t, func() bool {
		n, err := h.items.CountByAccount(ctx, a.ID)
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(ctx))
	assert.Zero(t, h.sessions.Outstanding())

	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, status.Cycles, int64(1))
	assert.NotNil(t, status.LastCycleAt)
}

func TestSchedulerStopDuringFetchDoesNotBlameCredential(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")
	a := h.addAccount(t, "https://x.com/alpha", domain.AccountStatusActive)
	h.fetcher.set(a.URL, nil, errors.New("navigation aborted"))

	s := h.newScheduler(failOnFatal(t))
	entered := make(chan struct{})
	release := make(chan struct{})
	var once bool
	h.fetcher.during = func(*browser.Session) {
		if once {
			return
		}
		once = true
		close(entered)
		<-release
	}

	require.NoError(t, s.Start(ctx))
	<-entered

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(ctx) }()

	// Stop force-releases the session before waiting for the worker.
	require.Eventually(t, func() bool { return h.sessions.Outstanding() == 0 }, 5*time.Second, 5*time.Millisecond)
	close(release)
	require.NoError(t, <-stopped)

	stats, err := h.creds.Stats(ctx, domain.ProviderX)
	require.NoError(t, err)
	assert.Empty(t, stats.Failures)
	assert.Equal(t, domain.AccountStatusActive, h.account(t, a.ID).Status)
}

func TestSchedulerHaltKeepsPersistedStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")
	s := h.newScheduler(failOnFatal(t))

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Halt(ctx))
	assert.False(t, s.Running())

	value, ok, err := h.settings.Get(ctx, domain.SettingSchedulerStatus)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.SchedulerRunning, value)

	restarted := h.newScheduler(failOnFatal(t))
	resumed, err := restarted.ResumeIfRunning(ctx)
	require.NoError(t, err)
	assert.True(t, resumed)
	require.NoError(t, restarted.Stop(ctx))
}

func TestSchedulerForcedCleanupLeavesAccountAlone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")
	a := h.addAccount(t, "https://x.com/alpha", domain.AccountStatusActive)
	h.fetcher.set(a.URL, nil, errors.New("target closed"))
	h.fetcher.during = func(*browser.Session) {
		_, err := h.sessions.ForceReleaseAll(ctx)
		assert.NoError(t, err)
	}

	s := h.newScheduler(failOnFatal(t))
	visited, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, visited)

	alpha := h.account(t, a.ID)
	assert.Equal(t, domain.AccountStatusActive, alpha.Status)
	assert.Empty(t, alpha.LastError)
	assert.Nil(t, alpha.LastCheckedAt)

	stats, err := h.creds.Stats(ctx, domain.ProviderX)
	require.NoError(t, err)
	assert.Empty(t, stats.Failures)
	assert.Zero(t, h.sessions.Outstanding())

	// The next cycle checks the account normally.
	h.fetcher.during = nil
	h.fetcher.set(a.URL, []string{"https://x.com/alpha/status/1"}, nil)
	_, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.NotNil(t, h.account(t, a.ID).LastCheckedAt)
}
