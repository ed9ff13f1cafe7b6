package service_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/linkwatch/internal/browser"
	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/repository"
)

func sevenPosts(user string) []string {
	links := make([]string, 0, 7)
	for i := 7; i >= 1; i-- {
		links = append(links, "https://x.com/"+user+"/status/"+strconv.Itoa(i))
	}
	return links
}

func TestQueueSubmitAndProcess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")
	h.fetcher.set("https://x.com/nasa", sevenPosts("nasa"), nil)
	q := h.newQueue(failOnFatal(t))

	id, err := q.Submit(ctx, "https://twitter.com/nasa/")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	view, err := q.Poll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusPending, view.Status)
	assert.Equal(t, "https://x.com/nasa", view.AccountURL)
	assert.Nil(t, view.Links)
	assert.Empty(t, view.Error)

	processed, err := q.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	view, err = q.Poll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusCompleted, view.Status)
	assert.Len(t, view.Links, 5)
	assert.Equal(t, "https://x.com/nasa/status/7", view.Links[0])
	assert.NotNil(t, view.CompletedAt)

	processed, err = q.ProcessNext(ctx)
	require.NoError(t, err)
	assert.False(t, processed)

	acc, err := h.accounts.GetByURL(ctx, "https://x.com/nasa")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusActive, acc.Status)
	assert.Zero(t, h.sessions.Outstanding())
}

func TestQueueDuplicateSubmitReusesAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")
	h.fetcher.set("https://x.com/nasa", []string{"https://x.com/nasa/status/1", "https://x.com/nasa/status/2"}, nil)
	q := h.newQueue(failOnFatal(t))

	first, err := q.Submit(ctx, "https://x.com/nasa")
	require.NoError(t, err)
	second, err := q.Submit(ctx, "x.com/nasa")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	for i := 0; i < 2; i++ {
		processed, err := q.ProcessNext(ctx)
		require.NoError(t, err)
		require.True(t, processed)
	}

	accounts, err := h.accounts.List(ctx, repository.AccountFilter{})
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	n, err := h.items.CountByAccount(ctx, accounts[0].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, id := range []string{first, second} {
		view, err := q.Poll(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.OperationStatusCompleted, view.Status)
		assert.Equal(t, []string{"https://x.com/nasa/status/1", "https://x.com/nasa/status/2"}, view.Links)
	}
}

func TestQueueProcessesInSubmissionOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")
	for _, u := range []string{"alpha", "bravo", "charlie"} {
		h.fetcher.set("https://x.com/"+u, nil, nil)
	}
	q := h.newQueue(failOnFatal(t))

	for _, u := range []string{"alpha", "bravo", "charlie"} {
		_, err := q.Submit(ctx, "https://x.com/"+u)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := q.ProcessNext(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"https://x.com/alpha", "https://x.com/bravo", "https://x.com/charlie"}, h.fetcher.calledWith())
}

func TestQueueRejectsUnsupportedIdentifier(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")
	q := h.newQueue(failOnFatal(t))

	_, err := q.Submit(ctx, "https://example.com/someone")
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)

	ops, err := h.operations.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestQueuePollUnknownOperation(t *testing.T) {
	h := newHarness(t)
	_, err := h.newQueue(failOnFatal(t)).Poll(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, domain.ErrOperationNotFound)
}

func TestQueueFailureMarksOperationAndAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")
	h.fetcher.set("https://x.com/nasa", nil, errors.New("account suspended"))
	q := h.newQueue(failOnFatal(t))

	id, err := q.Submit(ctx, "@nasa")
	require.NoError(t, err)

	// A bare handle resolves to Instagram, which has no fetcher here.
	_, err = q.ProcessNext(ctx)
	require.NoError(t, err)
	view, err := q.Poll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusFailed, view.Status)
	assert.Contains(t, view.Error, domain.ErrUnsupportedProvider.Error())

	id, err = q.Submit(ctx, "https://x.com/nasa")
	require.NoError(t, err)
	_, err = q.ProcessNext(ctx)
	require.NoError(t, err)

	view, err = q.Poll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusFailed, view.Status)
	assert.Contains(t, view.Error, "account suspended")
	assert.Nil(t, view.Links)

	acc, err := h.accounts.GetByURL(ctx, "https://x.com/nasa")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusError, acc.Status)
	assert.Contains(t, acc.LastError, "account suspended")
}

func TestQueueRecoverRequeuesInterruptedOperations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")
	h.fetcher.set("https://x.com/nasa", []string{"https://x.com/nasa/status/1"}, nil)
	q := h.newQueue(failOnFatal(t))

	id, err := q.Submit(ctx, "https://x.com/nasa")
	require.NoError(t, err)

	// Simulate a worker that claimed the operation and died.
	claimed, err := h.operations.ClaimNext(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	view, err := q.Poll(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.OperationStatusProcessing, view.Status)

	n, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	view, err = q.Poll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusPending, view.Status)
	assert.Nil(t, view.StartedAt)

	require.NoError(t, q.Start(ctx))
	defer func() { require.NoError(t, q.Stop(ctx)) }()

	require.Eventually(t, func() bool {
		view, err := q.Poll(ctx, id)
		return err == nil && view.Status == domain.OperationStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestQueueRequeuesWhenSessionIsForceReleased(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")
	h.fetcher.set("https://x.com/nasa", nil, errors.New("target closed"))
	q := h.newQueue(failOnFatal(t))

	h.fetcher.during = func(*browser.Session) {
		_, _ = h.sessions.ForceReleaseAll(ctx)
	}

	id, err := q.Submit(ctx, "https://x.com/nasa")
	require.NoError(t, err)
	_, err = q.ProcessNext(ctx)
	require.NoError(t, err)

	view, err := q.Poll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusPending, view.Status)

	stats, err := h.creds.Stats(ctx, domain.ProviderX)
	require.NoError(t, err)
	assert.Empty(t, stats.Failures)

	h.fetcher.during = nil
	h.fetcher.set("https://x.com/nasa", []string{"https://x.com/nasa/status/1"}, nil)
	_, err = q.ProcessNext(ctx)
	require.NoError(t, err)

	view, err = q.Poll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusCompleted, view.Status)
	assert.Zero(t, h.sessions.Outstanding())
}

func TestQueueWorkerWakesOnSubmit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "main.txt")
	h.fetcher.set("https://x.com/nasa", []string{"https://x.com/nasa/status/1"}, nil)
	q := h.newQueue(failOnFatal(t))

	require.NoError(t, q.Start(ctx))
	id, err := q.Submit(ctx, "https://x.com/nasa")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		view, err := q.Poll(ctx, id)
		return err == nil && view.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, q.Stop(ctx))
}
