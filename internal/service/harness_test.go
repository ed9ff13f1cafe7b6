package service_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/timmy/linkwatch/internal/browser"
	"github.com/timmy/linkwatch/internal/credential"
	"github.com/timmy/linkwatch/internal/dedup"
	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/fetcher"
	"github.com/timmy/linkwatch/internal/logger"
	"github.com/timmy/linkwatch/internal/repository"
	"github.com/timmy/linkwatch/internal/repository/repotest"
	"github.com/timmy/linkwatch/internal/service"
)

// stubLauncher starts nothing; sessions are plain cancellable contexts.
type stubLauncher struct{}

func (stubLauncher) Launch(context.Context, browser.Strategy, string) (context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(context.Background())
	return ctx, cancel, nil
}

// scriptedFetcher serves canned links per account URL.
type scriptedFetcher struct {
	mu    sync.Mutex
	links map[string][]string
	errs  map[string]error
	calls []string
	// during runs inside the fetch, while the session is held.
	during func(session *browser.Session)
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{links: map[string][]string{}, errs: map[string]error{}}
}

func (f *scriptedFetcher) Provider() domain.Provider { return domain.ProviderX }
func (f *scriptedFetcher) NeedsSession() bool        { return true }
func (f *scriptedFetcher) NeedsCredential() bool     { return true }

func (f *scriptedFetcher) Fetch(_ context.Context, session *browser.Session, accountURL string, _ *credential.Handle, limit int) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, accountURL)
	during := f.during
	links, err := f.links[accountURL], f.errs[accountURL]
	f.mu.Unlock()

	if session == nil {
		return nil, fmt.Errorf("no session")
	}
	if during != nil {
		during(session)
	}
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	return links, nil
}

func (f *scriptedFetcher) set(accountURL string, links []string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[accountURL] = links
	if err != nil {
		f.errs[accountURL] = err
	} else {
		delete(f.errs, accountURL)
	}
}

func (f *scriptedFetcher) calledWith() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type harness struct {
	accounts   *repository.AccountRepository
	items      *repository.ItemRepository
	operations *repository.OperationRepository
	settings   *repository.SettingRepository
	creds      *credential.Store
	credDir    string
	sessions   *browser.Manager
	fetcher    *scriptedFetcher
	collector  *service.Collector
}

const cookieLine = ".x.com\tTRUE\t/\tTRUE\t0\tauth_token\tsecret\n"

func newHarness(t *testing.T, credentialNames ...string) *harness {
	t.Helper()
	ctx := context.Background()
	db := repotest.NewDB(t)

	h := &harness{
		accounts:   repository.NewAccountRepository(db),
		items:      repository.NewItemRepository(db),
		operations: repository.NewOperationRepository(db),
		settings:   repository.NewSettingRepository(db),
		credDir:    t.TempDir(),
		fetcher:    newScriptedFetcher(),
	}

	active := filepath.Join(h.credDir, string(domain.ProviderX), "active")
	require.NoError(t, os.MkdirAll(active, 0755))
	for _, name := range credentialNames {
		require.NoError(t, os.WriteFile(filepath.Join(active, name), []byte(cookieLine), 0644))
	}
	h.creds = credential.NewStore(repository.NewCredentialRepository(db), h.credDir)
	_, err := h.creds.Sync(ctx)
	require.NoError(t, err)

	h.sessions, err = browser.NewManager(browser.ManagerConfig{
		Launcher:    stubLauncher{},
		Strategies:  []browser.Strategy{{Name: "test"}},
		SessionRoot: t.TempDir(),
	})
	require.NoError(t, err)

	registry := fetcher.NewRegistry(0)
	registry.Register(h.fetcher)

	h.collector = service.NewCollector(h.creds, h.sessions, registry, dedup.New(h.items), nil, logger.GetDefault())
	return h
}

func (h *harness) addAccount(t *testing.T, url string, status domain.AccountStatus) *domain.Account {
	t.Helper()
	acc := &domain.Account{URL: url, Provider: domain.ProviderX, Status: status}
	require.NoError(t, h.accounts.Create(context.Background(), acc))
	return acc
}

func (h *harness) account(t *testing.T, id uint) *domain.Account {
	t.Helper()
	acc, err := h.accounts.GetByID(context.Background(), id)
	require.NoError(t, err)
	return acc
}

func (h *harness) newScheduler(onFatal func(error)) *service.Scheduler {
	return service.NewScheduler(h.accounts, h.settings, h.collector, h.sessions, nil, logger.GetDefault(), service.SchedulerConfig{
		Interval:      10 * time.Millisecond,
		AccountPacing: 5 * time.Millisecond,
		StopTimeout:   2 * time.Second,
		MaxItems:      func(domain.Provider) int { return 20 },
		OnFatal:       onFatal,
	})
}

func (h *harness) newQueue(onFatal func(error)) *service.Queue {
	return service.NewQueue(h.operations, h.accounts, h.collector, nil, logger.GetDefault(), service.QueueConfig{
		PollInterval: 10 * time.Millisecond,
		ResultCap:    5,
		StopTimeout:  2 * time.Second,
		OnFatal:      onFatal,
	})
}

func failOnFatal(t *testing.T) func(error) {
	return func(err error) {
		t.Errorf("unexpected fatal error: %v", err)
	}
}
