package api_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/linkwatch/internal/api"
	"github.com/timmy/linkwatch/internal/config"
	"github.com/timmy/linkwatch/internal/credential"
	"github.com/timmy/linkwatch/internal/dedup"
	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/logger"
	"github.com/timmy/linkwatch/internal/repository"
	"github.com/timmy/linkwatch/internal/repository/repotest"
	"github.com/timmy/linkwatch/internal/service"
)

type fakeQueue struct {
	mu        sync.Mutex
	submitted []string
	views     map[string]*service.OperationView
}

func (q *fakeQueue) Submit(_ context.Context, identifier string) (string, error) {
	if strings.Contains(identifier, "example.com") {
		return "", domain.ErrUnsupportedProvider
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submitted = append(q.submitted, identifier)
	return "op-1", nil
}

func (q *fakeQueue) Poll(_ context.Context, id string) (*service.OperationView, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if v, ok := q.views[id]; ok {
		return v, nil
	}
	return nil, domain.ErrOperationNotFound
}

type fakeScheduler struct {
	mu      sync.Mutex
	running bool
}

func (s *fakeScheduler) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	return nil
}

func (s *fakeScheduler) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *fakeScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *fakeScheduler) Status(context.Context) (*service.SchedulerStatus, error) {
	return &service.SchedulerStatus{Running: s.Running(), Accounts: map[domain.AccountStatus]int64{}}, nil
}

type fakeCredentials struct{}

func (fakeCredentials) Stats(_ context.Context, p domain.Provider) (*credential.Stats, error) {
	return &credential.Stats{Provider: p, ActiveCount: 2, Active: []string{"a.txt", "b.txt"}, Burnt: []string{}, Failures: map[string]int{}}, nil
}

func (c fakeCredentials) AllStats(ctx context.Context) ([]*credential.Stats, error) {
	out := make([]*credential.Stats, 0, len(domain.Providers))
	for _, p := range domain.Providers {
		st, _ := c.Stats(ctx, p)
		out = append(out, st)
	}
	return out, nil
}

type testServer struct {
	engine    http.Handler
	accounts  *repository.AccountRepository
	items     *repository.ItemRepository
	queue     *fakeQueue
	scheduler *fakeScheduler
}

func newTestServer(t *testing.T, schedulerEnabled bool) *testServer {
	t.Helper()
	db := repotest.NewDB(t)

	ts := &testServer{
		accounts:  repository.NewAccountRepository(db),
		items:     repository.NewItemRepository(db),
		queue:     &fakeQueue{views: map[string]*service.OperationView{}},
		scheduler: &fakeScheduler{},
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "linkwatch_test_total", Help: "test"}))

	ts.engine = api.SetupRouter(api.Dependencies{
		DB:          db,
		Accounts:    ts.accounts,
		Items:       ts.items,
		Exporter:    service.NewExporter(ts.accounts, ts.items, nil, ""),
		Queue:       ts.queue,
		Scheduler:   ts.scheduler,
		Credentials: fakeCredentials{},
		Gatherer:    registry,
		Logger:      logger.GetDefault(),
	}, config.ServerConfig{Mode: "test", CORS: config.CORSConfig{AllowedOrigins: []string{"http://dash.local"}}}, schedulerEnabled)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool                   `json:"success"`
	Body    map[string]interface{} `json:"body"`
	Error   *string                `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, true)
	w := ts.do(t, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["scheduler_running"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, true)
	w := ts.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "linkwatch_test_total")
}

func TestGetRecentQueuesOperation(t *testing.T) {
	ts := newTestServer(t, true)
	w := ts.do(t, http.MethodGet, "/get_recent/instagram.com/nasa", nil)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)
	assert.Nil(t, env.Error)
	assert.Equal(t, "op-1", env.Body["operation_id"])
	assert.Equal(t, []string{"instagram.com/nasa"}, ts.queue.submitted)
}

func TestGetRecentUnsupportedProvider(t *testing.T) {
	ts := newTestServer(t, true)
	w := ts.do(t, http.MethodGet, "/get_recent/https://example.com/someone", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Contains(t, *env.Error, "Unsupported platform")
	assert.Empty(t, env.Body)
}

func TestGetRecentResults(t *testing.T) {
	ts := newTestServer(t, true)
	done := time.Now().UTC()
	ts.queue.views["op-42"] = &service.OperationView{
		OperationID: "op-42",
		Status:      domain.OperationStatusCompleted,
		AccountURL:  "https://x.com/nasa",
		Provider:    domain.ProviderX,
		CompletedAt: &done,
		Links:       []string{"https://x.com/nasa/status/1"},
	}

	w := ts.do(t, http.MethodGet, "/get_recent/results/op-42", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)
	assert.Equal(t, "completed", env.Body["status"])
	assert.Equal(t, []interface{}{"https://x.com/nasa/status/1"}, env.Body["links"])
	assert.Empty(t, ts.queue.submitted)

	w = ts.do(t, http.MethodGet, "/get_recent/results/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	env = decodeEnvelope(t, w)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Contains(t, *env.Error, "missing")
}

func TestAccountLifecycle(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodPost, "/api/accounts", map[string]string{"url": "https://twitter.com/NASA?ref=home"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created domain.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, domain.ProviderX, created.Provider)
	assert.Equal(t, domain.AccountStatusActive, created.Status)

	w = ts.do(t, http.MethodPost, "/api/accounts", map[string]string{"url": created.URL})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/api/accounts", map[string]string{"url": "https://example.com/nobody"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/accounts", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	path := "/api/accounts/" + itoa(created.ID)
	w = ts.do(t, http.MethodPost, path+"/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var toggled domain.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &toggled))
	assert.Equal(t, domain.AccountStatusPaused, toggled.Status)

	w = ts.do(t, http.MethodGet, "/api/accounts?status=paused", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []domain.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	w = ts.do(t, http.MethodGet, "/api/accounts?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, http.MethodPost, path+"/toggle", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/accounts/abc/links", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkAddReportsRejectedEntries(t *testing.T) {
	ts := newTestServer(t, true)
	w := ts.do(t, http.MethodPost, "/api/accounts/bulk", map[string]interface{}{
		"accounts": []map[string]string{
			{"url": "https://www.tiktok.com/@creator"},
			{"url": "https://example.com/x"},
			{"url": "tiktok.com/@creator"},
			{"url": "https://t.me/durov"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		TotalAdded  int `json:"total_added"`
		TotalErrors int `json:"total_errors"`
		Errors      []struct {
			URL   string `json:"url"`
			Error string `json:"error"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalAdded)
	assert.Equal(t, 2, resp.TotalErrors)
	assert.Equal(t, "Unsupported platform", resp.Errors[0].Error)
	assert.Equal(t, "Account already exists", resp.Errors[1].Error)
}

func TestListAndExportLinks(t *testing.T) {
	ts := newTestServer(t, true)
	ctx := context.Background()
	acc := &domain.Account{URL: "https://x.com/nasa", Provider: domain.ProviderX, Username: "nasa"}
	require.NoError(t, ts.accounts.Create(ctx, acc))

	d := dedup.New(ts.items)
	for _, link := range []string{"https://x.com/nasa/status/1", "https://x.com/nasa/status/2", "https://x.com/nasa/status/3"} {
		_, err := d.RecordIfNew(ctx, acc.ID, link, nil)
		require.NoError(t, err)
	}

	path := "/api/accounts/" + itoa(acc.ID) + "/links"
	w := ts.do(t, http.MethodGet, path+"?page=1&per_page=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Links      []domain.DiscoveredItem `json:"links"`
		Pagination struct {
			Total   int64 `json:"total"`
			Pages   int   `json:"pages"`
			HasNext bool  `json:"has_next"`
			HasPrev bool  `json:"has_prev"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Links, 2)
	assert.EqualValues(t, 3, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.Pages)
	assert.True(t, page.Pagination.HasNext)
	assert.False(t, page.Pagination.HasPrev)

	w = ts.do(t, http.MethodGet, path+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "nasa_x_links_")
	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	w = ts.do(t, http.MethodPost, path+"/archive", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = ts.do(t, http.MethodGet, "/api/accounts/999/links", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSchedulerEndpoints(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodPost, "/api/scheduler/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, ts.scheduler.Running())

	w = ts.do(t, http.MethodGet, "/api/scheduler/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, true, status["running"])
	assert.Equal(t, true, status["enabled"])

	w = ts.do(t, http.MethodPost, "/api/scheduler/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, ts.scheduler.Running())
}

func TestSchedulerStartRejectedWhenDisabled(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(t, http.MethodPost, "/api/scheduler/start", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, ts.scheduler.Running())
}

func TestCredentialStats(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodGet, "/api/credentials/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []credential.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, len(domain.Providers))

	w = ts.do(t, http.MethodGet, "/api/credentials/stats?provider=tiktok", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, domain.ProviderTikTok, all[0].Provider)

	w = ts.do(t, http.MethodGet, "/api/credentials/stats?provider=myspace", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodOptions, "/api/accounts", nil)
	req.Header.Set("Origin", "http://dash.local")
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://dash.local", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.local")
	w = httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
