package service_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/linkwatch/internal/dedup"
	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/service"
	"github.com/timmy/linkwatch/internal/storage"
)

type memoryArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{objects: map[string][]byte{}, types: map[string]string{}}
}

func (a *memoryArchive) Put(_ context.Context, key string, body io.ReadSeeker, _ int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = data
	a.types[key] = contentType
	return nil
}

func (a *memoryArchive) URL(key string) string { return "https://files.test/" + key }

func (a *memoryArchive) Exists(_ context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.objects[key]
	return ok, nil
}

func (a *memoryArchive) Delete(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	return nil
}

func seedItems(t *testing.T, h *harness, accountID uint, links ...string) {
	t.Helper()
	d := dedup.New(h.items)
	posted := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, link := range links {
		var postDate *time.Time
		if i == 0 {
			postDate = &posted
		}
		_, err := d.RecordIfNew(context.Background(), accountID, link, postDate)
		require.NoError(t, err)
	}
}

func TestExporterWriteCSV(t *testing.T) {
	h := newHarness(t)
	acc := h.addAccount(t, "https://x.com/alpha", domain.AccountStatusActive)
	seedItems(t, h, acc.ID, "https://x.com/alpha/status/1", "https://x.com/alpha/status/2")

	e := service.NewExporter(h.accounts, h.items, nil, "exports")
	assert.False(t, e.ArchiveEnabled())

	var buf bytes.Buffer
	n, err := e.WriteCSV(context.Background(), acc.ID, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"url", "discovered_at", "post_date"}, rows[0])

	byURL := map[string][]string{}
	for _, row := range rows[1:] {
		byURL[row[0]] = row
	}
	require.Contains(t, byURL, "https://x.com/alpha/status/1")
	assert.Equal(t, "2024-03-01T12:00:00Z", byURL["https://x.com/alpha/status/1"][2])
	assert.Empty(t, byURL["https://x.com/alpha/status/2"][2])
	_, err = time.Parse(time.RFC3339, byURL["https://x.com/alpha/status/2"][1])
	assert.NoError(t, err)
}

func TestExporterWriteCSVUnknownAccount(t *testing.T) {
	h := newHarness(t)
	e := service.NewExporter(h.accounts, h.items, nil, "")

	var buf bytes.Buffer
	_, err := e.WriteCSV(context.Background(), 999, &buf)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Zero(t, buf.Len())
}

func TestExporterArchive(t *testing.T) {
	h := newHarness(t)
	acc := h.addAccount(t, "https://x.com/alpha", domain.AccountStatusActive)
	seedItems(t, h, acc.ID, "https://x.com/alpha/status/1")

	archive := newMemoryArchive()
	e := service.NewExporter(h.accounts, h.items, archive, "exports/")
	require.True(t, e.ArchiveEnabled())

	res, err := e.Archive(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.True(t, strings.HasPrefix(res.Key, "exports/x/"), res.Key)
	assert.True(t, strings.HasSuffix(res.Key, ".csv"), res.Key)
	assert.Equal(t, "https://files.test/"+res.Key, res.URL)

	ok, err := archive.Exists(context.Background(), res.Key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "text/csv", archive.types[res.Key])
	assert.Contains(t, string(archive.objects[res.Key]), "https://x.com/alpha/status/1")
}

func TestExporterArchiveDisabled(t *testing.T) {
	h := newHarness(t)
	acc := h.addAccount(t, "https://x.com/alpha", domain.AccountStatusActive)

	_, err := service.NewExporter(h.accounts, h.items, nil, "").Archive(context.Background(), acc.ID)
	assert.ErrorIs(t, err, storage.ErrDisabled)
}
