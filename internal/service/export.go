package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/repository"
	"github.com/timmy/linkwatch/internal/storage"
)

const exportPageSize = 500

var exportHeader = []string{"url", "discovered_at", "post_date"}

// ExportResult describes an archived export.
type ExportResult struct {
	Key   string `json:"key"`
	URL   string `json:"url"`
	Count int    `json:"count"`
}

// Exporter writes an account's discovered links as CSV, optionally archiving
// the file in object storage.
type Exporter struct {
	accounts *repository.AccountRepository
	items    *repository.ItemRepository
	archive  storage.Archive
	prefix   string
	now      func() time.Time
}

// NewExporter creates an exporter. archive may be nil when storage is disabled.
func NewExporter(accounts *repository.AccountRepository, items *repository.ItemRepository, archive storage.Archive, prefix string) *Exporter {
	return &Exporter{
		accounts: accounts,
		items:    items,
		archive:  archive,
		prefix:   prefix,
		now:      time.Now,
	}
}

// ArchiveEnabled reports whether Archive can be used.
func (e *Exporter) ArchiveEnabled() bool {
	return e.archive != nil
}

// WriteCSV streams every link of the account to w, newest first.
// Returns the number of rows written, excluding the header.
func (e *Exporter) WriteCSV(ctx context.Context, accountID uint, w io.Writer) (int, error) {
	if _, err := e.accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return 0, err
		}
		return 0, domain.NewPersistenceError("get account", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, err
	}

	written := 0
	for offset := 0; ; offset += exportPageSize {
		items, _, err := e.items.ListByAccount(ctx, accountID, exportPageSize, offset)
		if err != nil {
			return written, domain.NewPersistenceError("list items", err)
		}
		for _, item := range items {
			postDate := ""
			if item.PostDate != nil {
				postDate = item.PostDate.UTC().Format(time.RFC3339)
			}
			if err := cw.Write([]string{item.URL, item.DiscoveredAt.UTC().Format(time.RFC3339), postDate}); err != nil {
				return written, err
			}
			written++
		}
		if len(items) < exportPageSize {
			break
		}
	}

	cw.Flush()
	return written, cw.Error()
}

// Archive renders the account's CSV and stores it under
// <prefix>/<provider>/<account id>-<unix time>.csv.
func (e *Exporter) Archive(ctx context.Context, accountID uint) (*ExportResult, error) {
	if e.archive == nil {
		return nil, storage.ErrDisabled
	}

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, err
		}
		return nil, domain.NewPersistenceError("get account", err)
	}

	var buf bytes.Buffer
	count, err := e.WriteCSV(ctx, accountID, &buf)
	if err != nil {
		return nil, err
	}

	name := strconv.FormatUint(uint64(account.ID), 10) + "-" + strconv.FormatInt(e.now().Unix(), 10) + ".csv"
	key := storage.ObjectKey(e.prefix, string(account.Provider), name)
	if err := e.archive.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "text/csv"); err != nil {
		return nil, fmt.Errorf("failed to archive export: %w", err)
	}

	return &ExportResult{Key: key, URL: e.archive.URL(key), Count: count}, nil
}
