package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/logger"
	"github.com/timmy/linkwatch/internal/provider"
	"github.com/timmy/linkwatch/internal/repository"
	"github.com/timmy/linkwatch/internal/service"
	"github.com/timmy/linkwatch/internal/storage"
)

const (
	defaultPerPage  = 50
	maxPerPage      = 500
	maxBulkAccounts = 1000
)

// AccountHandler manages monitored accounts and their discovered links.
type AccountHandler struct {
	accounts *repository.AccountRepository
	items    *repository.ItemRepository
	exporter *service.Exporter
}

// NewAccountHandler creates a new account handler.
// Parameters:
//   - accounts: account repository.
//   - items: discovered item repository.
//   - exporter: CSV exporter, optionally backed by object storage.
// Returns:
//   - *AccountHandler: initialized handler.
func NewAccountHandler(accounts *repository.AccountRepository, items *repository.ItemRepository, exporter *service.Exporter) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		items:    items,
		exporter: exporter,
	}
}

// AddAccountRequest is the body of POST /api/accounts.
type AddAccountRequest struct {
	URL string `json:"url" binding:"required"`
}

// BulkAddRequest is the body of POST /api/accounts/bulk.
type BulkAddRequest struct {
	Accounts []AddAccountRequest `json:"accounts" binding:"required"`
}

// BulkError describes one rejected entry of a bulk add.
type BulkError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// BulkAddResponse reports the outcome of a bulk add.
type BulkAddResponse struct {
	Added       []domain.Account `json:"added"`
	Errors      []BulkError      `json:"errors"`
	TotalAdded  int              `json:"total_added"`
	TotalErrors int              `json:"total_errors"`
}

// Pagination describes a page of results.
type Pagination struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
	HasNext bool  `json:"has_next"`
	HasPrev bool  `json:"has_prev"`
}

// LinksResponse is the body of GET /api/accounts/:id/links.
type LinksResponse struct {
	Account    *domain.Account         `json:"account"`
	Links      []domain.DiscoveredItem `json:"links"`
	Pagination Pagination              `json:"pagination"`
}

// ListAccounts handles GET /api/accounts with optional provider and status filters.
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	filter := repository.AccountFilter{
		Provider: domain.Provider(c.Query("provider")),
		Status:   domain.AccountStatus(c.Query("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		errorJSON(c, http.StatusBadRequest, "invalid status: "+string(filter.Status))
		return
	}

	accounts, err := h.accounts.List(c.Request.Context(), filter)
	if err != nil {
		internalError(c, "Failed to list accounts", err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	c.JSON(http.StatusOK, accounts)
}

// AddAccount handles POST /api/accounts. The URL is normalized to the
// provider's canonical account URL before it is stored.
func (h *AccountHandler) AddAccount(c *gin.Context) {
	ctx := c.Request.Context()

	var req AddAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "URL is required")
		return
	}

	account, err := h.add(c, req.URL)
	switch {
	case errors.Is(err, domain.ErrUnsupportedProvider):
		errorJSON(c, http.StatusBadRequest, "Unsupported platform")
		return
	case errors.Is(err, domain.ErrAccountExists):
		errorJSON(c, http.StatusConflict, "Account already exists")
		return
	case err != nil:
		internalError(c, "Failed to add account", err)
		return
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldAccountURL: account.URL,
		logger.FieldProvider:   string(account.Provider),
	}).Info("Account added")
	c.JSON(http.StatusCreated, account)
}

// AddAccountsBulk handles POST /api/accounts/bulk. Every entry is attempted;
// rejected entries are reported without aborting the rest.
func (h *AccountHandler) AddAccountsBulk(c *gin.Context) {
	var req BulkAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "Accounts data is required")
		return
	}
	if len(req.Accounts) > maxBulkAccounts {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("At most %d accounts per request", maxBulkAccounts))
		return
	}

	resp := BulkAddResponse{Added: []domain.Account{}, Errors: []BulkError{}}
	for _, entry := range req.Accounts {
		account, err := h.add(c, entry.URL)
		switch {
		case err == nil:
			resp.Added = append(resp.Added, *account)
		case errors.Is(err, domain.ErrUnsupportedProvider):
			resp.Errors = append(resp.Errors, BulkError{URL: entry.URL, Error: "Unsupported platform"})
		case errors.Is(err, domain.ErrAccountExists):
			resp.Errors = append(resp.Errors, BulkError{URL: entry.URL, Error: "Account already exists"})
		default:
			internalError(c, "Failed to add accounts", err)
			return
		}
	}
	resp.TotalAdded = len(resp.Added)
	resp.TotalErrors = len(resp.Errors)

	logger.CtxInfo(c.Request.Context(), "Bulk added accounts: added=%d, rejected=%d", resp.TotalAdded, resp.TotalErrors)
	c.JSON(http.StatusOK, resp)
}

func (h *AccountHandler) add(c *gin.Context, identifier string) (*domain.Account, error) {
	target, err := provider.Resolve(identifier)
	if err != nil {
		return nil, err
	}
	account := &domain.Account{
		URL:      target.URL,
		Provider: target.Provider,
		Username: target.Username,
		Status:   domain.AccountStatusActive,
	}
	if err := h.accounts.Create(c.Request.Context(), account); err != nil {
		return nil, err
	}
	return account, nil
}

// DeleteAccount handles DELETE /api/accounts/:id.
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	err := h.accounts.Delete(c.Request.Context(), id)
	if errors.Is(err, domain.ErrAccountNotFound) {
		errorJSON(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		internalError(c, "Failed to delete account", err)
		return
	}

	logger.CtxInfo(c.Request.Context(), "Account deleted: account_id=%d", id)
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted successfully"})
}

// ToggleAccount handles POST /api/accounts/:id/toggle.
func (h *AccountHandler) ToggleAccount(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.accounts.Toggle(ctx, id); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			errorJSON(c, http.StatusNotFound, err.Error())
			return
		}
		internalError(c, "Failed to toggle account", err)
		return
	}

	account, err := h.accounts.GetByID(ctx, id)
	if err != nil {
		internalError(c, "Failed to load account", err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// ListLinks handles GET /api/accounts/:id/links, newest first.
// Query: page (from 1), per_page (default 50).
func (h *AccountHandler) ListLinks(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	account, err := h.accounts.GetByID(ctx, id)
	if errors.Is(err, domain.ErrAccountNotFound) {
		errorJSON(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		internalError(c, "Failed to load account", err)
		return
	}

	items, total, err := h.items.ListByAccount(ctx, id, perPage, (page-1)*perPage)
	if err != nil {
		internalError(c, "Failed to list links", err)
		return
	}
	if items == nil {
		items = []domain.DiscoveredItem{}
	}

	pages := int((total + int64(perPage) - 1) / int64(perPage))
	c.JSON(http.StatusOK, LinksResponse{
		Account: account,
		Links:   items,
		Pagination: Pagination{
			Page:    page,
			PerPage: perPage,
			Total:   total,
			Pages:   pages,
			HasNext: page < pages,
			HasPrev: page > 1,
		},
	})
}

// ExportLinks handles GET /api/accounts/:id/links/export as a CSV download.
func (h *AccountHandler) ExportLinks(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	account, err := h.accounts.GetByID(ctx, id)
	if errors.Is(err, domain.ErrAccountNotFound) {
		errorJSON(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		internalError(c, "Failed to load account", err)
		return
	}

	// Buffer so a failure halfway through still produces a clean error response.
	var buf bytes.Buffer
	if _, err := h.exporter.WriteCSV(ctx, id, &buf); err != nil {
		internalError(c, "Failed to export links", err)
		return
	}

	filename := fmt.Sprintf("%s_%s_links_%s.csv", account.Username, account.Provider, time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ArchiveLinks handles POST /api/accounts/:id/links/archive, uploading the CSV
// export to object storage.
func (h *AccountHandler) ArchiveLinks(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	res, err := h.exporter.Archive(c.Request.Context(), id)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		errorJSON(c, http.StatusServiceUnavailable, "Object storage is not configured")
		return
	case errors.Is(err, domain.ErrAccountNotFound):
		errorJSON(c, http.StatusNotFound, err.Error())
		return
	case err != nil:
		internalError(c, "Failed to archive links", err)
		return
	}

	logger.CtxInfo(c.Request.Context(), "Links archived: account_id=%d, key=%s, count=%d", id, res.Key, res.Count)
	c.JSON(http.StatusOK, res)
}
