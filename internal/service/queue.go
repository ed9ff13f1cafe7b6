package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/logger"
	"github.com/timmy/linkwatch/internal/provider"
	"github.com/timmy/linkwatch/internal/repository"
)

const workerQueue = "queue"

// OperationObserver is told about every operation reaching a terminal status.
type OperationObserver interface {
	OperationFinished(status domain.OperationStatus)
}

// QueueConfig holds configuration for the operation queue.
type QueueConfig struct {
	PollInterval time.Duration
	// ResultCap bounds the links fetched per operation.
	ResultCap    int
	StopTimeout  time.Duration
	FetchTimeout time.Duration
	// OnFatal receives persistence failures. The worker exits after calling it.
	OnFatal func(error)
}

// OperationView is what a client sees when polling an operation.
type OperationView struct {
	OperationID string                 `json:"operation_id"`
	Status      domain.OperationStatus `json:"status"`
	AccountURL  string                 `json:"account_url"`
	Provider    domain.Provider        `json:"provider"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Links       []string               `json:"links,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Queue is the durable on-demand "get recent posts" queue. Operations are
// persisted before Submit returns and drained in creation order by a single worker.
type Queue struct {
	operations *repository.OperationRepository
	accounts   *repository.AccountRepository
	collector  *Collector
	observer   OperationObserver
	cfg        QueueConfig
	logger     *logger.Logger
	now        func() time.Time

	wake chan struct{}

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewQueue creates a queue.
// Parameters:
//   - operations: operation repository.
//   - accounts: account repository used to resolve or create accounts.
//   - collector: shared collection step.
//   - observer: optional metrics, may be nil.
//   - log: fallback logger.
//   - cfg: polling, result cap and timeouts.
//
// Returns:
//   - *Queue: stopped queue.
func NewQueue(
	operations *repository.OperationRepository,
	accounts *repository.AccountRepository,
	collector *Collector,
	observer OperationObserver,
	log *logger.Logger,
	cfg QueueConfig,
) *Queue {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ResultCap <= 0 {
		cfg.ResultCap = 5
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	if cfg.OnFatal == nil {
		cfg.OnFatal = func(err error) {
			log.WithError(err).Fatal("Operation queue lost its database")
		}
	}
	return &Queue{
		operations: operations,
		accounts:   accounts,
		collector:  collector,
		observer:   observer,
		cfg:        cfg,
		logger:     log,
		now:        time.Now,
		wake:       make(chan struct{}, 1),
	}
}

// Submit resolves identifier to an account URL and persists a pending
// operation for it. The operation exists durably when Submit returns.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - identifier: account URL, domain path, @handle or bare username.
//
// Returns:
//   - string: the new operation id.
//   - error: domain.ErrUnsupportedProvider for unresolvable input,
//     *domain.PersistenceError when the operation cannot be stored.
func (q *Queue) Submit(ctx context.Context, identifier string) (string, error) {
	target, err := provider.Resolve(identifier)
	if err != nil {
		return "", err
	}

	op := &domain.Operation{
		OperationID: uuid.New().String(),
		AccountURL:  target.URL,
		Provider:    target.Provider,
		Username:    target.Username,
		Status:      domain.OperationStatusPending,
		CreatedAt:   q.now().UTC(),
	}
	if err := q.operations.Create(ctx, op); err != nil {
		return "", domain.NewPersistenceError("create operation", err)
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldOperationID: op.OperationID,
		logger.FieldAccountURL:  op.AccountURL,
		logger.FieldProvider:    string(op.Provider),
	}).Info("Operation queued")

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return op.OperationID, nil
}

// Poll returns the current state of an operation. Links are only present once
// completed and the error text only once failed.
// Returns domain.ErrOperationNotFound for unknown ids.
func (q *Queue) Poll(ctx context.Context, operationID string) (*OperationView, error) {
	op, err := q.operations.GetByOperationID(ctx, operationID)
	if errors.Is(err, domain.ErrOperationNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, domain.NewPersistenceError("get operation", err)
	}

	view := &OperationView{
		OperationID: op.OperationID,
		Status:      op.Status,
		AccountURL:  op.AccountURL,
		Provider:    op.Provider,
		CreatedAt:   op.CreatedAt,
		StartedAt:   op.StartedAt,
		CompletedAt: op.CompletedAt,
	}
	switch op.Status {
	case domain.OperationStatusCompleted:
		view.Links = []string(op.ResultLinks)
		if view.Links == nil {
			view.Links = []string{}
		}
	case domain.OperationStatusFailed:
		view.Error = op.ErrorMessage
	}
	return view, nil
}

// Recover returns every operation left in processing by a dead worker to
// pending. It must run before the worker starts.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	n, err := q.operations.ResetProcessing(ctx)
	if err != nil {
		return 0, domain.NewPersistenceError("reset processing operations", err)
	}
	if n > 0 {
		logger.FromContext(ctx).WithField(logger.FieldCount, n).Warn("Requeued operations interrupted by a previous run")
	}
	return int(n), nil
}

// Start recovers interrupted operations and launches the worker. Starting a
// running queue is a no-op.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return nil
	}
	if _, err := q.Recover(ctx); err != nil {
		return err
	}

	q.stopCh = make(chan struct{})
	q.done = make(chan struct{})
	q.running = true
	go q.loop(q.stopCh, q.done)

	logger.FromContext(ctx).Info("Operation queue started")
	return nil
}

// Stop signals the worker and waits up to StopTimeout for it to exit. An
// operation interrupted mid-flight stays in processing and is recovered on
// the next start.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	close(q.stopCh)
	q.running = false
	done := q.done
	q.mu.Unlock()

	select {
	case <-done:
		logger.FromContext(ctx).Info("Operation queue stopped")
	case <-time.After(q.cfg.StopTimeout):
		logger.FromContext(ctx).Warn("Operation queue worker did not exit in time")
	}
	return nil
}

func (q *Queue) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ctx := logger.SetComponent(context.Background(), workerQueue)
	for {
		if isClosed(stop) {
			return
		}

		processed, err := q.processNext(ctx, stop)
		if err != nil {
			q.cfg.OnFatal(err)
			return
		}
		if processed {
			continue
		}

		t := time.NewTimer(q.cfg.PollInterval)
		select {
		case <-stop:
			t.Stop()
			return
		case <-q.wake:
		case <-t.C:
		}
		t.Stop()
	}
}

// ProcessNext claims and processes the oldest pending operation in the calling
// goroutine. Returns false when nothing was pending.
// Only persistence failures are returned; an operation failure is stored on
// the operation and its account.
func (q *Queue) ProcessNext(ctx context.Context) (bool, error) {
	return q.processNext(ctx, nil)
}

func (q *Queue) processNext(ctx context.Context, stop <-chan struct{}) (bool, error) {
	op, err := q.operations.ClaimNext(ctx, q.now().UTC())
	if err != nil {
		return false, domain.NewPersistenceError("claim operation", err)
	}
	if op == nil {
		return false, nil
	}

	ctx = logger.SetOperationID(ctx, op.OperationID)

	account, created, err := q.accounts.GetOrCreate(ctx, op.AccountURL, op.Provider, op.Username)
	if err != nil {
		return true, domain.NewPersistenceError("resolve account", err)
	}
	if created {
		logger.FromContext(ctx).WithField(logger.FieldAccountURL, account.URL).Info("Account created from operation")
	}

	res, err := q.collector.Collect(ctx, CollectRequest{
		Account:  account,
		Limit:    q.cfg.ResultCap,
		Timeout:  q.cfg.FetchTimeout,
		Worker:   workerQueue,
		Stopping: func() bool { return isClosed(stop) },
	})
	if domain.IsPersistence(err) {
		return true, err
	}

	if errors.Is(err, ErrSessionRevoked) || (err != nil && isClosed(stop)) {
		// Interrupted by a forced cleanup or shutdown, not by the provider.
		if reqErr := q.operations.Requeue(ctx, op.ID); reqErr != nil {
			return true, domain.NewPersistenceError("requeue operation", reqErr)
		}
		logger.CtxWarn(ctx, "Operation interrupted, requeued: %v", err)
		return true, nil
	}

	at := q.now().UTC()
	if err != nil {
		if failErr := q.operations.Fail(ctx, op.ID, &account.ID, err.Error(), at); failErr != nil {
			return true, domain.NewPersistenceError("fail operation", failErr)
		}
		if recErr := q.accounts.RecordCheck(ctx, account.ID, err, at); recErr != nil {
			return true, domain.NewPersistenceError("record account check", recErr)
		}
		q.finished(domain.OperationStatusFailed)
		return true, nil
	}

	if err := q.operations.Complete(ctx, op.ID, account.ID, res.Links, at); err != nil {
		return true, domain.NewPersistenceError("complete operation", err)
	}
	if err := q.accounts.RecordCheck(ctx, account.ID, nil, at); err != nil {
		return true, domain.NewPersistenceError("record account check", err)
	}
	q.finished(domain.OperationStatusCompleted)
	return true, nil
}

func (q *Queue) finished(status domain.OperationStatus) {
	if q.observer != nil {
		q.observer.OperationFinished(status)
	}
}
