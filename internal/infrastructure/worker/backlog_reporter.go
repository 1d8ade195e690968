package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/pkg/metrics"
)

// OpenStatuses are the request statuses the backlog reporter counts
var OpenStatuses = []string{
	entity.StatusPending,
	entity.StatusInApproval,
	entity.StatusApproved,
	entity.StatusInProgress,
}

// BacklogReporter periodically publishes how many requests sit in each
// open status. It only reads; it never moves a request.
type BacklogReporter struct {
	requests port.RequestRepository
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewBacklogReporter creates a reporter that refreshes every interval
func NewBacklogReporter(requests port.RequestRepository, interval time.Duration, logger *zap.Logger) *BacklogReporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &BacklogReporter{
		requests: requests,
		interval: interval,
		logger:   logger,
	}
}

// Name returns the worker name
func (r *BacklogReporter) Name() string {
	return "BacklogReporter"
}

// Start launches the reporting loop
func (r *BacklogReporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("backlog reporter is already running")
	}

	var loopCtx context.Context
	loopCtx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.isRunning = true

	r.logger.Info("BacklogReporter started", zap.Duration("interval", r.interval))
	go r.loop(loopCtx, r.done)
	return nil
}

// Stop cancels the loop and waits for it to exit
func (r *BacklogReporter) Stop() error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.cancel()
	done := r.done
	r.mu.Unlock()

	<-done
	r.logger.Info("BacklogReporter stopped")
	return nil
}

func (r *BacklogReporter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Report immediately on start
	r.report(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report(ctx)
		}
	}
}

// Snapshot counts open requests per status
func (r *BacklogReporter) Snapshot(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(OpenStatuses))
	for _, status := range OpenStatuses {
		reqs, err := r.requests.ListByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s requests: %w", status, err)
		}
		counts[status] = len(reqs)
	}
	return counts, nil
}

func (r *BacklogReporter) report(ctx context.Context) {
	counts, err := r.Snapshot(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("Failed to collect request backlog", zap.Error(err))
		}
		return
	}

	fields := make([]zap.Field, 0, len(counts))
	for _, status := range OpenStatuses {
		metrics.WorkflowOpenRequests.WithLabelValues(status).Set(float64(counts[status]))
		fields = append(fields, zap.Int(status, counts[status]))
	}
	r.logger.Debug("Request backlog", fields...)
}
