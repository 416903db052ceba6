// Package batch drives a sync run across the whole instrument registry.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kjannette/stocksync/internal/ingest"
	"github.com/kjannette/stocksync/internal/interfaces"
	"github.com/kjannette/stocksync/internal/models"
	"go.uber.org/zap"
)

// Observer is notified per instrument and once per run.
type Observer interface {
	ObserveInstrument(res models.InstrumentResult)
	ObserveRun(r *models.SyncReport)
}

// Notifier delivers the finished report, e.g. to a chat webhook.
type Notifier interface {
	NotifyRun(ctx context.Context, r *models.SyncReport) error
}

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("sync run already in progress")

type Runner struct {
	store     interfaces.PriceStore
	syncer    *ingest.Syncer
	observers []Observer
	notifier  Notifier
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
	last    *models.SyncReport
}

type Option func(*Runner)

func WithObserver(o Observer) Option { return func(r *Runner) { r.observers = append(r.observers, o) } }
func WithNotifier(n Notifier) Option { return func(r *Runner) { r.notifier = n } }

func NewRunner(store interfaces.PriceStore, syncer *ingest.Syncer, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{store: store, syncer: syncer, logger: logger.Named("batch")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run syncs every registered instrument in display-name order, one at a
// time. Instrument failures are recorded and the loop continues; only an
// unreachable store aborts, in which case the partial report is returned
// alongside the error.
func (r *Runner) Run(ctx context.Context) (*models.SyncReport, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrRunInProgress
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	report := &models.SyncReport{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	log := r.logger.With(zap.String("run_id", report.RunID))
	start := time.Now()

	runErr := r.run(ctx, report, log)
	report.Duration = time.Since(start)
	if runErr != nil {
		report.Aborted = true
		report.AbortReason = runErr.Error()
		log.Error("sync run aborted", zap.Error(runErr))
	}

	log.Info("sync run finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("no_data", report.NoData),
		zap.Int("new_rows", report.NewRows),
		zap.Duration("duration", report.Duration))

	for _, o := range r.observers {
		o.ObserveRun(report)
	}
	if r.notifier != nil {
		if err := r.notifier.NotifyRun(ctx, report); err != nil {
			log.Warn("run notification failed", zap.Error(err))
		}
	}

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()
	return report, runErr
}

func (r *Runner) run(ctx context.Context, report *models.SyncReport, log *zap.Logger) error {
	instruments, err := r.store.Instruments(ctx)
	if err != nil {
		return fmt.Errorf("%w: list instruments: %v", ingest.ErrStoreUnavailable, err)
	}
	log.Info("sync run started", zap.Int("instruments", len(instruments)))

	for i, inst := range instruments {
		res, err := r.syncOne(ctx, inst)
		report.Add(res)
		for _, o := range r.observers {
			o.ObserveInstrument(res)
		}
		if errors.Is(err, ingest.ErrStoreUnavailable) {
			return err
		}
		log.Debug("instrument done",
			zap.Int("n", i+1),
			zap.Int("of", len(instruments)),
			zap.String("symbol", inst.Symbol),
			zap.String("status", string(res.Status)))
	}
	return nil
}

// syncOne holds one session for the instrument and always releases it.
func (r *Runner) syncOne(ctx context.Context, inst models.Instrument) (models.InstrumentResult, error) {
	start := time.Now()
	res := models.InstrumentResult{Symbol: inst.Symbol, Name: inst.Name}

	sess, err := r.store.Acquire(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", ingest.ErrStoreUnavailable, err)
		res.Status = models.StatusFailed
		res.Error = err.Error()
		res.Duration = time.Since(start)
		return res, err
	}
	defer sess.Release()

	out, err := r.syncer.SyncInstrument(ctx, sess, inst.Symbol)
	res.Duration = time.Since(start)
	if out != nil {
		res.Provider = out.Provider
		res.NewRows = out.Written
		res.RowFailures = out.Failures()
	}

	switch {
	case err == nil:
		res.Status = out.Status()
		if res.Status == models.StatusFailed {
			res.Error = fmt.Sprintf("all %d new rows failed", out.Candidates)
		}
	case errors.Is(err, ingest.ErrNoDataForInstrument):
		res.Status = models.StatusNoData
		res.Error = err.Error()
	default:
		res.Status = models.StatusFailed
		res.Error = err.Error()
	}
	return res, err
}

// Last returns the most recent report, or nil before the first run.
func (r *Runner) Last() *models.SyncReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
