package service

import (
	"context"
	"errors"
	"time"

	"fx-liquidity-engine/config"
	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/pkg/apperror"
	"fx-liquidity-engine/pkg/backoff"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const maxRetryDelay = 10 * time.Minute

// SettlementWorker drains the settlement outbox. A poller claims due tasks
// and hands them to a fixed pool of workers; a reconciler requeues tasks
// whose worker disappeared and transfers that lost their task.
//
// Delivery is at-least-once: a crash between Complete and MarkDone replays
// the task, and Complete on a terminal transfer is a no-op.
type SettlementWorker struct {
	tasks     ports.SettlementTaskRepository
	transfers ports.TransferService
	provider  ports.SettlementProvider
	limiter   *rate.Limiter
	cfg       config.WorkerConfig
	log       zerolog.Logger
	now       func() time.Time
}

// NewSettlementWorker creates a new SettlementWorker. A non-positive
// cfg.ProviderRPS leaves provider calls unpaced.
func NewSettlementWorker(
	tasks ports.SettlementTaskRepository,
	transfers ports.TransferService,
	provider ports.SettlementProvider,
	cfg config.WorkerConfig,
	log zerolog.Logger,
) *SettlementWorker {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.ProviderRPS > 0 {
		burst := max(int(cfg.ProviderRPS), 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.ProviderRPS), burst)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = cfg.Concurrency
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	return &SettlementWorker{
		tasks:     tasks,
		transfers: transfers,
		provider:  provider,
		limiter:   limiter,
		cfg:       cfg,
		log:       log.With().Str("component", "settlement_worker").Str("provider", provider.Name()).Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled. Tasks claimed but not yet handled at
// shutdown stay PROCESSING and are picked up by the reconciler later.
func (w *SettlementWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan domain.SettlementTask, w.cfg.BatchSize)

	g.Go(func() error {
		defer close(jobs)
		return w.poll(ctx, jobs)
	})

	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			for task := range jobs {
				w.handle(ctx, task)
			}
			return nil
		})
	}

	g.Go(func() error {
		return w.reconcileLoop(ctx)
	})

	w.log.Info().
		Int("concurrency", w.cfg.Concurrency).
		Int("batch_size", w.cfg.BatchSize).
		Int("max_attempts", w.cfg.MaxAttempts).
		Msg("settlement worker started")

	err := g.Wait()
	w.log.Info().Msg("settlement worker stopped")
	return err
}

func (w *SettlementWorker) poll(ctx context.Context, jobs chan<- domain.SettlementTask) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		claimed, err := w.tasks.ClaimDue(ctx, w.now(), w.cfg.BatchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("claim settlement tasks failed")
			}
			continue
		}
		for _, task := range claimed {
			select {
			case jobs <- task:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (w *SettlementWorker) reconcileLoop(ctx context.Context) error {
	if w.cfg.ReconcileInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(w.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Reconcile(ctx); err != nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("settlement reconcile failed")
			}
		}
	}
}

// ProcessBatch claims and handles one batch synchronously. It returns the
// number of tasks handled.
func (w *SettlementWorker) ProcessBatch(ctx context.Context) (int, error) {
	claimed, err := w.tasks.ClaimDue(ctx, w.now(), w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, task := range claimed {
		w.handle(ctx, task)
	}
	return len(claimed), nil
}

// Reconcile requeues tasks stuck in PROCESSING and creates tasks for
// non-terminal transfers that have none.
func (w *SettlementWorker) Reconcile(ctx context.Context) error {
	cutoff := w.now().Add(-w.cfg.StuckAfter)

	reset, err := w.tasks.ResetStuck(ctx, cutoff)
	if err != nil {
		return err
	}
	orphans, err := w.tasks.EnqueueOrphans(ctx, cutoff)
	if err != nil {
		return err
	}

	if reset > 0 || orphans > 0 {
		w.log.Warn().Int64("reset", reset).Int64("orphans", orphans).Msg("settlement tasks reconciled")
	}
	return nil
}

func (w *SettlementWorker) handle(ctx context.Context, task domain.SettlementTask) {
	log := w.log.With().
		Str("task_id", task.ID.String()).
		Str("transfer_id", task.TransferID.String()).
		Int("attempt", task.Attempts+1).
		Logger()

	transfer, err := w.transfers.Get(ctx, task.TransferID)
	if err != nil {
		if apperror.HasCode(err, "TRF_002") {
			w.dead(ctx, log, task, err)
			return
		}
		w.retry(ctx, log, task, err)
		return
	}
	if transfer.IsTerminal() {
		w.done(ctx, log, task)
		return
	}

	if _, err := w.transfers.MarkProcessing(ctx, transfer.ID); err != nil {
		w.retry(ctx, log, task, err)
		return
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return
	}

	result, perr := w.provider.Process(ctx, transfer.SettlementRequest())
	if perr != nil {
		if ctx.Err() != nil {
			return
		}
		if apperror.IsClientError(perr) || task.Attempts+1 >= w.cfg.MaxAttempts {
			log.Warn().Err(perr).Msg("settlement failed permanently")
			failure := domain.SettlementResult{Successful: false, Message: perr.Error()}
			if _, err := w.transfers.Complete(ctx, transfer.ID, failure); err != nil {
				w.retry(ctx, log, task, err)
				return
			}
			w.dead(ctx, log, task, perr)
			return
		}
		w.retry(ctx, log, task, perr)
		return
	}

	if _, err := w.transfers.Complete(ctx, transfer.ID, *result); err != nil {
		w.retry(ctx, log, task, err)
		return
	}
	w.done(ctx, log, task)
}

func (w *SettlementWorker) retry(ctx context.Context, log zerolog.Logger, task domain.SettlementTask, cause error) {
	delay := backoff.FullJitter(backoff.Capped(w.cfg.BaseBackoff, maxRetryDelay, task.Attempts))
	next := w.now().Add(delay)

	log.Warn().Err(cause).Dur("retry_in", delay).Msg("settlement attempt failed, retrying")

	if err := w.tasks.MarkRetry(ctx, task.ID, cause.Error(), next); err != nil {
		log.Error().Err(err).Msg("failed to reschedule settlement task")
	}
}

func (w *SettlementWorker) dead(ctx context.Context, log zerolog.Logger, task domain.SettlementTask, cause error) {
	if err := w.tasks.MarkDead(ctx, task.ID, cause.Error()); err != nil {
		log.Error().Err(err).Msg("failed to park settlement task")
	}
}

func (w *SettlementWorker) done(ctx context.Context, log zerolog.Logger, task domain.SettlementTask) {
	if err := w.tasks.MarkDone(ctx, task.ID); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error().Err(err).Msg("failed to close settlement task")
		return
	}
	log.Debug().Msg("settlement task done")
}
