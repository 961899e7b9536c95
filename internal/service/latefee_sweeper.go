package service

import (
	"context"
	"sync"
	"time"

	"github.com/campusfee/campusfee-backend/internal/domain"
	"github.com/rs/zerolog"
)

// LateFeeSweeper is a background worker that periodically accrues late fees
// on overdue installments across all ledgers
type LateFeeSweeper struct {
	lateFeeService *LateFeeService
	ledgerRepo     domain.FeeLedgerRepository
	logger         zerolog.Logger
	interval       time.Duration
	stopCh         chan struct{}
	doneCh         chan struct{}
	mu             sync.Mutex
	running        bool
}

// LateFeeSweeperConfig holds configuration for the late-fee sweeper
type LateFeeSweeperConfig struct {
	Interval time.Duration // How often to run the accrual sweep
}

// DefaultLateFeeSweeperConfig returns sensible defaults
func DefaultLateFeeSweeperConfig() LateFeeSweeperConfig {
	return LateFeeSweeperConfig{
		Interval: 6 * time.Hour,
	}
}

// NewLateFeeSweeper creates a new late-fee sweeper
func NewLateFeeSweeper(
	lateFeeService *LateFeeService,
	ledgerRepo domain.FeeLedgerRepository,
	logger zerolog.Logger,
	config LateFeeSweeperConfig,
) *LateFeeSweeper {
	if config.Interval <= 0 {
		config.Interval = 6 * time.Hour
	}

	return &LateFeeSweeper{
		lateFeeService: lateFeeService,
		ledgerRepo:     ledgerRepo,
		logger:         logger.With().Str("component", "late_fee_sweeper").Logger(),
		interval:       config.Interval,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start begins the background accrual sweep
func (w *LateFeeSweeper) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().
		Dur("interval", w.interval).
		Msg("Starting late-fee sweeper")

	go w.run(ctx)
}

// Stop gracefully stops the sweeper
func (w *LateFeeSweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.logger.Info().Msg("Stopping late-fee sweeper")
	close(w.stopCh)
	<-w.doneCh
	w.logger.Info().Msg("Late-fee sweeper stopped")
}

// run is the main loop for the sweeper
func (w *LateFeeSweeper) run(ctx context.Context) {
	defer close(w.doneCh)

	// Run immediately on startup
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-w.stopCh:
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep accrues late fees on every ledger with an installment past grace
func (w *LateFeeSweeper) sweep(ctx context.Context) {
	w.logger.Debug().Msg("Starting late-fee sweep")
	startTime := time.Now()
	now := time.Now()

	candidates, err := w.ledgerRepo.ListAccrualCandidates(now)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to list accrual candidates")
		return
	}

	totalAccrued := 0
	totalSkipped := 0
	totalErrors := 0

	for _, ledger := range candidates {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Context cancelled, stopping sweep")
			return
		case <-w.stopCh:
			w.logger.Info().Msg("Stop signal received, stopping sweep")
			return
		default:
		}

		_, accrued, err := w.lateFeeService.AccrueLateFees(ledger.SchoolID, ledger.ID, now)
		if err != nil {
			w.logger.Error().
				Err(err).
				Str("ledger_id", ledger.ID.String()).
				Msg("Failed to accrue late fees for ledger")
			totalErrors++
			continue
		}

		if accrued {
			totalAccrued++
		} else {
			totalSkipped++
		}
	}

	elapsed := time.Since(startTime)
	w.logger.Info().
		Int("candidates", len(candidates)).
		Int("accrued", totalAccrued).
		Int("skipped", totalSkipped).
		Int("errors", totalErrors).
		Dur("elapsed", elapsed).
		Msg("Completed late-fee sweep")
}

// IsRunning returns whether the sweeper is currently running
func (w *LateFeeSweeper) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
