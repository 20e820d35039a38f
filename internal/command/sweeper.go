package command

import (
	"context"
	"sync"
	"time"
)

// Sweeper is the background garbage collector for the command ledger.
//
// Every interval it marks PENDING commands older than the ack deadline as
// EXPIRED, and deletes commands older than the retention window outright.
// Expiry and deletion are deliberately separate observable behaviors: an
// EXPIRED command is still queryable until retention removes it.
type Sweeper struct {
	ledger      Ledger
	ackDeadline time.Duration
	interval    time.Duration
	retention   time.Duration

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// SweeperConfig holds configuration for the sweeper.
type SweeperConfig struct {
	// Ledger is the command ledger to sweep.
	Ledger Ledger

	// AckDeadline is how long a PENDING command waits for an ack before
	// being marked EXPIRED. Default: 2 minutes.
	AckDeadline time.Duration

	// Interval is how often the sweep runs. Default: 30 seconds.
	Interval time.Duration

	// Retention is how long records are kept before deletion.
	// Default: 30 days.
	Retention time.Duration
}

// NewSweeper creates a sweeper.
//
// Returns:
//   - *Sweeper: Ready to start (call Start to begin sweeping)
func NewSweeper(cfg SweeperConfig) *Sweeper {
	ackDeadline := cfg.AckDeadline
	if ackDeadline == 0 {
		ackDeadline = 2 * time.Minute
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}
	retention := cfg.Retention
	if retention == 0 {
		retention = 30 * 24 * time.Hour
	}

	return &Sweeper{
		ledger:      cfg.Ledger,
		ackDeadline: ackDeadline,
		interval:    interval,
		retention:   retention,
		done:        make(chan struct{}),
	}
}

// Start begins periodic sweeping.
// Must be called after creation. Call Stop to shut down.
//
// Parameters:
//   - ctx: Context for cancellation (will stop sweeping when cancelled)
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.sweepLoop(ctx)
}

// Stop gracefully stops sweeping.
// Safe to call multiple times (uses sync.Once).
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

// SetLogger sets the logger for this sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// SweepOnce runs a single sweep immediately. Exposed for tests and for
// forcing a sweep after bulk operations.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := s.ledger.ExpireOlderThan(ctx, now.Add(-s.ackDeadline))
	if err != nil {
		s.logError("failed to expire pending commands", err)
	} else if expired > 0 {
		s.logInfo("expired unacked commands", "count", expired)
	}

	purged, err := s.ledger.PurgeOlderThan(ctx, now.Add(-s.retention))
	if err != nil {
		s.logError("failed to purge old commands", err)
	} else if purged > 0 {
		s.logInfo("purged commands past retention", "count", purged)
	}
}

// sweepLoop runs the periodic sweep.
func (s *Sweeper) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// logInfo logs at info level if a logger is set.
func (s *Sweeper) logInfo(msg string, args ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, args...)
	}
}

// logError logs an error if a logger is set.
func (s *Sweeper) logError(msg string, err error) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
