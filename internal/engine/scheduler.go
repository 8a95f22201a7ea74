package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantfold/perparb/internal/models"
)

// SnapshotSink receives each cycle's snapshot and scan results for
// out-of-band consumers (status API, caches). Failures are best-effort.
type SnapshotSink interface {
	StoreSnapshot(ctx context.Context, snapshot *Snapshot) error
	StoreOpportunities(ctx context.Context, opportunities []models.ArbitrageOpportunity) error
}

// ScanReport is the output of a one-shot pipeline pass.
type ScanReport struct {
	Opportunities []models.ArbitrageOpportunity `json:"opportunities"`
	Skips         []SkipReason                  `json:"skips"`
	FailedVenues  []string                      `json:"failed_venues"`
	Timestamp     time.Time                     `json:"timestamp"`
}

// SchedulerConfig drives the periodic cycle.
type SchedulerConfig struct {
	CheckInterval time.Duration
}

// Scheduler runs the aggregate -> scan -> gate -> act pipeline on a
// fixed interval and owns graceful shutdown: an in-flight tick drains
// before Stop returns, and shutdown never force-closes open positions.
type Scheduler struct {
	aggregator *Aggregator
	scanner    *Scanner
	gate       *RiskGate
	positions  *PositionManager
	sink       SnapshotSink
	config     SchedulerConfig
	logger     *logrus.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewScheduler(
	aggregator *Aggregator,
	scanner *Scanner,
	gate *RiskGate,
	positions *PositionManager,
	sink SnapshotSink,
	config SchedulerConfig,
	logger *logrus.Logger,
) *Scheduler {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	return &Scheduler{
		aggregator: aggregator,
		scanner:    scanner,
		gate:       gate,
		positions:  positions,
		sink:       sink,
		config:     config,
		logger:     logger,
	}
}

// Start begins the periodic loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	s.wg.Add(1)
	go s.runLoop()

	s.logger.WithFields(logrus.Fields{
		"check_interval": s.config.CheckInterval,
	}).Info("Scheduler started")
	return nil
}

// Stop cancels the timer and waits for the in-flight tick to drain.
// Open positions stay open; closing them is an explicit operator action.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.running = false
	s.logger.Info("Scheduler stopped")
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	// First tick immediately, then on the interval.
	s.runTick(s.ctx)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runTick(s.ctx)
		}
	}
}

// runTick executes one full cycle. All decisions in a tick, entries and
// exits alike, observe the same fully-joined snapshot.
func (s *Scheduler) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	snapshot := s.aggregator.Collect(ctx)
	s.publish(ctx, snapshot, nil)

	opportunities, _ := s.scanner.Scan(snapshot)
	s.publish(ctx, nil, opportunities)

	// Evaluate already-open positions first so an exit frees its pair
	// before new entries for this tick are gated.
	for _, position := range s.positions.listTracked() {
		if err := s.positions.EvaluateOpen(ctx, position, snapshot); err != nil {
			s.logger.WithFields(logrus.Fields{
				"position_id": position.ID,
				"pair":        position.Pair,
			}).WithError(err).Error("Position evaluation failed")
		}
	}

	accepted, skips := s.gate.Filter(opportunities, s.positions.OpenPairs())
	for _, skip := range skips {
		s.logger.WithFields(logrus.Fields{
			"pair":   skip.Pair,
			"reason": skip.Reason,
		}).Debug("Opportunity skipped")
	}
	if len(accepted) == 0 {
		return
	}
	if ctx.Err() != nil {
		// Shutting down: do not open new positions.
		return
	}

	best := accepted[0]
	s.logger.WithFields(logrus.Fields{
		"pair":       best.Pair,
		"long":       best.LongVenue,
		"short":      best.ShortVenue,
		"profit_bps": best.ProfitBps.StringFixed(1),
		"size_usd":   best.SizedNotionalUSD.StringFixed(2),
	}).Info("Opening position for top opportunity")

	if _, err := s.positions.Open(ctx, best, best.SizedNotionalUSD); err != nil {
		s.logger.WithFields(logrus.Fields{
			"pair": best.Pair,
		}).WithError(err).Error("Position entry failed")
	}
}

// RunOnce executes the pipeline a single time in report-only mode: all
// skip reasons are surfaced and no position is opened.
func (s *Scheduler) RunOnce(ctx context.Context) (*ScanReport, error) {
	snapshot := s.aggregator.Collect(ctx)
	opportunities, scanSkips := s.scanner.Scan(snapshot)
	_, gateSkips := s.gate.Filter(opportunities, s.positions.OpenPairs())

	s.publish(ctx, snapshot, opportunities)

	return &ScanReport{
		Opportunities: opportunities,
		Skips:         append(scanSkips, gateSkips...),
		FailedVenues:  snapshot.FailedVenues,
		Timestamp:     snapshot.Timestamp,
	}, nil
}

// publish pushes cycle artifacts to the sink; the engine never depends
// on it succeeding.
func (s *Scheduler) publish(ctx context.Context, snapshot *Snapshot, opportunities []models.ArbitrageOpportunity) {
	if s.sink == nil {
		return
	}
	if snapshot != nil {
		if err := s.sink.StoreSnapshot(ctx, snapshot); err != nil {
			s.logger.WithError(err).Debug("Snapshot publish failed")
		}
	}
	if opportunities != nil {
		if err := s.sink.StoreOpportunities(ctx, opportunities); err != nil {
			s.logger.WithError(err).Debug("Opportunity publish failed")
		}
	}
}
