package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantfold/perparb/internal/models"
	"github.com/quantfold/perparb/internal/venues"
)

var hoursPerYear = decimal.NewFromInt(24 * 365)

// PositionStore durably persists positions so a restart resumes
// monitoring committed capital instead of losing track of it.
type PositionStore interface {
	Save(ctx context.Context, position *models.Position) error
	Update(ctx context.Context, position *models.Position) error
	ListActive(ctx context.Context) ([]*models.Position, error)
}

// Escalator surfaces conditions that must reach the operator loudly,
// not just a log line.
type Escalator interface {
	Escalate(ctx context.Context, subject, detail string)
}

// PositionManagerConfig bounds trade execution.
type PositionManagerConfig struct {
	LegTimeout        time.Duration
	UnwindMaxAttempts int
	// ExitApyBps is the hysteresis floor: an open position closes once
	// its live spread decays below it. Always below the entry threshold.
	ExitApyBps     decimal.Decimal
	MaxSlippageBps int
	MaxHold        time.Duration
	// SigningFailureLimit escalates after this many consecutive signing
	// failures on one venue.
	SigningFailureLimit int
}

// PositionManager owns the lifecycle state machine of every position.
// No other component mutates the open-position set.
type PositionManager struct {
	registry *venues.Registry
	store    PositionStore
	tracker  *PnLTracker
	notifier Escalator
	config   PositionManagerConfig
	logger   *logrus.Logger

	mu           sync.RWMutex
	open         map[string]*models.Position
	signFailures map[string]int
}

func NewPositionManager(
	registry *venues.Registry,
	store PositionStore,
	tracker *PnLTracker,
	notifier Escalator,
	config PositionManagerConfig,
	logger *logrus.Logger,
) *PositionManager {
	if config.UnwindMaxAttempts < 1 {
		config.UnwindMaxAttempts = 3
	}
	if config.LegTimeout <= 0 {
		config.LegTimeout = 5 * time.Second
	}
	if config.SigningFailureLimit < 1 {
		config.SigningFailureLimit = 3
	}
	return &PositionManager{
		registry:     registry,
		store:        store,
		tracker:      tracker,
		notifier:     notifier,
		config:       config,
		logger:       logger,
		open:         make(map[string]*models.Position),
		signFailures: make(map[string]int),
	}
}

// Restore loads non-terminal positions from the store, so a restarted
// process picks up capital committed before the crash. Positions caught
// mid-transition are handed to the operator instead of resumed.
func (m *PositionManager) Restore(ctx context.Context) error {
	positions, err := m.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore positions: %w", err)
	}

	for _, position := range positions {
		if position.Status == models.StatusOpen {
			m.trackOpen(position)
			m.logger.WithFields(logrus.Fields{
				"position_id": position.ID,
				"pair":        position.Pair,
				"status":      position.Status,
			}).Info("Restored position from store")
			continue
		}

		// The process died mid-transition, so the fill state on the
		// venues is unknown. No automated recovery is safe here.
		interrupted := position.Status
		position.FailureReason = fmt.Sprintf("restored in %s state, fill state unknown", interrupted)
		m.transition(ctx, position, models.StatusManualIntervention)
		m.notifier.Escalate(ctx, "UNRECONCILED POSITION - MANUAL INTERVENTION REQUIRED",
			fmt.Sprintf("position %s (%s) was interrupted while %s; verify fills on %s and %s before trading the pair again",
				position.ID, position.Pair, interrupted, position.LongLeg.Venue, position.ShortLeg.Venue))
	}
	return nil
}

// ListOpen returns a snapshot of all non-terminal positions.
func (m *PositionManager) ListOpen() []*models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	positions := make([]*models.Position, 0, len(m.open))
	for _, position := range m.open {
		copied := *position
		positions = append(positions, &copied)
	}
	return positions
}

// listTracked returns the tracked position pointers for in-package
// lifecycle work. API consumers get copies via ListOpen.
func (m *PositionManager) listTracked() []*models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	positions := make([]*models.Position, 0, len(m.open))
	for _, position := range m.open {
		positions = append(positions, position)
	}
	return positions
}

// OpenPairs returns the pairs that currently carry a live position.
func (m *PositionManager) OpenPairs() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pairs := make(map[string]bool, len(m.open))
	for _, position := range m.open {
		pairs[position.Pair] = true
	}
	return pairs
}

// Open commits capital to an opportunity: both legs are submitted
// concurrently to minimize the basis-risk window. A partial fill is
// unwound immediately; the attempt is always recorded in the ledger.
func (m *PositionManager) Open(ctx context.Context, opportunity models.ArbitrageOpportunity, notionalUSD decimal.Decimal) (*models.Position, error) {
	position := &models.Position{
		ID:          uuid.New().String(),
		Pair:        opportunity.Pair,
		Opportunity: opportunity,
		Status:      models.StatusEvaluating,
		NotionalUSD: notionalUSD,
		EntryApyBps: opportunity.ProfitBps,
		LongLeg: models.PositionLeg{
			Venue:       opportunity.LongVenue,
			Pair:        opportunity.Pair,
			Side:        models.SideLong,
			NotionalUSD: notionalUSD,
			Status:      models.FillPending,
		},
		ShortLeg: models.PositionLeg{
			Venue:       opportunity.ShortVenue,
			Pair:        opportunity.Pair,
			Side:        models.SideShort,
			NotionalUSD: notionalUSD,
			Status:      models.FillPending,
		},
		LastEvaluatedAt: time.Now(),
	}

	if err := m.store.Save(ctx, position); err != nil {
		return nil, fmt.Errorf("failed to persist new position: %w", err)
	}
	m.transition(ctx, position, models.StatusOpening)

	started := time.Now()
	longResult := m.submitLegAsync(ctx, &position.LongLeg, venues.Buy, false)
	shortResult := m.submitLegAsync(ctx, &position.ShortLeg, venues.Sell, false)
	longRes, longFillErr := longResult()
	shortRes, shortFillErr := shortResult()

	applyFill(&position.LongLeg, longRes, longFillErr, true)
	applyFill(&position.ShortLeg, shortRes, shortFillErr, true)
	m.noteSigningOutcome(ctx, position.LongLeg.Venue, longFillErr)
	m.noteSigningOutcome(ctx, position.ShortLeg.Venue, shortFillErr)

	latency := time.Since(started)

	switch {
	case longFillErr == nil && shortFillErr == nil:
		m.transition(ctx, position, models.StatusOpen)
		position.OpenedAt = time.Now()
		position.LastEvaluatedAt = position.OpenedAt
		m.trackOpen(position)
		if err := m.store.Update(ctx, position); err != nil {
			m.logger.WithError(err).Error("Failed to persist opened position")
		}
		m.record(ctx, position, models.TradeEntry, true, decimal.Zero, "", latency)
		return position, nil

	case longFillErr != nil && shortFillErr != nil:
		// Neither leg reached the venue: no capital committed.
		position.FailureReason = fmt.Sprintf("both legs failed: long: %v; short: %v", longFillErr, shortFillErr)
		m.transition(ctx, position, models.StatusFailed)
		m.record(ctx, position, models.TradeEntry, false, decimal.Zero, position.FailureReason, latency)
		return position, fmt.Errorf("entry failed on both legs: %v; %v", longFillErr, shortFillErr)

	default:
		// One leg filled, the other did not: unwind the filled leg.
		filled, failedErr := &position.LongLeg, shortFillErr
		if longFillErr != nil {
			filled, failedErr = &position.ShortLeg, longFillErr
		}
		return position, m.unwindLeg(ctx, position, filled, failedErr, latency)
	}
}

// unwindLeg market-closes the one leg that filled after its sibling
// failed. Attempts are bounded; exhaustion flags the position for manual
// intervention since capital remains exposed.
func (m *PositionManager) unwindLeg(ctx context.Context, position *models.Position, leg *models.PositionLeg, cause error, latency time.Duration) error {
	m.logger.WithFields(logrus.Fields{
		"position_id": position.ID,
		"pair":        position.Pair,
		"venue":       leg.Venue,
		"side":        leg.Side,
	}).WithError(cause).Warn("Partial fill, unwinding filled leg")

	var unwindErr error
	for attempt := 1; attempt <= m.config.UnwindMaxAttempts; attempt++ {
		result, err := m.closeLegOnce(ctx, leg)
		if err == nil {
			leg.Status = models.FillUnwound
			leg.ExitPrice = result.FillPrice
			position.FailureReason = fmt.Sprintf("sibling leg failed: %v (unwound after %d attempt(s))", cause, attempt)
			m.transition(ctx, position, models.StatusFailed)
			m.record(ctx, position, models.TradeUnwind, false, unwindLoss(leg), position.FailureReason, latency)
			return fmt.Errorf("entry partially filled, unwound %s leg on %s: %w", leg.Side, leg.Venue, cause)
		}
		unwindErr = err
		m.logger.WithFields(logrus.Fields{
			"position_id": position.ID,
			"venue":       leg.Venue,
			"attempt":     attempt,
			"max":         m.config.UnwindMaxAttempts,
		}).WithError(err).Error("Unwind attempt failed")
	}

	leg.Status = models.FillStranded
	position.FailureReason = fmt.Sprintf("unwind failed after %d attempts: %v (cause: %v)", m.config.UnwindMaxAttempts, unwindErr, cause)
	m.transition(ctx, position, models.StatusManualIntervention)
	m.record(ctx, position, models.TradeUnwind, false, decimal.Zero, position.FailureReason, latency)
	m.notifier.Escalate(ctx, "UNWIND FAILED - MANUAL INTERVENTION REQUIRED",
		fmt.Sprintf("position %s (%s): %s leg on %s is stranded with %s notional: %s",
			position.ID, position.Pair, leg.Side, leg.Venue, leg.NotionalUSD.StringFixed(2), position.FailureReason))
	return fmt.Errorf("unwind failed, position %s flagged for manual intervention: %w", position.ID, unwindErr)
}

// EvaluateOpen accrues funding for an open position from the latest
// snapshot and decides whether it should be closed. Terminal positions
// are a no-op.
func (m *PositionManager) EvaluateOpen(ctx context.Context, position *models.Position, snapshot *Snapshot) error {
	if position.Status.IsTerminal() {
		return nil
	}
	if position.Status != models.StatusOpen {
		return nil
	}

	now := snapshot.Timestamp
	longRate, okLong := snapshot.FundingFor(position.Pair, position.LongLeg.Venue)
	shortRate, okShort := snapshot.FundingFor(position.Pair, position.ShortLeg.Venue)
	if !okLong || !okShort {
		// One venue missing this cycle: skip accrual, keep the position.
		m.logger.WithFields(logrus.Fields{
			"position_id": position.ID,
			"pair":        position.Pair,
		}).Debug("Funding data incomplete this cycle, skipping accrual")
		return nil
	}

	m.mu.Lock()
	elapsed := now.Sub(position.LastEvaluatedAt)
	accrued := decimal.Zero
	if elapsed > 0 {
		accrued = m.accrueFunding(position, longRate, shortRate, elapsed)
	}
	position.LastEvaluatedAt = now
	m.mu.Unlock()
	if !accrued.IsZero() {
		m.record(ctx, position, models.TradeFunding, true, accrued, "", 0)
	}

	spreadBps := shortRate.AnnualizedRate().Sub(longRate.AnnualizedRate()).Mul(bpsPerUnit)

	shouldClose := false
	reason := ""
	if spreadBps.LessThan(m.config.ExitApyBps) {
		shouldClose = true
		reason = fmt.Sprintf("spread decayed to %s bps, below exit threshold %s bps",
			spreadBps.StringFixed(1), m.config.ExitApyBps.StringFixed(1))
	} else if m.config.MaxHold > 0 && now.Sub(position.OpenedAt) > m.config.MaxHold {
		shouldClose = true
		reason = fmt.Sprintf("held longer than %s", m.config.MaxHold)
	}

	if err := m.store.Update(ctx, position); err != nil {
		m.logger.WithError(err).Error("Failed to persist position evaluation")
	}

	if !shouldClose {
		return nil
	}

	m.logger.WithFields(logrus.Fields{
		"position_id": position.ID,
		"pair":        position.Pair,
		"reason":      reason,
	}).Info("Closing position")
	return m.Close(ctx, position)
}

// Close exits both legs concurrently. Partial closes follow the same
// bounded unwind-and-escalate policy as entry. Closing an already
// terminal position is a no-op.
func (m *PositionManager) Close(ctx context.Context, position *models.Position) error {
	if position.Status.IsTerminal() {
		return nil
	}

	m.transition(ctx, position, models.StatusClosing)
	started := time.Now()

	longResult := m.submitLegAsync(ctx, &position.LongLeg, venues.Sell, true)
	shortResult := m.submitLegAsync(ctx, &position.ShortLeg, venues.Buy, true)
	longRes, longErr := longResult()
	shortRes, shortErr := shortResult()

	m.mu.Lock()
	if longErr == nil && longRes != nil {
		position.LongLeg.ExitPrice = longRes.FillPrice
	}
	if shortErr == nil && shortRes != nil {
		position.ShortLeg.ExitPrice = shortRes.FillPrice
	}
	m.mu.Unlock()
	m.noteSigningOutcome(ctx, position.LongLeg.Venue, longErr)
	m.noteSigningOutcome(ctx, position.ShortLeg.Venue, shortErr)
	latency := time.Since(started)

	// Retry any leg that failed to close, bounded like entry unwinds.
	if longErr != nil {
		longErr = m.retryClose(ctx, position, &position.LongLeg)
	}
	if shortErr != nil {
		shortErr = m.retryClose(ctx, position, &position.ShortLeg)
	}

	if longErr != nil || shortErr != nil {
		m.mu.Lock()
		stuck := &position.LongLeg
		stuckErr := longErr
		if longErr != nil {
			position.LongLeg.Status = models.FillStranded
		}
		if shortErr != nil {
			position.ShortLeg.Status = models.FillStranded
			stuck = &position.ShortLeg
			stuckErr = shortErr
		}
		position.FailureReason = fmt.Sprintf("close failed after %d attempts on %s: %v",
			m.config.UnwindMaxAttempts, stuck.Venue, stuckErr)
		m.mu.Unlock()
		m.transition(ctx, position, models.StatusManualIntervention)
		m.record(ctx, position, models.TradeExit, false, position.AccruedFundingUSD, position.FailureReason, latency)
		m.untrack(position.ID)
		m.notifier.Escalate(ctx, "CLOSE FAILED - MANUAL INTERVENTION REQUIRED",
			fmt.Sprintf("position %s (%s): %s leg on %s did not close: %v",
				position.ID, position.Pair, stuck.Side, stuck.Venue, stuckErr))
		return fmt.Errorf("close failed, position %s flagged for manual intervention: %w", position.ID, stuckErr)
	}

	m.mu.Lock()
	realized := m.realizedPnL(position)
	closedAt := time.Now()
	position.ClosedAt = &closedAt
	m.mu.Unlock()
	m.transition(ctx, position, models.StatusClosed)
	m.record(ctx, position, models.TradeExit, true, realized, "", latency)
	m.untrack(position.ID)

	m.logger.WithFields(logrus.Fields{
		"position_id": position.ID,
		"pair":        position.Pair,
		"realized":    realized.StringFixed(2),
		"held":        closedAt.Sub(position.OpenedAt).String(),
	}).Info("Position closed")
	return nil
}

// submitLegAsync issues one leg's order on its own goroutine with a
// bounded, cancel-isolated context: an engine shutdown still waits for
// in-flight submissions so fill bookkeeping is never skipped.
func (m *PositionManager) submitLegAsync(ctx context.Context, leg *models.PositionLeg, side venues.OrderSide, reduceOnly bool) func() (*venues.OrderResult, error) {
	type outcome struct {
		result *venues.OrderResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		legCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.LegTimeout)
		defer cancel()

		adapter, err := m.registry.Get(leg.Venue)
		if err != nil {
			done <- outcome{nil, err}
			return
		}
		order := venues.Order{
			Pair:           leg.Pair,
			Side:           side,
			NotionalUSD:    leg.NotionalUSD,
			ReduceOnly:     reduceOnly,
			MaxSlippageBps: m.config.MaxSlippageBps,
		}
		if reduceOnly {
			order.BaseSize = leg.BaseSize
		}
		result, err := adapter.SubmitOrder(legCtx, order)
		done <- outcome{result, err}
	}()

	return func() (*venues.OrderResult, error) {
		o := <-done
		return o.result, o.err
	}
}

// closeLegOnce submits a single reduce-only order against a leg.
func (m *PositionManager) closeLegOnce(ctx context.Context, leg *models.PositionLeg) (*venues.OrderResult, error) {
	return m.submitLegAsync(ctx, leg, closingSide(leg.Side), true)()
}

// retryClose keeps trying to close one stuck leg, bounded by the unwind
// attempt limit.
func (m *PositionManager) retryClose(ctx context.Context, position *models.Position, leg *models.PositionLeg) error {
	var lastErr error
	for attempt := 1; attempt <= m.config.UnwindMaxAttempts; attempt++ {
		result, err := m.closeLegOnce(ctx, leg)
		if err == nil {
			m.mu.Lock()
			leg.ExitPrice = result.FillPrice
			m.mu.Unlock()
			return nil
		}
		lastErr = err
		m.logger.WithFields(logrus.Fields{
			"position_id": position.ID,
			"venue":       leg.Venue,
			"attempt":     attempt,
		}).WithError(err).Error("Close retry failed")
	}
	return lastErr
}

// accrueFunding adds the funding earned since the last evaluation:
// notional x (short venue rate - long venue rate), normalized per hour
// across differing funding intervals.
func (m *PositionManager) accrueFunding(position *models.Position, longRate, shortRate *models.FundingRate, elapsed time.Duration) decimal.Decimal {
	netAnnual := shortRate.AnnualizedRate().Sub(longRate.AnnualizedRate())
	hours := decimal.NewFromFloat(elapsed.Hours())
	accrued := position.NotionalUSD.Mul(netAnnual).Mul(hours).Div(hoursPerYear)
	position.AccruedFundingUSD = position.AccruedFundingUSD.Add(accrued)
	return accrued
}

// realizedPnL is accrued funding plus the price PnL of both legs.
func (m *PositionManager) realizedPnL(position *models.Position) decimal.Decimal {
	realized := position.AccruedFundingUSD
	realized = realized.Add(legPricePnL(&position.LongLeg))
	realized = realized.Add(legPricePnL(&position.ShortLeg))
	return realized
}

// transition writes the status under the manager lock: ListOpen copies
// tracked positions concurrently, and an unlocked write would race the
// API's reads.
func (m *PositionManager) transition(ctx context.Context, position *models.Position, next models.PositionStatus) {
	m.mu.Lock()
	previous := position.Status
	position.Status = next
	m.mu.Unlock()
	m.logger.WithFields(logrus.Fields{
		"position_id": position.ID,
		"pair":        position.Pair,
		"from":        previous,
		"to":          next,
	}).Info("Position state transition")
	if err := m.store.Update(ctx, position); err != nil {
		m.logger.WithError(err).Error("Failed to persist state transition")
	}
}

// record writes a trade result; ledger failures affecting committed
// capital are never silently absorbed, so they are logged at error.
func (m *PositionManager) record(ctx context.Context, position *models.Position, kind models.TradeKind, success bool, pnl decimal.Decimal, detail string, latency time.Duration) {
	result := &models.TradeResult{
		ID:               uuid.New().String(),
		PositionID:       position.ID,
		Pair:             position.Pair,
		Kind:             kind,
		Success:          success,
		LongTxSignature:  position.LongLeg.TxSignature,
		ShortTxSignature: position.ShortLeg.TxSignature,
		RealizedPnLUSD:   pnl,
		ErrorDetail:      detail,
		LatencyMs:        latency.Milliseconds(),
		ExecutedAt:       time.Now(),
	}
	if err := m.tracker.Record(ctx, result); err != nil {
		m.logger.WithFields(logrus.Fields{
			"position_id": position.ID,
			"kind":        kind,
		}).WithError(err).Error("Failed to record trade result")
	}
}

// noteSigningOutcome tracks consecutive signing failures per venue and
// escalates once the limit is hit. Any success resets the counter.
func (m *PositionManager) noteSigningOutcome(ctx context.Context, venue string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		m.signFailures[venue] = 0
		return
	}
	if !errors.Is(err, venues.ErrSigning) {
		return
	}
	m.signFailures[venue]++
	if m.signFailures[venue] == m.config.SigningFailureLimit {
		m.notifier.Escalate(ctx, "PERSISTENT SIGNING FAILURES",
			fmt.Sprintf("venue %s: %d consecutive signing failures", venue, m.signFailures[venue]))
	}
}

func (m *PositionManager) trackOpen(position *models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[position.ID] = position
}

func (m *PositionManager) untrack(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, id)
}

func applyFill(leg *models.PositionLeg, result *venues.OrderResult, err error, entry bool) {
	if err != nil {
		leg.Status = models.FillFailed
		return
	}
	leg.Status = models.FillFilled
	leg.TxSignature = result.TxSignature
	if entry {
		leg.EntryPrice = result.FillPrice
		leg.BaseSize = result.FilledSize
	}
}

func closingSide(side models.LegSide) venues.OrderSide {
	if side == models.SideLong {
		return venues.Sell
	}
	return venues.Buy
}

// legPricePnL values one closed leg against its entry.
func legPricePnL(leg *models.PositionLeg) decimal.Decimal {
	if leg.EntryPrice.IsZero() || leg.ExitPrice.IsZero() {
		return decimal.Zero
	}
	move := leg.ExitPrice.Sub(leg.EntryPrice).Div(leg.EntryPrice)
	if leg.Side == models.SideShort {
		move = move.Neg()
	}
	return leg.NotionalUSD.Mul(move)
}

// unwindLoss estimates the cost of an unwound entry leg: the round trip
// between entry and unwind fill.
func unwindLoss(leg *models.PositionLeg) decimal.Decimal {
	return legPricePnL(leg)
}
