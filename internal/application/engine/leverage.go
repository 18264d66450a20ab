package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

const (
	// leverage moves in 0.1 steps; within the tolerance the current and
	// target values count as equal
	leverageStepSize  = 0.1
	leverageTolerance = 0.01

	maxLeverageIterations = 50
	boostIncrement        = 0.1

	// compact_position keeps reducing leverage only while the used-margin
	// percentage stays below this threshold
	compactUsedMarginMax = 0.4
)

// NextLeverageStep moves current toward target by at most one step,
// clamping the final step exactly onto the target so it never
// overshoots.
func NextLeverageStep(current, target float64) float64 {
	diff := target - current
	if math.Abs(diff) <= leverageStepSize {
		return target
	}
	if diff > 0 {
		return current + leverageStepSize
	}
	return current - leverageStepSize
}

// TargetLeverage derives the leverage target from the sentiment
// indicator: cautious above mm_ceil, aggressive below mm_floor, default
// otherwise or when auto_leverage is off.
func (e *Engine) TargetLeverage(mayer domain.Mayer) float64 {
	if !e.cfg.AutoLeverage || !mayer.Valid() {
		return e.cfg.LeverageDefault
	}
	switch {
	case mayer.Current > e.cfg.MMCeil:
		return e.cfg.LeverageLow
	case mayer.Current < e.cfg.MMFloor:
		return e.cfg.LeverageHigh
	default:
		return e.cfg.LeverageDefault
	}
}

// AdjustLeverage steps the account leverage toward the target, one
// bounded step per poll, until it is within tolerance or the iteration
// bound runs out (the next cycle resumes from wherever it stopped).
func (e *Engine) AdjustLeverage(ctx context.Context, mayer domain.Mayer) error {
	target := e.TargetLeverage(mayer)

	for i := 0; i < maxLeverageIterations; i++ {
		lev, err := e.gw.FetchLeverage(ctx)
		if err != nil {
			return fmt.Errorf("engine.AdjustLeverage: fetch: %w", err)
		}
		current := lev.Relevant()
		if math.Abs(target-current) <= leverageTolerance {
			return nil
		}

		next := NextLeverageStep(current, target)
		if err := e.gw.SetLeverage(ctx, next); err != nil && !errors.Is(err, ports.ErrLeverageUnchanged) {
			return fmt.Errorf("engine.AdjustLeverage: set %.1f: %w", next, err)
		}
		observeLeverage(next)

		if err := e.sleep(ctx, e.pollDelay); err != nil {
			return err
		}
	}
	slog.Warn("engine: leverage adjustment bound reached, resuming next cycle", "target", target)
	return nil
}

// BoostLeverage raises leverage by one fixed increment unless the
// account already sits at or above the high bound.
func (e *Engine) BoostLeverage(ctx context.Context) error {
	lev, err := e.gw.FetchLeverage(ctx)
	if err != nil {
		return fmt.Errorf("engine.BoostLeverage: fetch: %w", err)
	}
	current := lev.Relevant()
	if current >= e.cfg.LeverageHigh {
		return nil
	}
	next := current + boostIncrement
	if err := e.gw.SetLeverage(ctx, next); err != nil && !errors.Is(err, ports.ErrLeverageUnchanged) {
		return fmt.Errorf("engine.BoostLeverage: set %.1f: %w", next, err)
	}
	observeLeverage(next)
	return nil
}

// CompactPosition walks leverage down in steps while the used-margin
// percentage stays below the safety threshold. A no-change report from
// the venue or crossing the threshold stops it without error.
func (e *Engine) CompactPosition(ctx context.Context) error {
	for i := 0; i < maxLeverageIterations; i++ {
		balance, err := e.gw.FetchBalance(ctx)
		if err != nil {
			return fmt.Errorf("engine.CompactPosition: fetch balance: %w", err)
		}
		if balance.UsedPct() >= compactUsedMarginMax {
			return nil
		}

		lev, err := e.gw.FetchLeverage(ctx)
		if err != nil {
			return fmt.Errorf("engine.CompactPosition: fetch leverage: %w", err)
		}
		next := lev.Relevant() - leverageStepSize
		if next <= 0 {
			return nil
		}

		err = e.gw.SetLeverage(ctx, next)
		if errors.Is(err, ports.ErrLeverageUnchanged) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("engine.CompactPosition: set %.1f: %w", next, err)
		}
		observeLeverage(next)

		if err := e.sleep(ctx, e.pollDelay); err != nil {
			return err
		}
	}
	return nil
}

// SetInitialLeverage sets leverage to the default once per process,
// and only when the relevant account leverage sits below the low bound.
func (e *Engine) SetInitialLeverage(ctx context.Context) error {
	if e.leverageDone {
		return nil
	}

	lev, err := e.gw.FetchLeverage(ctx)
	if err != nil {
		return fmt.Errorf("engine.SetInitialLeverage: fetch: %w", err)
	}
	if lev.Relevant() < e.cfg.LeverageLow {
		if err := e.gw.SetLeverage(ctx, e.cfg.LeverageDefault); err != nil && !errors.Is(err, ports.ErrLeverageUnchanged) {
			return fmt.Errorf("engine.SetInitialLeverage: set %.1f: %w", e.cfg.LeverageDefault, err)
		}
		observeLeverage(e.cfg.LeverageDefault)
		slog.Info("engine: initial leverage set", "leverage", e.cfg.LeverageDefault)
	}
	e.leverageDone = true
	return nil
}
