package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// StopReport is what the out-of-band stop command leaves the operator
// with: the position and PnL at the moment of shutdown.
type StopReport struct {
	CancelledOrders int
	ClosedQty       float64
	UnrealisedPnl   float64
	FinalBalance    float64
}

// Stop cancels all open orders, closes any open position with a market
// order, and reports PnL. The engine must not be run again afterwards.
func (e *Engine) Stop(ctx context.Context) (StopReport, error) {
	var report StopReport

	open, err := e.gw.FetchOpenOrders(ctx)
	if err != nil {
		return report, fmt.Errorf("engine.Stop: fetch open orders: %w", err)
	}
	for _, o := range open {
		if _, err := e.cancelOrderPolled(ctx, o.ID); err != nil {
			return report, err
		}
		report.CancelledOrders++
	}
	e.currentBuy = nil
	e.sellOrders = nil

	position, err := e.gw.FetchPosition(ctx)
	if err != nil {
		return report, fmt.Errorf("engine.Stop: fetch position: %w", err)
	}
	report.UnrealisedPnl = position.UnrealisedPnl

	if position.IsOpen && position.CurrentQty != 0 {
		side := domain.SideSell
		amount := position.CurrentQty
		if amount < 0 {
			side = domain.SideBuy
			amount = -amount
		}
		if _, err := e.gw.PlaceMarketOrder(ctx, side, amount); err != nil {
			return report, fmt.Errorf("engine.Stop: close position: %w", err)
		}
		report.ClosedQty = position.CurrentQty
	}

	balance, err := e.gw.FetchBalance(ctx)
	if err != nil {
		return report, fmt.Errorf("engine.Stop: fetch balance: %w", err)
	}
	report.FinalBalance = balance.Total

	slog.Info("engine: stopped",
		"cancelled_orders", report.CancelledOrders,
		"closed_qty", report.ClosedQty,
		"unrealised_pnl", report.UnrealisedPnl,
		"final_balance", report.FinalBalance)
	return report, nil
}

// Deactivate is the orderly reaction to a fatal condition: no further
// order mutation, notify the operator, and leave whatever is on the
// venue as-is for manual intervention.
func (e *Engine) Deactivate(ctx context.Context, cause error) {
	slog.Error("engine: deactivating on fatal condition", "err", cause)
	if err := e.notifier.NotifyFatal(ctx, "ladderbot deactivated", cause); err != nil {
		slog.Warn("engine: could not notify operator", "err", err)
	}
}
