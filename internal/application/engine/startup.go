package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// Reconcile brings the engine in line with whatever already exists on
// the account: reloads the statistics history, inspects pre-existing
// open orders, and either adopts them into the ladder or, on operator
// request, clears the account and starts fresh. A flat account gets
// its first buy sized from a fraction of the total balance.
func (e *Engine) Reconcile(ctx context.Context) error {
	history, err := e.store.LoadHistory(ctx)
	if err != nil {
		return fmt.Errorf("engine.Reconcile: load history: %w", err)
	}
	e.history = history
	slog.Info("engine: statistics history loaded", "days", history.Len())

	raw, err := e.gw.FetchOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("engine.Reconcile: fetch open orders: %w", err)
	}

	if len(raw) == 0 {
		return e.startFresh(ctx)
	}

	summary, err := domain.NewOpenOrdersSummary(raw, e.cfg.InverseQuoted)
	if err != nil {
		return fmt.Errorf("engine.Reconcile: %w", err)
	}
	if err := e.notifier.NotifyStartup(ctx, summary); err != nil {
		slog.Warn("engine: notifier error", "err", err)
	}

	load, err := e.operator.Confirm("load the existing open orders into the ladder")
	if err != nil {
		return fmt.Errorf("engine.Reconcile: operator: %w", err)
	}
	if load {
		return e.adoptOrders(ctx, summary)
	}
	return e.clearAccount(ctx, summary)
}

// adoptOrders loads pre-existing orders into the engine state,
// auto-configuring a missing first order when one side is empty.
func (e *Engine) adoptOrders(ctx context.Context, summary domain.OpenOrdersSummary) error {
	// sells price-ascending, per the ladder invariant
	for i := len(summary.SellOrders) - 1; i >= 0; i-- {
		e.insertSellRung(summary.SellOrders[i])
	}

	// at most one open buy: adopt the highest, cancel the rest
	if buy, ok := summary.HighestBuy(); ok {
		adopted := buy
		e.currentBuy = &adopted
		e.buyLedger = append(e.buyLedger, adopted)
		for _, extra := range summary.BuyOrders[1:] {
			slog.Warn("engine: cancelling surplus pre-existing buy order", "id", extra.ID, "price", extra.Price)
			if _, err := e.cancelOrderPolled(ctx, extra.ID); err != nil {
				return err
			}
		}
	}

	if err := e.SetInitialLeverage(ctx); err != nil {
		return err
	}

	ticker, err := e.gw.FetchTicker(ctx)
	if err != nil {
		return fmt.Errorf("engine.adoptOrders: fetch ticker: %w", err)
	}
	balance, err := e.gw.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("engine.adoptOrders: fetch balance: %w", err)
	}
	e.quota = CalculateQuota(e.cfg, balance.Total)
	cy := &cycle{bid: ticker.Bid, balance: balance}

	if e.currentBuy == nil {
		if err := e.ensureBuyOrder(ctx, cy); err != nil {
			return err
		}
	}
	if len(e.sellOrders) == 0 {
		if err := e.createDividedSell(ctx, cy); err != nil {
			return err
		}
	}

	slog.Info("engine: adopted pre-existing orders",
		"sell_rungs", len(e.sellOrders), "buy_open", e.currentBuy != nil)
	return nil
}

// clearAccount cancels every pre-existing order, closes the position,
// and creates the initial buy.
func (e *Engine) clearAccount(ctx context.Context, summary domain.OpenOrdersSummary) error {
	for _, o := range append(summary.BuyOrders, summary.SellOrders...) {
		if _, err := e.cancelOrderPolled(ctx, o.ID); err != nil {
			return err
		}
	}

	position, err := e.gw.FetchPosition(ctx)
	if err != nil {
		return fmt.Errorf("engine.clearAccount: fetch position: %w", err)
	}
	if position.IsOpen && position.CurrentQty != 0 {
		side := domain.SideSell
		amount := position.CurrentQty
		if amount < 0 {
			side = domain.SideBuy
			amount = -amount
		}
		if _, err := e.gw.PlaceMarketOrder(ctx, side, amount); err != nil {
			return fmt.Errorf("engine.clearAccount: close position: %w", err)
		}
		slog.Info("engine: pre-existing position closed", "qty", position.CurrentQty)
	}

	return e.startFresh(ctx)
}

// startFresh sets the initial leverage and, when the account is flat,
// creates the first buy from a fraction of the total balance rather
// than the per-rung quota.
func (e *Engine) startFresh(ctx context.Context) error {
	if err := e.SetInitialLeverage(ctx); err != nil {
		return err
	}

	position, err := e.gw.FetchPosition(ctx)
	if err != nil {
		return fmt.Errorf("engine.startFresh: fetch position: %w", err)
	}
	if position.IsOpen {
		slog.Info("engine: open position without orders, ladder resumes from the loop")
		return nil
	}

	ticker, err := e.gw.FetchTicker(ctx)
	if err != nil {
		return fmt.Errorf("engine.startFresh: fetch ticker: %w", err)
	}
	balance, err := e.gw.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("engine.startFresh: fetch balance: %w", err)
	}
	e.quota = CalculateQuota(e.cfg, balance.Total)

	amount := math.Floor(e.contractsFromBalance(balance.Total*initialBalanceFraction, ticker.Bid))
	cy := &cycle{bid: ticker.Bid, balance: balance}
	err = e.createBuyOrder(ctx, cy, ticker.Bid, amount, false)
	if err == ErrTradeTrialsExhausted {
		slog.Warn("engine: initial buy not placed, trials exhausted; retrying from the loop")
		return nil
	}
	return err
}
