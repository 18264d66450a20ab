package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/ladderbot/config"
	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

const (
	// fraction of total balance committed to the very first buy when the
	// account starts flat
	initialBalanceFraction = 0.2

	// delay between status polls while waiting on a cancel or a leverage step
	defaultPollDelay = 2 * time.Second

	// bounded wait for an order to reach a terminal state after cancel
	maxCancelPolls = 30
)

// ErrTradeTrialsExhausted reports that an order placement gave up after
// trade_trials attempts. Operational, not fatal: the loop continues on
// the next tick.
var ErrTradeTrialsExhausted = errors.New("trade trials exhausted")

// Engine owns the order ladder on one instrument: the single open buy
// order, the ledger of placed buys, and the open sell rungs. All state
// lives here, passed nowhere as globals; a single goroutine drives it.
type Engine struct {
	cfg      config.ExchangeConfig
	gw       ports.Exchange
	store    ports.StatsStorage
	notifier ports.Notifier
	operator ports.Operator

	currentBuy *domain.Order  // at most one open buy order
	buyLedger  []domain.Order // placed buys, append-only except cancel
	sellOrders []domain.Order // open sell rungs, price-ascending

	history *domain.History
	quota   int

	maShortDays int
	maLongDays  int

	retryDelay time.Duration
	pollDelay  time.Duration

	leverageDone bool // set_initial_leverage guard
	stoppedOnTop bool
}

// cycle carries the per-tick market snapshot between the engine phases.
type cycle struct {
	bid         float64
	balance     domain.Balance
	leverage    domain.AccountLeverage
	mayer       domain.Mayer
	funding     float64
	hibernating bool

	buyFills     int
	sellFills    int
	ordersPlaced int
	warnings     []string
}

func (c *cycle) warn(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

// New wires an Engine from its collaborators. The statistics history is
// loaded lazily by Reconcile.
func New(cfg *config.Config, gw ports.Exchange, store ports.StatsStorage, notifier ports.Notifier, operator ports.Operator) *Engine {
	ex := cfg.Exchange
	if ex.TradeTrials < 1 {
		// placements need at least one attempt
		ex.TradeTrials = 1
	}
	return &Engine{
		cfg:         ex,
		gw:          gw,
		store:       store,
		notifier:    notifier,
		operator:    operator,
		history:     domain.NewHistory(nil),
		quota:       cfg.Exchange.Quota,
		maShortDays: cfg.Engine.MAShortDays,
		maLongDays:  cfg.Engine.MALongDays,
		retryDelay:  cfg.RetryDelay(),
		pollDelay:   defaultPollDelay,
	}
}

// Run drives the control loop until the context ends or a fatal error
// surfaces. One iteration per tick; no parallel trading logic.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := e.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("engine.Run: %w", err)
		}
		if err := e.notifier.NotifyCycle(ctx, report); err != nil {
			slog.Warn("engine: notifier error", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce executes one control-loop iteration: fetch market state,
// reconcile the buy order, reconcile the sell rungs, rebalance the
// ladder, nudge leverage, update statistics. Buy reconciliation happens
// strictly before sell reconciliation before the spread pass, so one
// fill is never processed twice within a tick.
func (e *Engine) RunOnce(ctx context.Context) (domain.CycleReport, error) {
	ticker, err := e.gw.FetchTicker(ctx)
	if err != nil {
		return domain.CycleReport{}, fmt.Errorf("engine.RunOnce: fetch ticker: %w", err)
	}
	balance, err := e.gw.FetchBalance(ctx)
	if err != nil {
		return domain.CycleReport{}, fmt.Errorf("engine.RunOnce: fetch balance: %w", err)
	}
	leverage, err := e.gw.FetchLeverage(ctx)
	if err != nil {
		return domain.CycleReport{}, fmt.Errorf("engine.RunOnce: fetch leverage: %w", err)
	}

	cy := &cycle{bid: ticker.Bid, balance: balance, leverage: leverage}
	if funding, err := e.gw.FetchFundingRate(ctx); err != nil {
		// informational only, never blocks the cycle
		slog.Warn("engine: could not fetch funding rate", "err", err)
	} else {
		cy.funding = funding
	}
	cy.mayer = e.mayerFrom(ticker.Bid)
	cy.hibernating = e.ShallHibernate(cy.mayer, leverage)
	e.quota = CalculateQuota(e.cfg, balance.Total)

	if err := e.checkBuyExecuted(ctx, cy); err != nil {
		return domain.CycleReport{}, err
	}
	if err := e.checkSellExecuted(ctx, cy); err != nil {
		return domain.CycleReport{}, err
	}
	if err := e.spread(ctx, cy); err != nil {
		return domain.CycleReport{}, err
	}

	if e.cfg.AutoLeverage {
		if err := e.AdjustLeverage(ctx, cy.mayer); err != nil {
			return domain.CycleReport{}, fmt.Errorf("engine.RunOnce: adjust leverage: %w", err)
		}
	}

	e.updateStats(ctx, cy)

	report := domain.CycleReport{
		Pair:          e.cfg.Pair,
		Price:         cy.bid,
		MarginBalance: cy.balance.Total,
		Leverage:      cy.leverage.Relevant(),
		Mayer:         cy.mayer.Current,
		FundingRate:   cy.funding,
		Quota:         e.quota,
		Hibernating:   cy.hibernating,
		BuyOrderOpen:  e.currentBuy != nil,
		SellRungs:     len(e.sellOrders),
		BuyFills:      cy.buyFills,
		SellFills:     cy.sellFills,
		OrdersPlaced:  cy.ordersPlaced,
		Warnings:      cy.warnings,
	}
	observeCycle(report)
	return report, nil
}

// mayerFrom derives the Mayer multiple from the long moving average of
// the rate history. With too little history the indicator is invalid
// and treated as neutral.
func (e *Engine) mayerFrom(bid float64) domain.Mayer {
	window := e.maLongDays
	if e.history.Len() < window {
		window = e.history.Len()
	}
	ma, ok := e.history.MovingAverage(window)
	if !ok {
		return domain.Mayer{}
	}
	return domain.MayerMultiple(bid, ma)
}

// updateStats records the daily snapshot and persists it. A later write
// on the same day overwrites the earlier one.
func (e *Engine) updateStats(ctx context.Context, cy *cycle) {
	day := domain.DayOrdinal(time.Now())
	rec := e.history.CalculateDailyStatistics(day, cy.balance.Total, cy.bid)
	rec.Rate = cy.bid
	e.history.AddDay(rec)

	if err := e.store.SaveDay(ctx, rec); err != nil {
		slog.Warn("engine: error persisting daily stats", "day", day, "err", err)
		cy.warn("stats not persisted: %v", err)
	}
}

// SellRungs returns a copy of the open sell rungs, price-ascending.
func (e *Engine) SellRungs() []domain.Order {
	out := make([]domain.Order, len(e.sellOrders))
	copy(out, e.sellOrders)
	return out
}

// CurrentBuy returns the open buy order, if any.
func (e *Engine) CurrentBuy() (domain.Order, bool) {
	if e.currentBuy == nil {
		return domain.Order{}, false
	}
	return *e.currentBuy, true
}

// BuyLedger returns a copy of the buy ledger.
func (e *Engine) BuyLedger() []domain.Order {
	out := make([]domain.Order, len(e.buyLedger))
	copy(out, e.buyLedger)
	return out
}

// Quota returns the currently effective rung count.
func (e *Engine) Quota() int {
	return e.quota
}

// sleep blocks for d or until the context ends.
func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
