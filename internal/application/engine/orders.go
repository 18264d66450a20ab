package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

// roundPrice snaps a price to the venue tick grid.
func (e *Engine) roundPrice(price float64) float64 {
	tick := e.cfg.TickSize
	if tick <= 0 {
		return math.Round(price)
	}
	return math.Round(price/tick) * tick
}

// IsOrderBelowLimit reports whether an order is too small for the venue.
// Symmetric in the sign of amount.
func (e *Engine) IsOrderBelowLimit(amount, price float64) bool {
	return math.Abs(amount)*price < e.cfg.OrderCryptoMin
}

// contractsFromBalance converts a margin-balance figure into contract
// terms. Inverse-quoted venues hold margin in the base asset.
func (e *Engine) contractsFromBalance(balance, bid float64) float64 {
	if e.cfg.InverseQuoted {
		return balance * bid
	}
	return balance
}

// calculateBuyAmount sizes the next buy rung from the free margin.
func (e *Engine) calculateBuyAmount(balance domain.Balance, bid float64) float64 {
	if e.quota <= 0 {
		return 0
	}
	return math.Floor(e.contractsFromBalance(balance.Free, bid) / float64(e.quota))
}

// calculateSellAmount sizes a sell order from the current position.
func (e *Engine) calculateSellAmount(position domain.Position) float64 {
	if e.quota <= 0 {
		return 0
	}
	return math.Floor(math.Abs(position.CurrentQty) / float64(e.quota))
}

// createBuyOrder places the ladder's buy order below refPrice (or at it,
// when useRequestedPrice is set). Transient placement errors are retried
// up to trade_trials times, recomputing the price from a fresh ticker on
// every retry. On success the order becomes the current buy and joins
// the ledger; on exhaustion the slot stays empty and
// ErrTradeTrialsExhausted surfaces to the caller.
func (e *Engine) createBuyOrder(ctx context.Context, cy *cycle, refPrice, amount float64, useRequestedPrice bool) error {
	if e.IsOrderBelowLimit(amount, refPrice) {
		slog.Info("engine: buy order below venue minimum, skipping",
			"amount", amount, "price", refPrice, "min", e.cfg.OrderCryptoMin)
		return nil
	}

	price := refPrice
	for trial := 0; trial < e.cfg.TradeTrials; trial++ {
		if trial > 0 {
			if err := e.sleep(ctx, e.retryDelay); err != nil {
				return err
			}
			ticker, err := e.gw.FetchTicker(ctx)
			if err != nil {
				return fmt.Errorf("engine.createBuyOrder: refresh ticker: %w", err)
			}
			price = ticker.Bid
		}

		buyPrice := e.roundPrice(price * (1 - e.cfg.Change))
		if useRequestedPrice {
			buyPrice = e.roundPrice(price)
		}

		id, err := e.gw.PlaceLimitOrder(ctx, domain.SideBuy, amount, buyPrice)
		if err != nil {
			if !ports.IsTransient(err) {
				return fmt.Errorf("engine.createBuyOrder: place: %w", err)
			}
			slog.Warn("engine: buy placement failed, retrying with fresh price",
				"trial", trial+1, "of", e.cfg.TradeTrials, "err", err)
			continue
		}

		order, err := domain.NewOrder(id, domain.SideBuy, buyPrice, amount)
		if err != nil {
			return fmt.Errorf("engine.createBuyOrder: %w", err)
		}
		e.currentBuy = &order
		e.buyLedger = append(e.buyLedger, order)
		cy.ordersPlaced++
		observeOrderPlaced(domain.SideBuy)
		slog.Info("engine: buy order placed", "price", buyPrice, "amount", amount)
		return nil
	}

	observePlacementFailure(domain.SideBuy)
	return ErrTradeTrialsExhausted
}

// placeSellOrder places a sell rung above refPrice and inserts it into
// the open rungs, keeping them price-ascending. Same bounded retry
// policy as buys.
func (e *Engine) placeSellOrder(ctx context.Context, cy *cycle, refPrice, amount float64) error {
	if e.IsOrderBelowLimit(amount, refPrice) {
		slog.Info("engine: sell order below venue minimum, skipping",
			"amount", amount, "price", refPrice, "min", e.cfg.OrderCryptoMin)
		return nil
	}

	price := refPrice
	for trial := 0; trial < e.cfg.TradeTrials; trial++ {
		if trial > 0 {
			if err := e.sleep(ctx, e.retryDelay); err != nil {
				return err
			}
			ticker, err := e.gw.FetchTicker(ctx)
			if err != nil {
				return fmt.Errorf("engine.placeSellOrder: refresh ticker: %w", err)
			}
			price = ticker.Bid
		}

		sellPrice := e.roundPrice(price * (1 + e.cfg.Change))

		id, err := e.gw.PlaceLimitOrder(ctx, domain.SideSell, amount, sellPrice)
		if err != nil {
			if !ports.IsTransient(err) {
				return fmt.Errorf("engine.placeSellOrder: place: %w", err)
			}
			slog.Warn("engine: sell placement failed, retrying with fresh price",
				"trial", trial+1, "of", e.cfg.TradeTrials, "err", err)
			continue
		}

		order, err := domain.NewOrder(id, domain.SideSell, sellPrice, amount)
		if err != nil {
			return fmt.Errorf("engine.placeSellOrder: %w", err)
		}
		e.insertSellRung(order)
		cy.ordersPlaced++
		observeOrderPlaced(domain.SideSell)
		slog.Info("engine: sell order placed", "price", sellPrice, "amount", amount)
		return nil
	}

	observePlacementFailure(domain.SideSell)
	return ErrTradeTrialsExhausted
}

// insertSellRung keeps sellOrders sorted price-ascending.
func (e *Engine) insertSellRung(order domain.Order) {
	i := sort.Search(len(e.sellOrders), func(i int) bool {
		return e.sellOrders[i].Price >= order.Price
	})
	e.sellOrders = append(e.sellOrders, domain.Order{})
	copy(e.sellOrders[i+1:], e.sellOrders[i:])
	e.sellOrders[i] = order
}

// removeFromLedger drops the order with the given id from the buy ledger.
func (e *Engine) removeFromLedger(id string) {
	for i, o := range e.buyLedger {
		if o.ID == id {
			e.buyLedger = append(e.buyLedger[:i], e.buyLedger[i+1:]...)
			return
		}
	}
}

// checkBuyExecuted reconciles the current buy order with the venue.
// Safe to call every tick: an order still open is a no-op. On a fill it
// creates the paired sell rung and steps the ladder one rung down. With
// an empty slot it re-arms the ladder buy unless hibernating.
func (e *Engine) checkBuyExecuted(ctx context.Context, cy *cycle) error {
	if e.currentBuy == nil {
		return e.ensureBuyOrder(ctx, cy)
	}

	status, err := e.gw.FetchOrderStatus(ctx, e.currentBuy.ID)
	if err != nil {
		if err == ports.ErrOrderGone {
			// cancelled externally between polls
			slog.Warn("engine: buy order gone from venue, clearing slot", "id", e.currentBuy.ID)
			e.removeFromLedger(e.currentBuy.ID)
			e.currentBuy = nil
			return nil
		}
		return fmt.Errorf("engine.checkBuyExecuted: fetch status: %w", err)
	}

	switch status {
	case domain.OrderOpen:
		return nil

	case domain.OrderCanceled:
		slog.Warn("engine: buy order cancelled externally", "id", e.currentBuy.ID, "price", e.currentBuy.Price)
		e.removeFromLedger(e.currentBuy.ID)
		e.currentBuy = nil
		return nil

	case domain.OrderClosed:
		filled := *e.currentBuy
		e.currentBuy = nil
		cy.buyFills++
		observeFill(domain.SideBuy)
		slog.Info("engine: buy order filled", "price", filled.Price, "amount", filled.Amount)

		if e.cfg.AutoLeverage {
			if err := e.AdjustLeverage(ctx, cy.mayer); err != nil {
				return fmt.Errorf("engine.checkBuyExecuted: leverage react: %w", err)
			}
		}

		// paired sell rung one step above the fill
		if err := e.placeSellOrder(ctx, cy, filled.Price, filled.Amount); err != nil {
			if err == ErrTradeTrialsExhausted {
				cy.warn("sell rung for buy fill at %.1f not placed: trials exhausted", filled.Price)
			} else {
				return err
			}
		}

		// next buy one rung further down
		if cy.hibernating {
			slog.Info("engine: hibernating, not replacing buy order")
			return nil
		}
		amount := e.calculateBuyAmount(cy.balance, cy.bid)
		if err := e.createBuyOrder(ctx, cy, filled.Price, amount, false); err != nil {
			if err == ErrTradeTrialsExhausted {
				cy.warn("replacement buy below %.1f not placed: trials exhausted", filled.Price)
				return nil
			}
			return err
		}
		return nil

	default:
		return fmt.Errorf("engine.checkBuyExecuted: unexpected status %q for order %s", status, e.currentBuy.ID)
	}
}

// ensureBuyOrder re-arms the ladder buy when the slot is empty.
func (e *Engine) ensureBuyOrder(ctx context.Context, cy *cycle) error {
	if cy.hibernating || e.stoppedOnTop {
		return nil
	}
	amount := e.calculateBuyAmount(cy.balance, cy.bid)
	err := e.createBuyOrder(ctx, cy, cy.bid, amount, false)
	if err == ErrTradeTrialsExhausted {
		cy.warn("buy order not placed: trials exhausted")
		return nil
	}
	return err
}

// checkSellExecuted reconciles every open sell rung. A filled rung is
// removed; when it was the last one, a divided sell sized from the
// current position immediately replaces it so the ladder never goes
// empty on the top side. Every sell fill frees capital, which buys back
// one rung below unless buying is stopped.
func (e *Engine) checkSellExecuted(ctx context.Context, cy *cycle) error {
	if len(e.sellOrders) == 0 {
		return nil
	}

	var still []domain.Order
	var filled []domain.Order
	for _, o := range e.sellOrders {
		status, err := e.gw.FetchOrderStatus(ctx, o.ID)
		if err != nil {
			if err == ports.ErrOrderGone {
				slog.Warn("engine: sell rung gone from venue, dropping", "id", o.ID, "price", o.Price)
				continue
			}
			return fmt.Errorf("engine.checkSellExecuted: fetch status: %w", err)
		}
		switch status {
		case domain.OrderOpen:
			still = append(still, o)
		case domain.OrderCanceled:
			slog.Warn("engine: sell rung cancelled externally", "id", o.ID, "price", o.Price)
		case domain.OrderClosed:
			filled = append(filled, o)
		default:
			return fmt.Errorf("engine.checkSellExecuted: unexpected status %q for order %s", status, o.ID)
		}
	}
	e.sellOrders = still

	for _, o := range filled {
		cy.sellFills++
		observeFill(domain.SideSell)
		slog.Info("engine: sell order filled", "price", o.Price, "amount", o.Amount)

		if len(e.sellOrders) == 0 {
			if err := e.createDividedSell(ctx, cy); err != nil {
				return err
			}
		}
		if err := e.replaceCapitalWithBuy(ctx, cy, o); err != nil {
			return err
		}
	}
	return nil
}

// createDividedSell replaces the last sell rung from the live position
// rather than the nominal quota.
func (e *Engine) createDividedSell(ctx context.Context, cy *cycle) error {
	position, err := e.gw.FetchPosition(ctx)
	if err != nil {
		return fmt.Errorf("engine.createDividedSell: fetch position: %w", err)
	}
	if !position.IsOpen || position.CurrentQty <= 0 {
		slog.Info("engine: no position left to ladder, skipping divided sell")
		return nil
	}

	amount := e.calculateSellAmount(position)
	if amount < 1 {
		amount = 1
	}
	err = e.placeSellOrder(ctx, cy, cy.bid, amount)
	if err == ErrTradeTrialsExhausted {
		cy.warn("divided sell not placed: trials exhausted")
		return nil
	}
	return err
}

// replaceCapitalWithBuy reinvests the capital freed by a sell fill,
// unless stop_on_top halts buying at the configured ceiling. An already
// armed buy is cancelled and folded into the new one, so the freed
// capital always re-enters the ladder the same cycle.
func (e *Engine) replaceCapitalWithBuy(ctx context.Context, cy *cycle, sold domain.Order) error {
	if e.cfg.StopOnTop > 0 && cy.bid >= e.cfg.StopOnTop {
		if !e.stoppedOnTop {
			slog.Warn("engine: price at configured ceiling, buying stopped",
				"bid", cy.bid, "stop_on_top", e.cfg.StopOnTop)
			e.stoppedOnTop = true
		}
		if e.cfg.CloseOnStop {
			return e.flattenPosition(ctx, cy)
		}
		return nil
	}

	if cy.hibernating {
		slog.Info("engine: hibernating, not reinvesting sell fill")
		return nil
	}

	amount := sold.Amount
	if e.currentBuy != nil {
		stale := *e.currentBuy
		status, err := e.cancelOrderPolled(ctx, stale.ID)
		if err != nil {
			return err
		}
		if status == domain.OrderClosed {
			// filled while cancelling; the next buy reconciliation owns it
			slog.Info("engine: buy filled during reinvest cancel, deferring to next tick", "id", stale.ID)
			return nil
		}
		e.removeFromLedger(stale.ID)
		e.currentBuy = nil
		amount = stale.Amount + sold.Amount
	}

	err := e.createBuyOrder(ctx, cy, cy.bid, amount, false)
	if err == ErrTradeTrialsExhausted {
		cy.warn("buy after sell fill at %.1f not placed: trials exhausted", sold.Price)
		return nil
	}
	return err
}

// flattenPosition closes the whole position with a market order.
func (e *Engine) flattenPosition(ctx context.Context, cy *cycle) error {
	position, err := e.gw.FetchPosition(ctx)
	if err != nil {
		return fmt.Errorf("engine.flattenPosition: fetch position: %w", err)
	}
	if !position.IsOpen || position.CurrentQty == 0 {
		return nil
	}

	side := domain.SideSell
	amount := position.CurrentQty
	if amount < 0 {
		side = domain.SideBuy
		amount = -amount
	}
	if _, err := e.gw.PlaceMarketOrder(ctx, side, amount); err != nil {
		return fmt.Errorf("engine.flattenPosition: close: %w", err)
	}
	cy.ordersPlaced++
	slog.Warn("engine: position flattened on stop_on_top",
		"qty", position.CurrentQty, "unrealised_pnl", position.UnrealisedPnl)
	return nil
}

// cancelOrderPolled cancels an order and polls until the venue reports a
// terminal state. "Already gone" counts as success. Returns the terminal
// status so callers can tell a cancel from a fill that raced it.
func (e *Engine) cancelOrderPolled(ctx context.Context, id string) (domain.OrderStatus, error) {
	if err := e.gw.CancelOrder(ctx, id); err != nil && err != ports.ErrOrderGone {
		return "", fmt.Errorf("engine.cancelOrderPolled: cancel: %w", err)
	}

	for i := 0; i < maxCancelPolls; i++ {
		status, err := e.gw.FetchOrderStatus(ctx, id)
		if err != nil {
			if err == ports.ErrOrderGone {
				return domain.OrderCanceled, nil
			}
			return "", fmt.Errorf("engine.cancelOrderPolled: fetch status: %w", err)
		}
		if status != domain.OrderOpen {
			return status, nil
		}
		if err := e.sleep(ctx, e.pollDelay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("engine.cancelOrderPolled: order %s never reached a terminal state", id)
}
