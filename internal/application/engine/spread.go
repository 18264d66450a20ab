package engine

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// spread re-centers the ladder after price has trended through it. When
// the open buy order has drifted more than spread_factor × change below
// the sell-price reference, the buy is cancelled (poll-until-terminal),
// re-placed at the fresh rung below the market, and a matching sell
// rung of the same size is added. Sell rungs stay sorted and their
// count never decreases here.
func (e *Engine) spread(ctx context.Context, cy *cycle) error {
	if e.currentBuy == nil {
		return nil
	}

	ref := e.roundPrice(cy.bid * (1 + e.cfg.Change))
	if len(e.sellOrders) > 0 {
		ref = e.sellOrders[0].Price // lowest open rung
	}

	drift := ref - e.currentBuy.Price
	threshold := ref * e.cfg.SpreadFactor * e.cfg.Change
	if drift <= threshold {
		return nil
	}

	stale := *e.currentBuy
	slog.Info("engine: ladder drifted, spreading",
		"buy_price", stale.Price, "reference", ref, "drift", drift, "threshold", threshold)

	status, err := e.cancelOrderPolled(ctx, stale.ID)
	if err != nil {
		return err
	}
	if status == domain.OrderClosed {
		// filled while cancelling; the next buy reconciliation owns it
		slog.Info("engine: buy filled during spread cancel, deferring to next tick", "id", stale.ID)
		return nil
	}

	e.removeFromLedger(stale.ID)
	e.currentBuy = nil

	if err := e.createBuyOrder(ctx, cy, cy.bid, stale.Amount, false); err != nil {
		if err == ErrTradeTrialsExhausted {
			cy.warn("spread buy not placed: trials exhausted")
			return nil
		}
		return err
	}
	if err := e.placeSellOrder(ctx, cy, cy.bid, stale.Amount); err != nil {
		if err == ErrTradeTrialsExhausted {
			cy.warn("spread sell rung not placed: trials exhausted")
			return nil
		}
		return err
	}
	return nil
}
