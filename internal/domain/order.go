package domain

import (
	"fmt"
	"sort"
	"time"
)

// Side is the side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus is the venue-reported lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen     OrderStatus = "open"
	OrderClosed   OrderStatus = "closed"
	OrderCanceled OrderStatus = "canceled"
)

// Order is a single limit order on the venue. Immutable once created;
// a cancelled or refilled order is replaced, never mutated.
type Order struct {
	ID        string
	Side      Side
	Price     float64
	Amount    float64 // contracts
	CreatedAt time.Time
}

// NewOrder builds an Order, validating at construction rather than at
// point of use.
func NewOrder(id string, side Side, price, amount float64) (Order, error) {
	if id == "" {
		return Order{}, fmt.Errorf("domain.NewOrder: empty order id")
	}
	if side != SideBuy && side != SideSell {
		return Order{}, fmt.Errorf("domain.NewOrder: invalid side %q", side)
	}
	if price <= 0 {
		return Order{}, fmt.Errorf("domain.NewOrder: non-positive price %v", price)
	}
	if amount <= 0 {
		return Order{}, fmt.Errorf("domain.NewOrder: non-positive amount %v", amount)
	}
	return Order{
		ID:        id,
		Side:      side,
		Price:     price,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// OpenOrdersSummary is a read-only view over a raw open-order fetch,
// used at startup/reload to reconcile pre-existing state. Both sides are
// sorted price-descending, so index 0 is the extreme of each side.
type OpenOrdersSummary struct {
	BuyOrders  []Order
	SellOrders []Order

	// Notional totals: contracts for linear-quoted instruments,
	// contracts × price when the instrument is quoted in the base asset.
	TotalBuyOrderValue  float64
	TotalSellOrderValue float64
}

// NewOpenOrdersSummary partitions raw orders by side and computes the
// notional totals. Pure function of its input; fails only when an entry
// is missing price or amount.
func NewOpenOrdersSummary(raw []Order, inverseQuoted bool) (OpenOrdersSummary, error) {
	var s OpenOrdersSummary
	for _, o := range raw {
		if o.Price <= 0 || o.Amount <= 0 {
			return OpenOrdersSummary{}, fmt.Errorf("domain.NewOpenOrdersSummary: order %q missing price or amount", o.ID)
		}
		value := o.Amount
		if inverseQuoted {
			value = o.Amount * o.Price
		}
		switch o.Side {
		case SideBuy:
			s.BuyOrders = append(s.BuyOrders, o)
			s.TotalBuyOrderValue += value
		case SideSell:
			s.SellOrders = append(s.SellOrders, o)
			s.TotalSellOrderValue += value
		default:
			return OpenOrdersSummary{}, fmt.Errorf("domain.NewOpenOrdersSummary: order %q has invalid side %q", o.ID, o.Side)
		}
	}
	sort.Slice(s.BuyOrders, func(i, j int) bool { return s.BuyOrders[i].Price > s.BuyOrders[j].Price })
	sort.Slice(s.SellOrders, func(i, j int) bool { return s.SellOrders[i].Price > s.SellOrders[j].Price })
	return s, nil
}

// HighestBuy returns the highest-priced open buy order, if any.
func (s OpenOrdersSummary) HighestBuy() (Order, bool) {
	if len(s.BuyOrders) == 0 {
		return Order{}, false
	}
	return s.BuyOrders[0], true
}

// HighestSell returns the highest-priced open sell order, if any.
func (s OpenOrdersSummary) HighestSell() (Order, bool) {
	if len(s.SellOrders) == 0 {
		return Order{}, false
	}
	return s.SellOrders[0], true
}

// Ticker is the subset of the venue ticker the engine consumes.
type Ticker struct {
	Bid float64
}

// Balance is the account margin balance split the venue reports.
type Balance struct {
	Free  float64
	Used  float64
	Total float64
}

// UsedPct returns the used-margin percentage, 0 when the account is empty.
func (b Balance) UsedPct() float64 {
	if b.Total <= 0 {
		return 0
	}
	return b.Used / b.Total
}

// Position is the current contract position on the instrument.
type Position struct {
	CurrentQty    float64
	UnrealisedPnl float64
	IsOpen        bool
	MarkPrice     float64
}

// AccountLeverage carries both leverage readings the venue exposes.
// Which one applies depends on the account margin mode.
type AccountLeverage struct {
	Cross       float64
	Isolated    float64
	CrossMargin bool
}

// Relevant returns whichever of cross/isolated leverage applies under
// the current account mode.
func (l AccountLeverage) Relevant() float64 {
	if l.CrossMargin {
		return l.Cross
	}
	return l.Isolated
}
