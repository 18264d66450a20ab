package domain

import "time"

// Mayer is the market-sentiment indicator: current price over the
// long moving average of the rate history.
type Mayer struct {
	Current float64
}

// MayerMultiple computes the indicator from price and the long moving
// average. Returns a zero Mayer (treated as neutral) when the average
// is not available yet.
func MayerMultiple(price, longMA float64) Mayer {
	if longMA <= 0 || price <= 0 {
		return Mayer{}
	}
	return Mayer{Current: price / longMA}
}

// Valid reports whether the indicator could be computed.
func (m Mayer) Valid() bool {
	return m.Current > 0
}

// AdvisoryAction is the output signal of the moving-average advisor.
type AdvisoryAction string

const (
	AdvisoryBuy  AdvisoryAction = "BUY"
	AdvisorySell AdvisoryAction = "SELL"
	AdvisoryHold AdvisoryAction = "HOLD"
)

// Advisory is the persisted advisory output: the last action, the date
// it last changed, and the latest human-readable line.
type Advisory struct {
	Action    AdvisoryAction
	ChangedAt time.Time
	Text      string
}

// DeriveAdvisory maps the short/long moving averages to a signal: short
// above long is a buy trend, short below long a sell trend, and equal
// (or incomputable) averages hold.
func DeriveAdvisory(shortMA, longMA float64) AdvisoryAction {
	if shortMA <= 0 || longMA <= 0 {
		return AdvisoryHold
	}
	switch {
	case shortMA > longMA:
		return AdvisoryBuy
	case shortMA < longMA:
		return AdvisorySell
	default:
		return AdvisoryHold
	}
}

// CycleReport summarises one control-loop iteration for the notifier
// and the metrics endpoint.
type CycleReport struct {
	Pair          string
	Price         float64
	MarginBalance float64
	Leverage      float64
	Mayer         float64
	FundingRate   float64
	Quota         int
	Hibernating   bool
	BuyOrderOpen  bool
	SellRungs     int
	BuyFills      int
	SellFills     int
	OrdersPlaced  int
	Warnings      []string
}
