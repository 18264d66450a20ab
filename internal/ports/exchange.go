package ports

import (
	"context"
	"errors"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// Transient exchange error classes. A call failing with one of these may
// be retried against the venue; anything else is treated as fatal.
var (
	ErrExchange            = errors.New("exchange error")
	ErrAuthentication      = errors.New("authentication error")
	ErrExchangeUnavailable = errors.New("exchange unavailable")
	ErrRequestTimeout      = errors.New("request timeout")

	// ErrOrderGone is returned by cancel/status calls when the order no
	// longer exists on the venue. Callers treat it as success, not error.
	ErrOrderGone = errors.New("order already filled or cancelled")

	// ErrLeverageUnchanged is returned by SetLeverage when the venue
	// reports no change for the requested value.
	ErrLeverageUnchanged = errors.New("leverage unchanged")
)

// IsTransient reports whether err belongs to the retryable error classes.
func IsTransient(err error) bool {
	return errors.Is(err, ErrExchange) ||
		errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrExchangeUnavailable) ||
		errors.Is(err, ErrRequestTimeout)
}

// Exchange is the gateway to the margin-trading venue. All calls are
// synchronous network round-trips and may fail with the transient error
// classes above; venue-specific adapters (inverse vs linear quoting,
// funding endpoints) implement it.
type Exchange interface {
	// PlaceLimitOrder submits a limit order and returns the venue order id.
	PlaceLimitOrder(ctx context.Context, side domain.Side, amount, price float64) (string, error)

	// PlaceMarketOrder submits a market order and returns the venue order id.
	PlaceMarketOrder(ctx context.Context, side domain.Side, amount float64) (string, error)

	// CancelOrder cancels an order. An order that is already filled or
	// cancelled yields ErrOrderGone.
	CancelOrder(ctx context.Context, id string) error

	// FetchOrderStatus returns the venue-side state of an order.
	FetchOrderStatus(ctx context.Context, id string) (domain.OrderStatus, error)

	// FetchOpenOrders returns all currently open orders on the instrument.
	FetchOpenOrders(ctx context.Context) ([]domain.Order, error)

	// FetchTicker returns the current best bid.
	FetchTicker(ctx context.Context) (domain.Ticker, error)

	// FetchBalance returns the account margin balance.
	FetchBalance(ctx context.Context) (domain.Balance, error)

	// FetchPosition returns the current contract position.
	FetchPosition(ctx context.Context) (domain.Position, error)

	// FetchLeverage returns the cross/isolated leverage readings.
	FetchLeverage(ctx context.Context) (domain.AccountLeverage, error)

	// SetLeverage sets the account leverage for the instrument.
	SetLeverage(ctx context.Context, value float64) error

	// FetchFundingRate returns the current funding rate of the instrument.
	FetchFundingRate(ctx context.Context) (float64, error)
}
