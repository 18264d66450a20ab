package exchange

// retry.go: uniform error handling around every exchange call.
//
// Policy:
//   - Every call waits on a shared rate limiter before hitting the venue.
//   - Read-only and idempotent calls (ticker, balance, order status,
//     cancel, ...) are retried after a fixed delay for as long as the
//     error stays transient. An outage suspends the control loop instead
//     of corrupting open-order state.
//   - Order placement is NOT retried here: the engine owns the bounded
//     trade-trials loop because each retry recomputes the price from a
//     fresh ticker.

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

const defaultRatePerSec = 5

// RetryConfig tunes the decorator.
type RetryConfig struct {
	Delay      time.Duration // fixed delay between retries of transient errors
	RatePerSec rate.Limit    // request pacing toward the venue
}

// Retrying decorates a ports.Exchange with rate limiting and the fixed
// retry loop for idempotent calls.
type Retrying struct {
	inner   ports.Exchange
	limiter *rate.Limiter
	delay   time.Duration
}

var _ ports.Exchange = (*Retrying)(nil)

// WrapRetry builds the decorator around a venue adapter.
func WrapRetry(inner ports.Exchange, cfg RetryConfig) *Retrying {
	if cfg.Delay <= 0 {
		cfg.Delay = 5 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	return &Retrying{
		inner:   inner,
		limiter: rate.NewLimiter(cfg.RatePerSec, 1),
		delay:   cfg.Delay,
	}
}

// retryIdempotent runs fn until it succeeds, fails non-transiently, or
// the context ends. Explicit loop, not recursion: long outages must not
// grow the call stack.
func (r *Retrying) retryIdempotent(ctx context.Context, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		err := fn()
		if err == nil || !ports.IsTransient(err) {
			return err
		}
		slog.Warn("exchange: transient error, retrying",
			"op", op, "attempt", attempt, "delay", r.delay, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delay):
		}
	}
}

// PlaceLimitOrder is a single attempt; the engine bounds retries by
// trade_trials and recomputes the price each time.
func (r *Retrying) PlaceLimitOrder(ctx context.Context, side domain.Side, amount, price float64) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.inner.PlaceLimitOrder(ctx, side, amount, price)
}

// PlaceMarketOrder is a single attempt, like PlaceLimitOrder.
func (r *Retrying) PlaceMarketOrder(ctx context.Context, side domain.Side, amount float64) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.inner.PlaceMarketOrder(ctx, side, amount)
}

func (r *Retrying) CancelOrder(ctx context.Context, id string) error {
	return r.retryIdempotent(ctx, "cancel_order", func() error {
		return r.inner.CancelOrder(ctx, id)
	})
}

func (r *Retrying) FetchOrderStatus(ctx context.Context, id string) (domain.OrderStatus, error) {
	var status domain.OrderStatus
	err := r.retryIdempotent(ctx, "fetch_order_status", func() error {
		var err error
		status, err = r.inner.FetchOrderStatus(ctx, id)
		return err
	})
	return status, err
}

func (r *Retrying) FetchOpenOrders(ctx context.Context) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.retryIdempotent(ctx, "fetch_open_orders", func() error {
		var err error
		orders, err = r.inner.FetchOpenOrders(ctx)
		return err
	})
	return orders, err
}

func (r *Retrying) FetchTicker(ctx context.Context) (domain.Ticker, error) {
	var t domain.Ticker
	err := r.retryIdempotent(ctx, "fetch_ticker", func() error {
		var err error
		t, err = r.inner.FetchTicker(ctx)
		return err
	})
	return t, err
}

func (r *Retrying) FetchBalance(ctx context.Context) (domain.Balance, error) {
	var b domain.Balance
	err := r.retryIdempotent(ctx, "fetch_balance", func() error {
		var err error
		b, err = r.inner.FetchBalance(ctx)
		return err
	})
	return b, err
}

func (r *Retrying) FetchPosition(ctx context.Context) (domain.Position, error) {
	var p domain.Position
	err := r.retryIdempotent(ctx, "fetch_position", func() error {
		var err error
		p, err = r.inner.FetchPosition(ctx)
		return err
	})
	return p, err
}

func (r *Retrying) FetchLeverage(ctx context.Context) (domain.AccountLeverage, error) {
	var l domain.AccountLeverage
	err := r.retryIdempotent(ctx, "fetch_leverage", func() error {
		var err error
		l, err = r.inner.FetchLeverage(ctx)
		return err
	})
	return l, err
}

func (r *Retrying) SetLeverage(ctx context.Context, value float64) error {
	// Setting the same value twice is idempotent on every venue we target.
	return r.retryIdempotent(ctx, "set_leverage", func() error {
		return r.inner.SetLeverage(ctx, value)
	})
}

func (r *Retrying) FetchFundingRate(ctx context.Context) (float64, error) {
	var f float64
	err := r.retryIdempotent(ctx, "fetch_funding_rate", func() error {
		var err error
		f, err = r.inner.FetchFundingRate(ctx)
		return err
	})
	return f, err
}
