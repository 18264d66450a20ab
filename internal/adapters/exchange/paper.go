package exchange

// paper.go: in-memory simulated venue for dry runs and tests.
//
// Orders rest in the book until FillOrder marks them closed; fills move
// the position and margin balance the way an inverse-quoted venue would.
// FailNext injects transient errors per method to exercise the retry
// paths.

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

type paperOrder struct {
	order  domain.Order
	status domain.OrderStatus
}

// Paper implements ports.Exchange against in-memory state.
type Paper struct {
	mu sync.Mutex

	bid      float64
	balance  domain.Balance
	position domain.Position
	leverage domain.AccountLeverage
	funding  float64
	orders   map[string]*paperOrder

	// queued errors per method name, consumed one per call
	failures map[string][]error
}

var _ ports.Exchange = (*Paper)(nil)

// NewPaper builds a simulated venue with the given starting bid and balance.
func NewPaper(bid float64, balance domain.Balance) *Paper {
	return &Paper{
		bid:      bid,
		balance:  balance,
		leverage: domain.AccountLeverage{CrossMargin: true},
		orders:   make(map[string]*paperOrder),
		failures: make(map[string][]error),
	}
}

// SetBid moves the simulated market price.
func (p *Paper) SetBid(bid float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bid = bid
}

// SetPosition replaces the simulated position.
func (p *Paper) SetPosition(pos domain.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = pos
}

// SetAccountLeverage replaces the simulated leverage readings.
func (p *Paper) SetAccountLeverage(l domain.AccountLeverage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leverage = l
}

// SetFundingRate replaces the simulated funding rate.
func (p *Paper) SetFundingRate(f float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.funding = f
}

// FailNext queues err to be returned by the named method's next call.
// Method names match the ports.Exchange method set.
func (p *Paper) FailNext(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[method] = append(p.failures[method], err)
}

// FillOrder marks an open order as filled and applies its effect to the
// position.
func (p *Paper) FillOrder(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	po, ok := p.orders[id]
	if !ok {
		return fmt.Errorf("paper.FillOrder: unknown order %q", id)
	}
	if po.status != domain.OrderOpen {
		return fmt.Errorf("paper.FillOrder: order %q is %s", id, po.status)
	}
	po.status = domain.OrderClosed
	p.applyFill(po.order)
	return nil
}

// OpenOrderCount returns the number of currently open simulated orders.
func (p *Paper) OpenOrderCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, po := range p.orders {
		if po.status == domain.OrderOpen {
			n++
		}
	}
	return n
}

func (p *Paper) applyFill(o domain.Order) {
	if o.Side == domain.SideBuy {
		p.position.CurrentQty += o.Amount
	} else {
		p.position.CurrentQty -= o.Amount
	}
	p.position.IsOpen = p.position.CurrentQty != 0
	p.position.MarkPrice = p.bid
}

func (p *Paper) takeFailure(method string) error {
	queue := p.failures[method]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	p.failures[method] = queue[1:]
	return err
}

func (p *Paper) PlaceLimitOrder(_ context.Context, side domain.Side, amount, price float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("PlaceLimitOrder"); err != nil {
		return "", err
	}
	order, err := domain.NewOrder(uuid.New().String(), side, price, amount)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrExchange, err)
	}
	p.orders[order.ID] = &paperOrder{order: order, status: domain.OrderOpen}
	return order.ID, nil
}

func (p *Paper) PlaceMarketOrder(_ context.Context, side domain.Side, amount float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("PlaceMarketOrder"); err != nil {
		return "", err
	}
	order, err := domain.NewOrder(uuid.New().String(), side, p.bid, amount)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrExchange, err)
	}
	p.orders[order.ID] = &paperOrder{order: order, status: domain.OrderClosed}
	p.applyFill(order)
	return order.ID, nil
}

func (p *Paper) CancelOrder(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("CancelOrder"); err != nil {
		return err
	}
	po, ok := p.orders[id]
	if !ok || po.status != domain.OrderOpen {
		return ports.ErrOrderGone
	}
	po.status = domain.OrderCanceled
	return nil
}

func (p *Paper) FetchOrderStatus(_ context.Context, id string) (domain.OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("FetchOrderStatus"); err != nil {
		return "", err
	}
	po, ok := p.orders[id]
	if !ok {
		return "", ports.ErrOrderGone
	}
	return po.status, nil
}

func (p *Paper) FetchOpenOrders(_ context.Context) ([]domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("FetchOpenOrders"); err != nil {
		return nil, err
	}
	var open []domain.Order
	for _, po := range p.orders {
		if po.status == domain.OrderOpen {
			open = append(open, po.order)
		}
	}
	return open, nil
}

func (p *Paper) FetchTicker(_ context.Context) (domain.Ticker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("FetchTicker"); err != nil {
		return domain.Ticker{}, err
	}
	return domain.Ticker{Bid: p.bid}, nil
}

func (p *Paper) FetchBalance(_ context.Context) (domain.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("FetchBalance"); err != nil {
		return domain.Balance{}, err
	}
	return p.balance, nil
}

func (p *Paper) FetchPosition(_ context.Context) (domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("FetchPosition"); err != nil {
		return domain.Position{}, err
	}
	return p.position, nil
}

func (p *Paper) FetchLeverage(_ context.Context) (domain.AccountLeverage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("FetchLeverage"); err != nil {
		return domain.AccountLeverage{}, err
	}
	return p.leverage, nil
}

func (p *Paper) SetLeverage(_ context.Context, value float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("SetLeverage"); err != nil {
		return err
	}
	if p.leverage.Relevant() == value {
		return ports.ErrLeverageUnchanged
	}
	if p.leverage.CrossMargin {
		p.leverage.Cross = value
	} else {
		p.leverage.Isolated = value
	}
	return nil
}

func (p *Paper) FetchFundingRate(_ context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure("FetchFundingRate"); err != nil {
		return 0, err
	}
	return p.funding, nil
}
