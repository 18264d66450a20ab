package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ladderbot/config"
	"github.com/alejandrodnm/ladderbot/internal/adapters/exchange"
	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

// fakeStore keeps the statistics in memory.
type fakeStore struct {
	history  []domain.DailyRecord
	saved    []domain.DailyRecord
	advisory *domain.Advisory
}

var _ ports.StatsStorage = (*fakeStore)(nil)

func (f *fakeStore) LoadHistory(context.Context) (*domain.History, error) {
	return domain.NewHistory(f.history), nil
}

func (f *fakeStore) SaveDay(_ context.Context, rec domain.DailyRecord) error {
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeStore) SaveAdvisory(_ context.Context, adv domain.Advisory) error {
	f.advisory = &adv
	return nil
}

func (f *fakeStore) LoadAdvisory(context.Context) (domain.Advisory, bool, error) {
	if f.advisory == nil {
		return domain.Advisory{}, false, nil
	}
	return *f.advisory, true, nil
}

func (f *fakeStore) Close() error { return nil }

// fakeNotifier swallows notifications.
type fakeNotifier struct {
	cycles   []domain.CycleReport
	startups []domain.OpenOrdersSummary
	fatals   []error
}

var _ ports.Notifier = (*fakeNotifier)(nil)

func (f *fakeNotifier) NotifyCycle(_ context.Context, r domain.CycleReport) error {
	f.cycles = append(f.cycles, r)
	return nil
}

func (f *fakeNotifier) NotifyStartup(_ context.Context, s domain.OpenOrdersSummary) error {
	f.startups = append(f.startups, s)
	return nil
}

func (f *fakeNotifier) NotifyFatal(_ context.Context, _ string, err error) error {
	f.fatals = append(f.fatals, err)
	return nil
}

// fakeOperator answers every confirmation the same way.
type fakeOperator struct{ answer bool }

func (f *fakeOperator) Confirm(string) (bool, error) { return f.answer, nil }

func newTestConfig() *config.Config {
	return &config.Config{
		Exchange: config.ExchangeConfig{
			Pair:            "BTC/USD",
			TickSize:        0.5,
			Change:          0.005,
			Quota:           4,
			SpreadFactor:    2,
			LeverageDefault: 2,
			LeverageLow:     1.5,
			LeverageHigh:    2.5,
			LeverageEscape:  3,
			MMFloor:         1.0,
			MMCeil:          1.8,
			MMStopBuy:       2.3,
			TradeTrials:     3,
			OrderCryptoMin:  10,
		},
		Engine: config.EngineConfig{
			IntervalSeconds: 1,
			MAShortDays:     20,
			MALongDays:      100,
			DataDir:         ".",
		},
	}
}

func newTestEngine(cfg *config.Config, gw ports.Exchange) *Engine {
	e := New(cfg, gw, &fakeStore{}, &fakeNotifier{}, &fakeOperator{answer: true})
	e.pollDelay = 0
	return e
}

// seedSellRung places a live sell order on the venue and registers it as
// an open ladder rung.
func seedSellRung(t *testing.T, e *Engine, paper *exchange.Paper, price, amount float64) string {
	t.Helper()
	id, err := paper.PlaceLimitOrder(context.Background(), domain.SideSell, amount, price)
	require.NoError(t, err)
	order, err := domain.NewOrder(id, domain.SideSell, price, amount)
	require.NoError(t, err)
	e.insertSellRung(order)
	return id
}

func TestRunOnce_ArmsTheBuyOrder(t *testing.T) {
	paper := exchange.NewPaper(10000, domain.Balance{Free: 4000, Used: 1000, Total: 5000})
	e := newTestEngine(newTestConfig(), paper)

	report, err := e.RunOnce(context.Background())
	require.NoError(t, err)

	buy, ok := e.CurrentBuy()
	require.True(t, ok)
	assert.InDelta(t, 9950.0, buy.Price, 0.001) // one rung below the bid
	assert.InDelta(t, 1000.0, buy.Amount, 0.001)
	assert.Equal(t, 1, report.OrdersPlaced)
	assert.True(t, report.BuyOrderOpen)
	assert.Len(t, e.BuyLedger(), 1)
}

func TestNew_ClampsTradeTrialsToOne(t *testing.T) {
	paper := exchange.NewPaper(10000, domain.Balance{Free: 4000, Used: 1000, Total: 5000})
	cfg := newTestConfig()
	cfg.Exchange.TradeTrials = 0
	e := newTestEngine(cfg, paper)

	// zero trials would mean the placement loop never runs
	report, err := e.RunOnce(context.Background())
	require.NoError(t, err)

	buy, ok := e.CurrentBuy()
	require.True(t, ok)
	assert.InDelta(t, 9950.0, buy.Price, 0.001)
	assert.Equal(t, 1, report.OrdersPlaced)
}

func TestRunOnce_SoleSellFill_DividedSellThenBuy(t *testing.T) {
	paper := exchange.NewPaper(10000, domain.Balance{Free: 4000, Used: 1000, Total: 5000})
	paper.SetPosition(domain.Position{CurrentQty: 500, IsOpen: true})
	e := newTestEngine(newTestConfig(), paper)

	sellID := seedSellRung(t, e, paper, 10100, 100)
	require.NoError(t, paper.FillOrder(sellID))

	report, err := e.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.SellFills)

	// the emptied top side is replaced by exactly one divided sell sized
	// from the live position
	rungs := e.SellRungs()
	require.Len(t, rungs, 1)
	assert.InDelta(t, 10050.0, rungs[0].Price, 0.001)
	assert.InDelta(t, 100.0, rungs[0].Amount, 0.001) // floor(400 / 4)

	// the ladder buy armed earlier in the cycle is folded into the
	// reinvestment buy, so exactly one buy is open and it carries the
	// freed capital
	buy, ok := e.CurrentBuy()
	require.True(t, ok)
	assert.InDelta(t, 9950.0, buy.Price, 0.001)
	assert.InDelta(t, 1100.0, buy.Amount, 0.001) // 1000 armed + 100 freed
	assert.Len(t, e.BuyLedger(), 1)
	assert.Equal(t, 3, report.OrdersPlaced)
}

func TestRunOnce_SellFillWithArmedBuy_ReinvestsFreedCapital(t *testing.T) {
	paper := exchange.NewPaper(10000, domain.Balance{Free: 4000, Used: 1000, Total: 5000})
	paper.SetPosition(domain.Position{CurrentQty: 500, IsOpen: true})
	e := newTestEngine(newTestConfig(), paper)

	// steady state: the ladder buy is armed from an earlier cycle
	_, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	armed, ok := e.CurrentBuy()
	require.True(t, ok)

	sellID := seedSellRung(t, e, paper, 10050, 100)
	require.NoError(t, paper.FillOrder(sellID))

	report, err := e.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.SellFills)

	// the divided sell replaces the emptied top side
	rungs := e.SellRungs()
	require.Len(t, rungs, 1)
	assert.InDelta(t, 10050.0, rungs[0].Price, 0.001)

	// the armed buy is cancelled and the freed capital re-enters the
	// ladder as a bigger buy the same cycle
	status, err := paper.FetchOrderStatus(context.Background(), armed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCanceled, status)

	buy, ok := e.CurrentBuy()
	require.True(t, ok)
	assert.NotEqual(t, armed.ID, buy.ID, "a new buy must be placed this cycle")
	assert.InDelta(t, armed.Amount+100, buy.Amount, 0.001)
	assert.Len(t, e.BuyLedger(), 1)
	assert.Equal(t, 2, report.OrdersPlaced) // the divided sell, then the buy
}

func TestRunOnce_ReinvestDefersWhenBuyFillsDuringCancel(t *testing.T) {
	paper := exchange.NewPaper(10000, domain.Balance{Free: 4000, Used: 1000, Total: 5000})
	paper.SetPosition(domain.Position{CurrentQty: 500, IsOpen: true})
	e := newTestEngine(newTestConfig(), paper)

	armed := seedBuyOrder(t, e, paper, 9950, 1000)
	sellID := seedSellRung(t, e, paper, 10050, 100)
	require.NoError(t, paper.FillOrder(sellID))
	// the armed buy fills before the reinvest cancel reaches the venue
	require.NoError(t, paper.FillOrder(armed.ID))

	cy := &cycle{bid: 10000, balance: domain.Balance{Free: 4000, Total: 5000}}
	require.NoError(t, e.checkSellExecuted(context.Background(), cy))

	// no double placement: the next buy reconciliation owns the fill
	current, ok := e.CurrentBuy()
	require.True(t, ok)
	assert.Equal(t, armed.ID, current.ID)
	assert.Equal(t, 1, cy.ordersPlaced) // only the divided sell
}

func TestRunOnce_BuyFill_PairedSellAndReplacement(t *testing.T) {
	paper := exchange.NewPaper(10000, domain.Balance{Free: 4000, Used: 1000, Total: 5000})
	e := newTestEngine(newTestConfig(), paper)

	_, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	buy, ok := e.CurrentBuy()
	require.True(t, ok)

	require.NoError(t, paper.FillOrder(buy.ID))

	report, err := e.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.BuyFills)

	// paired sell one rung above the fill price
	rungs := e.SellRungs()
	require.Len(t, rungs, 1)
	assert.InDelta(t, 10000.0, rungs[0].Price, 0.5)
	assert.InDelta(t, buy.Amount, rungs[0].Amount, 0.001)

	// replacement buy one rung further down
	next, ok := e.CurrentBuy()
	require.True(t, ok)
	assert.Less(t, next.Price, buy.Price)
	assert.NotEqual(t, buy.ID, next.ID)
}

func TestRunOnce_HibernationGatesBuying(t *testing.T) {
	cfg := newTestConfig()
	cfg.Exchange.AutoLeverageEscape = true

	paper := exchange.NewPaper(10000, domain.Balance{Free: 4000, Used: 1000, Total: 5000})
	paper.SetAccountLeverage(domain.AccountLeverage{Cross: 4, CrossMargin: true})
	e := newTestEngine(cfg, paper)

	report, err := e.RunOnce(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Hibernating)
	_, ok := e.CurrentBuy()
	assert.False(t, ok, "hibernation must not arm a buy order")
	assert.Equal(t, 0, report.OrdersPlaced)
}

func TestRunOnce_SellFillWhileHibernating_StillReplacesLadder(t *testing.T) {
	cfg := newTestConfig()
	cfg.Exchange.AutoLeverageEscape = true

	paper := exchange.NewPaper(10000, domain.Balance{Free: 4000, Used: 1000, Total: 5000})
	paper.SetAccountLeverage(domain.AccountLeverage{Cross: 4, CrossMargin: true})
	paper.SetPosition(domain.Position{CurrentQty: 500, IsOpen: true})
	e := newTestEngine(cfg, paper)

	sellID := seedSellRung(t, e, paper, 10100, 100)
	require.NoError(t, paper.FillOrder(sellID))

	report, err := e.RunOnce(context.Background())
	require.NoError(t, err)

	// the top side is serviced even while buying is gated
	assert.Equal(t, 1, report.SellFills)
	assert.Len(t, e.SellRungs(), 1)
	_, ok := e.CurrentBuy()
	assert.False(t, ok)
}

func TestRunOnce_BuyOrderGoneClearsSlot(t *testing.T) {
	paper := exchange.NewPaper(10000, domain.Balance{Free: 4000, Used: 1000, Total: 5000})
	cfg := newTestConfig()
	cfg.Exchange.AutoLeverageEscape = true

	e := newTestEngine(cfg, paper)
	_, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	buy, ok := e.CurrentBuy()
	require.True(t, ok)

	// cancel behind the engine's back, then gate re-arming so the empty
	// slot is observable
	require.NoError(t, paper.CancelOrder(context.Background(), buy.ID))
	paper.SetAccountLeverage(domain.AccountLeverage{Cross: 4, CrossMargin: true})

	_, err = e.RunOnce(context.Background())
	require.NoError(t, err)

	_, ok = e.CurrentBuy()
	assert.False(t, ok)
	assert.Empty(t, e.BuyLedger())
}

func TestStop_FlattensEverything(t *testing.T) {
	paper := exchange.NewPaper(10000, domain.Balance{Free: 4000, Used: 1000, Total: 5000})
	paper.SetPosition(domain.Position{CurrentQty: 300, IsOpen: true, UnrealisedPnl: 12.5})
	e := newTestEngine(newTestConfig(), paper)

	seedSellRung(t, e, paper, 10050, 100)
	_, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, paper.OpenOrderCount()) // the rung and the armed buy

	report, err := e.Stop(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.CancelledOrders) // the rung and the armed buy
	assert.InDelta(t, 300.0, report.ClosedQty, 0.001)
	assert.InDelta(t, 12.5, report.UnrealisedPnl, 0.001)
	assert.Equal(t, 0, paper.OpenOrderCount())
	_, ok := e.CurrentBuy()
	assert.False(t, ok)
	assert.Empty(t, e.SellRungs())
}
