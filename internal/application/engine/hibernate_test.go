package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/ladderbot/internal/adapters/exchange"
	"github.com/alejandrodnm/ladderbot/internal/domain"
)

func cross(v float64) domain.AccountLeverage {
	return domain.AccountLeverage{Cross: v, CrossMargin: true}
}

func TestShallHibernate_MayerHardStop(t *testing.T) {
	cfg := newTestConfig()
	cfg.Exchange.AutoLeverage = true // mm_stop_buy = 2.3

	paper := exchange.NewPaper(10000, domain.Balance{Total: 1})
	e := newTestEngine(cfg, paper)

	assert.True(t, e.ShallHibernate(domain.Mayer{Current: 2.4}, cross(1.0)))
	assert.True(t, e.ShallHibernate(domain.Mayer{Current: 2.3}, cross(1.0)))
	assert.False(t, e.ShallHibernate(domain.Mayer{Current: 2.2}, cross(1.0)))
}

func TestShallHibernate_LeverageAgainstTarget(t *testing.T) {
	cfg := newTestConfig()
	cfg.Exchange.AutoLeverage = true

	paper := exchange.NewPaper(10000, domain.Balance{Total: 1})
	e := newTestEngine(cfg, paper)
	mayer := domain.Mayer{Current: 1.4} // target: default 2.0

	assert.False(t, e.ShallHibernate(mayer, cross(2.0)), "at the target")
	assert.False(t, e.ShallHibernate(mayer, cross(2.005)), "fractionally above, within tolerance")
	assert.True(t, e.ShallHibernate(mayer, cross(2.2)), "clearly above the target")
	assert.False(t, e.ShallHibernate(mayer, cross(1.0)), "below the target")
}

func TestShallHibernate_EscapeBound(t *testing.T) {
	cfg := newTestConfig()
	cfg.Exchange.AutoLeverage = true
	cfg.Exchange.AutoLeverageEscape = true // escape bound 3.0

	paper := exchange.NewPaper(10000, domain.Balance{Total: 1})
	e := newTestEngine(cfg, paper)
	mayer := domain.Mayer{Current: 1.4}

	assert.False(t, e.ShallHibernate(mayer, cross(2.9)))
	assert.False(t, e.ShallHibernate(mayer, cross(3.0)))
	assert.True(t, e.ShallHibernate(mayer, cross(3.1)))
}

func TestShallHibernate_InvalidMayerNeverStopsBuying(t *testing.T) {
	cfg := newTestConfig()
	cfg.Exchange.AutoLeverage = true

	paper := exchange.NewPaper(10000, domain.Balance{Total: 1})
	e := newTestEngine(cfg, paper)

	// no indicator: the hard stop cannot trigger, only the leverage gate
	assert.False(t, e.ShallHibernate(domain.Mayer{}, cross(2.0)))
	assert.True(t, e.ShallHibernate(domain.Mayer{}, cross(2.2)))
}
