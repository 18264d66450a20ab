package engine

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ladderbot/internal/adapters/exchange"
	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// stepsToTarget walks NextLeverageStep until convergence, asserting the
// walk never overshoots.
func stepsToTarget(t *testing.T, current, target float64) int {
	t.Helper()
	steps := 0
	for math.Abs(current-target) > 1e-9 {
		next := NextLeverageStep(current, target)
		if target > current {
			assert.LessOrEqual(t, next, target+1e-9, "stepped past the target going up")
		} else {
			assert.GreaterOrEqual(t, next, target-1e-9, "stepped past the target going down")
		}
		current = next
		steps++
		require.Less(t, steps, 200, "leverage walk did not converge")
	}
	return steps
}

func TestNextLeverageStep_ConvergesWithoutOvershoot(t *testing.T) {
	assert.Equal(t, 10, stepsToTarget(t, 1.0, 2.0))
	assert.Equal(t, 5, stepsToTarget(t, 2.0, 1.55))
	assert.Equal(t, 1, stepsToTarget(t, 2.05, 2.0))
	assert.Equal(t, 0, stepsToTarget(t, 2.0, 2.0))
	assert.Equal(t, 15, stepsToTarget(t, 3.0, 1.5))
}

func TestTargetLeverage(t *testing.T) {
	cfg := newTestConfig()
	cfg.Exchange.AutoLeverage = true

	paper := exchange.NewPaper(10000, domain.Balance{Total: 1})
	e := newTestEngine(cfg, paper)

	assert.Equal(t, 1.5, e.TargetLeverage(domain.Mayer{Current: 2.0})) // above mm_ceil
	assert.Equal(t, 2.5, e.TargetLeverage(domain.Mayer{Current: 0.9})) // below mm_floor
	assert.Equal(t, 2.0, e.TargetLeverage(domain.Mayer{Current: 1.4}))
	assert.Equal(t, 2.0, e.TargetLeverage(domain.Mayer{}), "invalid indicator falls back to default")
}

func TestTargetLeverage_AutoOff(t *testing.T) {
	paper := exchange.NewPaper(10000, domain.Balance{Total: 1})
	e := newTestEngine(newTestConfig(), paper)

	assert.Equal(t, 2.0, e.TargetLeverage(domain.Mayer{Current: 2.0}))
}

func TestAdjustLeverage_StepsToTarget(t *testing.T) {
	cfg := newTestConfig()
	cfg.Exchange.AutoLeverage = true

	paper := exchange.NewPaper(10000, domain.Balance{Total: 1})
	paper.SetAccountLeverage(domain.AccountLeverage{Cross: 1.0, CrossMargin: true})
	e := newTestEngine(cfg, paper)

	err := e.AdjustLeverage(context.Background(), domain.Mayer{Current: 1.4}) // target: default 2.0
	require.NoError(t, err)

	lev, err := paper.FetchLeverage(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, lev.Relevant(), leverageTolerance)
}

func TestAdjustLeverage_NoopWithinTolerance(t *testing.T) {
	cfg := newTestConfig()
	cfg.Exchange.AutoLeverage = true

	paper := exchange.NewPaper(10000, domain.Balance{Total: 1})
	paper.SetAccountLeverage(domain.AccountLeverage{Cross: 2.005, CrossMargin: true})
	e := newTestEngine(cfg, paper)

	err := e.AdjustLeverage(context.Background(), domain.Mayer{Current: 1.4})
	require.NoError(t, err)

	lev, err := paper.FetchLeverage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.005, lev.Relevant(), "already within tolerance, nothing set")
}

func TestBoostLeverage(t *testing.T) {
	paper := exchange.NewPaper(10000, domain.Balance{Total: 1})
	paper.SetAccountLeverage(domain.AccountLeverage{Cross: 2.0, CrossMargin: true})
	e := newTestEngine(newTestConfig(), paper)

	require.NoError(t, e.BoostLeverage(context.Background()))
	lev, _ := paper.FetchLeverage(context.Background())
	assert.InDelta(t, 2.1, lev.Relevant(), 1e-9)

	// at the high bound nothing happens
	paper.SetAccountLeverage(domain.AccountLeverage{Cross: 2.5, CrossMargin: true})
	require.NoError(t, e.BoostLeverage(context.Background()))
	lev, _ = paper.FetchLeverage(context.Background())
	assert.Equal(t, 2.5, lev.Relevant())
}

func TestCompactPosition_StopsAtUsedMarginThreshold(t *testing.T) {
	paper := exchange.NewPaper(10000, domain.Balance{Free: 3, Used: 2, Total: 5}) // 40% used
	paper.SetAccountLeverage(domain.AccountLeverage{Cross: 2.0, CrossMargin: true})
	e := newTestEngine(newTestConfig(), paper)

	require.NoError(t, e.CompactPosition(context.Background()))
	lev, _ := paper.FetchLeverage(context.Background())
	assert.Equal(t, 2.0, lev.Relevant(), "at the threshold nothing is reduced")
}

func TestSetInitialLeverage_OncePerProcess(t *testing.T) {
	paper := exchange.NewPaper(10000, domain.Balance{Total: 1})
	paper.SetAccountLeverage(domain.AccountLeverage{Cross: 1.0, CrossMargin: true})
	e := newTestEngine(newTestConfig(), paper)

	require.NoError(t, e.SetInitialLeverage(context.Background()))
	lev, _ := paper.FetchLeverage(context.Background())
	assert.Equal(t, 2.0, lev.Relevant())

	// a second call never writes again, even if leverage moved meanwhile
	paper.SetAccountLeverage(domain.AccountLeverage{Cross: 1.0, CrossMargin: true})
	require.NoError(t, e.SetInitialLeverage(context.Background()))
	lev, _ = paper.FetchLeverage(context.Background())
	assert.Equal(t, 1.0, lev.Relevant())
}

func TestSetInitialLeverage_SkipsWhenAlreadyLeveraged(t *testing.T) {
	paper := exchange.NewPaper(10000, domain.Balance{Total: 1})
	paper.SetAccountLeverage(domain.AccountLeverage{Cross: 1.8, CrossMargin: true})
	e := newTestEngine(newTestConfig(), paper)

	require.NoError(t, e.SetInitialLeverage(context.Background()))
	lev, _ := paper.FetchLeverage(context.Background())
	assert.Equal(t, 1.8, lev.Relevant(), "above the low bound the account is left alone")
}
