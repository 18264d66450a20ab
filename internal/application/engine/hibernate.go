package engine

import (
	"github.com/alejandrodnm/ladderbot/internal/domain"
)

// ShallHibernate gates new buying under adverse conditions: a Mayer
// multiple at or above the hard stop, or account leverage escaped above
// its bound (the escape bound when auto-escape is on, otherwise the
// computed target plus tolerance). Existing sell rungs keep being
// serviced while hibernating.
func (e *Engine) ShallHibernate(mayer domain.Mayer, leverage domain.AccountLeverage) bool {
	if mayer.Valid() && e.cfg.MMStopBuy > 0 && mayer.Current >= e.cfg.MMStopBuy {
		return true
	}

	relevant := leverage.Relevant()
	if e.cfg.AutoLeverageEscape {
		return relevant > e.cfg.LeverageEscape
	}
	return relevant > e.TargetLeverage(mayer)+leverageTolerance
}
