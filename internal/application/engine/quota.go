package engine

import "github.com/alejandrodnm/ladderbot/config"

const (
	quotaMin = 2
	quotaMax = 20

	// geometric bucket boundaries over balance/change: the first rung
	// increment unlocks at quotaBaseScore, each further one at
	// quotaGrowth times the previous boundary
	quotaBaseScore = 0.25
	quotaGrowth    = 1.6
)

// CalculateQuota translates the margin balance into the number of
// simultaneous ladder rungs. With auto_quota off it is the configured
// fixed value; with it on, a monotone step function of balance/change:
// more margin buys more rungs, a wider rung spacing needs fewer of
// them. Always within [2, 20].
func CalculateQuota(cfg config.ExchangeConfig, marginBalance float64) int {
	if !cfg.AutoQuota {
		return cfg.Quota
	}
	if cfg.Change <= 0 || marginBalance <= 0 {
		return quotaMin
	}

	score := marginBalance / cfg.Change
	quota := quotaMin
	for boundary := quotaBaseScore; score >= boundary && quota < quotaMax; boundary *= quotaGrowth {
		quota++
	}
	return quota
}
