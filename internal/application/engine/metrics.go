package engine

// metrics.go: Prometheus metrics the engine updates during operation,
// served at /metrics by the main binary:
//   • ladderbot_orders_total{side}             – orders placed
//   • ladderbot_fills_total{side}              – fills detected
//   • ladderbot_placement_failures_total{side} – trade trials exhausted
//   • ladderbot_margin_balance                 – margin balance gauge
//   • ladderbot_leverage                       – last leverage set/observed
//   • ladderbot_mayer_multiple                 – sentiment indicator
//   • ladderbot_funding_rate                   – instrument funding rate
//   • ladderbot_sell_rungs                     – open sell rung count
//   • ladderbot_hibernating                    – 1 while buying is gated

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alejandrodnm/ladderbot/internal/domain"
)

var (
	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladderbot_orders_total",
			Help: "Orders placed",
		},
		[]string{"side"},
	)

	mtxFills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladderbot_fills_total",
			Help: "Order fills detected",
		},
		[]string{"side"},
	)

	mtxPlacementFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladderbot_placement_failures_total",
			Help: "Order placements abandoned after trade trials were exhausted",
		},
		[]string{"side"},
	)

	mtxMarginBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ladderbot_margin_balance",
			Help: "Total margin balance in the settlement asset",
		},
	)

	mtxLeverage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ladderbot_leverage",
			Help: "Account leverage last set or observed",
		},
	)

	mtxMayer = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ladderbot_mayer_multiple",
			Help: "Current Mayer multiple",
		},
	)

	mtxFundingRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ladderbot_funding_rate",
			Help: "Current funding rate of the instrument",
		},
	)

	mtxSellRungs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ladderbot_sell_rungs",
			Help: "Open sell rungs in the ladder",
		},
	)

	mtxHibernating = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ladderbot_hibernating",
			Help: "1 while new buying is suppressed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxOrders,
		mtxFills,
		mtxPlacementFailures,
		mtxMarginBalance,
		mtxLeverage,
		mtxMayer,
		mtxFundingRate,
		mtxSellRungs,
		mtxHibernating,
	)
}

func observeOrderPlaced(side domain.Side) {
	mtxOrders.WithLabelValues(string(side)).Inc()
}

func observeFill(side domain.Side) {
	mtxFills.WithLabelValues(string(side)).Inc()
}

func observePlacementFailure(side domain.Side) {
	mtxPlacementFailures.WithLabelValues(string(side)).Inc()
}

func observeLeverage(value float64) {
	mtxLeverage.Set(value)
}

func observeCycle(r domain.CycleReport) {
	mtxMarginBalance.Set(r.MarginBalance)
	mtxMayer.Set(r.Mayer)
	mtxFundingRate.Set(r.FundingRate)
	mtxSellRungs.Set(float64(r.SellRungs))
	if r.Hibernating {
		mtxHibernating.Set(1)
	} else {
		mtxHibernating.Set(0)
	}
}
