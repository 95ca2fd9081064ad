package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Metrics holds the Prometheus instruments the liquidation engine emits.
// A nil *Metrics disables collection.
type Metrics struct {
	FreeCollateralChecks prometheus.Counter
	LiquidationsExecuted *prometheus.CounterVec
	LiquidationsRejected *prometheus.CounterVec
	NetLocalRepaid       *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FreeCollateralChecks: factory.NewCounter(prometheus.CounterOpts{
			Name: "tenor_free_collateral_checks_total",
			Help: "Free collateral valuations served",
		}),

		LiquidationsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tenor_liquidations_executed_total",
			Help: "Liquidations persisted",
		}, []string{"mode"}),

		LiquidationsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tenor_liquidations_rejected_total",
			Help: "Liquidations refused by a precondition or post check",
		}, []string{"mode", "reason"}),

		NetLocalRepaid: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenor_net_local_repaid",
			Help:    "Local currency supplied by the liquidator per liquidation",
			Buckets: []float64{1, 10, 100, 1_000, 10_000, 100_000, 1_000_000},
		}, []string{"mode"}),
	}
}

func (m *Metrics) CountFreeCollateralCheck() {
	if m == nil {
		return
	}
	m.FreeCollateralChecks.Inc()
}

func (m *Metrics) CountLiquidationExecuted(mode LiquidationMode) {
	if m == nil {
		return
	}
	m.LiquidationsExecuted.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) CountLiquidationRejected(mode LiquidationMode, reason string) {
	if m == nil {
		return
	}
	m.LiquidationsRejected.WithLabelValues(mode.String(), reason).Inc()
}

// ObserveNetLocalRepaid records the repaid amount. Precision loss here only
// affects the observation, never ledger math.
func (m *Metrics) ObserveNetLocalRepaid(mode LiquidationMode, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.NetLocalRepaid.WithLabelValues(mode.String()).Observe(amount.InexactFloat64())
}
