// FILE: metrics.go
// Package main – Prometheus metrics for observability.
//
// Registration pattern (package-level vars, MustRegister in init(), thin
// helper setters) is kept from the teacher's metrics.go; the series
// themselves are replaced for the equities engine:
//   • trader_signals_total{symbol,agreement}     – signals emitted by C6
//   • trader_gate_rejections_total{gate}          – risk-gate rejections by GateCode
//   • trader_orders_total{mode,side}              – orders placed (mode: live|simulated)
//   • trader_positions_by_state{state}            – open positions per PositionState (gauge)
//   • trader_exit_reasons_total{reason}           – closed positions by ExitReason
//   • trader_equity_usd                           – account equity snapshot (gauge)
//   • trader_token_state{env,state}               – OAuth token state indicator (0/1 per env)
//   • trader_api_calls_used_today                 – C3 daily call budget consumption (gauge)
//   • trader_safe_mode_trips_total                 – count of safe-mode latch trips
//
// Served by the HTTP handler started in main.go at /metrics (Prometheus text
// exposition format).
package main

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Signals emitted by the signal generator",
		},
		[]string{"symbol", "agreement"},
	)

	mtxGateRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_gate_rejections_total",
			Help: "Risk manager rejections by gate code",
		},
		[]string{"gate"},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Orders placed",
		},
		[]string{"mode", "side"},
	)

	mtxPositionsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_positions_by_state",
			Help: "Open positions counted by lifecycle state",
		},
		[]string{"state"},
	)

	mtxExitReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_exit_reasons_total",
			Help: "Closed positions counted by exit reason",
		},
		[]string{"reason"},
	)

	mtxEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_equity_usd",
			Help: "Account equity in USD",
		},
	)

	mtxTokenState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_token_state",
			Help: "OAuth token lifecycle state indicator, one labeled series per environment",
		},
		[]string{"env", "state"},
	)

	mtxAPICallsUsedToday = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_api_calls_used_today",
			Help: "Broker API calls consumed from the daily budget so far today",
		},
	)

	mtxSafeModeTrips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_safe_mode_trips_total",
			Help: "Count of safe-mode latch trips",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxSignals, mtxGateRejections, mtxOrders)
	prometheus.MustRegister(mtxPositionsByState, mtxExitReasons, mtxEquity)
	prometheus.MustRegister(mtxTokenState, mtxAPICallsUsedToday, mtxSafeModeTrips)
}

func IncSignal(symbol string, agreement string) { mtxSignals.WithLabelValues(symbol, agreement).Inc() }
func IncGateRejection(gate string)              { mtxGateRejections.WithLabelValues(gate).Inc() }
func IncOrder(mode, side string)                { mtxOrders.WithLabelValues(mode, side).Inc() }
func SetPositionsByState(state string, n float64) {
	mtxPositionsByState.WithLabelValues(state).Set(n)
}
func IncExitReason(reason string) { mtxExitReasons.WithLabelValues(reason).Inc() }
func SetEquity(v float64)         { mtxEquity.Set(v) }
func SetTokenState(env, state string, active float64) {
	mtxTokenState.WithLabelValues(env, state).Set(active)
}
func SetAPICallsUsedToday(n float64) { mtxAPICallsUsedToday.Set(n) }
func IncSafeModeTrip()               { mtxSafeModeTrips.Inc() }
