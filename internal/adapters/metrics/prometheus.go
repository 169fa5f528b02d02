// Package metrics exporta las métricas del engine a Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/alejandrodnm/likeli/internal/domain"
	"github.com/alejandrodnm/likeli/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implementa ports.Recorder sobre un registry propio.
type Prometheus struct {
	reg *prometheus.Registry

	trades      *prometheus.CounterVec
	tradeAmount *prometheus.HistogramVec
	failures    *prometheus.CounterVec
	fills       prometheus.Counter
	expired     prometheus.Counter
	redeemed    prometheus.Counter
	resolutions *prometheus.CounterVec
	payouts     prometheus.Counter
	latency     *prometheus.HistogramVec
}

var _ ports.Recorder = (*Prometheus)(nil)

// NewPrometheus registra las métricas con el namespace dado ("likeli" si vacío).
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "likeli"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Prometheus{
		reg: reg,
		trades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades executed by route and outcome",
		}, []string{"route", "outcome"}),
		tradeAmount: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trade_amount",
			Help:      "Trade amount distribution (mana)",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}, []string{"route"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failures_total",
			Help:      "Failed engine operations by operation and reason",
		}, []string{"op", "reason"}),
		fills: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limit_order_fills_total",
			Help:      "Limit order executions",
		}),
		expired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limit_orders_expired_total",
			Help:      "Limit orders cancelled by expiry",
		}),
		redeemed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redeemed_pairs_total",
			Help:      "YES+NO pairs redeemed for mana",
		}),
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Market resolutions by outcome",
		}, []string{"resolution"}),
		payouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolution_payout_total",
			Help:      "Mana paid out at resolution",
		}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency, lock wait included",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"op"}),
	}
}

// Registry expone el registry (tests).
func (p *Prometheus) Registry() *prometheus.Registry { return p.reg }

// Handler sirve /metrics.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Prometheus) TradeExecuted(route, outcome string, amount float64) {
	p.trades.WithLabelValues(route, outcome).Inc()
	p.tradeAmount.WithLabelValues(route).Observe(amount)
}

func (p *Prometheus) TradeFailed(op string, err error) {
	p.failures.WithLabelValues(op, Reason(err)).Inc()
}

func (p *Prometheus) OrdersFilled(n int)  { p.fills.Add(float64(n)) }
func (p *Prometheus) OrdersExpired(n int) { p.expired.Add(float64(n)) }
func (p *Prometheus) Redeemed(pairs float64) {
	if pairs > 0 {
		p.redeemed.Add(pairs)
	}
}

func (p *Prometheus) MarketResolved(resolution string, payout float64) {
	p.resolutions.WithLabelValues(resolution).Inc()
	if payout > 0 {
		p.payouts.Add(payout)
	}
}

func (p *Prometheus) ObserveLatency(op string, d time.Duration) {
	p.latency.WithLabelValues(op).Observe(d.Seconds())
}

// reasons acota la cardinalidad de la etiqueta reason a los errores de dominio.
var reasons = []struct {
	err   error
	label string
}{
	{domain.ErrInsufficientBalance, "insufficient_balance"},
	{domain.ErrInsufficientShares, "insufficient_shares"},
	{domain.ErrMarketNotFound, "market_not_found"},
	{domain.ErrAnswerNotFound, "answer_not_found"},
	{domain.ErrMarketResolved, "market_resolved"},
	{domain.ErrInvalidAmount, "invalid_amount"},
	{domain.ErrInvalidProbability, "invalid_probability"},
	{domain.ErrPoolWouldDrain, "pool_would_drain"},
	{domain.ErrArbitrageInfeasible, "arbitrage_infeasible"},
	{domain.ErrSlippageExceeded, "slippage"},
	{domain.ErrOrderNotFound, "order_not_found"},
	{domain.ErrNotOwner, "not_owner"},
	{domain.ErrAlreadyFilled, "already_filled"},
	{domain.ErrAlreadyCancelled, "already_cancelled"},
	{domain.ErrUnauthorized, "unauthorized"},
	{domain.ErrPhaseNotMain, "phase_not_main"},
	{domain.ErrLimitOrdersUnsupported, "limit_orders_unsupported"},
	{domain.ErrInvalidResolution, "invalid_resolution"},
}

// Reason traduce un error a una etiqueta estable.
func Reason(err error) string {
	if err == nil {
		return "none"
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "other"
}
