package ports

import "time"

// Recorder recibe métricas operativas del engine.
type Recorder interface {
	TradeExecuted(route, outcome string, amount float64)
	TradeFailed(op string, err error)
	OrdersFilled(n int)
	OrdersExpired(n int)
	Redeemed(pairs float64)
	MarketResolved(resolution string, payout float64)
	ObserveLatency(op string, d time.Duration)
}

// NopRecorder descarta todo.
type NopRecorder struct{}

func (NopRecorder) TradeExecuted(string, string, float64) {}
func (NopRecorder) TradeFailed(string, error) {}
func (NopRecorder) OrdersFilled(int) {}
func (NopRecorder) OrdersExpired(int) {}
func (NopRecorder) Redeemed(float64) {}
func (NopRecorder) MarketResolved(string, float64) {}
func (NopRecorder) ObserveLatency(string, time.Duration) {}
