// Package redemption canjea pares YES+NO de una misma posición por $1 cada uno.
package redemption

import (
	"time"

	"github.com/alejandrodnm/likeli/internal/domain"
)

// Epsilon es la cantidad de pares por debajo de la cual no se canjea nada.
const Epsilon = 1e-9

// Result describe un canje: los dos bets emitidos y el crédito en efectivo.
type Result struct {
	Pairs  float64
	Credit float64
	Bets   []domain.Bet
	Metric domain.ContractMetric // posición tras el canje
}

// Compute calcula el canje de metric a la probabilidad prob. ok es false si no
// hay pares suficientes; en ese caso no se emite nada, así llamarlo tras cada
// trade es seguro y una segunda llamada seguida nunca transfiere dos veces.
//
// El importe se reparte entre los dos bets según prob (YES paga prob·n, NO
// (1-prob)·n) para que el invertido de la posición baje en n en total.
func Compute(metric domain.ContractMetric, prob float64, now time.Time, newID func() string) (Result, bool) {
	n := metric.Redeemable()
	if n < Epsilon {
		return Result{}, false
	}

	yes := domain.Bet{
		ID:           newID(),
		UserID:       metric.UserID,
		ContractID:   metric.ContractID,
		AnswerID:     metric.AnswerID,
		CreatedAt:    now,
		Outcome:      domain.YES,
		Amount:       -prob * n,
		Shares:       -n,
		ProbBefore:   prob,
		ProbAfter:    prob,
		IsRedemption: true,
	}
	no := yes
	no.ID = newID()
	no.Outcome = domain.NO
	no.Amount = -(1 - prob) * n

	for _, b := range []*domain.Bet{&yes, &no} {
		b.Fills = []domain.Fill{{Amount: b.Amount, Shares: b.Shares, Timestamp: now, IsRedemption: true}}
	}

	after := metric
	after.ApplyBet(yes)
	after.ApplyBet(no)

	return Result{
		Pairs:  n,
		Credit: n,
		Bets:   []domain.Bet{yes, no},
		Metric: after,
	}, true
}
