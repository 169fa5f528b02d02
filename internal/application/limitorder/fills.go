// Package limitorder casa órdenes límite entre sí y contra el pool CPMM.
package limitorder

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/likeli/internal/domain"
)

const (
	// FillEpsilon es el importe por debajo del cual una orden se da por llena.
	FillEpsilon = 1e-6
	probEpsilon = 1e-6
)

// Input es un taker contra un pool y su libro.
type Input struct {
	Pool      domain.Pool
	P         float64
	Outcome   domain.Outcome // lado que compra el taker
	Amount    float64        // importe neto disponible
	LimitProb float64        // 0 = orden de mercado
	MaxShares float64        // tope de shares del taker; 0 = sin tope
	TakerID   string
	TakerBet  string // id del bet del taker, para los fills de los makers
	Makers    []domain.Bet
	// Balances de los dueños de órdenes sin fondos reservados. Si un maker no
	// cubre lo que le queda por ejecutar, se cancela en vez de casarse.
	Balances map[string]float64
	MinPool  float64
	Now      time.Time
}

// OrderFill es una ejecución sobre una orden límite.
type OrderFill struct {
	OrderID      string
	UserID       string
	Outcome      domain.Outcome
	Amount       float64
	Shares       float64
	MatchedBetID string // contraparte; vacío = pool
	Reserved     bool   // el importe ya se debitó al colocar la orden
}

// Fills es el resultado de ComputeFills para el taker.
type Fills struct {
	Amount     float64 // importe del taker ejecutado
	Shares     float64
	Fills      []domain.Fill
	Makers     []OrderFill
	Cancel     []string // makers sin saldo
	PoolAfter  domain.Pool
	ProbBefore float64
	ProbAfter  float64
}

// Unfilled devuelve lo que le quedó al taker por ejecutar.
func (f Fills) Unfilled(amount float64) float64 {
	return math.Max(0, amount-f.Amount)
}

// ComputeFills ejecuta al taker por mejor precio: avanza el pool hasta el
// límite del siguiente maker, casa contra él a su precio y repite. Al acabarse
// los makers compatibles el resto va al pool, acotado por LimitProb.
//
// Con MaxShares el taker para al llegar a esas shares aunque le sobre importe:
// así se ejecuta una venta (vender S YES es comprar S NO y fusionar los pares).
func ComputeFills(in Input) (Fills, error) {
	if !in.Outcome.Valid() {
		return Fills{}, fmt.Errorf("limitorder.ComputeFills: outcome %q: %w", in.Outcome, domain.ErrInvalidAmount)
	}
	if in.LimitProb < 0 || in.LimitProb >= 1 || math.IsNaN(in.LimitProb) {
		return Fills{}, fmt.Errorf("limitorder.ComputeFills: limit %v: %w", in.LimitProb, domain.ErrInvalidProbability)
	}
	minPool := in.MinPool
	if minPool <= 0 {
		minPool = domain.DefaultMinPoolQty
	}

	out := Fills{
		PoolAfter:  in.Pool,
		ProbBefore: domain.Probability(in.Pool, in.P),
	}
	makers := candidates(in)
	avail := make(map[string]float64, len(makers))
	balances := make(map[string]float64, len(in.Balances))
	for k, v := range in.Balances {
		balances[k] = v
	}
	for _, m := range makers {
		avail[m.ID] = m.Remaining()
	}

	remaining := in.Amount
	sharesLeft := math.Inf(1)
	if in.MaxShares > 0 {
		sharesLeft = in.MaxShares
	}
	pool := in.Pool
	maxRounds := 2*len(makers) + 4
	for round := 0; remaining > FillEpsilon && sharesLeft > FillEpsilon && round < maxRounds; round++ {
		var maker *domain.Bet
		for len(makers) > 0 && maker == nil {
			m := makers[0]
			if !m.FundsReserved && in.Balances != nil && balances[m.UserID] < avail[m.ID]-FillEpsilon {
				out.Cancel = append(out.Cancel, m.ID)
				makers = makers[1:]
				continue
			}
			maker = &m
		}

		// tramo contra el pool hasta el límite del maker o del taker
		target := in.LimitProb
		if maker != nil {
			target = maker.LimitProb
		}
		if target > 0 {
			need := domain.BuyAmountToReachProb(pool, in.P, target, in.Outcome)
			if need > FillEpsilon {
				amt := math.Min(need, math.Min(remaining, costOf(pool, in.P, sharesLeft, in.Outcome)))
				tr, err := domain.Buy(pool, in.P, amt, in.Outcome, minPool)
				if err != nil {
					return Fills{}, fmt.Errorf("limitorder.ComputeFills: %w", err)
				}
				pool = tr.After
				remaining -= amt
				sharesLeft -= tr.Shares
				out.Amount += amt
				out.Shares += tr.Shares
				out.Fills = append(out.Fills, domain.Fill{Amount: amt, Shares: tr.Shares, Timestamp: in.Now})
			}
		} else {
			amt := math.Min(remaining, costOf(pool, in.P, sharesLeft, in.Outcome))
			tr, err := domain.Buy(pool, in.P, amt, in.Outcome, minPool)
			if err != nil {
				return Fills{}, fmt.Errorf("limitorder.ComputeFills: %w", err)
			}
			pool = tr.After
			out.Amount += amt
			out.Shares += tr.Shares
			out.Fills = append(out.Fills, domain.Fill{Amount: amt, Shares: tr.Shares, Timestamp: in.Now})
			break
		}
		if maker == nil || remaining <= FillEpsilon || sharesLeft <= FillEpsilon {
			break
		}

		// casar contra el maker a su precio
		price := maker.LimitProb
		if in.Outcome == domain.NO {
			price = 1 - maker.LimitProb
		}
		makerPrice := 1 - price
		shares := math.Min(math.Min(avail[maker.ID]/makerPrice, remaining/price), sharesLeft)
		takerAmt := shares * price
		makerAmt := shares * makerPrice

		remaining -= takerAmt
		sharesLeft -= shares
		out.Amount += takerAmt
		out.Shares += shares
		out.Fills = append(out.Fills, domain.Fill{MatchedBetID: maker.ID, Amount: takerAmt, Shares: shares, Timestamp: in.Now})
		out.Makers = append(out.Makers, OrderFill{
			OrderID:      maker.ID,
			UserID:       maker.UserID,
			Outcome:      maker.Outcome,
			Amount:       makerAmt,
			Shares:       shares,
			MatchedBetID: in.TakerBet,
			Reserved:     maker.FundsReserved,
		})
		avail[maker.ID] -= makerAmt
		balances[maker.UserID] -= makerAmt
		if avail[maker.ID] <= FillEpsilon {
			makers = makers[1:]
		}
	}

	out.PoolAfter = pool
	out.ProbAfter = domain.Probability(pool, in.P)
	return out, nil
}

// costOf es lo que cuesta comprar shares de outcome en el pool; +Inf sin tope.
func costOf(pool domain.Pool, p, shares float64, outcome domain.Outcome) float64 {
	if math.IsInf(shares, 1) {
		return shares
	}
	return domain.AmountForShares(pool, p, shares, outcome)
}

// Marketable indica si una orden abierta puede ejecutarse contra el pool a prob.
func Marketable(order domain.Bet, prob float64) bool {
	if !order.IsOpen() || order.Remaining() <= FillEpsilon {
		return false
	}
	if order.Outcome == domain.YES {
		return prob < order.LimitProb-probEpsilon
	}
	return prob > order.LimitProb+probEpsilon
}

// candidates devuelve los makers del lado contrario, compatibles con el
// límite del taker, ordenados por mejor precio para el taker.
func candidates(in Input) []domain.Bet {
	var out []domain.Bet
	for _, m := range in.Makers {
		if !m.IsOpen() || m.Outcome == in.Outcome || m.UserID == in.TakerID || m.Remaining() <= FillEpsilon {
			continue
		}
		if in.LimitProb > 0 {
			if in.Outcome == domain.YES && m.LimitProb > in.LimitProb {
				continue
			}
			if in.Outcome == domain.NO && m.LimitProb < in.LimitProb {
				continue
			}
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LimitProb != out[j].LimitProb {
			if in.Outcome == domain.YES {
				return out[i].LimitProb < out[j].LimitProb // YES más barato primero
			}
			return out[i].LimitProb > out[j].LimitProb // NO más barato primero
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
