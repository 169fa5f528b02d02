package domain

import (
	"fmt"
	"math"
)

// DefaultMinPoolQty es el mínimo por reserva tras cualquier trade.
const DefaultMinPoolQty = 0.01

// Outcome es el lado de un trade binario.
type Outcome string

const (
	YES Outcome = "YES"
	NO  Outcome = "NO"
)

// Opposite devuelve el otro lado.
func (o Outcome) Opposite() Outcome {
	if o == YES {
		return NO
	}
	return YES
}

func (o Outcome) Valid() bool { return o == YES || o == NO }

// Pool son las reservas de un CPMM. El invariante es YES^p · NO^(1-p),
// que con p = 0.5 es el producto YES·NO.
type Pool struct {
	YES float64 `json:"YES"`
	NO  float64 `json:"NO"`
}

// Reserve devuelve la reserva del lado dado.
func (p Pool) Reserve(o Outcome) float64 {
	if o == YES {
		return p.YES
	}
	return p.NO
}

func (p Pool) Total() float64 { return p.YES + p.NO }

// Product es YES·NO (el k del CPMM con p = 0.5).
func (p Pool) Product() float64 { return p.YES * p.NO }

// PoolTrade describe el efecto de un trade contra un pool.
type PoolTrade struct {
	Outcome    Outcome
	Amount     float64 // pagado en compras, cobrado en ventas
	Shares     float64
	Before     Pool
	After      Pool
	ProbBefore float64
	ProbAfter  float64
}

// ValidP indica si p es un peso válido para un pool.
func ValidP(p float64) bool { return p > 0 && p < 1 && !math.IsNaN(p) }

// Probability es el precio implícito de YES: p·NO / ((1-p)·YES + p·NO).
// Con ambas reservas a cero devuelve p.
func Probability(pool Pool, p float64) float64 {
	if pool.YES == 0 && pool.NO == 0 {
		return p
	}
	return p * pool.NO / ((1-p)*pool.YES + p*pool.NO)
}

// Buy compra `amount` de outcome contra el pool. Los `amount` sets completos
// acuñados entran en ambas reservas y se retiran las shares del lado comprado.
func Buy(pool Pool, p, amount float64, outcome Outcome, minPool float64) (PoolTrade, error) {
	if !validPositive(amount) {
		return PoolTrade{}, fmt.Errorf("domain.Buy: amount %v: %w", amount, ErrInvalidAmount)
	}
	after := buyPool(pool, p, amount, outcome)
	shares := pool.Reserve(outcome) + amount - after.Reserve(outcome)
	return finishTrade(pool, after, p, outcome, amount, shares, minPool)
}

// BuyShares compra exactamente `shares` de outcome; el coste sale de AmountForShares.
func BuyShares(pool Pool, p, shares float64, outcome Outcome, minPool float64) (PoolTrade, error) {
	if !validPositive(shares) {
		return PoolTrade{}, fmt.Errorf("domain.BuyShares: shares %v: %w", shares, ErrInvalidAmount)
	}
	cost := AmountForShares(pool, p, shares, outcome)
	if math.IsInf(cost, 1) {
		return PoolTrade{}, fmt.Errorf("domain.BuyShares: %w", ErrPoolWouldDrain)
	}
	after := pool
	if outcome == YES {
		after.YES = pool.YES + cost - shares
		after.NO = pool.NO + cost
	} else {
		after.NO = pool.NO + cost - shares
		after.YES = pool.YES + cost
	}
	return finishTrade(pool, after, p, outcome, cost, shares, minPool)
}

// Sell vende `shares` de outcome. Equivale a comprar las mismas shares del lado
// contrario y fusionar los pares: las shares vuelven a su reserva y el payout
// sale de la reserva opuesta.
func Sell(pool Pool, p, shares float64, outcome Outcome, minPool float64) (PoolTrade, error) {
	if !validPositive(shares) {
		return PoolTrade{}, fmt.Errorf("domain.Sell: shares %v: %w", shares, ErrInvalidAmount)
	}
	cost := AmountForShares(pool, p, shares, outcome.Opposite())
	if math.IsInf(cost, 1) {
		return PoolTrade{}, fmt.Errorf("domain.Sell: %w", ErrPoolWouldDrain)
	}
	after := pool
	if outcome == YES {
		after.YES = pool.YES + cost
		after.NO = pool.NO + cost - shares
	} else {
		after.NO = pool.NO + cost
		after.YES = pool.YES + cost - shares
	}
	return finishTrade(pool, after, p, outcome, shares-cost, shares, minPool)
}

// AmountForShares devuelve cuánto hay que pagar para recibir exactamente
// `shares` de outcome. Devuelve +Inf si la reserva quedaría sin liquidez.
func AmountForShares(pool Pool, p, shares float64, outcome Outcome) float64 {
	if shares <= 0 {
		return 0
	}
	own, other := pool.Reserve(outcome), pool.Reserve(outcome.Opposite())

	var amount float64
	if p == 0.5 {
		// (own + a - s)(other + a) = own·other
		b := own + other - shares
		c := shares * other
		disc := math.Sqrt(b*b + 4*c)
		if b >= 0 {
			amount = 2 * c / (b + disc)
		} else {
			amount = (disc - b) / 2
		}
	} else {
		res := BinarySearch(0, shares, func(a float64) float64 {
			if a == 0 {
				return -shares
			}
			after := buyPool(pool, p, a, outcome)
			return own + a - after.Reserve(outcome) - shares
		}, 1e-10, 200)
		amount = res.X
	}

	if own+amount-shares <= 0 || math.IsNaN(amount) {
		return math.Inf(1)
	}
	return amount
}

// BuyAmountToReachProb devuelve el importe que lleva la probabilidad del pool
// hasta target comprando outcome. Cero si ya está en o más allá del target.
func BuyAmountToReachProb(pool Pool, p, target float64, outcome Outcome) float64 {
	if target <= 0 || target >= 1 {
		return 0
	}
	prob := Probability(pool, p)
	if (outcome == YES && prob >= target) || (outcome == NO && prob <= target) {
		return 0
	}
	k := invariant(pool, p)
	if k == 0 {
		return 0
	}
	// NO'/YES' = r para que Probability == target
	r := target * (1 - p) / ((1 - target) * p)
	yes := k / math.Pow(r, 1-p)
	no := r * yes

	var amount float64
	if outcome == YES {
		amount = no - pool.NO
	} else {
		amount = yes - pool.YES
	}
	return math.Max(0, amount)
}

// AddLiquidity reparte el depósito manteniendo la proporción YES/NO, y por
// tanto la probabilidad. Con p = 0.5 el reparto es (1-prob, prob).
func AddLiquidity(pool Pool, amount float64) Pool {
	if amount <= 0 {
		return pool
	}
	total := pool.Total()
	if total == 0 {
		return Pool{YES: amount / 2, NO: amount / 2}
	}
	return Pool{
		YES: pool.YES + amount*pool.YES/total,
		NO:  pool.NO + amount*pool.NO/total,
	}
}

// RemoveLiquidity retira `amount` de reservas en proporción.
func RemoveLiquidity(pool Pool, amount, minPool float64) (Pool, error) {
	if !validPositive(amount) {
		return pool, fmt.Errorf("domain.RemoveLiquidity: amount %v: %w", amount, ErrInvalidAmount)
	}
	total := pool.Total()
	if amount >= total {
		return pool, fmt.Errorf("domain.RemoveLiquidity: %w", ErrPoolWouldDrain)
	}
	f := 1 - amount/total
	after := Pool{YES: pool.YES * f, NO: pool.NO * f}
	if err := checkFloor(after, minPool); err != nil {
		return pool, fmt.Errorf("domain.RemoveLiquidity: %w", err)
	}
	return after, nil
}

// --- helpers ---

func invariant(pool Pool, p float64) float64 {
	if p == 0.5 {
		return math.Sqrt(pool.YES * pool.NO)
	}
	return math.Pow(pool.YES, p) * math.Pow(pool.NO, 1-p)
}

func buyPool(pool Pool, p, amount float64, outcome Outcome) Pool {
	if p == 0.5 {
		k := pool.YES * pool.NO
		if outcome == YES {
			no := pool.NO + amount
			return Pool{YES: k / no, NO: no}
		}
		yes := pool.YES + amount
		return Pool{YES: yes, NO: k / yes}
	}

	k := invariant(pool, p)
	if outcome == YES {
		no := pool.NO + amount
		return Pool{YES: math.Pow(k/math.Pow(no, 1-p), 1/p), NO: no}
	}
	yes := pool.YES + amount
	return Pool{YES: yes, NO: math.Pow(k/math.Pow(yes, p), 1/(1-p))}
}

func finishTrade(before, after Pool, p float64, outcome Outcome, amount, shares, minPool float64) (PoolTrade, error) {
	if err := checkFloor(after, minPool); err != nil {
		return PoolTrade{}, err
	}
	return PoolTrade{
		Outcome:    outcome,
		Amount:     amount,
		Shares:     shares,
		Before:     before,
		After:      after,
		ProbBefore: Probability(before, p),
		ProbAfter:  Probability(after, p),
	}, nil
}

func checkFloor(pool Pool, minPool float64) error {
	if pool.YES < minPool || pool.NO < minPool || math.IsNaN(pool.YES) || math.IsNaN(pool.NO) {
		return fmt.Errorf("pool YES=%.6f NO=%.6f below %.4f: %w", pool.YES, pool.NO, minPool, ErrPoolWouldDrain)
	}
	return nil
}

func validPositive(x float64) bool {
	return x > 0 && !math.IsInf(x, 0) && !math.IsNaN(x)
}
