// Package arbitrage mantiene la suma de probabilidades de un mercado
// sum-to-one en 1 tras cada trade.
//
// Comprar YES en A con presupuesto B se descompone en:
//
//  1. comprar s shares NO en cada una de las N-1 respuestas hermanas,
//  2. canjear esas NO: equivalen a s YES en A más s·(N-2) en efectivo,
//  3. comprar YES en A con el resto B - Σcoste + s·(N-2).
//
// s se resuelve por bisección de forma que Σ probabilidades = 1. Comprar NO es
// el espejo (YES en las hermanas, sin bonus). Las ventas compran el lado
// contrario en A y en las hermanas y fusionan los pares.
package arbitrage

import (
	"errors"
	"fmt"
	"math"

	"github.com/alejandrodnm/likeli/internal/domain"
)

const (
	// DefaultSumTolerance es la desviación máxima de Σprob aceptada tras resolver.
	DefaultSumTolerance = 1e-3
	dust                = 1e-12
)

var errInfeasible = errors.New("negative remainder")

// Config ajusta el solver.
type Config struct {
	MinPool       float64
	Tolerance     float64 // tolerancia de la bisección sobre 1 - Σprob
	MaxIterations int
	SumTolerance  float64
}

// Request es un trade sobre una respuesta de un mercado sum-to-one.
type Request struct {
	AnswerID  string
	Outcome   domain.Outcome
	Amount    float64 // compras: importe bruto
	Shares    float64 // ventas
	Fees      domain.FeeSchedule
	MinShares float64
	MinPayout float64
}

// Leg es la parte de la operación ejecutada contra un pool.
type Leg struct {
	AnswerID   string
	Outcome    domain.Outcome
	Amount     float64 // coste pagado al pool
	Shares     float64
	PoolBefore domain.Pool
	PoolAfter  domain.Pool
	ProbBefore float64
	ProbAfter  float64
}

// Result es la operación completa ya resuelta. No muta nada: Apply la aplica.
type Result struct {
	AnswerID        string
	Outcome         domain.Outcome
	IsSell          bool
	Gross           float64 // compras: importe pagado; ventas: shares vendidas
	Amount          float64 // compras: presupuesto neto; ventas: payout neto
	Shares          float64 // shares de Outcome ganadas (compras) o vendidas (ventas)
	Fees            domain.Fees
	Direct          Leg
	Siblings        []Leg
	SiblingShares   float64 // s
	SiblingCost     float64
	RedemptionBonus float64 // s·(N-2) cuando las hermanas reciben NO
	Iterations      int
	Residual        float64 // 1 - Σprob final
}

// ProbabilitiesAfter devuelve la probabilidad final de cada respuesta tocada.
func (r Result) ProbabilitiesAfter() map[string]float64 {
	out := make(map[string]float64, len(r.Siblings)+1)
	out[r.Direct.AnswerID] = r.Direct.ProbAfter
	for _, l := range r.Siblings {
		out[l.AnswerID] = l.ProbAfter
	}
	return out
}

// Engine resuelve el arbitraje.
type Engine struct {
	cfg Config
}

// New crea el engine aplicando defaults.
func New(cfg Config) *Engine {
	if cfg.MinPool <= 0 {
		cfg.MinPool = domain.DefaultMinPoolQty
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = domain.DefaultSearchTolerance
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = domain.DefaultSearchMaxIterations
	}
	if cfg.SumTolerance <= 0 {
		cfg.SumTolerance = DefaultSumTolerance
	}
	return &Engine{cfg: cfg}
}

// Buy compra req.Outcome en req.AnswerID con req.Amount.
func (e *Engine) Buy(answers domain.SumToOneAnswers, req Request) (Result, error) {
	if !validPositive(req.Amount) || !req.Outcome.Valid() {
		return Result{}, fmt.Errorf("arbitrage.Buy: amount %v outcome %q: %w", req.Amount, req.Outcome, domain.ErrInvalidAmount)
	}
	pl, err := e.newPlan(answers, req.AnswerID)
	if err != nil {
		return Result{}, fmt.Errorf("arbitrage.Buy: %w", err)
	}
	fees := req.Fees.Compute(req.Amount)
	pl.direct = req.Outcome
	pl.sibling = req.Outcome.Opposite()
	pl.budget = req.Amount - fees.Total()
	if pl.budget <= 0 {
		return Result{}, fmt.Errorf("arbitrage.Buy: amount %v after fees: %w", req.Amount, domain.ErrInvalidAmount)
	}

	hi := pl.budget
	for i, a := range pl.answers {
		if i != pl.target {
			hi += a.Pool.Reserve(pl.sibling)
		}
	}

	res, err := e.solve(pl, hi)
	if err != nil {
		return Result{}, fmt.Errorf("arbitrage.Buy: %w", err)
	}
	res.Gross = req.Amount
	res.Amount = pl.budget
	res.Fees = fees
	res.Direct.PoolAfter = domain.AddLiquidity(res.Direct.PoolAfter, fees.Liquidity)

	if req.MinShares > 0 && res.Shares < req.MinShares {
		return Result{}, fmt.Errorf("arbitrage.Buy: %.4f shares < min %.4f: %w", res.Shares, req.MinShares, domain.ErrSlippageExceeded)
	}
	return res, nil
}

// Sell vende req.Shares de req.Outcome en req.AnswerID. La comisión se cobra
// sobre la pata creada en las hermanas.
func (e *Engine) Sell(answers domain.SumToOneAnswers, req Request) (Result, error) {
	if !validPositive(req.Shares) || !req.Outcome.Valid() {
		return Result{}, fmt.Errorf("arbitrage.Sell: shares %v outcome %q: %w", req.Shares, req.Outcome, domain.ErrInvalidAmount)
	}
	pl, err := e.newPlan(answers, req.AnswerID)
	if err != nil {
		return Result{}, fmt.Errorf("arbitrage.Sell: %w", err)
	}
	pl.sell = true
	pl.direct = req.Outcome.Opposite()
	pl.sibling = req.Outcome
	pl.shares = req.Shares
	pl.fees = req.Fees

	res, err := e.solve(pl, req.Shares)
	if err != nil {
		return Result{}, fmt.Errorf("arbitrage.Sell: %w", err)
	}
	res.Gross = req.Shares
	res.Direct.PoolAfter = domain.AddLiquidity(res.Direct.PoolAfter, res.Fees.Liquidity)

	if req.MinPayout > 0 && res.Amount < req.MinPayout {
		return Result{}, fmt.Errorf("arbitrage.Sell: payout %.4f < min %.4f: %w", res.Amount, req.MinPayout, domain.ErrSlippageExceeded)
	}
	return res, nil
}

// Simulate evalúa el trade con s shares en las hermanas y devuelve la suma de
// probabilidades resultante. Es puro: lo usa el solver en cada iteración.
func (e *Engine) Simulate(answers domain.SumToOneAnswers, req Request, s float64) (float64, error) {
	pl, err := e.newPlan(answers, req.AnswerID)
	if err != nil {
		return 0, err
	}
	pl.sell = req.Shares > 0 && req.Amount == 0
	if pl.sell {
		pl.direct, pl.sibling, pl.shares, pl.fees = req.Outcome.Opposite(), req.Outcome, req.Shares, req.Fees
	} else {
		fees := req.Fees.Compute(req.Amount)
		pl.direct, pl.sibling, pl.budget = req.Outcome, req.Outcome.Opposite(), req.Amount-fees.Total()
	}
	st, err := pl.simulate(s)
	if err != nil {
		return 0, err
	}
	return st.probSum, nil
}

// solve busca s, y con el s final construye el resultado una sola vez.
func (e *Engine) solve(pl plan, hi float64) (Result, error) {
	search := domain.BinarySearch(0, hi, pl.objective, e.cfg.Tolerance, e.cfg.MaxIterations)

	st, err := pl.simulate(search.X)
	if err != nil {
		if errors.Is(err, errInfeasible) {
			return Result{}, fmt.Errorf("s=%.6f: %w", search.X, domain.ErrArbitrageInfeasible)
		}
		return Result{}, err
	}
	residual := 1 - st.probSum
	if math.Abs(residual) > e.cfg.SumTolerance {
		return Result{}, fmt.Errorf("probability sum %.6f after %d iterations: %w",
			st.probSum, search.Iterations, domain.ErrArbitrageInfeasible)
	}
	return pl.commit(st, search), nil
}

// plan son los datos fijos de una operación; simulate(s) es puro.
type plan struct {
	answers []domain.Answer
	target  int
	direct  domain.Outcome // lado comprado en A
	sibling domain.Outcome // lado comprado en las hermanas
	sell    bool
	budget  float64 // compras
	shares  float64 // ventas
	fees    domain.FeeSchedule
	minPool float64
}

type state struct {
	siblings    []*domain.PoolTrade // alineado con answers; nil en target
	direct      *domain.PoolTrade
	siblingCost float64
	bonus       float64
	fees        domain.Fees
	payout      float64
	probSum     float64
}

func (e *Engine) newPlan(answers domain.SumToOneAnswers, answerID string) (plan, error) {
	if answers.Len() < 2 {
		return plan{}, fmt.Errorf("%d answers: %w", answers.Len(), domain.ErrInvalidMarket)
	}
	target := answers.Index(answerID)
	if target < 0 {
		return plan{}, fmt.Errorf("answer %q: %w", answerID, domain.ErrAnswerNotFound)
	}
	return plan{answers: answers.Answers(), target: target, minPool: e.cfg.MinPool}, nil
}

// objective es positiva cuando s es demasiado alto. Cualquier s inviable
// (resto negativo, pool drenado) cuenta como demasiado alto.
func (pl plan) objective(s float64) float64 {
	st, err := pl.simulate(s)
	if err != nil {
		return 1
	}
	if pl.direct == domain.YES {
		return 1 - st.probSum
	}
	return st.probSum - 1
}

func (pl plan) simulate(s float64) (state, error) {
	n := len(pl.answers)
	st := state{siblings: make([]*domain.PoolTrade, n)}

	for i, a := range pl.answers {
		if i == pl.target || s <= dust {
			continue
		}
		tr, err := domain.BuyShares(a.Pool, a.P, s, pl.sibling, pl.minPool)
		if err != nil {
			return state{}, err
		}
		st.siblings[i] = &tr
		st.siblingCost += tr.Amount
	}
	if pl.sibling == domain.NO {
		st.bonus = s * float64(n-2)
	}

	target := pl.answers[pl.target]
	if !pl.sell {
		remainder := pl.budget - st.siblingCost + st.bonus
		if remainder < -dust {
			return state{}, errInfeasible
		}
		if remainder > dust {
			tr, err := domain.Buy(target.Pool, target.P, remainder, pl.direct, pl.minPool)
			if err != nil {
				return state{}, err
			}
			st.direct = &tr
		}
	} else {
		var directCost float64
		if rest := pl.shares - s; rest > dust {
			tr, err := domain.BuyShares(target.Pool, target.P, rest, pl.direct, pl.minPool)
			if err != nil {
				return state{}, err
			}
			st.direct = &tr
			directCost = tr.Amount
		}
		st.fees = pl.fees.Compute(st.siblingCost)
		st.payout = pl.shares - (st.siblingCost - st.bonus + directCost) - st.fees.Total()
		if st.payout < -dust {
			return state{}, errInfeasible
		}
	}

	for i, a := range pl.answers {
		pool := a.Pool
		switch {
		case i == pl.target && st.direct != nil:
			pool = st.direct.After
		case st.siblings[i] != nil:
			pool = st.siblings[i].After
		}
		st.probSum += domain.Probability(pool, a.P)
	}
	return st, nil
}

// commit convierte el estado final en Result.
func (pl plan) commit(st state, search domain.SearchResult) Result {
	s := search.X
	if s <= dust {
		s = 0
	}
	target := pl.answers[pl.target]
	res := Result{
		AnswerID:        target.ID,
		IsSell:          pl.sell,
		SiblingShares:   s,
		SiblingCost:     st.siblingCost,
		RedemptionBonus: st.bonus,
		Iterations:      search.Iterations,
		Residual:        1 - st.probSum,
	}

	res.Direct = Leg{
		AnswerID:   target.ID,
		Outcome:    pl.direct,
		PoolBefore: target.Pool,
		PoolAfter:  target.Pool,
		ProbBefore: target.Probability(),
		ProbAfter:  target.Probability(),
	}
	if st.direct != nil {
		res.Direct.Amount = st.direct.Amount
		res.Direct.Shares = st.direct.Shares
		res.Direct.PoolAfter = st.direct.After
		res.Direct.ProbAfter = st.direct.ProbAfter
	}

	for i, a := range pl.answers {
		tr := st.siblings[i]
		if tr == nil {
			continue
		}
		res.Siblings = append(res.Siblings, Leg{
			AnswerID:   a.ID,
			Outcome:    pl.sibling,
			Amount:     tr.Amount,
			Shares:     tr.Shares,
			PoolBefore: tr.Before,
			PoolAfter:  tr.After,
			ProbBefore: tr.ProbBefore,
			ProbAfter:  tr.ProbAfter,
		})
	}

	if pl.sell {
		res.Outcome = pl.sibling
		res.Shares = pl.shares
		res.Amount = st.payout
		res.Fees = st.fees
	} else {
		res.Outcome = pl.direct
		res.Shares = s + res.Direct.Shares
	}
	return res
}

func validPositive(x float64) bool {
	return x > 0 && !math.IsInf(x, 0) && !math.IsNaN(x)
}
