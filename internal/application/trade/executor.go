// Package trade ejecuta compras y ventas contra el pool de una sola respuesta.
package trade

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/likeli/internal/domain"
	"github.com/google/uuid"
)

// Request describe un trade contra un pool.
type Request struct {
	UserID    string
	AnswerID  string // vacío en mercados binarios
	Outcome   domain.Outcome
	Amount    float64 // compras: importe bruto
	Shares    float64 // ventas: shares a vender
	MinShares float64 // compras: 0 desactiva la protección
	MinPayout float64 // ventas: 0 desactiva la protección
}

// Result es el efecto calculado de un trade. Amount es lo pagado (compras,
// comisiones incluidas) o lo cobrado neto (ventas).
type Result struct {
	AnswerID   string
	Outcome    domain.Outcome
	Amount     float64
	Shares     float64
	Fees       domain.Fees
	PoolBefore domain.Pool
	PoolAfter  domain.Pool // incluye la comisión de liquidez
	ProbBefore float64
	ProbAfter  float64
}

// Executor calcula (Simulate*) y aplica (Apply*) trades de un solo pool.
type Executor struct {
	minPool float64
	newID   func() string
}

// NewExecutor crea un executor con el mínimo de reserva dado (≤ 0 usa el default).
func NewExecutor(minPool float64) *Executor {
	if minPool <= 0 {
		minPool = domain.DefaultMinPoolQty
	}
	return &Executor{minPool: minPool, newID: uuid.NewString}
}

// MinPool devuelve el suelo de reserva configurado.
func (e *Executor) MinPool() float64 { return e.minPool }

// SimulateBuy calcula una compra sin tocar el contrato.
func (e *Executor) SimulateBuy(c *domain.Contract, req Request) (Result, error) {
	if err := c.CheckTradable(req.AnswerID); err != nil {
		return Result{}, fmt.Errorf("trade.SimulateBuy: %w", err)
	}
	if !req.Outcome.Valid() {
		return Result{}, fmt.Errorf("trade.SimulateBuy: outcome %q: %w", req.Outcome, domain.ErrInvalidAmount)
	}
	pool, p, err := c.PoolFor(req.AnswerID)
	if err != nil {
		return Result{}, fmt.Errorf("trade.SimulateBuy: %w", err)
	}

	fees := c.Fees.Compute(req.Amount)
	tr, err := domain.Buy(*pool, p, req.Amount-fees.Total(), req.Outcome, e.minPool)
	if err != nil {
		return Result{}, fmt.Errorf("trade.SimulateBuy: %w", err)
	}
	if req.MinShares > 0 && tr.Shares < req.MinShares {
		return Result{}, fmt.Errorf("trade.SimulateBuy: %.4f shares < min %.4f: %w",
			tr.Shares, req.MinShares, domain.ErrSlippageExceeded)
	}

	return Result{
		AnswerID:   req.AnswerID,
		Outcome:    req.Outcome,
		Amount:     req.Amount,
		Shares:     tr.Shares,
		Fees:       fees,
		PoolBefore: tr.Before,
		PoolAfter:  domain.AddLiquidity(tr.After, fees.Liquidity),
		ProbBefore: tr.ProbBefore,
		ProbAfter:  tr.ProbAfter,
	}, nil
}

// SimulateSell calcula una venta sin tocar el contrato. Las comisiones se
// cobran sobre el payout.
func (e *Executor) SimulateSell(c *domain.Contract, req Request) (Result, error) {
	if err := c.CheckTradable(req.AnswerID); err != nil {
		return Result{}, fmt.Errorf("trade.SimulateSell: %w", err)
	}
	if !req.Outcome.Valid() {
		return Result{}, fmt.Errorf("trade.SimulateSell: outcome %q: %w", req.Outcome, domain.ErrInvalidAmount)
	}
	pool, p, err := c.PoolFor(req.AnswerID)
	if err != nil {
		return Result{}, fmt.Errorf("trade.SimulateSell: %w", err)
	}

	tr, err := domain.Sell(*pool, p, req.Shares, req.Outcome, e.minPool)
	if err != nil {
		return Result{}, fmt.Errorf("trade.SimulateSell: %w", err)
	}
	fees := c.Fees.Compute(tr.Amount)
	payout := tr.Amount - fees.Total()
	if req.MinPayout > 0 && payout < req.MinPayout {
		return Result{}, fmt.Errorf("trade.SimulateSell: payout %.4f < min %.4f: %w",
			payout, req.MinPayout, domain.ErrSlippageExceeded)
	}

	return Result{
		AnswerID:   req.AnswerID,
		Outcome:    req.Outcome,
		Amount:     payout,
		Shares:     req.Shares,
		Fees:       fees,
		PoolBefore: tr.Before,
		PoolAfter:  domain.AddLiquidity(tr.After, fees.Liquidity),
		ProbBefore: tr.ProbBefore,
		ProbAfter:  tr.ProbAfter,
	}, nil
}

// ApplyBuy simula la compra y la aplica sobre c (pool, volumen, comisiones).
// Devuelve el Bet a persistir; el saldo del usuario es cosa del caller.
func (e *Executor) ApplyBuy(c *domain.Contract, req Request, now time.Time) (Result, domain.Bet, error) {
	res, err := e.SimulateBuy(c, req)
	if err != nil {
		return Result{}, domain.Bet{}, err
	}
	e.commit(c, res, res.Amount)
	return res, e.bet(c, req, res, res.Amount, res.Shares, now), nil
}

// ApplySell simula la venta y la aplica sobre c.
func (e *Executor) ApplySell(c *domain.Contract, req Request, now time.Time) (Result, domain.Bet, error) {
	res, err := e.SimulateSell(c, req)
	if err != nil {
		return Result{}, domain.Bet{}, err
	}
	e.commit(c, res, res.Amount+res.Fees.Total())
	return res, e.bet(c, req, res, -res.Amount, -res.Shares, now), nil
}

func (e *Executor) commit(c *domain.Contract, res Result, volume float64) {
	pool, _, _ := c.PoolFor(res.AnswerID) // ya validado en Simulate*
	*pool = res.PoolAfter
	c.AddVolume(res.AnswerID, volume)
	c.CollectedFees = c.CollectedFees.Add(res.Fees)
}

func (e *Executor) bet(c *domain.Contract, req Request, res Result, amount, shares float64, now time.Time) domain.Bet {
	return domain.Bet{
		ID:         e.newID(),
		UserID:     req.UserID,
		ContractID: c.ID,
		AnswerID:   req.AnswerID,
		CreatedAt:  now,
		Outcome:    req.Outcome,
		Amount:     amount,
		Shares:     shares,
		ProbBefore: res.ProbBefore,
		ProbAfter:  res.ProbAfter,
		Fees:       res.Fees,
		Fills: []domain.Fill{{
			Amount:    amount,
			Shares:    shares,
			Timestamp: now,
		}},
	}
}
