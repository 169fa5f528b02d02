package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/likeli/internal/application/limitorder"
	"github.com/alejandrodnm/likeli/internal/domain"
)

// LimitOrderRequest coloca una orden límite en un binario o en una respuesta
// de un multi-respuesta independiente.
type LimitOrderRequest struct {
	ContractID string
	UserID     string
	AnswerID   string
	Outcome    domain.Outcome
	Amount     float64
	LimitProb  float64
	ExpiresAt  *time.Time
}

// CancelResult es el resultado de CancelOrder.
type CancelResult struct {
	Order  domain.Bet
	Refund float64
}

// PlaceLimitOrder coloca una orden límite. Se ejecuta en el acto hasta donde
// lo permitan el libro y el pool sin pasar de LimitProb; el resto queda en el
// libro. Con fondos reservados el importe completo se debita al colocarla.
func (e *Engine) PlaceLimitOrder(ctx context.Context, req LimitOrderRequest) (domain.Bet, error) {
	if !validAmount(req.Amount) || !req.Outcome.Valid() {
		return domain.Bet{}, fmt.Errorf("engine.PlaceLimitOrder: amount %v outcome %q: %w", req.Amount, req.Outcome, domain.ErrInvalidAmount)
	}
	if !(req.LimitProb > 0 && req.LimitProb < 1) {
		return domain.Bet{}, fmt.Errorf("engine.PlaceLimitOrder: limit %v: %w", req.LimitProb, domain.ErrInvalidProbability)
	}

	var order domain.Bet
	err := e.withMarket(ctx, "PlaceLimitOrder", req.ContractID, func(u *uow) error {
		c := u.market
		if m, ok := c.MultipleChoice(); ok && m.ShouldAnswersSumToOne {
			return fmt.Errorf("sum-to-one market %s: %w", c.ID, domain.ErrLimitOrdersUnsupported)
		}
		if c.Phase != domain.PhaseMain {
			return fmt.Errorf("market %s in phase %s: %w", c.ID, c.Phase, domain.ErrPhaseNotMain)
		}
		if err := c.CheckTradable(req.AnswerID); err != nil {
			return err
		}
		pool, p, err := c.PoolFor(req.AnswerID)
		if err != nil {
			return err
		}
		if req.ExpiresAt != nil && !req.ExpiresAt.After(u.now) {
			return fmt.Errorf("expiry %s is not in the future: %w", req.ExpiresAt.Format(time.RFC3339), domain.ErrInvalidAmount)
		}
		if _, err := u.requireBalance(req.UserID, req.Amount); err != nil {
			return err
		}
		book, err := u.loadBook(req.AnswerID)
		if err != nil {
			return err
		}
		makers := book.Open()
		balances, err := u.balancesFor(makers)
		if err != nil {
			return err
		}

		order = domain.Bet{
			ID:            u.e.newID(),
			UserID:        req.UserID,
			ContractID:    c.ID,
			AnswerID:      req.AnswerID,
			CreatedAt:     u.now,
			Outcome:       req.Outcome,
			LimitProb:     req.LimitProb,
			OrderAmount:   req.Amount,
			FundsReserved: !e.cfg.FundsOnFill,
		}
		if req.ExpiresAt != nil {
			t := req.ExpiresAt.UTC()
			order.ExpiresAt = &t
		}

		f, err := limitorder.ComputeFills(limitorder.Input{
			Pool:      *pool,
			P:         p,
			Outcome:   req.Outcome,
			Amount:    req.Amount,
			LimitProb: req.LimitProb,
			TakerID:   req.UserID,
			TakerBet:  order.ID,
			Makers:    makers,
			Balances:  balances,
			MinPool:   e.cfg.MinPoolQty,
			Now:       u.now,
		})
		if err != nil {
			return err
		}
		order.Amount = f.Amount
		order.Shares = f.Shares
		order.Fills = f.Fills
		order.ProbBefore = f.ProbBefore
		order.ProbAfter = f.ProbAfter
		if order.Remaining() <= limitorder.FillEpsilon {
			order.IsFilled = true
		}

		debit := f.Amount
		if order.FundsReserved {
			debit = req.Amount
		}
		if err := u.credit(req.UserID, -debit); err != nil {
			return err
		}
		if err := u.applyMakers(book, req.AnswerID, f); err != nil {
			return err
		}
		if err := u.addBets(order); err != nil {
			return err
		}
		book.Add(order)

		moved := f.Amount > limitorder.FillEpsilon
		if moved {
			*pool = f.PoolAfter
			c.AddVolume(req.AnswerID, f.Amount)
			u.pricePoint(req.AnswerID)
			u.redeem(req.UserID, req.AnswerID)
			u.redeemMakers(req.AnswerID, f.Makers)
			u.bettorBonus(req.UserID)
			u.sweep(req.AnswerID)
		}
		if got, ok := u.books[req.AnswerID].Get(order.ID); ok {
			order = got
		}
		return nil
	})
	if err != nil {
		return domain.Bet{}, err
	}

	slog.Info("engine: limit order placed",
		"market", req.ContractID,
		"answer", req.AnswerID,
		"user", req.UserID,
		"order", order.ID,
		"outcome", req.Outcome,
		"limit", fmt.Sprintf("%.4f", req.LimitProb),
		"amount", fmt.Sprintf("$%.2f", req.Amount),
		"filled", fmt.Sprintf("$%.2f", order.Amount),
	)
	return order, nil
}

// CancelOrder cancela una orden abierta del usuario y devuelve lo reservado
// que no llegó a ejecutarse.
func (e *Engine) CancelOrder(ctx context.Context, orderID, userID string) (CancelResult, error) {
	bet, err := e.store.GetBet(ctx, orderID)
	if err != nil {
		return CancelResult{}, fmt.Errorf("engine.CancelOrder: %w", err)
	}
	if !bet.IsLimitOrder() {
		return CancelResult{}, fmt.Errorf("engine.CancelOrder: bet %s: %w", orderID, domain.ErrOrderNotFound)
	}

	var out CancelResult
	err = e.withMarket(ctx, "CancelOrder", bet.ContractID, func(u *uow) error {
		// releer bajo el lock: un barrido pudo ejecutarla mientras tanto
		o, err := u.e.store.GetBet(u.ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return fmt.Errorf("order %s: %w", orderID, domain.ErrNotOwner)
		}
		book := limitorder.NewBook([]domain.Bet{o})
		cancelled, err := book.Cancel(orderID)
		if err != nil {
			return err
		}
		u.books[o.AnswerID] = book
		out.Order = cancelled
		out.Refund, err = refundOrder(u, cancelled)
		return err
	})
	if err != nil {
		return CancelResult{}, err
	}

	slog.Info("engine: limit order cancelled",
		"order", orderID,
		"user", userID,
		"refund", fmt.Sprintf("$%.2f", out.Refund),
	)
	return out, nil
}
