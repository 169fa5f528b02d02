package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/alejandrodnm/likeli/internal/domain"
)

// ResolveRequest es la resolución pedida por el creador o traída de un oráculo.
type ResolveRequest = domain.ResolutionRequest

// Payout es lo cobrado por una posición en la resolución.
type Payout struct {
	UserID   string
	AnswerID string
	Amount   float64
}

// ResolveResult es el resultado de ResolveMarket.
type ResolveResult struct {
	Market   domain.Contract
	Payouts  []Payout
	Total    float64
	Refunded float64 // órdenes límite canceladas
}

// ResolveMarket resuelve el mercado (o una respuesta de un multi-respuesta
// independiente) y paga las posiciones:
//
//	YES    → 1 por share YES
//	NO     → 1 por share NO
//	MKT    → p por share YES y 1-p por share NO
//	CANCEL → devuelve lo invertido neto
//
// En sum-to-one AnswerID es la respuesta ganadora (YES) y el resto resuelve NO.
// Solo el creador puede resolver.
func (e *Engine) ResolveMarket(ctx context.Context, req ResolveRequest) (ResolveResult, error) {
	if !req.Resolution.Valid() {
		return ResolveResult{}, fmt.Errorf("engine.ResolveMarket: resolution %q: %w", req.Resolution, domain.ErrInvalidResolution)
	}
	if req.Resolution == domain.ResolutionMkt && !(req.Probability >= 0 && req.Probability <= 1) {
		return ResolveResult{}, fmt.Errorf("engine.ResolveMarket: probability %v: %w", req.Probability, domain.ErrInvalidProbability)
	}

	var out ResolveResult
	err := e.withMarket(ctx, "ResolveMarket", req.ContractID, func(u *uow) error {
		c := u.market
		if c.IsResolved() {
			return fmt.Errorf("market %s: %w", c.ID, domain.ErrMarketResolved)
		}
		if req.ResolverID != c.CreatorID {
			return fmt.Errorf("user %s cannot resolve %s: %w", req.ResolverID, c.ID, domain.ErrUnauthorized)
		}
		metrics, err := u.e.store.ListMetrics(u.ctx, c.ID)
		if err != nil {
			return err
		}

		// answerID → resolución a aplicar
		plan := make(map[string]domain.Resolution)
		switch o := c.Outcomes.(type) {
		case *domain.Binary:
			if req.AnswerID != "" {
				return fmt.Errorf("binary market %s: %w", c.ID, domain.ErrNotMultiChoice)
			}
			plan[""] = req.Resolution
		case *domain.MultipleChoice:
			if plan, err = answerPlan(o, req); err != nil {
				return err
			}
		default:
			return fmt.Errorf("market %s: %w", c.ID, domain.ErrInvalidMarket)
		}

		for _, m := range metrics {
			res, ok := plan[m.AnswerID]
			if !ok {
				continue
			}
			amount := settle(m, res, req.Probability)
			if amount <= 0 {
				continue
			}
			pm, err := u.metric(m.UserID, m.AnswerID)
			if err != nil {
				return err
			}
			pm.Payout += amount
			pm.Profit = pm.Payout - pm.Invested
			if err := u.credit(m.UserID, amount); err != nil {
				return err
			}
			out.Payouts = append(out.Payouts, Payout{UserID: m.UserID, AnswerID: m.AnswerID, Amount: amount})
			out.Total += amount
		}

		if err := u.markResolved(req, plan); err != nil {
			return err
		}
		if out.Refunded, err = u.cancelOpenOrders(plan); err != nil {
			return err
		}
		out.Market = c.Clone()
		return nil
	})
	if err != nil {
		return ResolveResult{}, err
	}

	sort.SliceStable(out.Payouts, func(i, j int) bool { return out.Payouts[i].Amount > out.Payouts[j].Amount })
	e.rec.MarketResolved(string(req.Resolution), out.Total)
	slog.Info("engine: market resolved",
		"market", req.ContractID,
		"answer", req.AnswerID,
		"resolution", req.Resolution,
		"payouts", len(out.Payouts),
		"total", fmt.Sprintf("$%.2f", out.Total),
		"refunded_orders", fmt.Sprintf("$%.2f", out.Refunded),
	)
	return out, nil
}

// answerPlan decide qué resolución recibe cada respuesta.
func answerPlan(m *domain.MultipleChoice, req ResolveRequest) (map[string]domain.Resolution, error) {
	plan := make(map[string]domain.Resolution)
	if req.Resolution == domain.ResolutionCancel && req.AnswerID == "" {
		for _, a := range m.Answers {
			if !a.IsResolved() {
				plan[a.ID] = domain.ResolutionCancel
			}
		}
		return plan, nil
	}

	a, err := m.Answer(req.AnswerID)
	if err != nil {
		return nil, err
	}
	if a.IsResolved() {
		return nil, fmt.Errorf("answer %s: %w", a.ID, domain.ErrMarketResolved)
	}
	if !m.ShouldAnswersSumToOne {
		plan[a.ID] = req.Resolution
		return plan, nil
	}

	if req.Resolution != domain.ResolutionYes {
		return nil, fmt.Errorf("sum-to-one markets resolve to a winning answer, got %s: %w", req.Resolution, domain.ErrInvalidResolution)
	}
	for _, other := range m.Answers {
		plan[other.ID] = domain.ResolutionNo
	}
	plan[a.ID] = domain.ResolutionYes
	return plan, nil
}

func settle(m domain.ContractMetric, res domain.Resolution, prob float64) float64 {
	switch res {
	case domain.ResolutionYes:
		return m.YesShares
	case domain.ResolutionNo:
		return m.NoShares
	case domain.ResolutionMkt:
		return prob*m.YesShares + (1-prob)*m.NoShares
	case domain.ResolutionCancel:
		return math.Max(0, m.Invested)
	}
	return 0
}

// markResolved escribe la resolución en el contrato y sus respuestas.
func (u *uow) markResolved(req ResolveRequest, plan map[string]domain.Resolution) error {
	c := u.market
	resolve := func() {
		c.ResolverID = req.ResolverID
		t := u.now
		c.ResolvedAt = &t
	}

	m, ok := c.MultipleChoice()
	if !ok {
		c.Resolution = req.Resolution
		if req.Resolution == domain.ResolutionMkt {
			c.ResolutionProbability = req.Probability
		}
		resolve()
		return nil
	}

	for id, res := range plan {
		a, err := m.Answer(id)
		if err != nil {
			return err
		}
		a.Resolution = res
		if res == domain.ResolutionMkt {
			a.ResolutionProbability = req.Probability
		}
	}
	for _, a := range m.Answers {
		if !a.IsResolved() {
			return nil
		}
	}
	c.Resolution = domain.ResolutionChoice
	if req.Resolution == domain.ResolutionCancel && req.AnswerID == "" {
		c.Resolution = domain.ResolutionCancel
	}
	resolve()
	return nil
}

// cancelOpenOrders cancela las órdenes en reposo de las respuestas resueltas
// y devuelve lo reservado.
func (u *uow) cancelOpenOrders(plan map[string]domain.Resolution) (float64, error) {
	ids := make([]string, 0, len(plan))
	for id := range plan {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var refunded float64
	for _, id := range ids {
		book, err := u.loadBook(id)
		if err != nil {
			return 0, err
		}
		for _, o := range book.Open() {
			cancelled, err := book.Cancel(o.ID)
			if err != nil {
				return 0, err
			}
			r, err := refundOrder(u, cancelled)
			if err != nil {
				return 0, err
			}
			refunded += r
		}
	}
	return refunded, nil
}
