package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/alejandrodnm/likeli/internal/domain"
	"github.com/alejandrodnm/likeli/internal/ports"
)

// CreateMarketRequest describe un mercado nuevo.
type CreateMarketRequest struct {
	CreatorID             string
	Question              string
	OutcomeType           domain.OutcomeType
	Ante                  float64
	Answers               []string // solo multi-respuesta
	ShouldAnswersSumToOne bool
	P                     float64             // peso del pool binario; 0 = 0.5
	Phase                 domain.Phase        // vacío = Config.DefaultPhase
	Fees                  *domain.FeeSchedule // nil = Config.DefaultFees
}

// RedeemResult es el resultado de RedeemShares.
type RedeemResult struct {
	Pairs      float64
	NewBalance float64
}

func (e *Engine) validateMarket(req *CreateMarketRequest) error {
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" || utf8.RuneCountInString(req.Question) > e.cfg.MaxQuestionLength {
		return fmt.Errorf("question length %d: %w", utf8.RuneCountInString(req.Question), domain.ErrInvalidMarket)
	}
	if !validAmount(req.Ante) || req.Ante < e.cfg.MinAnte {
		return fmt.Errorf("ante %v < %v: %w", req.Ante, e.cfg.MinAnte, domain.ErrInvalidMarket)
	}
	if req.P == 0 {
		req.P = 0.5
	}
	if !domain.ValidP(req.P) {
		return fmt.Errorf("p %v: %w", req.P, domain.ErrInvalidMarket)
	}
	if req.Phase == "" {
		req.Phase = e.cfg.DefaultPhase
	}
	if !req.Phase.Valid() {
		return fmt.Errorf("phase %q: %w", req.Phase, domain.ErrInvalidMarket)
	}
	if req.Fees == nil {
		fees := e.cfg.DefaultFees
		req.Fees = &fees
	}
	if err := req.Fees.Validate(); err != nil {
		return err
	}

	switch req.OutcomeType {
	case domain.OutcomeBinary:
		if len(req.Answers) > 0 {
			return fmt.Errorf("binary market with %d answers: %w", len(req.Answers), domain.ErrInvalidMarket)
		}
	case domain.OutcomeMultipleChoice:
		if len(req.Answers) < 2 || len(req.Answers) > e.cfg.MaxAnswers {
			return fmt.Errorf("%d answers, want 2..%d: %w", len(req.Answers), e.cfg.MaxAnswers, domain.ErrInvalidMarket)
		}
		seen := make(map[string]bool, len(req.Answers))
		for i, a := range req.Answers {
			a = strings.TrimSpace(a)
			if a == "" || seen[strings.ToLower(a)] {
				return fmt.Errorf("answer %d %q empty or duplicated: %w", i, a, domain.ErrInvalidMarket)
			}
			seen[strings.ToLower(a)] = true
			req.Answers[i] = a
		}
	default:
		return fmt.Errorf("outcome type %q: %w", req.OutcomeType, domain.ErrInvalidMarket)
	}
	return nil
}

// CreateMarket valida el mercado, cobra el ante al creador y siembra los pools
// con ante × LiquidityMultiplier.
func (e *Engine) CreateMarket(ctx context.Context, req CreateMarketRequest) (domain.Contract, error) {
	req.Answers = append([]string(nil), req.Answers...)
	if err := e.validateMarket(&req); err != nil {
		return domain.Contract{}, fmt.Errorf("engine.CreateMarket: %w", err)
	}

	liquidity := req.Ante * e.cfg.LiquidityMultiplier
	c := domain.Contract{
		ID:             e.newID(),
		CreatorID:      req.CreatorID,
		Question:       req.Question,
		Phase:          req.Phase,
		Fees:           *req.Fees,
		TotalLiquidity: liquidity,
	}
	if req.OutcomeType == domain.OutcomeBinary {
		c.Mechanism = domain.MechanismCPMM
		c.Outcomes = &domain.Binary{Pool: domain.SeedBinaryPool(liquidity), P: req.P}
	} else {
		c.Mechanism = domain.MechanismCPMMMulti
		answers := make([]domain.Answer, len(req.Answers))
		for i, text := range req.Answers {
			answers[i] = domain.Answer{
				ID:    e.newID(),
				Text:  text,
				Index: i,
				Pool:  domain.SeedAnswerPool(liquidity, len(req.Answers), req.ShouldAnswersSumToOne),
				P:     0.5,
			}
		}
		c.Outcomes = &domain.MultipleChoice{Answers: answers, ShouldAnswersSumToOne: req.ShouldAnswersSumToOne}
	}

	u := e.begin(ctx, &c)
	c.CreatedAt = u.now
	if _, err := u.requireBalance(req.CreatorID, req.Ante); err != nil {
		return domain.Contract{}, fmt.Errorf("engine.CreateMarket: %w", err)
	}
	if err := u.credit(req.CreatorID, -req.Ante); err != nil {
		return domain.Contract{}, fmt.Errorf("engine.CreateMarket: %w", err)
	}
	u.pricePoints()
	if err := u.commit(); err != nil {
		return domain.Contract{}, fmt.Errorf("engine.CreateMarket: commit: %w", err)
	}

	slog.Info("engine: market created",
		"market", c.ID,
		"creator", c.CreatorID,
		"type", c.OutcomeType(),
		"phase", c.Phase,
		"ante", fmt.Sprintf("$%.2f", req.Ante),
		"liquidity", fmt.Sprintf("$%.2f", liquidity),
	)
	return c, nil
}

// AdvancePhase mueve el mercado a una fase posterior. Solo el creador.
func (e *Engine) AdvancePhase(ctx context.Context, contractID, userID string, next domain.Phase) (domain.Contract, error) {
	var out domain.Contract
	err := e.withMarket(ctx, "AdvancePhase", contractID, func(u *uow) error {
		c := u.market
		if c.CreatorID != userID {
			return fmt.Errorf("user %s is not the creator of %s: %w", userID, c.ID, domain.ErrUnauthorized)
		}
		if c.IsResolved() {
			return fmt.Errorf("market %s: %w", c.ID, domain.ErrMarketResolved)
		}
		if !c.Phase.CanAdvanceTo(next) {
			return fmt.Errorf("%s → %s: %w", c.Phase, next, domain.ErrInvalidPhaseTransition)
		}
		c.Phase = next
		out = c.Clone()
		return nil
	})
	if err != nil {
		return domain.Contract{}, err
	}
	slog.Info("engine: phase advanced", "market", contractID, "phase", next)
	return out, nil
}

// AddLiquidity deposita amount en el pool (o en el de answerID) sin mover la
// probabilidad.
func (e *Engine) AddLiquidity(ctx context.Context, contractID, userID, answerID string, amount float64) (domain.Contract, error) {
	if !validAmount(amount) {
		return domain.Contract{}, fmt.Errorf("engine.AddLiquidity: amount %v: %w", amount, domain.ErrInvalidAmount)
	}
	var out domain.Contract
	err := e.withMarket(ctx, "AddLiquidity", contractID, func(u *uow) error {
		c := u.market
		if err := c.CheckTradable(answerID); err != nil {
			return err
		}
		pool, _, err := c.PoolFor(answerID)
		if err != nil {
			return err
		}
		if _, err := u.requireBalance(userID, amount); err != nil {
			return err
		}
		*pool = domain.AddLiquidity(*pool, amount)
		c.TotalLiquidity += amount
		if err := u.credit(userID, -amount); err != nil {
			return err
		}
		out = c.Clone()
		return nil
	})
	if err != nil {
		return domain.Contract{}, err
	}
	slog.Info("engine: liquidity added", "market", contractID, "answer", answerID, "user", userID, "amount", fmt.Sprintf("$%.2f", amount))
	return out, nil
}

// RedeemShares canjea explícitamente los pares YES+NO de una posición. Sin
// pares es un no-op.
func (e *Engine) RedeemShares(ctx context.Context, contractID, userID, answerID string) (RedeemResult, error) {
	var out RedeemResult
	err := e.withMarket(ctx, "RedeemShares", contractID, func(u *uow) error {
		if _, _, err := u.market.PoolFor(answerID); err != nil {
			return err
		}
		usr, err := u.user(userID)
		if err != nil {
			return err
		}
		out.Pairs = u.redeem(userID, answerID)
		out.NewBalance = usr.Balance
		if out.Pairs == 0 {
			u.batch = ports.Batch{}
		}
		return nil
	})
	if err != nil {
		return RedeemResult{}, err
	}
	return out, nil
}

// ImportMarket registra un mercado ya existente fuera del engine (p. ej. una
// cuenta on-chain) con sus pools tal cual. No cobra ante; el creador se da de
// alta con el saldo inicial si no existía.
func (e *Engine) ImportMarket(ctx context.Context, c domain.Contract) (domain.Contract, error) {
	if c.ID == "" || c.Outcomes == nil {
		return domain.Contract{}, fmt.Errorf("engine.ImportMarket: %w", domain.ErrInvalidMarket)
	}
	if err := c.Fees.Validate(); err != nil {
		return domain.Contract{}, fmt.Errorf("engine.ImportMarket: %w", err)
	}
	unlock, err := e.locker.Lock(ctx, "market:"+c.ID)
	if err != nil {
		return domain.Contract{}, fmt.Errorf("engine.ImportMarket: lock: %w", err)
	}
	defer unlock()

	if _, err := e.store.GetMarket(ctx, c.ID); err == nil {
		return domain.Contract{}, fmt.Errorf("engine.ImportMarket: market %s already exists: %w", c.ID, domain.ErrInvalidMarket)
	} else if !errors.Is(err, domain.ErrMarketNotFound) {
		return domain.Contract{}, fmt.Errorf("engine.ImportMarket: %w", err)
	}

	c = c.Clone()
	if !c.Phase.Valid() {
		c.Phase = e.cfg.DefaultPhase
	}
	u := e.begin(ctx, &c)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = u.now
	}
	if _, err := u.user(c.CreatorID); err != nil {
		return domain.Contract{}, fmt.Errorf("engine.ImportMarket: %w", err)
	}
	u.pricePoints()
	if err := u.commit(); err != nil {
		return domain.Contract{}, fmt.Errorf("engine.ImportMarket: commit: %w", err)
	}
	slog.Info("engine: market imported", "market", c.ID, "type", c.OutcomeType(), "resolved", c.IsResolved())
	return c, nil
}
