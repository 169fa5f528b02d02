package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/likeli/internal/adapters/notify"
	"github.com/alejandrodnm/likeli/internal/application/engine"
	"github.com/alejandrodnm/likeli/internal/domain"
)

// runDemo ejecuta cuatro escenarios de punta a punta e imprime los recibos:
// compra binaria, arbitraje sum-to-one, orden límite que se ejecuta al volver
// el precio y canje de pares YES+NO.
func runDemo(ctx context.Context, eng *engine.Engine, out *notify.Console) error {
	slog.Info("=== DEMO MODE ===")

	var created []string

	// A: compra simple en un binario
	a, err := eng.CreateMarket(ctx, engine.CreateMarketRequest{
		CreatorID:   "alice",
		Question:    "Will it rain in Madrid tomorrow?",
		OutcomeType: domain.OutcomeBinary,
		Ante:        100,
	})
	if err != nil {
		return fmt.Errorf("demo A: %w", err)
	}
	created = append(created, a.ID)
	res, err := eng.PlaceBet(ctx, engine.PlaceBetRequest{ContractID: a.ID, UserID: "bob", Outcome: domain.YES, Amount: 100})
	if err != nil {
		return fmt.Errorf("demo A: %w", err)
	}
	printStep(ctx, out, "A: binary buy", res.Route, res.ProbBefore, res.ProbAfter, res)

	// B: sum-to-one, el resto de respuestas se ajusta
	b, err := eng.CreateMarket(ctx, engine.CreateMarketRequest{
		CreatorID:             "alice",
		Question:              "Who wins the league?",
		OutcomeType:           domain.OutcomeMultipleChoice,
		Ante:                  100,
		Answers:               []string{"Red", "Blue", "Green"},
		ShouldAnswersSumToOne: true,
	})
	if err != nil {
		return fmt.Errorf("demo B: %w", err)
	}
	created = append(created, b.ID)
	mc, _ := b.MultipleChoice()
	res, err = eng.PlaceBet(ctx, engine.PlaceBetRequest{ContractID: b.ID, UserID: "carol", AnswerID: mc.Answers[0].ID, Outcome: domain.YES, Amount: 50})
	if err != nil {
		return fmt.Errorf("demo B: %w", err)
	}
	printStep(ctx, out, "B: sum-to-one buy", res.Route, res.ProbBefore, res.ProbAfter, res)

	// C: la orden de lena se ejecuta cuando bob vende y la prob vuelve a 0.40
	c, err := eng.CreateMarket(ctx, engine.CreateMarketRequest{
		CreatorID:   "alice",
		Question:    "Will the bill pass this year?",
		OutcomeType: domain.OutcomeBinary,
		Ante:        100,
	})
	if err != nil {
		return fmt.Errorf("demo C: %w", err)
	}
	created = append(created, c.ID)
	order, err := eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{ContractID: c.ID, UserID: "lena", Outcome: domain.YES, Amount: 10, LimitProb: 0.40})
	if err != nil {
		return fmt.Errorf("demo C: %w", err)
	}
	steps := []engine.PlaceBetRequest{
		{ContractID: c.ID, UserID: "bob", Outcome: domain.YES, Amount: 500},
		{ContractID: c.ID, UserID: "carol", Outcome: domain.NO, Amount: 600},
	}
	for _, req := range steps {
		if _, err := eng.PlaceBet(ctx, req); err != nil {
			return fmt.Errorf("demo C: %w", err)
		}
	}
	sell, err := eng.SellShares(ctx, engine.SellRequest{ContractID: c.ID, UserID: "bob", Outcome: domain.YES})
	if err != nil {
		return fmt.Errorf("demo C: %w", err)
	}
	fmt.Printf("\n[C: limit order] sell payout $%.2f  prob %.4f → %.4f\n", sell.Payout, sell.ProbBefore, sell.ProbAfter)
	_ = out.Receipt(ctx, sell.Bets)
	slog.Info("demo: limit order", "order", order.ID)

	// D: YES y luego NO en el mismo pool → canje de pares
	d, err := eng.CreateMarket(ctx, engine.CreateMarketRequest{
		CreatorID:   "alice",
		Question:    "Will the launch slip to next quarter?",
		OutcomeType: domain.OutcomeBinary,
		Phase:       domain.PhaseSandbox,
		Ante:        100,
	})
	if err != nil {
		return fmt.Errorf("demo D: %w", err)
	}
	created = append(created, d.ID)
	if _, err := eng.PlaceBet(ctx, engine.PlaceBetRequest{ContractID: d.ID, UserID: "dave", Outcome: domain.YES, Amount: 50}); err != nil {
		return fmt.Errorf("demo D: %w", err)
	}
	res, err = eng.PlaceBet(ctx, engine.PlaceBetRequest{ContractID: d.ID, UserID: "dave", Outcome: domain.NO, Amount: 50})
	if err != nil {
		return fmt.Errorf("demo D: %w", err)
	}
	printStep(ctx, out, fmt.Sprintf("D: redemption (%.2f pairs)", res.Redeemed), res.Route, res.ProbBefore, res.ProbAfter, res)

	markets := make([]domain.Contract, 0, len(created))
	for _, id := range created {
		m, err := eng.GetMarket(ctx, id)
		if err != nil {
			return err
		}
		markets = append(markets, m)
	}
	return out.Markets(ctx, markets)
}

func printStep(ctx context.Context, out *notify.Console, title string, route engine.Route, before, after float64, res engine.BetResult) {
	fmt.Printf("\n[%s] route=%s prob %.4f → %.4f  shares %.2f  balance $%.2f\n",
		title, route, before, after, res.Shares, res.NewBalance)
	if err := out.Receipt(ctx, res.Bets); err != nil {
		slog.Warn("receipt failed", "err", err)
	}
}
