package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/likeli/internal/adapters/lock"
	"github.com/alejandrodnm/likeli/internal/adapters/storage"
	"github.com/alejandrodnm/likeli/internal/application/engine"
	"github.com/alejandrodnm/likeli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	eng   *engine.Engine
	store *storage.MemoryStorage
	clock time.Time
}

func newHarness(t *testing.T, cfg engine.Config) *harness {
	t.Helper()
	h := &harness{store: storage.NewMemoryStorage(), clock: t0}
	var (
		mu sync.Mutex
		n  int
	)
	h.eng = engine.New(h.store, lock.NewLocal(), cfg,
		engine.WithClock(func() time.Time { return h.clock }),
		engine.WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
	return h
}

func (h *harness) binary(t *testing.T, req engine.CreateMarketRequest) domain.Contract {
	t.Helper()
	if req.CreatorID == "" {
		req.CreatorID = "creator"
	}
	if req.Question == "" {
		req.Question = "Will it rain tomorrow?"
	}
	if req.Ante == 0 {
		req.Ante = 100
	}
	req.OutcomeType = domain.OutcomeBinary
	c, err := h.eng.CreateMarket(context.Background(), req)
	require.NoError(t, err)
	return c
}

func (h *harness) multi(t *testing.T, sumToOne bool, answers ...string) domain.Contract {
	t.Helper()
	c, err := h.eng.CreateMarket(context.Background(), engine.CreateMarketRequest{
		CreatorID:             "creator",
		Question:              "Who wins the league?",
		OutcomeType:           domain.OutcomeMultipleChoice,
		Ante:                  100,
		Answers:               answers,
		ShouldAnswersSumToOne: sumToOne,
	})
	require.NoError(t, err)
	return c
}

func (h *harness) market(t *testing.T, id string) domain.Contract {
	t.Helper()
	c, err := h.store.GetMarket(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (h *harness) balance(t *testing.T, userID string) float64 {
	t.Helper()
	b, err := h.eng.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (h *harness) metric(t *testing.T, userID, contractID, answerID string) domain.ContractMetric {
	t.Helper()
	m, err := h.store.GetMetric(context.Background(), domain.MetricKey{UserID: userID, ContractID: contractID, AnswerID: answerID})
	require.NoError(t, err)
	return m
}

func (h *harness) bet(t *testing.T, contractID, userID, answerID string, o domain.Outcome, amount float64) engine.BetResult {
	t.Helper()
	res, err := h.eng.PlaceBet(context.Background(), engine.PlaceBetRequest{
		ContractID: contractID,
		UserID:     userID,
		AnswerID:   answerID,
		Outcome:    o,
		Amount:     amount,
	})
	require.NoError(t, err)
	return res
}

func prob(t *testing.T, c domain.Contract, answerID string) float64 {
	t.Helper()
	p, err := c.Probability(answerID)
	require.NoError(t, err)
	return p
}

func answerIDs(t *testing.T, c domain.Contract) []string {
	t.Helper()
	m, ok := c.MultipleChoice()
	require.True(t, ok)
	ids := make([]string, len(m.Answers))
	for i, a := range m.Answers {
		ids[i] = a.ID
	}
	return ids
}

// --- markets ---

func TestCreateMarket_Binary(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{})

	b, ok := c.Binary()
	require.True(t, ok)
	assert.InDelta(t, 2500, b.Pool.YES, 1e-9)
	assert.InDelta(t, 2500, b.Pool.NO, 1e-9)
	assert.InDelta(t, 0.5, prob(t, c, ""), 1e-12)
	assert.Equal(t, domain.PhaseMain, c.Phase)
	assert.Equal(t, domain.MechanismCPMM, c.Mechanism)
	assert.InDelta(t, 900, h.balance(t, "creator"), 1e-9)

	points, err := h.eng.GetPriceHistory(context.Background(), c.ID, "")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 0.5, points[0].Probability, 1e-12)
}

func TestCreateMarket_SumToOneSeedsEvenly(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.multi(t, true, "Red", "Blue", "Green")

	for _, id := range answerIDs(t, c) {
		assert.InDelta(t, 1.0/3, prob(t, c, id), 1e-9)
	}
}

func TestCreateMarket_Validation(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()

	cases := map[string]engine.CreateMarketRequest{
		"empty question":  {CreatorID: "c", Question: "   ", OutcomeType: domain.OutcomeBinary, Ante: 100},
		"small ante":      {CreatorID: "c", Question: "Q?", OutcomeType: domain.OutcomeBinary, Ante: 10},
		"one answer":      {CreatorID: "c", Question: "Q?", OutcomeType: domain.OutcomeMultipleChoice, Ante: 100, Answers: []string{"A"}},
		"dup answers":     {CreatorID: "c", Question: "Q?", OutcomeType: domain.OutcomeMultipleChoice, Ante: 100, Answers: []string{"A", " a "}},
		"binary answers":  {CreatorID: "c", Question: "Q?", OutcomeType: domain.OutcomeBinary, Ante: 100, Answers: []string{"A", "B"}},
		"bad p":           {CreatorID: "c", Question: "Q?", OutcomeType: domain.OutcomeBinary, Ante: 100, P: 1.5},
		"bad outcome":     {CreatorID: "c", Question: "Q?", OutcomeType: "NUMERIC", Ante: 100},
		"long question":   {CreatorID: "c", Question: string(make([]rune, 201)), OutcomeType: domain.OutcomeBinary, Ante: 100},
		"fees above 10pc": {CreatorID: "c", Question: "Q?", OutcomeType: domain.OutcomeBinary, Ante: 100, Fees: &domain.FeeSchedule{PlatformBps: 1200}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.eng.CreateMarket(ctx, req)
			assert.Error(t, err)
		})
	}

	_, err := h.eng.CreateMarket(ctx, engine.CreateMarketRequest{CreatorID: "c", Question: "Q?", OutcomeType: domain.OutcomeBinary, Ante: 2000})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

// --- trades ---

func TestPlaceBet_ScenarioA(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{})

	res := h.bet(t, c.ID, "alice", "", domain.YES, 100)

	assert.Equal(t, engine.RouteMatcher, res.Route)
	assert.InDelta(t, 196.1538, res.Shares, 1e-3)
	assert.Less(t, res.Shares, 200.0)
	assert.InDelta(t, 0.5, res.ProbBefore, 1e-12)
	assert.Greater(t, res.ProbAfter, 0.5)
	assert.InDelta(t, 900, res.NewBalance, 1e-9)
	assert.InDelta(t, 900, h.balance(t, "alice"), 1e-9)

	m := h.metric(t, "alice", c.ID, "")
	assert.InDelta(t, res.Shares, m.YesShares, 1e-9)
	assert.InDelta(t, 100, m.Invested, 1e-9)

	after := h.market(t, c.ID)
	assert.InDelta(t, res.ProbAfter, prob(t, after, ""), 1e-12)
	assert.InDelta(t, 100, after.Volume, 1e-9)
	assert.Contains(t, after.UniqueBettorIDs, "alice")

	// bonus de nuevo apostante para el creador
	assert.InDelta(t, 905, h.balance(t, "creator"), 1e-9)
}

func TestPlaceBet_BettorBonusOnlyOnce(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{})

	h.bet(t, c.ID, "alice", "", domain.YES, 10)
	h.bet(t, c.ID, "alice", "", domain.YES, 10)
	h.bet(t, c.ID, "creator", "", domain.NO, 10)

	assert.InDelta(t, 900+5-10, h.balance(t, "creator"), 1e-9)
	u, err := h.store.GetUser(context.Background(), "creator")
	require.NoError(t, err)
	assert.InDelta(t, 5, u.BonusEarned, 1e-9)
}

func TestPlaceBet_CreatorFee(t *testing.T) {
	h := newHarness(t, engine.Config{UniqueBettorBonus: -1})
	c := h.binary(t, engine.CreateMarketRequest{Fees: &domain.FeeSchedule{CreatorBps: 100, PlatformBps: 50}})

	res := h.bet(t, c.ID, "alice", "", domain.YES, 100)

	assert.InDelta(t, 1, res.Fees.Creator, 1e-9)
	assert.InDelta(t, 0.5, res.Fees.Platform, 1e-9)
	assert.InDelta(t, 901, h.balance(t, "creator"), 1e-9)
	assert.InDelta(t, 900, h.balance(t, "alice"), 1e-9)

	after := h.market(t, c.ID)
	assert.InDelta(t, 1.5, after.CollectedFees.Total(), 1e-9)
}

func TestPlaceBet_ScenarioB(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.multi(t, true, "Red", "Blue", "Green")
	ids := answerIDs(t, c)

	res := h.bet(t, c.ID, "alice", ids[1], domain.YES, 300)
	assert.Equal(t, engine.RouteArbitrage, res.Route)
	assert.Greater(t, res.Shares, 0.0)
	assert.InDelta(t, 700, h.balance(t, "alice"), 1e-6)

	after := h.market(t, c.ID)
	m, _ := after.MultipleChoice()
	assert.InDelta(t, 1.0, m.ProbabilitySum(), 1e-2)
	assert.Greater(t, prob(t, after, ids[1]), 1.0/3)
	assert.Less(t, prob(t, after, ids[0]), 1.0/3)
	assert.Less(t, prob(t, after, ids[2]), 1.0/3)

	// las hermanas quedan sin posición; el principal recoge todas las shares
	assert.InDelta(t, res.Shares, h.metric(t, "alice", c.ID, ids[1]).YesShares, 1e-6)
	assert.InDelta(t, 0, h.metric(t, "alice", c.ID, ids[0]).NoShares, 1e-6)
	assert.InDelta(t, 0, h.metric(t, "alice", c.ID, ids[2]).NoShares, 1e-6)
}

func TestPlaceBet_IndependentAnswersUseMatcher(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.multi(t, false, "Rust", "Go")
	ids := answerIDs(t, c)

	res := h.bet(t, c.ID, "alice", ids[0], domain.YES, 50)
	assert.Equal(t, engine.RouteMatcher, res.Route)
	assert.Equal(t, ids[0], res.Bets[0].AnswerID)

	after := h.market(t, c.ID)
	assert.Greater(t, prob(t, after, ids[0]), 0.5)
	assert.InDelta(t, 0.5, prob(t, after, ids[1]), 1e-12)
}

func TestPlaceBet_ScenarioD_RedeemsPairs(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{})

	first := h.bet(t, c.ID, "alice", "", domain.YES, 100)
	assert.Zero(t, first.Redeemed)

	second := h.bet(t, c.ID, "alice", "", domain.NO, 100)
	assert.Greater(t, second.Redeemed, 0.0)

	m := h.metric(t, "alice", c.ID, "")
	assert.InDelta(t, 0, m.Redeemable(), 1e-9)
	assert.True(t, m.YesShares < 1e-9 || m.NoShares < 1e-9)
	assert.InDelta(t, 800+second.Redeemed, h.balance(t, "alice"), 1e-6)
	assert.InDelta(t, second.NewBalance, h.balance(t, "alice"), 1e-9)
}

func TestPlaceBet_Errors(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{})
	ctx := context.Background()

	_, err := h.eng.PlaceBet(ctx, engine.PlaceBetRequest{ContractID: c.ID, UserID: "alice", Outcome: domain.YES, Amount: 5000})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = h.eng.PlaceBet(ctx, engine.PlaceBetRequest{ContractID: c.ID, UserID: "alice", Outcome: domain.YES, Amount: -3})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.eng.PlaceBet(ctx, engine.PlaceBetRequest{ContractID: "nope", UserID: "alice", Outcome: domain.YES, Amount: 10})
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)

	_, err = h.eng.PlaceBet(ctx, engine.PlaceBetRequest{ContractID: c.ID, UserID: "alice", AnswerID: "x", Outcome: domain.YES, Amount: 10})
	assert.ErrorIs(t, err, domain.ErrAnswerNotFound)

	_, err = h.eng.PlaceBet(ctx, engine.PlaceBetRequest{ContractID: c.ID, UserID: "alice", Outcome: domain.YES, Amount: 100, MinShares: 500})
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)

	// los fallos no dejan rastro
	after := h.market(t, c.ID)
	assert.InDelta(t, 0.5, prob(t, after, ""), 1e-12)
	assert.Zero(t, after.Volume)
}

func TestPlaceBet_SandboxUsesPool(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{Phase: domain.PhaseSandbox})

	res := h.bet(t, c.ID, "alice", "", domain.NO, 40)
	assert.Equal(t, engine.RoutePool, res.Route)
	assert.Less(t, res.ProbAfter, 0.5)
}

func TestPlaceBet_ConcurrentTradesAreSerialized(t *testing.T) {
	h := newHarness(t, engine.Config{UniqueBettorBonus: -1})
	c := h.binary(t, engine.CreateMarketRequest{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := domain.YES
			if i%2 == 1 {
				o = domain.NO
			}
			_, err := h.eng.PlaceBet(context.Background(), engine.PlaceBetRequest{
				ContractID: c.ID,
				UserID:     fmt.Sprintf("user-%d", i),
				Outcome:    o,
				Amount:     10,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	after := h.market(t, c.ID)
	assert.InDelta(t, 100, after.Volume, 1e-9)
	bets, err := h.store.ListBets(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, bets, 10)
}

func TestQuoteBet_IsPure(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{})
	req := engine.PlaceBetRequest{ContractID: c.ID, UserID: "alice", Outcome: domain.YES, Amount: 100}

	q, err := h.eng.QuoteBet(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, engine.RouteMatcher, q.Route)
	assert.InDelta(t, 0.5, prob(t, h.market(t, c.ID), ""), 1e-12)
	_, err = h.store.GetUser(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	res := h.bet(t, c.ID, "alice", "", domain.YES, 100)
	assert.InDelta(t, q.Shares, res.Shares, 1e-9)
	assert.InDelta(t, q.ProbAfter, res.ProbAfter, 1e-12)
}

func TestSellShares_WholePosition(t *testing.T) {
	h := newHarness(t, engine.Config{UniqueBettorBonus: -1})
	c := h.binary(t, engine.CreateMarketRequest{})
	ctx := context.Background()

	buy := h.bet(t, c.ID, "alice", "", domain.YES, 100)

	_, err := h.eng.SellShares(ctx, engine.SellRequest{ContractID: c.ID, UserID: "alice", Outcome: domain.YES, Shares: buy.Shares + 1})
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
	_, err = h.eng.SellShares(ctx, engine.SellRequest{ContractID: c.ID, UserID: "alice", Outcome: domain.NO})
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	sell, err := h.eng.SellShares(ctx, engine.SellRequest{ContractID: c.ID, UserID: "alice", Outcome: domain.YES})
	require.NoError(t, err)

	assert.Equal(t, engine.RouteMatcher, sell.Route)
	assert.InDelta(t, buy.Shares, sell.Shares, 1e-9)
	assert.InDelta(t, 100, sell.Payout, 1e-6)
	assert.InDelta(t, 1000, h.balance(t, "alice"), 1e-6)
	assert.InDelta(t, 0.5, sell.ProbAfter, 1e-9)
	assert.InDelta(t, 0, h.metric(t, "alice", c.ID, "").YesShares, 1e-9)
}

func TestSellShares_SumToOne(t *testing.T) {
	h := newHarness(t, engine.Config{UniqueBettorBonus: -1})
	c := h.multi(t, true, "Red", "Blue", "Green")
	ids := answerIDs(t, c)

	buy := h.bet(t, c.ID, "alice", ids[0], domain.YES, 200)
	sell, err := h.eng.SellShares(context.Background(), engine.SellRequest{ContractID: c.ID, UserID: "alice", AnswerID: ids[0], Outcome: domain.YES, Shares: buy.Shares})
	require.NoError(t, err)

	assert.Equal(t, engine.RouteArbitrage, sell.Route)
	assert.InDelta(t, 200, sell.Payout, 10)
	mc := h.market(t, c.ID)
	m, _ := mc.MultipleChoice()
	assert.InDelta(t, 1.0, m.ProbabilitySum(), 1e-2)
}

// --- limit orders ---

func TestLimitOrder_ScenarioC(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{})
	ctx := context.Background()

	order, err := h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{
		ContractID: c.ID, UserID: "lena", Outcome: domain.YES, Amount: 10, LimitProb: 0.40,
	})
	require.NoError(t, err)
	assert.True(t, order.IsOpen())
	assert.Zero(t, order.Amount)
	assert.InDelta(t, 990, h.balance(t, "lena"), 1e-9)

	buy := h.bet(t, c.ID, "bob", "", domain.YES, 500)
	assert.InDelta(t, 916.6667, buy.Shares, 1e-3)

	// el NO de carol no llega a 0.40: la orden sigue intacta
	no := h.bet(t, c.ID, "carol", "", domain.NO, 600)
	assert.InDelta(t, 0.4647, no.ProbAfter, 1e-3)
	resting, err := h.store.GetBet(ctx, order.ID)
	require.NoError(t, err)
	assert.Zero(t, resting.Amount)

	// la venta casa contra la orden a 0.40: 25 shares de lena cubren 25 de bob
	sell, err := h.eng.SellShares(ctx, engine.SellRequest{ContractID: c.ID, UserID: "bob", Outcome: domain.YES})
	require.NoError(t, err)
	assert.Equal(t, engine.RouteMatcher, sell.Route)
	assert.InDelta(t, 0.3791, sell.ProbAfter, 1e-3)
	assert.InDelta(t, 385.66, sell.Payout, 0.05)

	var matched bool
	for _, f := range sell.Bets[0].Fills {
		if f.MatchedBetID == order.ID {
			matched = true
			assert.InDelta(t, -25, f.Shares, 1e-6)
			assert.InDelta(t, -10, f.Amount, 1e-6) // 25 × 0.40
		}
	}
	assert.True(t, matched)

	filled, err := h.store.GetBet(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, filled.IsFilled)
	assert.InDelta(t, 10, filled.Amount, 1e-6)
	assert.InDelta(t, 25, filled.Shares, 1e-6)

	m := h.metric(t, "lena", c.ID, "")
	assert.InDelta(t, filled.Shares, m.YesShares, 1e-9)
	assert.InDelta(t, 990, h.balance(t, "lena"), 1e-9)
	assert.InDelta(t, 0, h.metric(t, "bob", c.ID, "").YesShares, 1e-9)

	after := h.market(t, c.ID)
	assert.InDelta(t, sell.ProbAfter, prob(t, after, ""), 1e-12)
	assert.Less(t, sell.ProbAfter, 0.40)
}

func TestSellShares_RestingOrderImprovesPayout(t *testing.T) {
	sellAll := func(t *testing.T, withOrder bool) (engine.SellResult, *harness, string) {
		h := newHarness(t, engine.Config{UniqueBettorBonus: -1})
		c := h.binary(t, engine.CreateMarketRequest{})
		ctx := context.Background()

		h.bet(t, c.ID, "bob", "", domain.YES, 500)
		var orderID string
		if withOrder {
			// prob ≈ 0.59: la orden a 0.58 queda en el libro
			order, err := h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{
				ContractID: c.ID, UserID: "lena", Outcome: domain.YES, Amount: 200, LimitProb: 0.58,
			})
			require.NoError(t, err)
			require.Zero(t, order.Amount)
			orderID = order.ID
		}
		sell, err := h.eng.SellShares(ctx, engine.SellRequest{ContractID: c.ID, UserID: "bob", Outcome: domain.YES})
		require.NoError(t, err)
		return sell, h, orderID
	}

	poolOnly, _, _ := sellAll(t, false)
	assert.InDelta(t, 500, poolOnly.Payout, 1e-6)

	sell, h, orderID := sellAll(t, true)
	assert.Equal(t, engine.RouteMatcher, sell.Route)
	assert.InDelta(t, 521.64, sell.Payout, 0.05)
	assert.Greater(t, sell.Payout, poolOnly.Payout+20)
	assert.InDelta(t, 1000-500+sell.Payout, h.balance(t, "bob"), 1e-6)

	order, err := h.store.GetBet(context.Background(), orderID)
	require.NoError(t, err)
	assert.True(t, order.IsFilled)
	assert.InDelta(t, 200/0.58, order.Shares, 1e-6)
	assert.InDelta(t, 200/0.58, h.metric(t, "lena", order.ContractID, "").YesShares, 1e-6)
}

func TestSellShares_MinPayoutThroughMatcher(t *testing.T) {
	h := newHarness(t, engine.Config{UniqueBettorBonus: -1})
	c := h.binary(t, engine.CreateMarketRequest{})
	ctx := context.Background()

	buy := h.bet(t, c.ID, "alice", "", domain.YES, 100)
	_, err := h.eng.SellShares(ctx, engine.SellRequest{ContractID: c.ID, UserID: "alice", Outcome: domain.YES, MinPayout: 100.5})
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)
	assert.InDelta(t, buy.Shares, h.metric(t, "alice", c.ID, "").YesShares, 1e-9)
	assert.InDelta(t, 900, h.balance(t, "alice"), 1e-9)
}

func TestLimitOrder_FillsImmediatelyUpToLimit(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{})

	order, err := h.eng.PlaceLimitOrder(context.Background(), engine.LimitOrderRequest{
		ContractID: c.ID, UserID: "lena", Outcome: domain.YES, Amount: 500, LimitProb: 0.55,
	})
	require.NoError(t, err)

	assert.Greater(t, order.Amount, 0.0)
	assert.Less(t, order.Amount, 500.0)
	assert.True(t, order.IsOpen())
	assert.InDelta(t, 0.55, prob(t, h.market(t, c.ID), ""), 1e-6)
	assert.InDelta(t, 500, h.balance(t, "lena"), 1e-9)
}

func TestLimitOrder_MatchesMaker(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{})
	ctx := context.Background()

	maker, err := h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{
		ContractID: c.ID, UserID: "maker", Outcome: domain.NO, Amount: 40, LimitProb: 0.60,
	})
	require.NoError(t, err)
	assert.Zero(t, maker.Amount)

	// ~$562 llevan el pool a 0.60, el resto casa contra el maker
	res := h.bet(t, c.ID, "taker", "", domain.YES, 700)
	require.NotEmpty(t, res.Bets)

	var matched bool
	for _, f := range res.Bets[0].Fills {
		if f.MatchedBetID == maker.ID {
			matched = true
		}
	}
	assert.True(t, matched)

	got, err := h.store.GetBet(ctx, maker.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFilled)
	assert.InDelta(t, 100, got.Shares, 1e-6) // 40 / (1 - 0.60)
	assert.InDelta(t, 100, h.metric(t, "maker", c.ID, "").NoShares, 1e-6)
}

func TestLimitOrder_Errors(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()
	mc := h.multi(t, true, "A", "B")
	sandbox := h.binary(t, engine.CreateMarketRequest{Phase: domain.PhaseSandbox})
	c := h.binary(t, engine.CreateMarketRequest{})

	_, err := h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{ContractID: mc.ID, UserID: "u", AnswerID: answerIDs(t, mc)[0], Outcome: domain.YES, Amount: 10, LimitProb: 0.3})
	assert.ErrorIs(t, err, domain.ErrLimitOrdersUnsupported)

	_, err = h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{ContractID: c.ID, UserID: "u", AnswerID: "x", Outcome: domain.YES, Amount: 10, LimitProb: 0.3})
	assert.ErrorIs(t, err, domain.ErrAnswerNotFound)

	_, err = h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{ContractID: sandbox.ID, UserID: "u", Outcome: domain.YES, Amount: 10, LimitProb: 0.3})
	assert.ErrorIs(t, err, domain.ErrPhaseNotMain)

	_, err = h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{ContractID: c.ID, UserID: "u", Outcome: domain.YES, Amount: 10, LimitProb: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidProbability)

	past := t0.Add(-time.Minute)
	_, err = h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{ContractID: c.ID, UserID: "u", Outcome: domain.YES, Amount: 10, LimitProb: 0.3, ExpiresAt: &past})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{ContractID: c.ID, UserID: "u", Outcome: domain.YES, Amount: 5000, LimitProb: 0.3})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestCancelOrder(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{})
	ctx := context.Background()

	order, err := h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{
		ContractID: c.ID, UserID: "lena", Outcome: domain.YES, Amount: 25, LimitProb: 0.30,
	})
	require.NoError(t, err)

	_, err = h.eng.CancelOrder(ctx, order.ID, "mallory")
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	res, err := h.eng.CancelOrder(ctx, order.ID, "lena")
	require.NoError(t, err)
	assert.InDelta(t, 25, res.Refund, 1e-9)
	assert.True(t, res.Order.IsCancelled)
	assert.InDelta(t, 1000, h.balance(t, "lena"), 1e-9)

	_, err = h.eng.CancelOrder(ctx, order.ID, "lena")
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)

	_, err = h.eng.CancelOrder(ctx, "nope", "lena")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	open, err := h.store.ListOpenOrders(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestExpireOrders_Idempotent(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{})
	h.multi(t, true, "A", "B")
	ctx := context.Background()

	exp := t0.Add(time.Hour)
	_, err := h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{
		ContractID: c.ID, UserID: "lena", Outcome: domain.YES, Amount: 10, LimitProb: 0.30, ExpiresAt: &exp,
	})
	require.NoError(t, err)
	_, err = h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{
		ContractID: c.ID, UserID: "lena", Outcome: domain.NO, Amount: 10, LimitProb: 0.80,
	})
	require.NoError(t, err)

	res, err := h.eng.ExpireOrders(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Expired)

	h.clock = t0.Add(2 * time.Hour)
	res, err = h.eng.ExpireOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.InDelta(t, 10, res.Refunded, 1e-9)
	assert.InDelta(t, 990, h.balance(t, "lena"), 1e-9)

	res, err = h.eng.ExpireOrders(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Expired)
	assert.InDelta(t, 990, h.balance(t, "lena"), 1e-9)

	open, err := h.store.ListOpenOrders(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestFundsOnFill_DebitsOnExecution(t *testing.T) {
	h := newHarness(t, engine.Config{FundsOnFill: true})
	c := h.binary(t, engine.CreateMarketRequest{})
	ctx := context.Background()

	order, err := h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{
		ContractID: c.ID, UserID: "maker", Outcome: domain.NO, Amount: 40, LimitProb: 0.60,
	})
	require.NoError(t, err)
	assert.False(t, order.FundsReserved)
	assert.InDelta(t, 1000, h.balance(t, "maker"), 1e-9)

	h.bet(t, c.ID, "taker", "", domain.YES, 700)

	got, err := h.store.GetBet(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFilled)
	assert.InDelta(t, 960, h.balance(t, "maker"), 1e-6)
}

func TestLimitOrder_MakerPairsRedeemed(t *testing.T) {
	h := newHarness(t, engine.Config{UniqueBettorBonus: -1})
	c := h.binary(t, engine.CreateMarketRequest{})
	ctx := context.Background()

	h.bet(t, c.ID, "mia", "", domain.NO, 100)
	noBefore := h.metric(t, "mia", c.ID, "").NoShares

	// prob ≈ 0.48: la orden YES a 0.45 queda en el libro
	order, err := h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{
		ContractID: c.ID, UserID: "mia", Outcome: domain.YES, Amount: 50, LimitProb: 0.45,
	})
	require.NoError(t, err)
	require.Zero(t, order.Amount)

	h.bet(t, c.ID, "carol", "", domain.NO, 300)

	got, err := h.store.GetBet(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, got.IsFilled)

	yes := 50 / 0.45
	m := h.metric(t, "mia", c.ID, "")
	assert.InDelta(t, 0, m.YesShares, 1e-6)
	assert.InDelta(t, noBefore-yes, m.NoShares, 1e-6)
	assert.InDelta(t, 1000-100-50+yes, h.balance(t, "mia"), 1e-6)
}

func TestLimitOrder_IndependentAnswerBook(t *testing.T) {
	h := newHarness(t, engine.Config{UniqueBettorBonus: -1})
	c := h.multi(t, false, "Rust", "Go")
	ids := answerIDs(t, c)
	ctx := context.Background()

	order, err := h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{
		ContractID: c.ID, UserID: "lena", AnswerID: ids[0], Outcome: domain.YES, Amount: 20, LimitProb: 0.40,
	})
	require.NoError(t, err)
	assert.Equal(t, ids[0], order.AnswerID)
	assert.True(t, order.IsOpen())
	assert.Zero(t, order.Amount)
	assert.InDelta(t, 980, h.balance(t, "lena"), 1e-9)

	// un NO en la otra respuesta no toca este libro
	h.bet(t, c.ID, "carol", ids[1], domain.NO, 800)
	resting, err := h.store.GetBet(ctx, order.ID)
	require.NoError(t, err)
	assert.Zero(t, resting.Amount)

	// ~$562 llevan la respuesta a 0.40, el resto casa contra la orden
	res := h.bet(t, c.ID, "dave", ids[0], domain.NO, 800)
	assert.Equal(t, engine.RouteMatcher, res.Route)
	var matched bool
	for _, f := range res.Bets[0].Fills {
		if f.MatchedBetID == order.ID {
			matched = true
		}
	}
	assert.True(t, matched)
	assert.Less(t, res.ProbAfter, 0.40)

	filled, err := h.store.GetBet(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, filled.IsFilled)
	assert.InDelta(t, 20, filled.Amount, 1e-6)
	assert.InDelta(t, 50, filled.Shares, 1e-6) // 20 / 0.40
	assert.InDelta(t, 50, h.metric(t, "lena", c.ID, ids[0]).YesShares, 1e-6)
	assert.InDelta(t, 0, h.metric(t, "lena", c.ID, ids[1]).YesShares, 1e-9)

	// cancelar en la otra respuesta devuelve lo reservado
	other, err := h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{
		ContractID: c.ID, UserID: "lena", AnswerID: ids[1], Outcome: domain.NO, Amount: 15, LimitProb: 0.70,
	})
	require.NoError(t, err)
	assert.True(t, other.IsOpen())
	open, err := h.store.ListOpenOrders(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, ids[1], open[0].AnswerID)

	cancelled, err := h.eng.CancelOrder(ctx, other.ID, "lena")
	require.NoError(t, err)
	assert.InDelta(t, 15, cancelled.Refund, 1e-9)
	assert.Equal(t, ids[1], cancelled.Order.AnswerID)
	assert.InDelta(t, 980, h.balance(t, "lena"), 1e-9)
}

func TestResolveMarket_CancelsOrdersOfResolvedAnswer(t *testing.T) {
	h := newHarness(t, engine.Config{UniqueBettorBonus: -1})
	c := h.multi(t, false, "Rust", "Go")
	ids := answerIDs(t, c)
	ctx := context.Background()

	for _, id := range ids {
		_, err := h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{
			ContractID: c.ID, UserID: "lena", AnswerID: id, Outcome: domain.YES, Amount: 10, LimitProb: 0.30,
		})
		require.NoError(t, err)
	}
	assert.InDelta(t, 980, h.balance(t, "lena"), 1e-9)

	res, err := h.eng.ResolveMarket(ctx, engine.ResolveRequest{ContractID: c.ID, AnswerID: ids[0], Resolution: domain.ResolutionNo, ResolverID: "creator"})
	require.NoError(t, err)
	assert.InDelta(t, 10, res.Refunded, 1e-9)
	assert.InDelta(t, 990, h.balance(t, "lena"), 1e-9)

	open, err := h.store.ListOpenOrders(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, ids[1], open[0].AnswerID)
}

// --- resolution ---

func TestResolveMarket_Binary(t *testing.T) {
	h := newHarness(t, engine.Config{UniqueBettorBonus: -1})
	c := h.binary(t, engine.CreateMarketRequest{})
	ctx := context.Background()

	yes := h.bet(t, c.ID, "alice", "", domain.YES, 100)
	h.bet(t, c.ID, "bob", "", domain.NO, 100)

	_, err := h.eng.ResolveMarket(ctx, engine.ResolveRequest{ContractID: c.ID, Resolution: domain.ResolutionYes, ResolverID: "alice"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	res, err := h.eng.ResolveMarket(ctx, engine.ResolveRequest{ContractID: c.ID, Resolution: domain.ResolutionYes, ResolverID: "creator"})
	require.NoError(t, err)

	require.Len(t, res.Payouts, 1)
	assert.Equal(t, "alice", res.Payouts[0].UserID)
	assert.InDelta(t, yes.Shares, res.Total, 1e-9)
	assert.InDelta(t, 900+yes.Shares, h.balance(t, "alice"), 1e-9)
	assert.InDelta(t, 900, h.balance(t, "bob"), 1e-9)
	assert.Equal(t, domain.ResolutionYes, res.Market.Resolution)
	require.NotNil(t, res.Market.ResolvedAt)

	m := h.metric(t, "alice", c.ID, "")
	assert.InDelta(t, yes.Shares, m.Payout, 1e-9)
	assert.InDelta(t, yes.Shares-100, m.Profit, 1e-9)

	_, err = h.eng.PlaceBet(ctx, engine.PlaceBetRequest{ContractID: c.ID, UserID: "alice", Outcome: domain.YES, Amount: 1})
	assert.ErrorIs(t, err, domain.ErrMarketResolved)
	_, err = h.eng.ResolveMarket(ctx, engine.ResolveRequest{ContractID: c.ID, Resolution: domain.ResolutionNo, ResolverID: "creator"})
	assert.ErrorIs(t, err, domain.ErrMarketResolved)
}

func TestResolveMarket_Mkt(t *testing.T) {
	h := newHarness(t, engine.Config{UniqueBettorBonus: -1})
	c := h.binary(t, engine.CreateMarketRequest{})
	ctx := context.Background()

	yes := h.bet(t, c.ID, "alice", "", domain.YES, 100)
	no := h.bet(t, c.ID, "bob", "", domain.NO, 100)

	_, err := h.eng.ResolveMarket(ctx, engine.ResolveRequest{ContractID: c.ID, Resolution: domain.ResolutionMkt, Probability: 1.2, ResolverID: "creator"})
	assert.ErrorIs(t, err, domain.ErrInvalidProbability)

	res, err := h.eng.ResolveMarket(ctx, engine.ResolveRequest{ContractID: c.ID, Resolution: domain.ResolutionMkt, Probability: 0.3, ResolverID: "creator"})
	require.NoError(t, err)
	assert.InDelta(t, 0.3*yes.Shares+0.7*no.Shares, res.Total, 1e-9)
	assert.InDelta(t, 0.3, res.Market.ResolutionProbability, 1e-12)
}

func TestResolveMarket_CancelRefundsInvested(t *testing.T) {
	h := newHarness(t, engine.Config{UniqueBettorBonus: -1})
	c := h.binary(t, engine.CreateMarketRequest{})
	ctx := context.Background()

	h.bet(t, c.ID, "alice", "", domain.YES, 100)
	h.bet(t, c.ID, "bob", "", domain.NO, 60)
	_, err := h.eng.PlaceLimitOrder(ctx, engine.LimitOrderRequest{
		ContractID: c.ID, UserID: "lena", Outcome: domain.YES, Amount: 20, LimitProb: 0.10,
	})
	require.NoError(t, err)

	res, err := h.eng.ResolveMarket(ctx, engine.ResolveRequest{ContractID: c.ID, Resolution: domain.ResolutionCancel, ResolverID: "creator"})
	require.NoError(t, err)

	assert.InDelta(t, 160, res.Total, 1e-9)
	assert.InDelta(t, 20, res.Refunded, 1e-9)
	assert.InDelta(t, 1000, h.balance(t, "alice"), 1e-9)
	assert.InDelta(t, 1000, h.balance(t, "bob"), 1e-9)
	assert.InDelta(t, 1000, h.balance(t, "lena"), 1e-9)

	open, err := h.store.ListOpenOrders(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestResolveMarket_SumToOne(t *testing.T) {
	h := newHarness(t, engine.Config{UniqueBettorBonus: -1})
	c := h.multi(t, true, "Red", "Blue", "Green")
	ids := answerIDs(t, c)
	ctx := context.Background()

	win := h.bet(t, c.ID, "alice", ids[0], domain.YES, 100)
	h.bet(t, c.ID, "bob", ids[1], domain.YES, 100)

	_, err := h.eng.ResolveMarket(ctx, engine.ResolveRequest{ContractID: c.ID, AnswerID: ids[0], Resolution: domain.ResolutionNo, ResolverID: "creator"})
	assert.ErrorIs(t, err, domain.ErrInvalidResolution)

	res, err := h.eng.ResolveMarket(ctx, engine.ResolveRequest{ContractID: c.ID, AnswerID: ids[0], Resolution: domain.ResolutionYes, ResolverID: "creator"})
	require.NoError(t, err)

	assert.Equal(t, domain.ResolutionChoice, res.Market.Resolution)
	m, _ := res.Market.MultipleChoice()
	for _, a := range m.Answers {
		want := domain.ResolutionNo
		if a.ID == ids[0] {
			want = domain.ResolutionYes
		}
		assert.Equal(t, want, a.Resolution, a.Text)
	}
	assert.InDelta(t, 900+win.Shares, h.balance(t, "alice"), 1e-6)
	assert.InDelta(t, 900, h.balance(t, "bob"), 1e-6)
}

func TestResolveMarket_IndependentAnswers(t *testing.T) {
	h := newHarness(t, engine.Config{UniqueBettorBonus: -1})
	c := h.multi(t, false, "Rust", "Go")
	ids := answerIDs(t, c)
	ctx := context.Background()

	h.bet(t, c.ID, "alice", ids[0], domain.YES, 50)

	res, err := h.eng.ResolveMarket(ctx, engine.ResolveRequest{ContractID: c.ID, AnswerID: ids[0], Resolution: domain.ResolutionYes, ResolverID: "creator"})
	require.NoError(t, err)
	assert.False(t, res.Market.IsResolved())

	_, err = h.eng.PlaceBet(ctx, engine.PlaceBetRequest{ContractID: c.ID, UserID: "alice", AnswerID: ids[0], Outcome: domain.YES, Amount: 1})
	assert.ErrorIs(t, err, domain.ErrMarketResolved)
	h.bet(t, c.ID, "alice", ids[1], domain.NO, 10)

	res, err = h.eng.ResolveMarket(ctx, engine.ResolveRequest{ContractID: c.ID, AnswerID: ids[1], Resolution: domain.ResolutionNo, ResolverID: "creator"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionChoice, res.Market.Resolution)

	_, err = h.eng.ResolveMarket(ctx, engine.ResolveRequest{ContractID: c.ID, Resolution: domain.ResolutionYes, ResolverID: "creator"})
	assert.ErrorIs(t, err, domain.ErrMarketResolved)
}

func TestResolveMarket_BinaryRejectsAnswer(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{})

	_, err := h.eng.ResolveMarket(context.Background(), engine.ResolveRequest{ContractID: c.ID, AnswerID: "a", Resolution: domain.ResolutionYes, ResolverID: "creator"})
	assert.ErrorIs(t, err, domain.ErrNotMultiChoice)

	_, err = h.eng.ResolveMarket(context.Background(), engine.ResolveRequest{ContractID: c.ID, Resolution: "MAYBE", ResolverID: "creator"})
	assert.ErrorIs(t, err, domain.ErrInvalidResolution)
}

// --- lifecycle ---

func TestAdvancePhase(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{Phase: domain.PhaseSandbox})
	ctx := context.Background()

	_, err := h.eng.AdvancePhase(ctx, c.ID, "alice", domain.PhaseMain)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	got, err := h.eng.AdvancePhase(ctx, c.ID, "creator", domain.PhaseMain)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseMain, got.Phase)

	_, err = h.eng.AdvancePhase(ctx, c.ID, "creator", domain.PhaseGraduating)
	assert.ErrorIs(t, err, domain.ErrInvalidPhaseTransition)

	res := h.bet(t, c.ID, "alice", "", domain.YES, 10)
	assert.Equal(t, engine.RouteMatcher, res.Route)
}

func TestAddLiquidity_KeepsProbability(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{})
	h.bet(t, c.ID, "alice", "", domain.YES, 200)
	before := prob(t, h.market(t, c.ID), "")

	got, err := h.eng.AddLiquidity(context.Background(), c.ID, "bob", "", 300)
	require.NoError(t, err)

	assert.InDelta(t, before, prob(t, got, ""), 1e-9)
	assert.InDelta(t, 5300, got.TotalLiquidity, 1e-9)
	assert.InDelta(t, 700, h.balance(t, "bob"), 1e-9)

	_, err = h.eng.AddLiquidity(context.Background(), c.ID, "bob", "", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestRedeemShares_NoPairsIsNoop(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.binary(t, engine.CreateMarketRequest{})
	h.bet(t, c.ID, "alice", "", domain.YES, 100)

	res, err := h.eng.RedeemShares(context.Background(), c.ID, "alice", "")
	require.NoError(t, err)
	assert.Zero(t, res.Pairs)
	assert.InDelta(t, 900, res.NewBalance, 1e-9)
}

func TestGetPriceHistory(t *testing.T) {
	h := newHarness(t, engine.Config{})
	c := h.multi(t, false, "Rust", "Go")
	ids := answerIDs(t, c)
	ctx := context.Background()

	h.clock = t0.Add(time.Minute)
	h.bet(t, c.ID, "alice", ids[0], domain.YES, 50)

	all, err := h.eng.GetPriceHistory(ctx, c.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	one, err := h.eng.GetPriceHistory(ctx, c.ID, ids[0])
	require.NoError(t, err)
	require.Len(t, one, 2)
	assert.InDelta(t, 0.5, one[0].Probability, 1e-12)
	assert.Greater(t, one[1].Probability, 0.5)

	_, err = h.eng.GetPriceHistory(ctx, c.ID, "nope")
	assert.ErrorIs(t, err, domain.ErrAnswerNotFound)
}

func TestImportMarket(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()
	in := domain.Contract{
		ID:        "chain-1",
		CreatorID: "onchain-creator",
		Question:  "Imported?",
		Mechanism: domain.MechanismCPMM,
		Phase:     domain.PhaseMain,
		Outcomes:  &domain.Binary{Pool: domain.Pool{YES: 3000, NO: 1000}, P: 0.5},
	}

	c, err := h.eng.ImportMarket(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, t0, c.CreatedAt)
	assert.InDelta(t, 0.25, prob(t, h.market(t, "chain-1"), ""), 1e-9)
	assert.InDelta(t, 1000, h.balance(t, "onchain-creator"), 1e-9)

	points, err := h.eng.GetPriceHistory(ctx, "chain-1", "")
	require.NoError(t, err)
	assert.Len(t, points, 1)

	h.bet(t, "chain-1", "bob", "", domain.YES, 10)

	_, err = h.eng.ImportMarket(ctx, in)
	assert.ErrorIs(t, err, domain.ErrInvalidMarket)

	_, err = h.eng.ImportMarket(ctx, domain.Contract{ID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidMarket)
}
