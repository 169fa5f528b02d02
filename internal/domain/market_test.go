package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alejandrodnm/likeli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeMultiChoice(sumToOne bool) domain.Contract {
	answers := make([]domain.Answer, 3)
	for i := range answers {
		answers[i] = domain.Answer{
			ID:    []string{"a", "b", "c"}[i],
			Text:  []string{"Red", "Green", "Blue"}[i],
			Index: i,
			Pool:  domain.SeedAnswerPool(5000, 3, sumToOne),
			P:     0.5,
		}
	}
	return domain.Contract{
		ID:        "mc-1",
		CreatorID: "alice",
		Question:  "Which colour?",
		Mechanism: domain.MechanismCPMMMulti,
		Phase:     domain.PhaseMain,
		Outcomes:  &domain.MultipleChoice{Answers: answers, ShouldAnswersSumToOne: sumToOne},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestContract_JSONKeepsVariant(t *testing.T) {
	binary := domain.Contract{
		ID:       "bin-1",
		Question: "Will it rain?",
		Outcomes: &domain.Binary{Pool: domain.Pool{YES: 2500, NO: 2500}, P: 0.5},
	}
	data, err := json.Marshal(binary)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"outcomeType":"BINARY"`)

	var back domain.Contract
	require.NoError(t, json.Unmarshal(data, &back))
	b, ok := back.Binary()
	require.True(t, ok)
	assert.Equal(t, 2500.0, b.Pool.YES)
	assert.Equal(t, "Will it rain?", back.Question)

	mc := makeMultiChoice(true)
	data, err = json.Marshal(mc)
	require.NoError(t, err)

	var mcBack domain.Contract
	require.NoError(t, json.Unmarshal(data, &mcBack))
	m, ok := mcBack.MultipleChoice()
	require.True(t, ok)
	assert.True(t, m.ShouldAnswersSumToOne)
	require.Len(t, m.Answers, 3)
	assert.Equal(t, "Green", m.Answers[1].Text)
	assert.True(t, mc.CreatedAt.Equal(mcBack.CreatedAt))
}

func TestContract_UnmarshalRejectsUnknownType(t *testing.T) {
	var c domain.Contract
	err := json.Unmarshal([]byte(`{"id":"x","outcomeType":"NUMERIC"}`), &c)
	assert.ErrorIs(t, err, domain.ErrInvalidMarket)
}

func TestContract_CloneIsDeep(t *testing.T) {
	orig := makeMultiChoice(true)
	cp := orig.Clone()

	m, _ := cp.MultipleChoice()
	m.Answers[0].Pool.YES = 1

	om, _ := orig.MultipleChoice()
	assert.NotEqual(t, 1.0, om.Answers[0].Pool.YES)
}

func TestContract_SumToOneOnlyForSumToOneMarkets(t *testing.T) {
	indep := makeMultiChoice(false)
	m, _ := indep.MultipleChoice()
	_, ok := m.SumToOne()
	assert.False(t, ok)

	linked := makeMultiChoice(true)
	m, _ = linked.MultipleChoice()
	answers, ok := m.SumToOne()
	require.True(t, ok)
	assert.Equal(t, 3, answers.Len())
	assert.Equal(t, 2, answers.Index("c"))
	assert.InDelta(t, 1.0, m.ProbabilitySum(), 1e-12)
}

func TestContract_PoolFor(t *testing.T) {
	binary := domain.Contract{ID: "bin", Outcomes: &domain.Binary{Pool: domain.Pool{YES: 10, NO: 30}, P: 0.5}}
	pool, p, err := binary.PoolFor("")
	require.NoError(t, err)
	assert.Equal(t, 0.5, p)
	assert.Equal(t, 30.0, pool.NO)

	_, _, err = binary.PoolFor("a")
	assert.ErrorIs(t, err, domain.ErrAnswerNotFound)

	mc := makeMultiChoice(false)
	_, _, err = mc.PoolFor("zzz")
	assert.ErrorIs(t, err, domain.ErrAnswerNotFound)
}

func TestContract_CheckTradable(t *testing.T) {
	mc := makeMultiChoice(false)
	require.NoError(t, mc.CheckTradable("a"))

	m, _ := mc.MultipleChoice()
	m.Answers[0].Resolution = domain.ResolutionYes
	assert.ErrorIs(t, mc.CheckTradable("a"), domain.ErrMarketResolved)
	assert.NoError(t, mc.CheckTradable("b"))

	mc.Resolution = domain.ResolutionChoice
	assert.ErrorIs(t, mc.CheckTradable("b"), domain.ErrMarketResolved)
}

func TestPhase_CanAdvanceTo(t *testing.T) {
	assert.True(t, domain.PhaseSandbox.CanAdvanceTo(domain.PhaseGraduating))
	assert.True(t, domain.PhaseSandbox.CanAdvanceTo(domain.PhaseMain))
	assert.False(t, domain.PhaseMain.CanAdvanceTo(domain.PhaseSandbox))
	assert.False(t, domain.PhaseMain.CanAdvanceTo(domain.PhaseMain))
	assert.False(t, domain.Phase("beta").CanAdvanceTo(domain.PhaseMain))
}

func TestFeeSchedule(t *testing.T) {
	fees := domain.FeeSchedule{CreatorBps: 100, PlatformBps: 50, LiquidityBps: 50}
	require.NoError(t, fees.Validate())

	f := fees.Compute(200)
	assert.InDelta(t, 2, f.Creator, 1e-12)
	assert.InDelta(t, 1, f.Platform, 1e-12)
	assert.InDelta(t, 4, f.Total(), 1e-12)

	tooHigh := domain.FeeSchedule{CreatorBps: 600, PlatformBps: 500}
	assert.ErrorIs(t, tooHigh.Validate(), domain.ErrInvalidFees)
	assert.ErrorIs(t, domain.FeeSchedule{CreatorBps: -1}.Validate(), domain.ErrInvalidFees)
}

func TestContractMetric_ApplyAndRedeemable(t *testing.T) {
	m := domain.ContractMetric{UserID: "u", ContractID: "c"}
	m.ApplyBet(domain.Bet{Outcome: domain.YES, Amount: 100, Shares: 196})
	m.ApplyBet(domain.Bet{Outcome: domain.NO, Amount: 50, Shares: 80})

	assert.InDelta(t, 196, m.YesShares, 1e-12)
	assert.InDelta(t, 80, m.NoShares, 1e-12)
	assert.InDelta(t, 150, m.Invested, 1e-12)
	assert.InDelta(t, 80, m.Redeemable(), 1e-12)
	assert.True(t, m.HasShares())
}
