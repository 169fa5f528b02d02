package arbitrage

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/likeli/internal/domain"
)

// Apply escribe los pools resultantes en el contrato, junto con volumen y
// comisiones.
func Apply(c *domain.Contract, r Result) error {
	m, ok := c.MultipleChoice()
	if !ok {
		return fmt.Errorf("arbitrage.Apply: %w", domain.ErrNotMultiChoice)
	}
	if !m.ShouldAnswersSumToOne {
		return fmt.Errorf("arbitrage.Apply: %w", domain.ErrArbitrageNotApplicable)
	}

	legs := append([]Leg{r.Direct}, r.Siblings...)
	for _, l := range legs {
		a, err := m.Answer(l.AnswerID)
		if err != nil {
			return fmt.Errorf("arbitrage.Apply: %w", err)
		}
		a.Pool = l.PoolAfter
		a.Volume += l.Amount
	}

	if r.IsSell {
		c.Volume += r.Amount + r.Fees.Total()
	} else {
		c.Volume += r.Gross
	}
	c.CollectedFees = c.CollectedFees.Add(r.Fees)
	return nil
}

// Bets construye los registros del trade bajo un mismo groupID: por cada
// hermana una compra y su canje, y el bet principal sobre la respuesta
// objetivo con un fill contra el pool y otro de canje.
func Bets(r Result, userID, contractID, groupID string, now time.Time, newID func() string) []domain.Bet {
	bets := make([]domain.Bet, 0, 2*len(r.Siblings)+1)

	for _, l := range r.Siblings {
		bets = append(bets,
			domain.Bet{
				ID:         newID(),
				UserID:     userID,
				ContractID: contractID,
				AnswerID:   l.AnswerID,
				CreatedAt:  now,
				Outcome:    l.Outcome,
				Amount:     l.Amount,
				Shares:     l.Shares,
				ProbBefore: l.ProbBefore,
				ProbAfter:  l.ProbAfter,
				GroupID:    groupID,
				Fills:      []domain.Fill{{Amount: l.Amount, Shares: l.Shares, Timestamp: now}},
			},
			domain.Bet{
				ID:           newID(),
				UserID:       userID,
				ContractID:   contractID,
				AnswerID:     l.AnswerID,
				CreatedAt:    now,
				Outcome:      l.Outcome,
				Amount:       -l.Amount,
				Shares:       -l.Shares,
				ProbBefore:   l.ProbAfter,
				ProbAfter:    l.ProbAfter,
				IsRedemption: true,
				GroupID:      groupID,
				Fills:        []domain.Fill{{Amount: -l.Amount, Shares: -l.Shares, Timestamp: now, IsRedemption: true}},
			},
		)
	}

	primary := domain.Bet{
		ID:         newID(),
		UserID:     userID,
		ContractID: contractID,
		AnswerID:   r.AnswerID,
		CreatedAt:  now,
		Outcome:    r.Outcome,
		ProbBefore: r.Direct.ProbBefore,
		ProbAfter:  r.Direct.ProbAfter,
		Fees:       r.Fees,
		GroupID:    groupID,
	}
	if r.Direct.Shares > 0 {
		primary.Fills = append(primary.Fills, domain.Fill{Amount: r.Direct.Amount, Shares: r.Direct.Shares, Timestamp: now})
	}
	if r.IsSell {
		primary.Amount = -r.Amount
		primary.Shares = -r.Shares
		primary.Fills = append(primary.Fills, domain.Fill{Amount: -r.Shares, Shares: -r.Shares, Timestamp: now, IsRedemption: true})
	} else {
		primary.Amount = r.Gross
		primary.Shares = r.Shares
		if r.SiblingShares > 0 {
			primary.Fills = append(primary.Fills, domain.Fill{
				Amount:       r.SiblingCost - r.RedemptionBonus,
				Shares:       r.SiblingShares,
				Timestamp:    now,
				IsRedemption: true,
			})
		}
	}
	return append(bets, primary)
}
