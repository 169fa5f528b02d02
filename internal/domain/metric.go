package domain

import (
	"math"
	"time"
)

// MetricKey identifica una posición: usuario × contrato × respuesta.
type MetricKey struct {
	UserID     string
	ContractID string
	AnswerID   string
}

// ContractMetric es la posición agregada de un usuario. Se actualiza de forma
// incremental con cada Bet.
type ContractMetric struct {
	UserID     string    `json:"userId"`
	ContractID string    `json:"contractId"`
	AnswerID   string    `json:"answerId,omitempty"`
	YesShares  float64   `json:"yesShares"`
	NoShares   float64   `json:"noShares"`
	Invested   float64   `json:"invested"` // compras - ventas - redenciones
	Payout     float64   `json:"payout"`   // cobrado en la resolución
	Profit     float64   `json:"profit"`
	LastBetAt  time.Time `json:"lastBetTime"`
}

func (m ContractMetric) Key() MetricKey {
	return MetricKey{UserID: m.UserID, ContractID: m.ContractID, AnswerID: m.AnswerID}
}

// Shares devuelve las shares del lado dado.
func (m ContractMetric) Shares(o Outcome) float64 {
	if o == YES {
		return m.YesShares
	}
	return m.NoShares
}

// Apply suma un cambio de posición.
func (m *ContractMetric) Apply(outcome Outcome, amount, shares float64, at time.Time) {
	if outcome == YES {
		m.YesShares += shares
	} else {
		m.NoShares += shares
	}
	m.Invested += amount
	m.Profit = m.Payout - m.Invested
	if at.After(m.LastBetAt) {
		m.LastBetAt = at
	}
}

// ApplyBet suma el efecto completo de un bet.
func (m *ContractMetric) ApplyBet(b Bet) {
	m.Apply(b.Outcome, b.Amount, b.Shares, b.CreatedAt)
}

// Redeemable son los pares YES+NO que se pueden canjear por $1.
func (m ContractMetric) Redeemable() float64 {
	return math.Max(0, math.Min(m.YesShares, m.NoShares))
}

func (m ContractMetric) HasShares() bool {
	return m.YesShares > 1e-9 || m.NoShares > 1e-9
}
