package domain

import "time"

// User es una cuenta con saldo.
type User struct {
	ID            string    `json:"id"`
	Balance       float64   `json:"balance"`
	TotalDeposits float64   `json:"totalDeposits"`
	BonusEarned   float64   `json:"bonusEarned"` // bonus por nuevos apostantes en sus mercados
	CreatedAt     time.Time `json:"createdTime"`
}

// PricePoint es una muestra de probabilidad tras un trade.
type PricePoint struct {
	ContractID  string    `json:"contractId"`
	AnswerID    string    `json:"answerId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Probability float64   `json:"probability"`
}

// ResolutionRequest es una resolución ya validada, venga del creador o de un oráculo.
type ResolutionRequest struct {
	ContractID  string
	AnswerID    string
	Resolution  Resolution
	Probability float64 // solo para MKT
	ResolverID  string
}
