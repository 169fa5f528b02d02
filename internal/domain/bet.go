package domain

import "time"

// Bet es el registro inmutable de un trade. Las ventas y redenciones llevan
// amount y shares negativos. Una orden límite es un Bet con LimitProb > 0 que
// se va rellenando: Amount y Shares acumulan lo ejecutado.
type Bet struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	ContractID   string    `json:"contractId"`
	AnswerID     string    `json:"answerId,omitempty"`
	CreatedAt    time.Time `json:"createdTime"`
	Outcome      Outcome   `json:"outcome"`
	Amount       float64   `json:"amount"`
	Shares       float64   `json:"shares"`
	ProbBefore   float64   `json:"probBefore"`
	ProbAfter    float64   `json:"probAfter"`
	Fees         Fees      `json:"fees"`
	IsRedemption bool      `json:"isRedemption,omitempty"`
	GroupID      string    `json:"betGroupId,omitempty"` // legs de un mismo arbitraje
	Fills        []Fill    `json:"fills,omitempty"`

	// Orden límite
	LimitProb     float64    `json:"limitProb,omitempty"`
	OrderAmount   float64    `json:"orderAmount,omitempty"`
	IsFilled      bool       `json:"isFilled,omitempty"`
	IsCancelled   bool       `json:"isCancelled,omitempty"`
	FundsReserved bool       `json:"fundsReserved,omitempty"` // el importe se debitó al colocarla
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// Fill es una ejecución parcial: contra el pool (MatchedBetID vacío) o contra
// otra orden.
type Fill struct {
	MatchedBetID string    `json:"matchedBetId,omitempty"`
	Amount       float64   `json:"amount"`
	Shares       float64   `json:"shares"`
	Timestamp    time.Time `json:"timestamp"`
	IsRedemption bool      `json:"isRedemption,omitempty"`
}

func (b Bet) IsLimitOrder() bool { return b.LimitProb > 0 }

// IsOpen indica si la orden sigue en el libro.
func (b Bet) IsOpen() bool { return b.IsLimitOrder() && !b.IsFilled && !b.IsCancelled }

// Remaining es el importe de la orden aún sin ejecutar.
func (b Bet) Remaining() float64 {
	r := b.OrderAmount - b.Amount
	if r < 0 {
		return 0
	}
	return r
}

// IsExpired indica si la orden caducó en `now`.
func (b Bet) IsExpired(now time.Time) bool {
	return b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// Clone copia los fills y la fecha de expiración.
func (b Bet) Clone() Bet {
	cp := b
	cp.Fills = append([]Fill(nil), b.Fills...)
	if b.ExpiresAt != nil {
		t := *b.ExpiresAt
		cp.ExpiresAt = &t
	}
	return cp
}
