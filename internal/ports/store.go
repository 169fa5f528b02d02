package ports

import (
	"context"

	"github.com/alejandrodnm/likeli/internal/domain"
)

// Store persiste mercados, usuarios, bets, posiciones e historial de precios.
// Las lecturas devuelven copias; las escrituras van siempre en un Batch.
type Store interface {
	// GetMarket devuelve domain.ErrMarketNotFound si no existe.
	GetMarket(ctx context.Context, id string) (domain.Contract, error)
	ListMarkets(ctx context.Context) ([]domain.Contract, error)

	// GetUser devuelve domain.ErrUserNotFound si no existe.
	GetUser(ctx context.Context, id string) (domain.User, error)

	// GetBet devuelve domain.ErrOrderNotFound si no existe.
	GetBet(ctx context.Context, id string) (domain.Bet, error)
	ListBets(ctx context.Context, contractID string) ([]domain.Bet, error)
	// ListOpenOrders devuelve las órdenes límite abiertas del contrato.
	ListOpenOrders(ctx context.Context, contractID string) ([]domain.Bet, error)

	// GetMetric devuelve una posición vacía (con la clave rellena) si no existe.
	GetMetric(ctx context.Context, key domain.MetricKey) (domain.ContractMetric, error)
	ListMetrics(ctx context.Context, contractID string) ([]domain.ContractMetric, error)

	// PriceHistory devuelve los puntos en orden cronológico. answerID vacío
	// devuelve todos los del contrato.
	PriceHistory(ctx context.Context, contractID, answerID string) ([]domain.PricePoint, error)

	// Commit aplica el batch de forma atómica. Si algún saldo quedaría
	// negativo devuelve domain.ErrInsufficientBalance y no aplica nada.
	Commit(ctx context.Context, b Batch) error

	Close() error
}

// Batch agrupa todas las escrituras de una operación.
type Batch struct {
	Market        *domain.Contract
	NewUsers      []domain.User
	BalanceDeltas map[string]float64
	BonusDeltas   map[string]float64
	Bets          []domain.Bet // upsert por ID
	Metrics       []domain.ContractMetric
	PricePoints   []domain.PricePoint
}

// Credit suma delta al saldo de userID.
func (b *Batch) Credit(userID string, delta float64) {
	if delta == 0 {
		return
	}
	if b.BalanceDeltas == nil {
		b.BalanceDeltas = make(map[string]float64)
	}
	b.BalanceDeltas[userID] += delta
}

// Bonus suma un bonus al saldo y al acumulado BonusEarned.
func (b *Batch) Bonus(userID string, amount float64) {
	b.Credit(userID, amount)
	if b.BonusDeltas == nil {
		b.BonusDeltas = make(map[string]float64)
	}
	b.BonusDeltas[userID] += amount
}

// Empty indica si no hay nada que escribir.
func (b Batch) Empty() bool {
	return b.Market == nil && len(b.NewUsers) == 0 && len(b.BalanceDeltas) == 0 &&
		len(b.Bets) == 0 && len(b.Metrics) == 0 && len(b.PricePoints) == 0
}
