package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alejandrodnm/likeli/internal/domain"
	"github.com/alejandrodnm/likeli/internal/ports"
)

// balanceEpsilon tolera el ruido de coma flotante al comprobar saldos.
const balanceEpsilon = 1e-9

// MemoryStorage implementa ports.Store en memoria. Es el store de los tests y
// del modo demo; todo lo que devuelve son copias.
type MemoryStorage struct {
	mu       sync.RWMutex
	markets  map[string]domain.Contract
	order    []string // ids de mercado en orden de creación
	users    map[string]domain.User
	bets     map[string]domain.Bet
	betOrder []string
	metrics  map[domain.MetricKey]domain.ContractMetric
	prices   []domain.PricePoint
}

// NewMemoryStorage crea un store vacío.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		markets: make(map[string]domain.Contract),
		users:   make(map[string]domain.User),
		bets:    make(map[string]domain.Bet),
		metrics: make(map[domain.MetricKey]domain.ContractMetric),
	}
}

var _ ports.Store = (*MemoryStorage)(nil)

func (s *MemoryStorage) GetMarket(_ context.Context, id string) (domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.markets[id]
	if !ok {
		return domain.Contract{}, fmt.Errorf("storage.GetMarket %s: %w", id, domain.ErrMarketNotFound)
	}
	return c.Clone(), nil
}

func (s *MemoryStorage) ListMarkets(_ context.Context) ([]domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Contract, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.markets[id].Clone())
	}
	return out, nil
}

func (s *MemoryStorage) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("storage.GetUser %s: %w", id, domain.ErrUserNotFound)
	}
	return u, nil
}

func (s *MemoryStorage) GetBet(_ context.Context, id string) (domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bets[id]
	if !ok {
		return domain.Bet{}, fmt.Errorf("storage.GetBet %s: %w", id, domain.ErrOrderNotFound)
	}
	return b.Clone(), nil
}

func (s *MemoryStorage) ListBets(_ context.Context, contractID string) ([]domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Bet
	for _, id := range s.betOrder {
		if b := s.bets[id]; b.ContractID == contractID {
			out = append(out, b.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStorage) ListOpenOrders(ctx context.Context, contractID string) ([]domain.Bet, error) {
	bets, err := s.ListBets(ctx, contractID)
	if err != nil {
		return nil, err
	}
	var out []domain.Bet
	for _, b := range bets {
		if b.IsOpen() {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStorage) GetMetric(_ context.Context, key domain.MetricKey) (domain.ContractMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[key]
	if !ok {
		return domain.ContractMetric{UserID: key.UserID, ContractID: key.ContractID, AnswerID: key.AnswerID}, nil
	}
	return m, nil
}

func (s *MemoryStorage) ListMetrics(_ context.Context, contractID string) ([]domain.ContractMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ContractMetric
	for k, m := range s.metrics {
		if k.ContractID == contractID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].AnswerID < out[j].AnswerID
	})
	return out, nil
}

func (s *MemoryStorage) PriceHistory(_ context.Context, contractID, answerID string) ([]domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PricePoint
	for _, p := range s.prices {
		if p.ContractID == contractID && (answerID == "" || p.AnswerID == answerID) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Commit valida los saldos resultantes antes de tocar nada.
func (s *MemoryStorage) Commit(_ context.Context, b ports.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make(map[string]domain.User, len(b.NewUsers)+len(b.BalanceDeltas))
	for _, u := range b.NewUsers {
		if _, exists := s.users[u.ID]; !exists {
			users[u.ID] = u
		}
	}
	for id, delta := range b.BalanceDeltas {
		u, ok := users[id]
		if !ok {
			if u, ok = s.users[id]; !ok {
				return fmt.Errorf("storage.Commit: user %s: %w", id, domain.ErrUserNotFound)
			}
		}
		u.Balance += delta
		u.BonusEarned += b.BonusDeltas[id]
		if u.Balance < -balanceEpsilon {
			return fmt.Errorf("storage.Commit: user %s balance %.4f: %w", id, u.Balance, domain.ErrInsufficientBalance)
		}
		users[id] = u
	}

	for id, u := range users {
		s.users[id] = u
	}
	if b.Market != nil {
		if _, ok := s.markets[b.Market.ID]; !ok {
			s.order = append(s.order, b.Market.ID)
		}
		s.markets[b.Market.ID] = b.Market.Clone()
	}
	for _, bet := range b.Bets {
		if _, ok := s.bets[bet.ID]; !ok {
			s.betOrder = append(s.betOrder, bet.ID)
		}
		s.bets[bet.ID] = bet.Clone()
	}
	for _, m := range b.Metrics {
		s.metrics[m.Key()] = m
	}
	s.prices = append(s.prices, b.PricePoints...)
	return nil
}

func (s *MemoryStorage) Close() error { return nil }
