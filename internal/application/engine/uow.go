package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/alejandrodnm/likeli/internal/application/limitorder"
	"github.com/alejandrodnm/likeli/internal/application/redemption"
	"github.com/alejandrodnm/likeli/internal/domain"
	"github.com/alejandrodnm/likeli/internal/ports"
)

// uow acumula los efectos de una operación sobre un mercado: usuarios
// cargados con su saldo pendiente, posiciones, bets y puntos de precio.
// Nada toca el store hasta commit.
type uow struct {
	e       *Engine
	ctx     context.Context
	market  *domain.Contract
	now     time.Time
	batch   ports.Batch
	users   map[string]*domain.User
	metrics map[domain.MetricKey]*domain.ContractMetric
	books   map[string]*limitorder.Book // por answerID; "" en binarios
}

func (e *Engine) begin(ctx context.Context, c *domain.Contract) *uow {
	return &uow{
		e:       e,
		ctx:     ctx,
		market:  c,
		now:     e.now(),
		users:   make(map[string]*domain.User),
		metrics: make(map[domain.MetricKey]*domain.ContractMetric),
		books:   make(map[string]*limitorder.Book),
	}
}

// user devuelve el usuario con su saldo pendiente, creándolo con el saldo
// inicial si no existe.
func (u *uow) user(id string) (*domain.User, error) {
	if id == "" {
		return nil, fmt.Errorf("empty user id: %w", domain.ErrUserNotFound)
	}
	if usr, ok := u.users[id]; ok {
		return usr, nil
	}
	usr, err := u.e.store.GetUser(u.ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		usr = domain.User{
			ID:            id,
			Balance:       u.e.cfg.StartingBalance,
			TotalDeposits: u.e.cfg.StartingBalance,
			CreatedAt:     u.now,
		}
		u.batch.NewUsers = append(u.batch.NewUsers, usr)
		slog.Info("engine: new user", "user", id, "balance", fmt.Sprintf("$%.2f", usr.Balance))
	} else if err != nil {
		return nil, err
	}
	u.users[id] = &usr
	return &usr, nil
}

// requireBalance comprueba que el usuario puede pagar amount.
func (u *uow) requireBalance(id string, amount float64) (*domain.User, error) {
	usr, err := u.user(id)
	if err != nil {
		return nil, err
	}
	if usr.Balance+1e-9 < amount {
		return nil, fmt.Errorf("user %s has $%.2f, needs $%.2f: %w", id, usr.Balance, amount, domain.ErrInsufficientBalance)
	}
	return usr, nil
}

// credit suma delta al saldo (negativo = débito). El usuario debe estar cargado.
func (u *uow) credit(id string, delta float64) error {
	usr, err := u.user(id)
	if err != nil {
		return err
	}
	usr.Balance += delta
	u.batch.Credit(id, delta)
	return nil
}

func (u *uow) metric(userID, answerID string) (*domain.ContractMetric, error) {
	key := domain.MetricKey{UserID: userID, ContractID: u.market.ID, AnswerID: answerID}
	if m, ok := u.metrics[key]; ok {
		return m, nil
	}
	m, err := u.e.store.GetMetric(u.ctx, key)
	if err != nil {
		return nil, err
	}
	m.UserID, m.ContractID, m.AnswerID = key.UserID, key.ContractID, key.AnswerID
	u.metrics[key] = &m
	return &m, nil
}

// addBets registra bets nuevos y los aplica a las posiciones de sus dueños.
func (u *uow) addBets(bets ...domain.Bet) error {
	for _, b := range bets {
		m, err := u.metric(b.UserID, b.AnswerID)
		if err != nil {
			return err
		}
		m.ApplyBet(b)
		u.batch.Bets = append(u.batch.Bets, b)
	}
	return nil
}

// applyFill suma una ejecución de orden límite a la posición del dueño.
func (u *uow) applyFill(f limitorder.OrderFill, answerID string) error {
	m, err := u.metric(f.UserID, answerID)
	if err != nil {
		return err
	}
	m.Apply(f.Outcome, f.Amount, f.Shares, u.now)
	if !f.Reserved {
		return u.credit(f.UserID, -f.Amount)
	}
	return nil
}

// pricePoint registra la probabilidad actual de answerID.
func (u *uow) pricePoint(answerID string) {
	prob, err := u.market.Probability(answerID)
	if err != nil {
		return
	}
	u.batch.PricePoints = append(u.batch.PricePoints, domain.PricePoint{
		ContractID:  u.market.ID,
		AnswerID:    answerID,
		Timestamp:   u.now,
		Probability: prob,
	})
}

// pricePoints registra todas las respuestas (o el binario).
func (u *uow) pricePoints() {
	m, ok := u.market.MultipleChoice()
	if !ok {
		u.pricePoint("")
		return
	}
	for _, a := range m.Answers {
		u.pricePoint(a.ID)
	}
}

// loadBook carga el libro de answerID la primera vez que se pide.
func (u *uow) loadBook(answerID string) (*limitorder.Book, error) {
	if b, ok := u.books[answerID]; ok {
		return b, nil
	}
	orders, err := u.e.store.ListOpenOrders(u.ctx, u.market.ID)
	if err != nil {
		return nil, err
	}
	b := limitorder.NewBook(forAnswer(orders, answerID))
	u.books[answerID] = b
	return b, nil
}

// openBooks carga los libros de todas las respuestas con órdenes abiertas,
// ordenados por answerID.
func (u *uow) openBooks() ([]*limitorder.Book, error) {
	orders, err := u.e.store.ListOpenOrders(u.ctx, u.market.ID)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		if _, ok := u.books[o.AnswerID]; !ok {
			u.books[o.AnswerID] = limitorder.NewBook(forAnswer(orders, o.AnswerID))
		}
	}
	ids := slices.Sorted(maps.Keys(u.books))
	out := make([]*limitorder.Book, len(ids))
	for i, id := range ids {
		out[i] = u.books[id]
	}
	return out, nil
}

func forAnswer(orders []domain.Bet, answerID string) []domain.Bet {
	var out []domain.Bet
	for _, o := range orders {
		if o.AnswerID == answerID {
			out = append(out, o)
		}
	}
	return out
}

// balancesFor devuelve los saldos pendientes de los dueños de órdenes sin
// fondos reservados; nil si todas las órdenes están reservadas.
func (u *uow) balancesFor(orders []domain.Bet) (map[string]float64, error) {
	if !u.e.cfg.FundsOnFill {
		return nil, nil
	}
	out := make(map[string]float64)
	for _, o := range orders {
		if o.FundsReserved {
			continue
		}
		usr, err := u.user(o.UserID)
		if err != nil {
			return nil, err
		}
		out[o.UserID] = usr.Balance
	}
	return out, nil
}

// redeem canjea los pares YES+NO del usuario en answerID. Es best effort:
// un fallo se registra y no anula el trade.
func (u *uow) redeem(userID, answerID string) float64 {
	m, err := u.metric(userID, answerID)
	if err != nil {
		slog.Warn("engine: redemption skipped", "user", userID, "market", u.market.ID, "err", err)
		return 0
	}
	prob, err := u.market.Probability(answerID)
	if err != nil {
		slog.Warn("engine: redemption skipped", "user", userID, "market", u.market.ID, "err", err)
		return 0
	}
	res, ok := redemption.Compute(*m, prob, u.now, u.e.newID)
	if !ok {
		return 0
	}
	if err := u.credit(userID, res.Credit); err != nil {
		slog.Warn("engine: redemption skipped", "user", userID, "market", u.market.ID, "err", err)
		return 0
	}
	*m = res.Metric
	u.batch.Bets = append(u.batch.Bets, res.Bets...)
	u.e.rec.Redeemed(res.Pairs)
	slog.Info("engine: redeemed pairs",
		"user", userID,
		"market", u.market.ID,
		"answer", answerID,
		"pairs", fmt.Sprintf("%.4f", res.Pairs),
	)
	return res.Credit
}

// redeemMakers canjea los pares de los dueños de órdenes recién ejecutadas.
func (u *uow) redeemMakers(answerID string, fills []limitorder.OrderFill) {
	seen := make(map[string]bool, len(fills))
	for _, f := range fills {
		if seen[f.UserID] {
			continue
		}
		seen[f.UserID] = true
		u.redeem(f.UserID, answerID)
	}
}

// bettorBonus registra al apostante y paga el bonus al creador la primera
// vez. Best effort.
func (u *uow) bettorBonus(userID string) {
	c := u.market
	if c.HasBettor(userID) {
		return
	}
	c.UniqueBettorIDs = append(c.UniqueBettorIDs, userID)
	bonus := u.e.cfg.UniqueBettorBonus
	if bonus <= 0 || userID == c.CreatorID {
		return
	}
	if _, err := u.user(c.CreatorID); err != nil {
		slog.Warn("engine: bettor bonus skipped", "creator", c.CreatorID, "market", c.ID, "err", err)
		return
	}
	u.batch.Bonus(c.CreatorID, bonus)
	u.users[c.CreatorID].Balance += bonus
	slog.Debug("engine: bettor bonus", "creator", c.CreatorID, "bettor", userID, "bonus", fmt.Sprintf("$%.2f", bonus))
}

// creatorFee abona la comisión de creador.
func (u *uow) creatorFee(fees domain.Fees) error {
	if fees.Creator <= 0 {
		return nil
	}
	return u.credit(u.market.CreatorID, fees.Creator)
}

// sweep ejecuta las órdenes de answerID que el último trade dejó
// ejecutables. Solo en mercados con libro; un fallo se registra y descarta
// el barrido entero, no el trade.
func (u *uow) sweep(answerID string) {
	if u.e.route(u.market) != RouteMatcher {
		return
	}
	pool, p, err := u.market.PoolFor(answerID)
	if err != nil {
		slog.Warn("engine: sweep skipped", "market", u.market.ID, "answer", answerID, "err", err)
		return
	}
	book, err := u.loadBook(answerID)
	if err != nil {
		slog.Warn("engine: sweep skipped", "market", u.market.ID, "answer", answerID, "err", err)
		return
	}
	if book.Len() == 0 {
		return
	}
	balances, err := u.balancesFor(book.Open())
	if err != nil {
		slog.Warn("engine: sweep skipped", "market", u.market.ID, "answer", answerID, "err", err)
		return
	}

	trial := book.Clone()
	res, err := limitorder.Sweep(trial, *pool, p, balances, u.e.cfg.MinPoolQty, u.now)
	if err != nil {
		slog.Warn("engine: sweep failed", "market", u.market.ID, "answer", answerID, "err", err)
		return
	}
	if len(res.Fills) == 0 && len(res.Cancelled) == 0 {
		return
	}

	// o entran todas las ejecuciones o ninguna
	sp := u.save()
	var volume float64
	for _, f := range res.Fills {
		if err := u.applyFill(f, answerID); err != nil {
			u.rollback(sp)
			slog.Warn("engine: sweep failed", "market", u.market.ID, "answer", answerID, "order", f.OrderID, "err", err)
			return
		}
		volume += f.Amount
	}
	u.books[answerID] = trial
	*pool = res.PoolAfter
	u.market.AddVolume(answerID, volume)
	if len(res.Fills) > 0 {
		u.pricePoint(answerID)
		u.redeemMakers(answerID, res.Fills)
		u.e.rec.OrdersFilled(len(res.Fills))
	}
	slog.Info("engine: limit orders swept",
		"market", u.market.ID,
		"answer", answerID,
		"fills", len(res.Fills),
		"cancelled", len(res.Cancelled),
		"rounds", res.Rounds,
		"prob", fmt.Sprintf("%.4f", res.ProbAfter),
	)
}

// savepoint es una copia del estado pendiente del uow.
type savepoint struct {
	users    map[string]domain.User
	metrics  map[domain.MetricKey]domain.ContractMetric
	newUsers int
	bets     int
	points   int
	balances map[string]float64
	bonuses  map[string]float64
}

func (u *uow) save() savepoint {
	sp := savepoint{
		users:    make(map[string]domain.User, len(u.users)),
		metrics:  make(map[domain.MetricKey]domain.ContractMetric, len(u.metrics)),
		newUsers: len(u.batch.NewUsers),
		bets:     len(u.batch.Bets),
		points:   len(u.batch.PricePoints),
		balances: maps.Clone(u.batch.BalanceDeltas),
		bonuses:  maps.Clone(u.batch.BonusDeltas),
	}
	for id, usr := range u.users {
		sp.users[id] = *usr
	}
	for k, m := range u.metrics {
		sp.metrics[k] = *m
	}
	return sp
}

// rollback deja el uow como estaba en sp. Los punteros ya repartidos siguen
// siendo válidos.
func (u *uow) rollback(sp savepoint) {
	for id, usr := range u.users {
		old, ok := sp.users[id]
		if !ok {
			delete(u.users, id)
			continue
		}
		*usr = old
	}
	for k, m := range u.metrics {
		old, ok := sp.metrics[k]
		if !ok {
			delete(u.metrics, k)
			continue
		}
		*m = old
	}
	u.batch.NewUsers = u.batch.NewUsers[:sp.newUsers]
	u.batch.Bets = u.batch.Bets[:sp.bets]
	u.batch.PricePoints = u.batch.PricePoints[:sp.points]
	u.batch.BalanceDeltas = sp.balances
	u.batch.BonusDeltas = sp.bonuses
}

// commit vuelca el estado acumulado en un batch atómico.
func (u *uow) commit() error {
	u.batch.Market = u.market
	for _, id := range slices.Sorted(maps.Keys(u.books)) {
		u.batch.Bets = append(u.batch.Bets, u.books[id].Changed()...)
	}
	keys := make([]domain.MetricKey, 0, len(u.metrics))
	for k, m := range u.metrics {
		if m.LastBetAt.IsZero() && !m.HasShares() && m.Invested == 0 && m.Payout == 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].UserID != keys[j].UserID {
			return keys[i].UserID < keys[j].UserID
		}
		return keys[i].AnswerID < keys[j].AnswerID
	})
	for _, k := range keys {
		u.batch.Metrics = append(u.batch.Metrics, *u.metrics[k])
	}
	return u.e.store.Commit(u.ctx, u.batch)
}
