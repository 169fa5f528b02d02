package limitorder

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/likeli/internal/domain"
)

// Book es el libro en memoria de un (mercado, respuesta). Las mutaciones se
// registran para persistir solo las órdenes tocadas.
type Book struct {
	orders  []domain.Bet
	index   map[string]int
	changed map[string]bool
}

// NewBook copia las órdenes límite recibidas.
func NewBook(orders []domain.Bet) *Book {
	b := &Book{index: make(map[string]int), changed: make(map[string]bool)}
	for _, o := range orders {
		if o.IsLimitOrder() {
			b.index[o.ID] = len(b.orders)
			b.orders = append(b.orders, o.Clone())
		}
	}
	return b
}

// Clone copia el libro con sus cambios pendientes.
func (b *Book) Clone() *Book {
	cp := &Book{
		orders:  make([]domain.Bet, len(b.orders)),
		index:   make(map[string]int, len(b.index)),
		changed: make(map[string]bool, len(b.changed)),
	}
	for i, o := range b.orders {
		cp.orders[i] = o.Clone()
	}
	for k, v := range b.index {
		cp.index[k] = v
	}
	for k, v := range b.changed {
		cp.changed[k] = v
	}
	return cp
}

// Add incorpora una orden nueva (ya persistida por el caller como bet nuevo).
func (b *Book) Add(order domain.Bet) {
	if i, ok := b.index[order.ID]; ok {
		b.orders[i] = order.Clone()
		return
	}
	b.index[order.ID] = len(b.orders)
	b.orders = append(b.orders, order.Clone())
}

// Get devuelve una copia de la orden.
func (b *Book) Get(id string) (domain.Bet, bool) {
	i, ok := b.index[id]
	if !ok {
		return domain.Bet{}, false
	}
	return b.orders[i].Clone(), true
}

// Open devuelve las órdenes abiertas.
func (b *Book) Open() []domain.Bet {
	var out []domain.Bet
	for _, o := range b.orders {
		if o.IsOpen() {
			out = append(out, o.Clone())
		}
	}
	return out
}

// Len devuelve cuántas órdenes abiertas quedan.
func (b *Book) Len() int { return len(b.Open()) }

// Apply suma una ejecución a la orden. detail son los fills del lado taker;
// vacío genera un único fill contra MatchedBetID.
func (b *Book) Apply(f OrderFill, detail []domain.Fill, now time.Time) error {
	i, ok := b.index[f.OrderID]
	if !ok {
		return fmt.Errorf("limitorder.Apply %s: %w", f.OrderID, domain.ErrOrderNotFound)
	}
	o := &b.orders[i]
	o.Amount += f.Amount
	o.Shares += f.Shares
	if len(detail) == 0 {
		detail = []domain.Fill{{MatchedBetID: f.MatchedBetID, Amount: f.Amount, Shares: f.Shares, Timestamp: now}}
	}
	o.Fills = append(o.Fills, detail...)
	if o.Remaining() <= FillEpsilon {
		o.IsFilled = true
	}
	b.changed[o.ID] = true
	return nil
}

// Cancel marca la orden como cancelada y la devuelve.
func (b *Book) Cancel(id string) (domain.Bet, error) {
	i, ok := b.index[id]
	if !ok {
		return domain.Bet{}, fmt.Errorf("limitorder.Cancel %s: %w", id, domain.ErrOrderNotFound)
	}
	o := &b.orders[i]
	switch {
	case o.IsCancelled:
		return domain.Bet{}, fmt.Errorf("limitorder.Cancel %s: %w", id, domain.ErrAlreadyCancelled)
	case o.IsFilled:
		return domain.Bet{}, fmt.Errorf("limitorder.Cancel %s: %w", id, domain.ErrAlreadyFilled)
	}
	o.IsCancelled = true
	b.changed[o.ID] = true
	return o.Clone(), nil
}

// Expire cancela las órdenes abiertas caducadas en now. Repetirlo no tiene efecto.
func (b *Book) Expire(now time.Time) []domain.Bet {
	var out []domain.Bet
	for i := range b.orders {
		o := &b.orders[i]
		if o.IsOpen() && o.IsExpired(now) {
			o.IsCancelled = true
			b.changed[o.ID] = true
			out = append(out, o.Clone())
		}
	}
	return out
}

// Changed devuelve las órdenes modificadas desde NewBook.
func (b *Book) Changed() []domain.Bet {
	var out []domain.Bet
	for _, o := range b.orders {
		if b.changed[o.ID] {
			out = append(out, o.Clone())
		}
	}
	return out
}

// SweepResult es el efecto de barrer el libro tras un trade.
type SweepResult struct {
	PoolAfter domain.Pool
	ProbAfter float64
	Fills     []OrderFill // ambos lados, en orden de ejecución
	Cancelled []string
	Rounds    int
}

// Sweep ejecuta las órdenes que el último trade dejó ejecutables, empezando
// por la más alejada del precio, y repite hasta que no quede ninguna. Cada
// ejecución puede mover el precio y disparar otras órdenes. balances (nil si
// los fondos están reservados) se descuenta en sitio.
func Sweep(book *Book, pool domain.Pool, p float64, balances map[string]float64, minPool float64, now time.Time) (SweepResult, error) {
	res := SweepResult{PoolAfter: pool, ProbAfter: domain.Probability(pool, p)}
	maxRounds := 3*len(book.orders) + 4

	for ; res.Rounds < maxRounds; res.Rounds++ {
		order, ok := nextMarketable(book.Open(), res.ProbAfter)
		if !ok {
			break
		}

		avail := order.Remaining()
		if !order.FundsReserved && balances != nil && balances[order.UserID] < avail-FillEpsilon {
			if _, err := book.Cancel(order.ID); err != nil {
				return SweepResult{}, err
			}
			res.Cancelled = append(res.Cancelled, order.ID)
			continue
		}

		f, err := ComputeFills(Input{
			Pool:      res.PoolAfter,
			P:         p,
			Outcome:   order.Outcome,
			Amount:    avail,
			LimitProb: order.LimitProb,
			TakerID:   order.UserID,
			TakerBet:  order.ID,
			Makers:    book.Open(),
			Balances:  balances,
			MinPool:   minPool,
			Now:       now,
		})
		if err != nil {
			return SweepResult{}, fmt.Errorf("limitorder.Sweep %s: %w", order.ID, err)
		}
		for _, id := range f.Cancel {
			if _, err := book.Cancel(id); err == nil {
				res.Cancelled = append(res.Cancelled, id)
			}
		}
		if f.Amount <= FillEpsilon {
			if len(f.Cancel) == 0 {
				break
			}
			continue
		}

		taker := OrderFill{
			OrderID:  order.ID,
			UserID:   order.UserID,
			Outcome:  order.Outcome,
			Amount:   f.Amount,
			Shares:   f.Shares,
			Reserved: order.FundsReserved,
		}
		if err := book.Apply(taker, f.Fills, now); err != nil {
			return SweepResult{}, err
		}
		res.Fills = append(res.Fills, taker)
		debit(balances, taker)

		for _, mf := range f.Makers {
			if err := book.Apply(mf, nil, now); err != nil {
				return SweepResult{}, err
			}
			res.Fills = append(res.Fills, mf)
			debit(balances, mf)
		}

		res.PoolAfter = f.PoolAfter
		res.ProbAfter = f.ProbAfter
	}
	return res, nil
}

func debit(balances map[string]float64, f OrderFill) {
	if balances != nil && !f.Reserved {
		balances[f.UserID] -= f.Amount
	}
}

// nextMarketable elige la orden ejecutable más alejada del precio actual.
func nextMarketable(open []domain.Bet, prob float64) (domain.Bet, bool) {
	var marketable []domain.Bet
	for _, o := range open {
		if Marketable(o, prob) {
			marketable = append(marketable, o)
		}
	}
	if len(marketable) == 0 {
		return domain.Bet{}, false
	}
	sort.SliceStable(marketable, func(i, j int) bool {
		di := math.Abs(prob - marketable[i].LimitProb)
		dj := math.Abs(prob - marketable[j].LimitProb)
		if di != dj {
			return di > dj
		}
		return marketable[i].CreatedAt.Before(marketable[j].CreatedAt)
	})
	return marketable[0], true
}
