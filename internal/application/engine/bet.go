package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/likeli/internal/application/arbitrage"
	"github.com/alejandrodnm/likeli/internal/application/limitorder"
	"github.com/alejandrodnm/likeli/internal/application/trade"
	"github.com/alejandrodnm/likeli/internal/domain"
)

// Route es el camino por el que se ejecutó un trade.
type Route string

const (
	RouteMatcher   Route = "matcher"   // fase main: libro de la respuesta + pool
	RouteArbitrage Route = "arbitrage" // multi-respuesta sum-to-one
	RoutePool      Route = "pool"      // sandbox y graduating: solo el pool
)

// PlaceBetRequest es una compra a mercado.
type PlaceBetRequest struct {
	ContractID string
	UserID     string
	AnswerID   string // vacío en binarios
	Outcome    domain.Outcome
	Amount     float64
	MinShares  float64 // 0 desactiva la protección de slippage
}

// BetResult es el resultado de PlaceBet.
type BetResult struct {
	Route      Route
	Bets       []domain.Bet
	Shares     float64
	Fees       domain.Fees
	ProbBefore float64
	ProbAfter  float64
	Redeemed   float64
	NewBalance float64
}

// Quote es una simulación de PlaceBet sin efectos.
type Quote struct {
	Route      Route
	Shares     float64
	Fees       domain.Fees
	ProbBefore float64
	ProbAfter  float64
}

// SellRequest vende shares de una posición. Shares 0 vende la posición entera.
type SellRequest struct {
	ContractID string
	UserID     string
	AnswerID   string
	Outcome    domain.Outcome
	Shares     float64
	MinPayout  float64
}

// SellResult es el resultado de SellShares.
type SellResult struct {
	Route      Route
	Bets       []domain.Bet
	Shares     float64
	Payout     float64
	Fees       domain.Fees
	ProbBefore float64
	ProbAfter  float64
	NewBalance float64
}

func (e *Engine) route(c *domain.Contract) Route {
	if m, ok := c.MultipleChoice(); ok && m.ShouldAnswersSumToOne {
		return RouteArbitrage
	}
	if c.Phase == domain.PhaseMain {
		return RouteMatcher
	}
	return RoutePool
}

func validAmount(x float64) bool {
	return x > 0 && !math.IsInf(x, 0) && !math.IsNaN(x)
}

// PlaceBet compra req.Outcome con req.Amount. Tras el trade canjea los pares
// del usuario, paga el bonus de nuevo apostante y barre el libro de la respuesta.
func (e *Engine) PlaceBet(ctx context.Context, req PlaceBetRequest) (BetResult, error) {
	if !validAmount(req.Amount) || !req.Outcome.Valid() {
		return BetResult{}, fmt.Errorf("engine.PlaceBet: amount %v outcome %q: %w", req.Amount, req.Outcome, domain.ErrInvalidAmount)
	}

	var out BetResult
	err := e.withMarket(ctx, "PlaceBet", req.ContractID, func(u *uow) error {
		c := u.market
		if err := c.CheckTradable(req.AnswerID); err != nil {
			return err
		}
		usr, err := u.requireBalance(req.UserID, req.Amount)
		if err != nil {
			return err
		}

		out.Route = e.route(c)
		switch out.Route {
		case RouteMatcher:
			err = u.matchBuy(req, &out)
		case RouteArbitrage:
			err = u.arbitrageBuy(req, &out)
		default:
			err = u.poolBuy(req, &out)
		}
		if err != nil {
			return err
		}
		if err := u.creatorFee(out.Fees); err != nil {
			return err
		}

		u.pricePoints()
		out.Redeemed = u.redeem(req.UserID, req.AnswerID)
		u.bettorBonus(req.UserID)
		u.sweep(req.AnswerID)

		out.NewBalance = usr.Balance
		return nil
	})
	if err != nil {
		return BetResult{}, err
	}

	e.rec.TradeExecuted(string(out.Route), string(req.Outcome), req.Amount)
	slog.Info("engine: bet placed",
		"market", req.ContractID,
		"answer", req.AnswerID,
		"user", req.UserID,
		"route", out.Route,
		"outcome", req.Outcome,
		"amount", fmt.Sprintf("$%.2f", req.Amount),
		"shares", fmt.Sprintf("%.4f", out.Shares),
		"prob", fmt.Sprintf("%.4f → %.4f", out.ProbBefore, out.ProbAfter),
	)
	return out, nil
}

func (u *uow) poolBuy(req PlaceBetRequest, out *BetResult) error {
	res, bet, err := u.e.exec.ApplyBuy(u.market, trade.Request{
		UserID:    req.UserID,
		AnswerID:  req.AnswerID,
		Outcome:   req.Outcome,
		Amount:    req.Amount,
		MinShares: req.MinShares,
	}, u.now)
	if err != nil {
		return err
	}
	bet.ID = u.e.newID()
	if err := u.credit(req.UserID, -req.Amount); err != nil {
		return err
	}
	if err := u.addBets(bet); err != nil {
		return err
	}
	out.Bets = []domain.Bet{bet}
	out.Shares, out.Fees = res.Shares, res.Fees
	out.ProbBefore, out.ProbAfter = res.ProbBefore, res.ProbAfter
	return nil
}

func (u *uow) arbitrageBuy(req PlaceBetRequest, out *BetResult) error {
	m, _ := u.market.MultipleChoice()
	answers, _ := m.SumToOne()
	res, err := u.e.arb.Buy(answers, arbitrage.Request{
		AnswerID:  req.AnswerID,
		Outcome:   req.Outcome,
		Amount:    req.Amount,
		Fees:      u.market.Fees,
		MinShares: req.MinShares,
	})
	if err != nil {
		return err
	}
	if err := arbitrage.Apply(u.market, res); err != nil {
		return err
	}
	bets := arbitrage.Bets(res, req.UserID, u.market.ID, u.e.newID(), u.now, u.e.newID)
	if err := u.credit(req.UserID, -req.Amount); err != nil {
		return err
	}
	if err := u.addBets(bets...); err != nil {
		return err
	}
	out.Bets = bets
	out.Shares, out.Fees = res.Shares, res.Fees
	out.ProbBefore, out.ProbAfter = res.Direct.ProbBefore, res.Direct.ProbAfter
	slog.Debug("engine: arbitrage solved",
		"market", u.market.ID,
		"sibling_shares", fmt.Sprintf("%.4f", res.SiblingShares),
		"bonus", fmt.Sprintf("%.4f", res.RedemptionBonus),
		"iterations", res.Iterations,
		"residual", res.Residual,
	)
	return nil
}

// matchBuy ejecuta una orden de mercado contra el libro y el pool de la respuesta.
func (u *uow) matchBuy(req PlaceBetRequest, out *BetResult) error {
	pool, p, err := u.market.PoolFor(req.AnswerID)
	if err != nil {
		return err
	}
	book, err := u.loadBook(req.AnswerID)
	if err != nil {
		return err
	}
	fees := u.market.Fees.Compute(req.Amount)
	net := req.Amount - fees.Total()
	if net <= 0 {
		return fmt.Errorf("amount %v after fees: %w", req.Amount, domain.ErrInvalidAmount)
	}
	makers := book.Open()
	balances, err := u.balancesFor(makers)
	if err != nil {
		return err
	}

	betID := u.e.newID()
	f, err := limitorder.ComputeFills(limitorder.Input{
		Pool:     *pool,
		P:        p,
		Outcome:  req.Outcome,
		Amount:   net,
		TakerID:  req.UserID,
		TakerBet: betID,
		Makers:   makers,
		Balances: balances,
		MinPool:  u.e.cfg.MinPoolQty,
		Now:      u.now,
	})
	if err != nil {
		return err
	}
	if req.MinShares > 0 && f.Shares < req.MinShares {
		return fmt.Errorf("%.4f shares < min %.4f: %w", f.Shares, req.MinShares, domain.ErrSlippageExceeded)
	}

	if err := u.applyMakers(book, req.AnswerID, f); err != nil {
		return err
	}
	*pool = domain.AddLiquidity(f.PoolAfter, fees.Liquidity)
	u.market.AddVolume(req.AnswerID, req.Amount)
	u.market.CollectedFees = u.market.CollectedFees.Add(fees)

	bet := domain.Bet{
		ID:         betID,
		UserID:     req.UserID,
		ContractID: u.market.ID,
		AnswerID:   req.AnswerID,
		CreatedAt:  u.now,
		Outcome:    req.Outcome,
		Amount:     req.Amount,
		Shares:     f.Shares,
		ProbBefore: f.ProbBefore,
		ProbAfter:  f.ProbAfter,
		Fees:       fees,
		Fills:      f.Fills,
	}
	if err := u.credit(req.UserID, -req.Amount); err != nil {
		return err
	}
	if err := u.addBets(bet); err != nil {
		return err
	}
	u.redeemMakers(req.AnswerID, f.Makers)
	out.Bets = []domain.Bet{bet}
	out.Shares, out.Fees = f.Shares, fees
	out.ProbBefore, out.ProbAfter = f.ProbBefore, f.ProbAfter
	return nil
}

// matchSell vende shares contra el libro y el pool. Vender S YES equivale a
// comprar S NO y fusionar los pares: el vendedor entra como taker del lado
// contrario con tope de S shares y cobra S menos lo que pagó.
func (u *uow) matchSell(req SellRequest, shares float64, out *SellResult) error {
	if shares <= limitorder.FillEpsilon {
		return fmt.Errorf("selling %v shares: %w", shares, domain.ErrInvalidAmount)
	}
	pool, p, err := u.market.PoolFor(req.AnswerID)
	if err != nil {
		return err
	}
	book, err := u.loadBook(req.AnswerID)
	if err != nil {
		return err
	}
	makers := book.Open()
	balances, err := u.balancesFor(makers)
	if err != nil {
		return err
	}

	betID := u.e.newID()
	f, err := limitorder.ComputeFills(limitorder.Input{
		Pool:      *pool,
		P:         p,
		Outcome:   req.Outcome.Opposite(),
		Amount:    shares,
		MaxShares: shares,
		TakerID:   req.UserID,
		TakerBet:  betID,
		Makers:    makers,
		Balances:  balances,
		MinPool:   u.e.cfg.MinPoolQty,
		Now:       u.now,
	})
	if err != nil {
		return err
	}
	if f.Shares < shares-limitorder.FillEpsilon {
		return fmt.Errorf("matched %.4f of %.4f shares: %w", f.Shares, shares, domain.ErrPoolWouldDrain)
	}
	gross := math.Max(0, shares-f.Amount)
	fees := u.market.Fees.Compute(gross)
	payout := gross - fees.Total()
	if req.MinPayout > 0 && payout < req.MinPayout {
		return fmt.Errorf("payout %.4f < min %.4f: %w", payout, req.MinPayout, domain.ErrSlippageExceeded)
	}

	if err := u.applyMakers(book, req.AnswerID, f); err != nil {
		return err
	}
	*pool = domain.AddLiquidity(f.PoolAfter, fees.Liquidity)
	u.market.AddVolume(req.AnswerID, gross)
	u.market.CollectedFees = u.market.CollectedFees.Add(fees)

	// cada compra del lado contrario es una venta de sus mismas shares
	fills := make([]domain.Fill, len(f.Fills))
	for i, fl := range f.Fills {
		fills[i] = domain.Fill{
			MatchedBetID: fl.MatchedBetID,
			Amount:       -(fl.Shares - fl.Amount),
			Shares:       -fl.Shares,
			Timestamp:    fl.Timestamp,
		}
	}
	bet := domain.Bet{
		ID:         betID,
		UserID:     req.UserID,
		ContractID: u.market.ID,
		AnswerID:   req.AnswerID,
		CreatedAt:  u.now,
		Outcome:    req.Outcome,
		Amount:     -payout,
		Shares:     -shares,
		ProbBefore: f.ProbBefore,
		ProbAfter:  f.ProbAfter,
		Fees:       fees,
		Fills:      fills,
	}
	if err := u.credit(req.UserID, payout); err != nil {
		return err
	}
	if err := u.addBets(bet); err != nil {
		return err
	}
	u.redeemMakers(req.AnswerID, f.Makers)
	out.Bets = []domain.Bet{bet}
	out.Payout, out.Fees = payout, fees
	out.ProbBefore, out.ProbAfter = f.ProbBefore, f.ProbAfter
	return nil
}

// applyMakers vuelca en el libro y en las posiciones las ejecuciones de los
// makers y las cancelaciones por falta de saldo.
func (u *uow) applyMakers(book *limitorder.Book, answerID string, f limitorder.Fills) error {
	for _, id := range f.Cancel {
		if _, err := book.Cancel(id); err != nil {
			return err
		}
		slog.Info("engine: limit order cancelled, insufficient balance", "order", id, "market", u.market.ID, "answer", answerID)
	}
	for _, mf := range f.Makers {
		if err := book.Apply(mf, nil, u.now); err != nil {
			return err
		}
		if err := u.applyFill(mf, answerID); err != nil {
			return err
		}
		u.market.AddVolume(answerID, mf.Amount)
	}
	if len(f.Makers) > 0 {
		u.e.rec.OrdersFilled(len(f.Makers))
	}
	return nil
}

// QuoteBet simula PlaceBet sin bloquear ni escribir nada.
func (e *Engine) QuoteBet(ctx context.Context, req PlaceBetRequest) (Quote, error) {
	if !validAmount(req.Amount) || !req.Outcome.Valid() {
		return Quote{}, fmt.Errorf("engine.QuoteBet: amount %v outcome %q: %w", req.Amount, req.Outcome, domain.ErrInvalidAmount)
	}
	c, err := e.store.GetMarket(ctx, req.ContractID)
	if err != nil {
		return Quote{}, fmt.Errorf("engine.QuoteBet: %w", err)
	}
	if err := c.CheckTradable(req.AnswerID); err != nil {
		return Quote{}, fmt.Errorf("engine.QuoteBet: %w", err)
	}

	q := Quote{Route: e.route(&c)}
	switch q.Route {
	case RouteMatcher:
		pool, p, err := c.PoolFor(req.AnswerID)
		if err != nil {
			return Quote{}, fmt.Errorf("engine.QuoteBet: %w", err)
		}
		orders, err := e.store.ListOpenOrders(ctx, c.ID)
		if err != nil {
			return Quote{}, fmt.Errorf("engine.QuoteBet: %w", err)
		}
		q.Fees = c.Fees.Compute(req.Amount)
		f, err := limitorder.ComputeFills(limitorder.Input{
			Pool:    *pool,
			P:       p,
			Outcome: req.Outcome,
			Amount:  req.Amount - q.Fees.Total(),
			TakerID: req.UserID,
			Makers:  forAnswer(orders, req.AnswerID),
			MinPool: e.cfg.MinPoolQty,
			Now:     e.now(),
		})
		if err != nil {
			return Quote{}, fmt.Errorf("engine.QuoteBet: %w", err)
		}
		q.Shares, q.ProbBefore, q.ProbAfter = f.Shares, f.ProbBefore, f.ProbAfter
	case RouteArbitrage:
		m, _ := c.MultipleChoice()
		answers, _ := m.SumToOne()
		res, err := e.arb.Buy(answers, arbitrage.Request{AnswerID: req.AnswerID, Outcome: req.Outcome, Amount: req.Amount, Fees: c.Fees})
		if err != nil {
			return Quote{}, fmt.Errorf("engine.QuoteBet: %w", err)
		}
		q.Shares, q.Fees, q.ProbBefore, q.ProbAfter = res.Shares, res.Fees, res.Direct.ProbBefore, res.Direct.ProbAfter
	default:
		res, err := e.exec.SimulateBuy(&c, trade.Request{AnswerID: req.AnswerID, Outcome: req.Outcome, Amount: req.Amount})
		if err != nil {
			return Quote{}, fmt.Errorf("engine.QuoteBet: %w", err)
		}
		q.Shares, q.Fees, q.ProbBefore, q.ProbAfter = res.Shares, res.Fees, res.ProbBefore, res.ProbAfter
	}
	return q, nil
}

// SellShares vende shares de la posición del usuario. Sigue la secuencia de
// PlaceBet con payout en lugar de coste.
func (e *Engine) SellShares(ctx context.Context, req SellRequest) (SellResult, error) {
	if !req.Outcome.Valid() || req.Shares < 0 || math.IsNaN(req.Shares) || math.IsInf(req.Shares, 0) {
		return SellResult{}, fmt.Errorf("engine.SellShares: shares %v outcome %q: %w", req.Shares, req.Outcome, domain.ErrInvalidAmount)
	}

	var out SellResult
	err := e.withMarket(ctx, "SellShares", req.ContractID, func(u *uow) error {
		c := u.market
		if err := c.CheckTradable(req.AnswerID); err != nil {
			return err
		}
		usr, err := u.user(req.UserID)
		if err != nil {
			return err
		}
		m, err := u.metric(req.UserID, req.AnswerID)
		if err != nil {
			return err
		}
		held := m.Shares(req.Outcome)
		shares := req.Shares
		if shares == 0 {
			shares = held
		}
		if held <= 1e-9 || shares > held+1e-9 {
			return fmt.Errorf("user %s holds %.4f %s shares, selling %.4f: %w",
				req.UserID, held, req.Outcome, shares, domain.ErrInsufficientShares)
		}
		shares = math.Min(shares, held)

		out.Route = e.route(c)
		out.Shares = shares
		switch out.Route {
		case RouteMatcher:
			err = u.matchSell(req, shares, &out)
		case RouteArbitrage:
			err = u.arbitrageSell(req, shares, &out)
		default:
			err = u.poolSell(req, shares, &out)
		}
		if err != nil {
			return err
		}
		if err := u.creatorFee(out.Fees); err != nil {
			return err
		}

		u.pricePoints()
		u.redeem(req.UserID, req.AnswerID)
		u.sweep(req.AnswerID)

		out.NewBalance = usr.Balance
		return nil
	})
	if err != nil {
		return SellResult{}, err
	}

	e.rec.TradeExecuted(string(out.Route)+"_sell", string(req.Outcome), out.Payout)
	slog.Info("engine: shares sold",
		"market", req.ContractID,
		"answer", req.AnswerID,
		"user", req.UserID,
		"outcome", req.Outcome,
		"shares", fmt.Sprintf("%.4f", out.Shares),
		"payout", fmt.Sprintf("$%.2f", out.Payout),
		"prob", fmt.Sprintf("%.4f → %.4f", out.ProbBefore, out.ProbAfter),
	)
	return out, nil
}

func (u *uow) poolSell(req SellRequest, shares float64, out *SellResult) error {
	res, bet, err := u.e.exec.ApplySell(u.market, trade.Request{
		UserID:    req.UserID,
		AnswerID:  req.AnswerID,
		Outcome:   req.Outcome,
		Shares:    shares,
		MinPayout: req.MinPayout,
	}, u.now)
	if err != nil {
		return err
	}
	bet.ID = u.e.newID()
	if err := u.credit(req.UserID, res.Amount); err != nil {
		return err
	}
	if err := u.addBets(bet); err != nil {
		return err
	}
	out.Bets = []domain.Bet{bet}
	out.Payout, out.Fees = res.Amount, res.Fees
	out.ProbBefore, out.ProbAfter = res.ProbBefore, res.ProbAfter
	return nil
}

func (u *uow) arbitrageSell(req SellRequest, shares float64, out *SellResult) error {
	m, _ := u.market.MultipleChoice()
	answers, _ := m.SumToOne()
	res, err := u.e.arb.Sell(answers, arbitrage.Request{
		AnswerID:  req.AnswerID,
		Outcome:   req.Outcome,
		Shares:    shares,
		Fees:      u.market.Fees,
		MinPayout: req.MinPayout,
	})
	if err != nil {
		return err
	}
	if err := arbitrage.Apply(u.market, res); err != nil {
		return err
	}
	bets := arbitrage.Bets(res, req.UserID, u.market.ID, u.e.newID(), u.now, u.e.newID)
	if err := u.credit(req.UserID, res.Amount); err != nil {
		return err
	}
	if err := u.addBets(bets...); err != nil {
		return err
	}
	out.Bets = bets
	out.Payout, out.Fees = res.Amount, res.Fees
	out.ProbBefore, out.ProbAfter = res.Direct.ProbBefore, res.Direct.ProbAfter
	return nil
}
