package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/likeli/internal/application/limitorder"
	"github.com/alejandrodnm/likeli/internal/domain"
	"golang.org/x/sync/errgroup"
)

// ExpireResult resume un barrido de expiración.
type ExpireResult struct {
	Markets  int
	Expired  int
	Refunded float64
}

// ExpireOrders cancela las órdenes caducadas de todos los mercados y devuelve
// lo reservado sin ejecutar. Los mercados se procesan en paralelo, cada uno
// bajo su lock. Repetirlo sin órdenes nuevas no tiene efecto.
func (e *Engine) ExpireOrders(ctx context.Context) (ExpireResult, error) {
	markets, err := e.store.ListMarkets(ctx)
	if err != nil {
		return ExpireResult{}, fmt.Errorf("engine.ExpireOrders: %w", err)
	}

	var (
		mu  sync.Mutex
		out ExpireResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.SweepConcurrency)
	for _, c := range markets {
		if c.IsResolved() || e.route(&c) != RouteMatcher {
			continue
		}
		id := c.ID
		g.Go(func() error {
			n, refunded, err := e.expireMarket(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			out.Markets++
			out.Expired += n
			out.Refunded += refunded
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, fmt.Errorf("engine.ExpireOrders: %w", err)
	}

	if out.Expired > 0 {
		e.rec.OrdersExpired(out.Expired)
		slog.Info("engine: expired limit orders",
			"orders", out.Expired,
			"markets", out.Markets,
			"refunded", fmt.Sprintf("$%.2f", out.Refunded),
		)
	} else {
		slog.Debug("engine: expiry sweep found nothing", "markets", out.Markets)
	}
	return out, nil
}

func (e *Engine) expireMarket(ctx context.Context, contractID string) (int, float64, error) {
	var (
		n        int
		refunded float64
	)
	err := e.withMarket(ctx, "ExpireOrders", contractID, func(u *uow) error {
		books, err := u.openBooks()
		if err != nil {
			return err
		}
		for _, book := range books {
			expired := book.Expire(u.now)
			for _, o := range expired {
				r, err := refundOrder(u, o)
				if err != nil {
					return err
				}
				refunded += r
			}
			n += len(expired)
		}
		return nil
	})
	return n, refunded, err
}

// refundOrder devuelve lo reservado y no ejecutado de una orden cancelada.
func refundOrder(u *uow, o domain.Bet) (float64, error) {
	r := o.Remaining()
	if !o.FundsReserved || r <= limitorder.FillEpsilon {
		return 0, nil
	}
	return r, u.credit(o.UserID, r)
}
