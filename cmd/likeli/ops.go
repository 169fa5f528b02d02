package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/alejandrodnm/likeli/config"
	"github.com/alejandrodnm/likeli/internal/adapters/chain"
	"github.com/alejandrodnm/likeli/internal/adapters/notify"
	"github.com/alejandrodnm/likeli/internal/adapters/oracle"
	"github.com/alejandrodnm/likeli/internal/application/engine"
	"github.com/alejandrodnm/likeli/internal/domain"
	"github.com/alejandrodnm/likeli/internal/ports"
)

// runImport lee un volcado JSON de cuentas on-chain y registra cada mercado.
// Los ya importados se saltan.
func runImport(ctx context.Context, eng *engine.Engine, path string, decimals int, out *notify.Console) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	defer f.Close()

	contracts, err := chain.NewDecoder(decimals).Decode(f)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	imported := make([]domain.Contract, 0, len(contracts))
	for _, c := range contracts {
		got, err := eng.ImportMarket(ctx, c)
		if errors.Is(err, domain.ErrInvalidMarket) {
			slog.Warn("import: skipped", "market", c.ID, "err", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		imported = append(imported, got)
	}
	slog.Info("import complete", "read", len(contracts), "imported", len(imported))
	return out.Markets(ctx, imported)
}

// runResolve pide la resolución al oráculo y la aplica en nombre del creador.
func runResolve(ctx context.Context, eng *engine.Engine, store ports.Store, cfg config.OracleConfig, id string, out *notify.Console) error {
	client, err := oracle.NewClient(oracle.Config{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		RatePerSec: cfg.RatePerSec,
		Burst:      cfg.Burst,
	})
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	market, err := store.GetMarket(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	req, err := client.FetchResolution(ctx, id)
	if errors.Is(err, oracle.ErrPending) {
		slog.Info("resolve: oracle has no result yet", "market", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	req.ResolverID = market.CreatorID

	res, err := eng.ResolveMarket(ctx, req)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	slog.Info("resolve: market resolved",
		"market", id,
		"resolution", req.Resolution,
		"answer", req.AnswerID,
		"payouts", len(res.Payouts),
		"total", fmt.Sprintf("$%.2f", res.Total),
		"refunded", fmt.Sprintf("$%.2f", res.Refunded),
	)
	return out.Markets(ctx, []domain.Contract{res.Market})
}

// runReport imprime mercados, posiciones, historial y saldos de todo el store.
func runReport(ctx context.Context, store ports.Store, out *notify.Console) error {
	markets, err := store.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := out.Markets(ctx, markets); err != nil {
		return err
	}

	userIDs := make(map[string]struct{})
	for _, m := range markets {
		userIDs[m.CreatorID] = struct{}{}

		positions, err := store.ListMetrics(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		for _, p := range positions {
			userIDs[p.UserID] = struct{}{}
		}
		points, err := store.PriceHistory(ctx, m.ID, "")
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		fmt.Printf("\n%s\n", m.Question)
		out.Positions(positions)
		out.PriceHistory(points)
	}

	ids := make([]string, 0, len(userIDs))
	for id := range userIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		u, err := store.GetUser(ctx, id)
		if errors.Is(err, domain.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		users = append(users, u)
	}
	out.Balances(users)
	return nil
}
