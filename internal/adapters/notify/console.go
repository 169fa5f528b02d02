package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/likeli/internal/domain"
	"github.com/alejandrodnm/likeli/internal/ports"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

var _ ports.Notifier = (*Console)(nil)

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Markets imprime el estado de los mercados en el modo configurado.
func (c *Console) Markets(_ context.Context, markets []domain.Contract) error {
	if len(markets) == 0 {
		fmt.Fprintf(c.out, "[%s] no markets\n", time.Now().Format("15:04:05"))
		return nil
	}
	if c.table {
		c.printMarkets(markets)
	} else {
		c.printCompact(markets)
	}
	return nil
}

// printCompact imprime una línea por ejecución con los mercados más activos.
func (c *Console) printCompact(markets []domain.Contract) {
	now := time.Now().Format("15:04:05")
	open, resolved := countByStatus(markets)

	sorted := append([]domain.Contract(nil), markets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Volume > sorted[j].Volume })

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d mkts → open:%d resolved:%d", now, len(markets), open, resolved)
	for i, m := range sorted {
		if i >= 4 {
			break
		}
		fmt.Fprintf(&sb, " | %s %s vol$%.0f", compactName(m.Question, 25), probLabel(m), m.Volume)
	}
	fmt.Fprintln(c.out, sb.String())
}

// printMarkets imprime la tabla completa; los multi-respuesta llevan una fila
// por respuesta debajo.
func (c *Console) printMarkets(markets []domain.Contract) {
	open, resolved := countByStatus(markets)
	fmt.Fprintf(c.out, "\n[%s] %d markets, open:%d resolved:%d\n",
		time.Now().Format("15:04:05"), len(markets), open, resolved)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Type", "Phase", "Prob", "Volume", "Liquidity", "Bettors", "Status")
	for i, m := range markets {
		table.Append(
			fmt.Sprintf("%d", i+1),
			truncate(m.Question, 38),
			typeLabel(m),
			string(m.Phase),
			probLabel(m),
			fmt.Sprintf("$%.2f", m.Volume),
			fmt.Sprintf("$%.0f", m.TotalLiquidity),
			fmt.Sprintf("%d", len(m.UniqueBettorIDs)),
			statusLabel(m),
		)
		mc, ok := m.MultipleChoice()
		if !ok {
			continue
		}
		for _, a := range mc.Answers {
			status := "open"
			if a.IsResolved() {
				status = string(a.Resolution)
			}
			table.Append(
				"",
				"  └ "+truncate(a.Text, 34),
				"",
				"",
				fmt.Sprintf("%.1f%%", a.Probability()*100),
				fmt.Sprintf("$%.2f", a.Volume),
				"",
				"",
				status,
			)
		}
	}
	table.Render()

	fmt.Fprintln(c.out, "  Prob = probabilidad implícita de YES (binario) o de la respuesta favorita")
}

// Receipt imprime los bets de una operación.
func (c *Console) Receipt(_ context.Context, bets []domain.Bet) error {
	if len(bets) == 0 {
		fmt.Fprintln(c.out, "  (no bets)")
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Bet", "Kind", "Answer", "Outcome", "Amount", "Shares", "Prob", "Fees")
	var total, fees float64
	for _, b := range bets {
		total += b.Amount
		fees += b.Fees.Total()
		table.Append(
			shortID(b.ID),
			betKind(b),
			dash(shortID(b.AnswerID)),
			string(b.Outcome),
			fmt.Sprintf("$%.2f", b.Amount),
			fmt.Sprintf("%.4f", b.Shares),
			fmt.Sprintf("%.4f → %.4f", b.ProbBefore, b.ProbAfter),
			fmt.Sprintf("$%.2f", b.Fees.Total()),
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  Net: $%.2f  Fees: $%.2f  Legs: %d\n", total, fees, len(bets))
	return nil
}

// PriceHistory imprime la serie de probabilidades.
func (c *Console) PriceHistory(points []domain.PricePoint) {
	if len(points) == 0 {
		fmt.Fprintln(c.out, "  (no price history)")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Answer", "Prob", "Δ")
	last := make(map[string]float64)
	for _, p := range points {
		delta := "-"
		if prev, ok := last[p.AnswerID]; ok {
			delta = fmt.Sprintf("%+.2f%%", (p.Probability-prev)*100)
		}
		last[p.AnswerID] = p.Probability
		table.Append(
			p.Timestamp.Format("01-02 15:04:05"),
			dash(shortID(p.AnswerID)),
			fmt.Sprintf("%.2f%%", p.Probability*100),
			delta,
		)
	}
	table.Render()
}

// Positions imprime las posiciones de un mercado.
func (c *Console) Positions(metrics []domain.ContractMetric) {
	var rows []domain.ContractMetric
	for _, m := range metrics {
		if m.HasShares() || m.Payout > 0 {
			rows = append(rows, m)
		}
	}
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "  (no open positions)")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("User", "Answer", "YES", "NO", "Invested", "Payout", "Profit")
	for _, m := range rows {
		table.Append(
			m.UserID,
			dash(shortID(m.AnswerID)),
			fmt.Sprintf("%.2f", m.YesShares),
			fmt.Sprintf("%.2f", m.NoShares),
			fmt.Sprintf("$%.2f", m.Invested),
			fmt.Sprintf("$%.2f", m.Payout),
			fmt.Sprintf("$%.2f", m.Profit),
		)
	}
	table.Render()
}

// Balances imprime saldos de usuarios.
func (c *Console) Balances(users []domain.User) {
	table := tablewriter.NewWriter(c.out)
	table.Header("User", "Balance", "Bonus", "PnL")
	for _, u := range users {
		table.Append(
			u.ID,
			fmt.Sprintf("$%.2f", u.Balance),
			fmt.Sprintf("$%.2f", u.BonusEarned),
			fmt.Sprintf("$%+.2f", u.Balance-u.TotalDeposits),
		)
	}
	table.Render()
}

// --- helpers ---

func countByStatus(markets []domain.Contract) (open, resolved int) {
	for _, m := range markets {
		if m.IsResolved() {
			resolved++
		} else {
			open++
		}
	}
	return
}

func typeLabel(m domain.Contract) string {
	mc, ok := m.MultipleChoice()
	if !ok {
		return "binary"
	}
	if mc.ShouldAnswersSumToOne {
		return fmt.Sprintf("multi(%d)", len(mc.Answers))
	}
	return fmt.Sprintf("indep(%d)", len(mc.Answers))
}

func probLabel(m domain.Contract) string {
	switch o := m.Outcomes.(type) {
	case *domain.Binary:
		return fmt.Sprintf("%.1f%%", domain.Probability(o.Pool, o.P)*100)
	case *domain.MultipleChoice:
		best := -1
		for i, a := range o.Answers {
			if best < 0 || a.Probability() > o.Answers[best].Probability() {
				best = i
			}
		}
		if best >= 0 {
			a := o.Answers[best]
			return fmt.Sprintf("%s %.1f%%", compactName(a.Text, 12), a.Probability()*100)
		}
	}
	return "-"
}

func statusLabel(m domain.Contract) string {
	if !m.IsResolved() {
		return "open"
	}
	if m.Resolution == domain.ResolutionMkt {
		return fmt.Sprintf("MKT %.0f%%", m.ResolutionProbability*100)
	}
	return string(m.Resolution)
}

func betKind(b domain.Bet) string {
	switch {
	case b.IsRedemption:
		return "redeem"
	case b.IsLimitOrder():
		switch {
		case b.IsFilled:
			return "limit (filled)"
		case b.IsCancelled:
			return "limit (cancelled)"
		}
		return fmt.Sprintf("limit @%.2f", b.LimitProb)
	case b.Amount < 0:
		return "sell"
	}
	return "buy"
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:8] + ".."
	}
	return id
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
