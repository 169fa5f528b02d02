package storage

// sqlite.go: persistencia del engine en SQLite (pure Go, sin CGo).
//
// Estrategia:
//   - `markets`: una fila por mercado con el contrato serializado en JSON
//     (variante binaria o multi-respuesta etiquetada por outcomeType).
//   - `bets`: una fila por bet (UPSERT por id). Las órdenes límite abiertas se
//     indexan con `is_open` para cargar el libro sin leer todo el historial.
//   - `users` y `metrics` en columnas: los saldos se actualizan con
//     `balance = balance + ?` dentro de la transacción y se comprueban antes
//     del commit, así dos mercados que cobran al mismo usuario no lo dejan en negativo.
//   - `price_points`: append-only, ordenados por id de inserción.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/likeli/internal/domain"
	"github.com/alejandrodnm/likeli/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS markets (
    id          TEXT PRIMARY KEY,
    data        TEXT    NOT NULL,
    created_at  INTEGER NOT NULL,
    resolved    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS users (
    id             TEXT PRIMARY KEY,
    balance        REAL    NOT NULL DEFAULT 0,
    total_deposits REAL    NOT NULL DEFAULT 0,
    bonus_earned   REAL    NOT NULL DEFAULT 0,
    created_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bets (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT    NOT NULL UNIQUE,
    contract_id TEXT    NOT NULL,
    user_id     TEXT    NOT NULL,
    created_at  INTEGER NOT NULL,
    is_open     INTEGER NOT NULL DEFAULT 0,
    data        TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS metrics (
    user_id     TEXT    NOT NULL,
    contract_id TEXT    NOT NULL,
    answer_id   TEXT    NOT NULL DEFAULT '',
    yes_shares  REAL    NOT NULL DEFAULT 0,
    no_shares   REAL    NOT NULL DEFAULT 0,
    invested    REAL    NOT NULL DEFAULT 0,
    payout      REAL    NOT NULL DEFAULT 0,
    profit      REAL    NOT NULL DEFAULT 0,
    last_bet_at INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, contract_id, answer_id)
);

CREATE TABLE IF NOT EXISTS price_points (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    contract_id TEXT    NOT NULL,
    answer_id   TEXT    NOT NULL DEFAULT '',
    ts          INTEGER NOT NULL,
    probability REAL    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bets_contract ON bets(contract_id, seq);
CREATE INDEX IF NOT EXISTS idx_bets_open     ON bets(contract_id, is_open);
CREATE INDEX IF NOT EXISTS idx_metrics_cid   ON metrics(contract_id);
CREATE INDEX IF NOT EXISTS idx_prices_cid    ON price_points(contract_id, answer_id, id);
`

// SQLiteStorage implementa ports.Store usando SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ ports.Store = (*SQLiteStorage)(nil)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) GetMarket(ctx context.Context, id string) (domain.Contract, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM markets WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Contract{}, fmt.Errorf("storage.GetMarket %s: %w", id, domain.ErrMarketNotFound)
	}
	if err != nil {
		return domain.Contract{}, fmt.Errorf("storage.GetMarket %s: %w", id, err)
	}
	var c domain.Contract
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return domain.Contract{}, fmt.Errorf("storage.GetMarket %s: decode: %w", id, err)
	}
	return c, nil
}

func (s *SQLiteStorage) ListMarkets(ctx context.Context) ([]domain.Contract, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM markets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListMarkets: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Contract
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("storage.ListMarkets: scan row: %w", err)
		}
		var c domain.Contract
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("storage.ListMarkets: decode: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (domain.User, error) {
	var (
		u       domain.User
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, balance, total_deposits, bonus_earned, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Balance, &u.TotalDeposits, &u.BonusEarned, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("storage.GetUser %s: %w", id, domain.ErrUserNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("storage.GetUser %s: %w", id, err)
	}
	u.CreatedAt = fromNanos(created)
	return u, nil
}

func (s *SQLiteStorage) GetBet(ctx context.Context, id string) (domain.Bet, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM bets WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bet{}, fmt.Errorf("storage.GetBet %s: %w", id, domain.ErrOrderNotFound)
	}
	if err != nil {
		return domain.Bet{}, fmt.Errorf("storage.GetBet %s: %w", id, err)
	}
	var b domain.Bet
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return domain.Bet{}, fmt.Errorf("storage.GetBet %s: decode: %w", id, err)
	}
	return b, nil
}

func (s *SQLiteStorage) ListBets(ctx context.Context, contractID string) ([]domain.Bet, error) {
	return s.queryBets(ctx, "storage.ListBets",
		`SELECT data FROM bets WHERE contract_id = ? ORDER BY seq`, contractID)
}

func (s *SQLiteStorage) ListOpenOrders(ctx context.Context, contractID string) ([]domain.Bet, error) {
	return s.queryBets(ctx, "storage.ListOpenOrders",
		`SELECT data FROM bets WHERE contract_id = ? AND is_open = 1 ORDER BY created_at, seq`, contractID)
}

func (s *SQLiteStorage) queryBets(ctx context.Context, op, query string, args ...any) ([]domain.Bet, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Bet
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		var b domain.Bet
		if err := json.Unmarshal([]byte(data), &b); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const metricColumns = `user_id, contract_id, answer_id, yes_shares, no_shares, invested, payout, profit, last_bet_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMetric(r rowScanner) (domain.ContractMetric, error) {
	var (
		m    domain.ContractMetric
		last int64
	)
	if err := r.Scan(&m.UserID, &m.ContractID, &m.AnswerID, &m.YesShares, &m.NoShares,
		&m.Invested, &m.Payout, &m.Profit, &last); err != nil {
		return domain.ContractMetric{}, err
	}
	m.LastBetAt = fromNanos(last)
	return m, nil
}

func (s *SQLiteStorage) GetMetric(ctx context.Context, key domain.MetricKey) (domain.ContractMetric, error) {
	m, err := scanMetric(s.db.QueryRowContext(ctx,
		`SELECT `+metricColumns+` FROM metrics WHERE user_id = ? AND contract_id = ? AND answer_id = ?`,
		key.UserID, key.ContractID, key.AnswerID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ContractMetric{UserID: key.UserID, ContractID: key.ContractID, AnswerID: key.AnswerID}, nil
	}
	if err != nil {
		return domain.ContractMetric{}, fmt.Errorf("storage.GetMetric: %w", err)
	}
	return m, nil
}

func (s *SQLiteStorage) ListMetrics(ctx context.Context, contractID string) ([]domain.ContractMetric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+metricColumns+` FROM metrics WHERE contract_id = ? ORDER BY user_id, answer_id`, contractID)
	if err != nil {
		return nil, fmt.Errorf("storage.ListMetrics: query: %w", err)
	}
	defer rows.Close()

	var out []domain.ContractMetric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListMetrics: scan row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) PriceHistory(ctx context.Context, contractID, answerID string) ([]domain.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT contract_id, answer_id, ts, probability
		FROM price_points
		WHERE contract_id = ? AND (? = '' OR answer_id = ?)
		ORDER BY ts, id
	`, contractID, answerID, answerID)
	if err != nil {
		return nil, fmt.Errorf("storage.PriceHistory: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PricePoint
	for rows.Next() {
		var (
			p  domain.PricePoint
			ts int64
		)
		if err := rows.Scan(&p.ContractID, &p.AnswerID, &ts, &p.Probability); err != nil {
			return nil, fmt.Errorf("storage.PriceHistory: scan row: %w", err)
		}
		p.Timestamp = fromNanos(ts)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Commit aplica el batch en una transacción. Los saldos se comprueban tras
// aplicar los deltas; si alguno queda negativo se hace rollback.
func (s *SQLiteStorage) Commit(ctx context.Context, b ports.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Commit: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, u := range b.NewUsers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, balance, total_deposits, bonus_earned, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, u.ID, u.Balance, u.TotalDeposits, u.BonusEarned, toNanos(u.CreatedAt)); err != nil {
			return fmt.Errorf("storage.Commit: insert user %s: %w", u.ID, err)
		}
	}

	for id, delta := range b.BalanceDeltas {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET balance = balance + ?, bonus_earned = bonus_earned + ? WHERE id = ?`,
			delta, b.BonusDeltas[id], id)
		if err != nil {
			return fmt.Errorf("storage.Commit: update balance %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("storage.Commit: user %s: %w", id, domain.ErrUserNotFound)
		}
		var balance float64
		if err := tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = ?`, id).Scan(&balance); err != nil {
			return fmt.Errorf("storage.Commit: read balance %s: %w", id, err)
		}
		if balance < -balanceEpsilon {
			return fmt.Errorf("storage.Commit: user %s balance %.4f: %w", id, balance, domain.ErrInsufficientBalance)
		}
	}

	if b.Market != nil {
		data, err := json.Marshal(b.Market)
		if err != nil {
			return fmt.Errorf("storage.Commit: encode market %s: %w", b.Market.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO markets (id, data, created_at, resolved) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data, resolved = excluded.resolved
		`, b.Market.ID, string(data), toNanos(b.Market.CreatedAt), boolInt(b.Market.IsResolved())); err != nil {
			return fmt.Errorf("storage.Commit: upsert market %s: %w", b.Market.ID, err)
		}
	}

	if len(b.Bets) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO bets (id, contract_id, user_id, created_at, is_open, data)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				is_open = excluded.is_open,
				data    = excluded.data
		`)
		if err != nil {
			return fmt.Errorf("storage.Commit: prepare bets: %w", err)
		}
		defer stmt.Close()
		for _, bet := range b.Bets {
			data, err := json.Marshal(bet)
			if err != nil {
				return fmt.Errorf("storage.Commit: encode bet %s: %w", bet.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, bet.ID, bet.ContractID, bet.UserID,
				toNanos(bet.CreatedAt), boolInt(bet.IsOpen()), string(data)); err != nil {
				return fmt.Errorf("storage.Commit: upsert bet %s: %w", bet.ID, err)
			}
		}
	}

	if len(b.Metrics) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO metrics (`+metricColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, contract_id, answer_id) DO UPDATE SET
				yes_shares  = excluded.yes_shares,
				no_shares   = excluded.no_shares,
				invested    = excluded.invested,
				payout      = excluded.payout,
				profit      = excluded.profit,
				last_bet_at = excluded.last_bet_at
		`)
		if err != nil {
			return fmt.Errorf("storage.Commit: prepare metrics: %w", err)
		}
		defer stmt.Close()
		for _, m := range b.Metrics {
			if _, err := stmt.ExecContext(ctx, m.UserID, m.ContractID, m.AnswerID,
				m.YesShares, m.NoShares, m.Invested, m.Payout, m.Profit, toNanos(m.LastBetAt)); err != nil {
				return fmt.Errorf("storage.Commit: upsert metric %s/%s: %w", m.UserID, m.ContractID, err)
			}
		}
	}

	for _, p := range b.PricePoints {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO price_points (contract_id, answer_id, ts, probability) VALUES (?, ?, ?, ?)`,
			p.ContractID, p.AnswerID, toNanos(p.Timestamp), p.Probability,
		); err != nil {
			return fmt.Errorf("storage.Commit: insert price point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Commit: commit: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
