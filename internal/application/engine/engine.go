// Package engine orquesta las operaciones del mercado: crea mercados, enruta
// trades al executor, al arbitraje o al libro de órdenes, canjea pares y
// resuelve. Todo cálculo se hace sobre copias; las escrituras van en un único
// ports.Batch bajo el lock del mercado.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/likeli/internal/application/arbitrage"
	"github.com/alejandrodnm/likeli/internal/application/trade"
	"github.com/alejandrodnm/likeli/internal/domain"
	"github.com/alejandrodnm/likeli/internal/ports"
	"github.com/google/uuid"
)

const (
	DefaultStartingBalance     = 1000
	DefaultMinAnte             = 100
	DefaultLiquidityMultiplier = 50
	DefaultMaxAnswers          = 10
	DefaultMaxQuestionLength   = 200
	DefaultUniqueBettorBonus   = 5
	DefaultSweepConcurrency    = 4
)

// Config holds the engine parameters. Zero values take the defaults.
type Config struct {
	StartingBalance     float64
	MinAnte             float64
	LiquidityMultiplier float64
	MaxAnswers          int
	MaxQuestionLength   int
	MinPoolQty          float64
	UniqueBettorBonus   float64 // negativo desactiva el bonus
	DefaultPhase        domain.Phase
	DefaultFees         domain.FeeSchedule
	// FundsOnFill debita las órdenes límite al ejecutarse en vez de al
	// colocarlas; los makers sin saldo se cancelan al casar.
	FundsOnFill         bool
	SearchTolerance     float64
	SearchMaxIterations int
	SumTolerance        float64
	SweepConcurrency    int
}

func (c *Config) setDefaults() {
	if c.StartingBalance <= 0 {
		c.StartingBalance = DefaultStartingBalance
	}
	if c.MinAnte <= 0 {
		c.MinAnte = DefaultMinAnte
	}
	if c.LiquidityMultiplier <= 0 {
		c.LiquidityMultiplier = DefaultLiquidityMultiplier
	}
	if c.MaxAnswers <= 0 {
		c.MaxAnswers = DefaultMaxAnswers
	}
	if c.MaxQuestionLength <= 0 {
		c.MaxQuestionLength = DefaultMaxQuestionLength
	}
	if c.MinPoolQty <= 0 {
		c.MinPoolQty = domain.DefaultMinPoolQty
	}
	if c.UniqueBettorBonus == 0 {
		c.UniqueBettorBonus = DefaultUniqueBettorBonus
	}
	if !c.DefaultPhase.Valid() {
		c.DefaultPhase = domain.PhaseMain
	}
	if c.SweepConcurrency <= 0 {
		c.SweepConcurrency = DefaultSweepConcurrency
	}
}

// Engine es el orquestador. No guarda estado propio: todo vive en el Store.
type Engine struct {
	store  ports.Store
	locker ports.Locker
	rec    ports.Recorder
	cfg    Config
	exec   *trade.Executor
	arb    *arbitrage.Engine
	now    func() time.Time
	newID  func() string
}

// Option configura dependencias opcionales del engine.
type Option func(*Engine)

// WithClock fija el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator fija el generador de ids (tests).
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithRecorder conecta un recorder de métricas.
func WithRecorder(rec ports.Recorder) Option {
	return func(e *Engine) {
		if rec != nil {
			e.rec = rec
		}
	}
}

// New crea el engine.
func New(store ports.Store, locker ports.Locker, cfg Config, opts ...Option) *Engine {
	cfg.setDefaults()
	e := &Engine{
		store:  store,
		locker: locker,
		rec:    ports.NopRecorder{},
		cfg:    cfg,
		exec:   trade.NewExecutor(cfg.MinPoolQty),
		arb: arbitrage.New(arbitrage.Config{
			MinPool:       cfg.MinPoolQty,
			Tolerance:     cfg.SearchTolerance,
			MaxIterations: cfg.SearchMaxIterations,
			SumTolerance:  cfg.SumTolerance,
		}),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config devuelve la configuración efectiva.
func (e *Engine) Config() Config { return e.cfg }

// withMarket ejecuta fn con el mercado bloqueado y confirma el batch si fn no
// falla. fn trabaja sobre una copia; un error deja el store intacto.
func (e *Engine) withMarket(ctx context.Context, op, contractID string, fn func(u *uow) error) error {
	start := time.Now()
	defer func() { e.rec.ObserveLatency(op, time.Since(start)) }()

	unlock, err := e.locker.Lock(ctx, "market:"+contractID)
	if err != nil {
		return fmt.Errorf("engine.%s: lock %s: %w", op, contractID, err)
	}
	defer unlock()

	c, err := e.store.GetMarket(ctx, contractID)
	if err != nil {
		return fmt.Errorf("engine.%s: %w", op, err)
	}
	u := e.begin(ctx, &c)
	if err := fn(u); err != nil {
		e.rec.TradeFailed(op, err)
		return fmt.Errorf("engine.%s: %w", op, err)
	}
	if err := u.commit(); err != nil {
		e.rec.TradeFailed(op, err)
		return fmt.Errorf("engine.%s: commit: %w", op, err)
	}
	return nil
}

// Balance devuelve el saldo del usuario.
func (e *Engine) Balance(ctx context.Context, userID string) (float64, error) {
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("engine.Balance: %w", err)
	}
	return u.Balance, nil
}

// GetMarket devuelve el estado actual del mercado.
func (e *Engine) GetMarket(ctx context.Context, contractID string) (domain.Contract, error) {
	c, err := e.store.GetMarket(ctx, contractID)
	if err != nil {
		return domain.Contract{}, fmt.Errorf("engine.GetMarket: %w", err)
	}
	return c, nil
}

// GetPriceHistory devuelve la serie de probabilidades de un mercado o de una
// de sus respuestas.
func (e *Engine) GetPriceHistory(ctx context.Context, contractID, answerID string) ([]domain.PricePoint, error) {
	c, err := e.store.GetMarket(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("engine.GetPriceHistory: %w", err)
	}
	if answerID != "" {
		if _, _, err := c.PoolFor(answerID); err != nil {
			return nil, fmt.Errorf("engine.GetPriceHistory: %w", err)
		}
	}
	points, err := e.store.PriceHistory(ctx, contractID, answerID)
	if err != nil {
		return nil, fmt.Errorf("engine.GetPriceHistory: %w", err)
	}
	return points, nil
}
