package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/alejandrodnm/likeli/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del servicio.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Sweeper SweeperConfig `yaml:"sweeper"`
	Storage StorageConfig `yaml:"storage"`
	Lock    LockConfig    `yaml:"lock"`
	Metrics MetricsConfig `yaml:"metrics"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Chain   ChainConfig   `yaml:"chain"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig son los parámetros de mercado. Cero = default del engine.
type EngineConfig struct {
	StartingBalance     float64            `yaml:"starting_balance"`
	MinAnte             float64            `yaml:"min_ante"`
	LiquidityMultiplier float64            `yaml:"liquidity_multiplier"`
	MaxAnswers          int                `yaml:"max_answers"`
	MaxQuestionLength   int                `yaml:"max_question_length"`
	UniqueBettorBonus   float64            `yaml:"unique_bettor_bonus"` // negativo lo desactiva
	DefaultPhase        string             `yaml:"default_phase"`       // sandbox | graduating | main
	Fees                domain.FeeSchedule `yaml:"fees"`
	FundsOnFill         bool               `yaml:"funds_on_fill"`
	SweepConcurrency    int                `yaml:"sweep_concurrency"`
}

// SweeperConfig controla la expiración periódica de órdenes límite.
type SweeperConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory | sqlite
	DSN    string `yaml:"dsn"`    // ruta al archivo SQLite, o ":memory:"
}

// LockConfig elige el lock por mercado: local (un proceso) o redis.
type LockConfig struct {
	Driver     string `yaml:"driver"` // local | redis
	RedisAddr  string `yaml:"redis_addr"`
	RedisPass  string `yaml:"redis_password"`
	RedisDB    int    `yaml:"redis_db"`
	Prefix     string `yaml:"prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// MetricsConfig controla el endpoint de Prometheus. Addr vacío = sin servidor.
type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// OracleConfig es el servicio de resoluciones. BaseURL vacío = deshabilitado.
type OracleConfig struct {
	BaseURL    string  `yaml:"base_url"`
	APIKey     string  `yaml:"api_key"`
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
}

// ChainConfig controla la importación de cuentas on-chain.
type ChainConfig struct {
	Decimals int `yaml:"decimals"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse interpreta un YAML ya leído, aplica overrides de entorno y defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SweepInterval devuelve el intervalo del sweeper como time.Duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweeper.IntervalSeconds) * time.Second
}

// LockTTL devuelve el TTL del lock distribuido.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTLSeconds) * time.Second
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("config.Load: storage driver %q", c.Storage.Driver)
	}
	switch c.Lock.Driver {
	case "local", "redis":
	default:
		return fmt.Errorf("config.Load: lock driver %q", c.Lock.Driver)
	}
	if !domain.Phase(c.Engine.DefaultPhase).Valid() {
		return fmt.Errorf("config.Load: default phase %q", c.Engine.DefaultPhase)
	}
	if err := c.Engine.Fees.Validate(); err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LIKELI_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
		if cfg.Storage.Driver == "" {
			cfg.Storage.Driver = "sqlite"
		}
	}
	if v := os.Getenv("LIKELI_REDIS_ADDR"); v != "" {
		cfg.Lock.RedisAddr = v
		cfg.Lock.Driver = "redis"
	}
	if v := os.Getenv("LIKELI_REDIS_PASSWORD"); v != "" {
		cfg.Lock.RedisPass = v
	}
	if v := os.Getenv("LIKELI_ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("LIKELI_FUNDS_ON_FILL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Engine.FundsOnFill = b
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Los parámetros del engine en cero los resuelve el propio engine.
func setDefaults(cfg *Config) {
	if cfg.Engine.DefaultPhase == "" {
		cfg.Engine.DefaultPhase = string(domain.PhaseMain)
	}
	if cfg.Sweeper.IntervalSeconds <= 0 {
		cfg.Sweeper.IntervalSeconds = 30
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "likeli.db"
	}
	if cfg.Lock.Driver == "" {
		cfg.Lock.Driver = "local"
	}
	if cfg.Lock.RedisAddr == "" {
		cfg.Lock.RedisAddr = "localhost:6379"
	}
	if cfg.Lock.Prefix == "" {
		cfg.Lock.Prefix = "likeli:lock:"
	}
	if cfg.Lock.TTLSeconds <= 0 {
		cfg.Lock.TTLSeconds = 30
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "likeli"
	}
	if cfg.Oracle.RatePerSec <= 0 {
		cfg.Oracle.RatePerSec = 5
	}
	if cfg.Oracle.Burst <= 0 {
		cfg.Oracle.Burst = 2
	}
	if cfg.Chain.Decimals <= 0 {
		cfg.Chain.Decimals = 6
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
