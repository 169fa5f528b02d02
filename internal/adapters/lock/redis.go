package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/likeli/internal/ports"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL        = 30 * time.Second
	DefaultRetryEvery = 25 * time.Millisecond
)

// unlockLua borra la clave solo si el valor es nuestro token, para no liberar
// el lock de otro proceso si el nuestro caducó.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// ErrLockHeld indica que otro proceso tiene el lock.
var ErrLockHeld = errors.New("lock held by another process")

// RedisConfig holds the connection and lock parameters.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	Prefix     string
	TTL        time.Duration
	RetryEvery time.Duration
}

// Redis es un lock distribuido con SET NX + TTL y unlock condicional en Lua.
type Redis struct {
	rdb        *redis.Client
	unlock     *redis.Script
	prefix     string
	ttl        time.Duration
	retryEvery time.Duration
}

var _ ports.Locker = (*Redis)(nil)

// NewRedis conecta con Redis y verifica la conexión con PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("lock.NewRedis: ping %s: %w", cfg.Addr, err)
	}
	return NewRedisWithClient(rdb, cfg), nil
}

// NewRedisWithClient usa un cliente ya creado.
func NewRedisWithClient(rdb *redis.Client, cfg RedisConfig) *Redis {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = DefaultRetryEvery
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "likeli:lock:"
	}
	return &Redis{
		rdb:        rdb,
		unlock:     redis.NewScript(unlockLua),
		prefix:     cfg.Prefix,
		ttl:        cfg.TTL,
		retryEvery: cfg.RetryEvery,
	}
}

// TryLock intenta tomar el lock una vez. Devuelve ErrLockHeld si está ocupado.
func (r *Redis) TryLock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	lk := r.prefix + key

	ok, err := r.rdb.SetNX(ctx, lk, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock.Redis %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// contexto propio: el del caller puede estar ya cancelado
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.unlock.Run(unlockCtx, r.rdb, []string{lk}, token).Err()
	}, nil
}

// Lock reintenta TryLock hasta obtener el lock o hasta que ctx se cancele.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	for {
		unlock, err := r.TryLock(ctx, key)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock.Redis %s: %w", key, ctx.Err())
		case <-time.After(r.retryEvery):
		}
	}
}

// Close cierra el cliente.
func (r *Redis) Close() error { return r.rdb.Close() }
