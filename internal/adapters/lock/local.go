// Package lock serializa las operaciones de cada mercado, en proceso o entre
// procesos vía Redis.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/alejandrodnm/likeli/internal/ports"
)

// Local es un lock por clave dentro del proceso. Cada clave es un semáforo de
// capacidad 1 para poder abandonar la espera si ctx se cancela.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ ports.Locker = (*Local)(nil)

// NewLocal crea un lock en memoria.
func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Lock bloquea key hasta llamar a unlock. unlock es idempotente.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("lock.Local %s: %w", key, ctx.Err())
	}
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}
