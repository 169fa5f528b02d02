package ports

import "context"

// Locker serializa las operaciones sobre un mismo mercado. Lock bloquea hasta
// obtener el lock o hasta que ctx se cancele.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
