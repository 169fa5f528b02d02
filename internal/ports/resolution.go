package ports

import (
	"context"

	"github.com/alejandrodnm/likeli/internal/domain"
)

// ResolutionSource obtiene resoluciones calculadas fuera del engine (oráculo).
type ResolutionSource interface {
	// FetchResolution devuelve la resolución del contrato. ResolverID viene
	// vacío; el caller decide en nombre de quién se aplica.
	FetchResolution(ctx context.Context, contractID string) (domain.ResolutionRequest, error)
}
