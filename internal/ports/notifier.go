package ports

import (
	"context"

	"github.com/alejandrodnm/likeli/internal/domain"
)

// Notifier presenta mercados y recibos al usuario.
type Notifier interface {
	// Markets muestra el estado de los mercados.
	// En la implementación de consola, imprime una tabla formateada.
	Markets(ctx context.Context, markets []domain.Contract) error

	// Receipt muestra los bets de una operación.
	Receipt(ctx context.Context, bets []domain.Bet) error
}
