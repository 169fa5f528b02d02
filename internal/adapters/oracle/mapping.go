package oracle

import (
	"fmt"
	"math"
	"strings"

	"github.com/alejandrodnm/likeli/internal/domain"
)

// resolutionDTO es la respuesta de GET /resolutions/{id}.
type resolutionDTO struct {
	ContractID  string   `json:"contractId"`
	Status      string   `json:"status"` // pending | resolved
	Outcome     string   `json:"outcome"`
	AnswerID    string   `json:"answerId"`
	Probability *float64 `json:"probability"`
}

// mapResolution valida el DTO y lo convierte en una petición de resolución.
func mapResolution(contractID string, dto resolutionDTO) (domain.ResolutionRequest, error) {
	if dto.ContractID != "" && dto.ContractID != contractID {
		return domain.ResolutionRequest{}, fmt.Errorf("response for %q: %w", dto.ContractID, domain.ErrInvalidResolution)
	}
	if !strings.EqualFold(dto.Status, "resolved") {
		return domain.ResolutionRequest{}, ErrPending
	}

	res := domain.Resolution(strings.ToUpper(strings.TrimSpace(dto.Outcome)))
	if !res.Valid() {
		return domain.ResolutionRequest{}, fmt.Errorf("outcome %q: %w", dto.Outcome, domain.ErrInvalidResolution)
	}

	req := domain.ResolutionRequest{
		ContractID: contractID,
		AnswerID:   dto.AnswerID,
		Resolution: res,
	}
	if res == domain.ResolutionMkt {
		if dto.Probability == nil {
			return domain.ResolutionRequest{}, fmt.Errorf("MKT without probability: %w", domain.ErrInvalidProbability)
		}
		p := *dto.Probability
		if math.IsNaN(p) || p < 0 || p > 1 {
			return domain.ResolutionRequest{}, fmt.Errorf("probability %v: %w", p, domain.ErrInvalidProbability)
		}
		req.Probability = p
	}
	return req, nil
}
