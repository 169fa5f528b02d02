// Package oracle trae resoluciones de mercados desde un servicio HTTP externo.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alejandrodnm/likeli/internal/domain"
	"github.com/alejandrodnm/likeli/internal/ports"
	"golang.org/x/time/rate"
)

const (
	defaultRatePerSec = 5
	defaultBurst      = 2
	defaultTimeout    = 10 * time.Second

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond

	resolutionsPath = "/resolutions/"
)

// ErrPending indica que el oráculo aún no tiene resultado para el mercado.
var ErrPending = errors.New("oracle: resolution pending")

// Config holds the oracle endpoint settings.
type Config struct {
	BaseURL    string
	APIKey     string
	RatePerSec float64
	Burst      int
	Timeout    time.Duration
	RetryWait  time.Duration // base del backoff; 0 = 500ms
}

// Client es el HTTP client del oráculo con rate limiting y retries.
type Client struct {
	http    *http.Client
	base    string
	apiKey  string
	limiter *rate.Limiter
	retry   time.Duration
}

var _ ports.ResolutionSource = (*Client)(nil)

// NewClient crea un Client. BaseURL es obligatorio.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("oracle.NewClient: empty base url")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("oracle.NewClient: %w", err)
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = baseRetryWait
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		retry:   cfg.RetryWait,
	}, nil
}

// FetchResolution devuelve la resolución publicada para contractID, o
// ErrPending si todavía no hay.
func (c *Client) FetchResolution(ctx context.Context, contractID string) (domain.ResolutionRequest, error) {
	var dto resolutionDTO
	if err := c.get(ctx, c.base+resolutionsPath+url.PathEscape(contractID), &dto); err != nil {
		return domain.ResolutionRequest{}, fmt.Errorf("oracle.FetchResolution %s: %w", contractID, err)
	}
	req, err := mapResolution(contractID, dto)
	if err != nil {
		return domain.ResolutionRequest{}, fmt.Errorf("oracle.FetchResolution %s: %w", contractID, err)
	}
	slog.Debug("oracle: resolution fetched",
		"market", contractID,
		"answer", req.AnswerID,
		"resolution", req.Resolution,
	)
	return req, nil
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, u string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("oracle: rate limited", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return domain.ErrMarketNotFound
		}
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retry
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
