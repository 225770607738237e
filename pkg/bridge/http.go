package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/creasty/defaults"
	"github.com/go-resty/resty/v2"
)

// HTTPConfig configures the HTTP adapter.
type HTTPConfig struct {
	BaseURL       string
	Timeout       time.Duration `default:"15s"`
	MaxRetries    uint64        `default:"2"`
	RetryInterval time.Duration `default:"200ms"`
	Headers       map[string]string
}

// HTTPAdapter forwards capability invocations to an HTTP gateway at
// POST {BaseURL}/capabilities/{capability} with body
// {"action": capability, "config": ..., "variables": ...} and expects a Result
// document back. Transport errors and 5xx responses are retried with
// exponential backoff; 4xx responses fail immediately.
type HTTPAdapter struct {
	config HTTPConfig
	client *resty.Client
	logger *slog.Logger
}

type invokeRequest struct {
	Action    Capability     `json:"action"`
	Config    map[string]any `json:"config"`
	Variables map[string]any `json:"variables"`
}

// NewHTTPAdapter creates an adapter for the gateway at config.BaseURL.
func NewHTTPAdapter(config HTTPConfig, logger *slog.Logger) (*HTTPAdapter, error) {
	if err := defaults.Set(&config); err != nil {
		return nil, fmt.Errorf("failed to apply http adapter defaults: %w", err)
	}

	if config.BaseURL == "" {
		return nil, errors.New("bridge base url is required")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeaders(config.Headers)

	return &HTTPAdapter{
		config: config,
		client: client,
		logger: logger.With("module", "bridge_http"),
	}, nil
}

// Invoke implements Bridge.
func (a *HTTPAdapter) Invoke(ctx context.Context, capability Capability, config map[string]any, variables map[string]any) (Result, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = a.config.RetryInterval
	policy.MaxElapsedTime = 0

	var result Result

	attempt := 0
	operation := func() error {
		attempt++

		var out Result

		resp, err := a.client.R().
			SetContext(ctx).
			SetBody(invokeRequest{Action: capability, Config: config, Variables: variables}).
			SetResult(&out).
			SetError(&out).
			Post("/capabilities/" + string(capability))
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}

			a.logger.DebugContext(ctx, "Bridge request failed", "capability", capability, "attempt", attempt, "error", err)

			return err
		}

		switch {
		case resp.StatusCode() >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %s returned %s", ErrInvocationFailed, capability, resp.Status())
		case resp.IsError():
			if out.Error == "" {
				out.Error = resp.Status()
			}

			out.Success = false
			result = out

			return nil
		default:
			result = out

			return nil
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, a.config.MaxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return Result{}, fmt.Errorf("invoke %s after %d attempt(s): %w", capability, attempt, err)
	}

	return result, nil
}
