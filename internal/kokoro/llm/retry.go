package llm

import (
	"context"

	"github.com/bdobrica/Kokoro/common/retry"
)

// retryingProvider wraps another Provider with exponential-backoff retries.
// Hosted completion APIs fail transiently often enough that a turn should
// not degrade to the apology path on the first hiccup.
type retryingProvider struct {
	inner Provider
	cfg   retry.Config
}

// NewRetrying returns a Provider that retries transient Complete failures.
// A zero cfg uses retry.DefaultConfig.
func NewRetrying(inner Provider, cfg retry.Config) Provider {
	if cfg.MaxAttempts == 0 {
		cfg = retry.DefaultConfig
	}
	return &retryingProvider{inner: inner, cfg: cfg}
}

func (p *retryingProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var resp *CompletionResponse
	err := retry.Do(ctx, p.cfg, func() error {
		var err error
		resp, err = p.inner.Complete(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
