// Package provider contains the chat-completion backend adapters. Each
// adapter normalizes one wire format (Anthropic-style or OpenAI-compatible)
// into the canonical mbc.ProviderResponse.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/undergrace/mbc/pkg/mbc"
)

// Options selects and configures a concrete backend.
type Options struct {
	// Backend is one of "anthropic", "openai", "openrouter".
	Backend string
	APIKey  string
	BaseURL string

	// OpenRouter rate-limit attribution headers, optional.
	SiteURL  string
	SiteName string
}

// New builds the provider selected by opts.
func New(opts Options) (mbc.Provider, error) {
	switch opts.Backend {
	case "anthropic":
		return NewAnthropic(opts.APIKey, opts.BaseURL)
	case "openai":
		return NewOpenAI(opts.APIKey, opts.BaseURL)
	case "openrouter":
		return NewOpenRouter(opts.APIKey, opts.BaseURL, opts.SiteURL, opts.SiteName)
	default:
		return nil, fmt.Errorf("unsupported provider backend: %q", opts.Backend)
	}
}

// retryable reports whether an HTTP status warrants a retry: server errors
// and rate limits only.
func retryable(status int) bool {
	return status >= 500 || status == 429
}

// completeWithRetry runs the adapter call with the configured per-request
// timeout and retry policy: up to cfg.RetryTimes attempts with a fixed
// cfg.RetrySleepMs pause between them. Non-retryable HTTP errors fail
// immediately. Exhaustion surfaces a ProviderError.
func completeWithRetry(
	ctx context.Context,
	name string,
	cfg mbc.Config,
	status func(error) int,
	call func(context.Context) (*mbc.ProviderResponse, error),
) (*mbc.ProviderResponse, error) {
	attempts := cfg.RetryTimes
	if attempts < 1 {
		attempts = 1
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(mbc.DefaultTimeoutSeconds) * time.Second
	}

	var lastErr error
	var lastStatus int

	for attempt := 0; attempt < attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := call(callCtx)
		cancel()

		if err == nil {
			return resp, nil
		}

		lastErr = err
		lastStatus = status(err)

		if lastStatus > 0 && !retryable(lastStatus) {
			return nil, &mbc.ProviderError{
				Provider:   name,
				StatusCode: lastStatus,
				Message:    "request failed",
				Err:        err,
			}
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, &mbc.ProviderError{Provider: name, Message: "request canceled", Err: ctx.Err()}
			case <-time.After(time.Duration(cfg.RetrySleepMs) * time.Millisecond):
			}
		}
	}

	return nil, &mbc.ProviderError{
		Provider:   name,
		StatusCode: lastStatus,
		Message:    fmt.Sprintf("request failed after %d attempts", attempts),
		Err:        lastErr,
	}
}
