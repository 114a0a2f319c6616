package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/LeventeLantos/message-relay/internal/model"
)

// timestampLayout is ISO-8601 local time with microseconds and no zone.
const timestampLayout = "2006-01-02T15:04:05.000000"

type Options struct {
	Timeout     time.Duration
	MaxAttempts int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 2 * time.Second
	}
	if o.BackoffMax < o.BackoffMin {
		o.BackoffMax = max(10*time.Second, o.BackoffMin)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// StatusError is a provider answer with status >= 400.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s provider: unexpected status code: %d body=%q", e.Provider, e.StatusCode, e.Body)
}

// Provider posts JSON to one fixed endpoint over its own pooled connection set.
type Provider struct {
	name   string
	url    string
	client *http.Client
	opts   Options
	log    *slog.Logger
}

func newProvider(name, url string, opts Options) *Provider {
	opts = opts.withDefaults()
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Provider{
		name: name,
		url:  url,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts: opts,
		log:  opts.Logger.With("component", "provider", "provider", name),
	}
}

func (p *Provider) Name() string { return p.name }

// Close drops pooled connections. The provider must not be used afterwards.
func (p *Provider) Close() {
	p.client.CloseIdleConnections()
}

// backoff is the wait before attempt n+1: BackoffMin doubled per attempt, capped.
func (p *Provider) backoff(attempt int) time.Duration {
	d := p.opts.BackoffMin
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.opts.BackoffMax {
			return p.opts.BackoffMax
		}
	}
	return min(d, p.opts.BackoffMax)
}

// post sends payload, retrying only on status-level failures. Transport
// errors such as refused connections surface immediately.
func (p *Provider) post(ctx context.Context, payload any) (*model.ProviderResponse, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := p.backoff(attempt - 1)
			p.log.Warn("retrying provider request", "attempt", attempt, "backoff", wait, "err", lastErr)
			select {
			case <-ctx.Done():
				return nil, errors.Join(lastErr, ctx.Err())
			case <-time.After(wait):
			}
		}

		resp, err := p.do(ctx, reqBody)
		if err == nil {
			return resp, nil
		}

		var se *StatusError
		if !errors.As(err, &se) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", p.opts.MaxAttempts, lastErr)
}

func (p *Provider) do(ctx context.Context, reqBody []byte) (*model.ProviderResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w", p.name, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{Provider: p.name, StatusCode: resp.StatusCode, Body: string(body)}
	}

	out := &model.ProviderResponse{StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(body, &out.Body); err != nil {
		return nil, fmt.Errorf("%s provider: failed to decode json: %w body=%q", p.name, err, string(body))
	}
	return out, nil
}
