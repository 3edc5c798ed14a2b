// Package pushapi talks to the push service's management API.
package pushapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pushrelay/internal/push"
	logx "pushrelay/pkg/logx"
)

var (
	ErrDisabled = errors.New("pushapi: no access token configured")
	ErrNoIden   = errors.New("pushapi: push has no iden")
)

const DefaultBaseURL = "https://api.pushbullet.com"

type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RatePerSec    float64
	Burst         int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 2
	}
	if c.Burst <= 0 {
		c.Burst = 4
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	return c
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("pushapi: status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("pushapi: status %d", e.Code)
}

// Temporary reports whether retrying may help.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:     log.With(logx.String("comp", "pushapi")),
	}
}

// Enabled reports whether a token is configured.
func (c *Client) Enabled() bool { return c != nil && c.cfg.Token != "" }

// Dismiss marks p dismissed upstream.
func (c *Client) Dismiss(ctx context.Context, p push.Normalized) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	if p.Iden == "" {
		return ErrNoIden
	}
	endpoint := c.cfg.BaseURL + "/v2/pushes/" + url.PathEscape(p.Iden)
	return c.do(ctx, http.MethodPost, endpoint, map[string]bool{"dismissed": true})
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	attempts := 1 + c.cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		lastErr = c.once(ctx, method, endpoint, payload)
		if lastErr == nil {
			return nil
		}
		var se *StatusError
		if errors.As(lastErr, &se) && !se.Temporary() {
			return lastErr
		}
		if ctx.Err() != nil || attempt == attempts {
			break
		}

		delay := retryDelay(c.cfg, attempt)
		c.log.Debug("pushapi call failed; retrying",
			logx.String("endpoint", endpoint),
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(lastErr),
		)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, endpoint string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Access-Token", c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pushrelay")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	se := &StatusError{Code: resp.StatusCode}
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &apiErr) == nil {
		se.Message = apiErr.Error.Message
	}
	return se
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1; the delay is for the next attempt.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
