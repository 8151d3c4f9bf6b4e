package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"asklegal/internal/model"

	log "github.com/sirupsen/logrus"
)

// RetryConfig controls retries of outbound model calls. Admins can change it
// at runtime.
type RetryConfig struct {
	Enabled           bool
	MaxAttempts       int
	MaxBodyBytes      int64
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	RetryOn429        bool
	RetryOn5xx        bool
	RespectRetryAfter bool
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		Enabled:           true,
		MaxAttempts:       3,
		MaxBodyBytes:      4 << 20,
		BackoffBase:       200 * time.Millisecond,
		BackoffMax:        3 * time.Second,
		RetryOn429:        true,
		RetryOn5xx:        true,
		RespectRetryAfter: true,
	}
}

func RetryConfigFromModel(m model.RetryConfigRequest) *RetryConfig {
	return &RetryConfig{
		Enabled:           m.Enabled,
		MaxAttempts:       m.MaxAttempts,
		MaxBodyBytes:      m.MaxBodyBytes,
		BackoffBase:       time.Duration(m.BackoffBaseMs) * time.Millisecond,
		BackoffMax:        time.Duration(m.BackoffMaxMs) * time.Millisecond,
		RetryOn429:        m.RetryOn429,
		RetryOn5xx:        m.RetryOn5xx,
		RespectRetryAfter: m.RespectRetryAfter,
	}
}

func (c *RetryConfig) Model() model.RetryConfigResponse {
	return model.RetryConfigResponse{
		Enabled:           c.Enabled,
		MaxAttempts:       c.MaxAttempts,
		MaxBodyBytes:      c.MaxBodyBytes,
		BackoffBaseMs:     c.BackoffBase.Milliseconds(),
		BackoffMaxMs:      c.BackoffMax.Milliseconds(),
		RetryOn429:        c.RetryOn429,
		RetryOn5xx:        c.RetryOn5xx,
		RespectRetryAfter: c.RespectRetryAfter,
	}
}

// RetryTransport is an http.RoundTripper that replays idempotent-enough
// model requests on transient network errors, 429 and 5xx.
type RetryTransport struct {
	Base http.RoundTripper
	cfg  *RetryConfig
	mu   sync.RWMutex
}

var (
	defaultTransport     *RetryTransport
	defaultTransportOnce sync.Once
)

// DefaultTransport is the process-wide transport shared by all clients so a
// config change applies everywhere.
func DefaultTransport() *RetryTransport {
	defaultTransportOnce.Do(func() {
		defaultTransport = NewRetryTransport(nil, nil)
	})
	return defaultTransport
}

func NewRetryTransport(base http.RoundTripper, cfg *RetryConfig) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryTransport{Base: base, cfg: cfg}
}

func (rt *RetryTransport) UpdateConfig(cfg *RetryConfig) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.cfg = cfg
}

func (rt *RetryTransport) Config() *RetryConfig {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.cfg
}

type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

func (rt *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cfg := rt.Config()
	if !cfg.Enabled || cfg.MaxAttempts <= 1 {
		return rt.Base.RoundTrip(req)
	}

	bodyBytes, canRetry, err := cacheRequestBody(req, cfg.MaxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to cache request body: %w", err)
	}
	if !canRetry {
		log.Debug("llm retry: request body too large, skipping retry")
		return rt.Base.RoundTrip(req)
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := req.Context().Err(); err != nil {
			return nil, err
		}

		resp, err := rt.Base.RoundTrip(cloneRequest(req, bodyBytes))
		if err != nil {
			lastErr = err
			if shouldRetryError(err) && attempt < cfg.MaxAttempts {
				logRetryAttempt(req, attempt, cfg.MaxAttempts, err, nil)
				backoff(req.Context(), attempt, cfg, nil)
				continue
			}
			return nil, err
		}

		if shouldRetryStatus(resp.StatusCode, cfg) && attempt < cfg.MaxAttempts {
			retryAfter := parseRetryAfter(resp, cfg)
			logRetryAttempt(req, attempt, cfg.MaxAttempts, nil, resp)
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			_ = resp.Body.Close()
			backoff(req.Context(), attempt, cfg, retryAfter)
			continue
		}

		if attempt > 1 {
			log.Infof("llm retry: request succeeded after %d attempts: %s %s", attempt, req.Method, req.URL.Path)
		}
		return resp, nil
	}

	return nil, &RetryExhaustedError{Attempts: cfg.MaxAttempts, LastErr: lastErr}
}

func cacheRequestBody(req *http.Request, maxBytes int64) ([]byte, bool, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, true, nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultRetryConfig().MaxBodyBytes
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, maxBytes+1))
	if err != nil {
		return nil, false, err
	}
	_ = req.Body.Close()

	if int64(len(data)) > maxBytes {
		req.Body = io.NopCloser(bytes.NewReader(data))
		return nil, false, nil
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.ContentLength = int64(len(data))
	return data, true, nil
}

func cloneRequest(req *http.Request, body []byte) *http.Request {
	clone := req.Clone(req.Context())
	if body == nil {
		clone.Body = http.NoBody
		clone.ContentLength = 0
	} else {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.ContentLength = int64(len(body))
	}
	return clone
}

func shouldRetryError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			errors.Is(opErr.Err, syscall.ETIMEDOUT) ||
			errors.Is(opErr.Err, syscall.EPIPE) {
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset", "connection refused", "i/o timeout", "broken pipe", "eof"} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

func shouldRetryStatus(status int, cfg *RetryConfig) bool {
	if status == http.StatusTooManyRequests {
		return cfg.RetryOn429
	}
	if cfg.RetryOn5xx {
		switch status {
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

func parseRetryAfter(resp *http.Response, cfg *RetryConfig) *time.Duration {
	if !cfg.RespectRetryAfter {
		return nil
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return nil
	}

	var seconds int
	if _, err := fmt.Sscanf(v, "%d", &seconds); err == nil {
		d := time.Duration(seconds) * time.Second
		if cfg.BackoffMax > 0 && d > cfg.BackoffMax {
			d = cfg.BackoffMax
		}
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			if cfg.BackoffMax > 0 && d > cfg.BackoffMax {
				d = cfg.BackoffMax
			}
			return &d
		}
	}
	return nil
}

func backoff(ctx context.Context, attempt int, cfg *RetryConfig, retryAfter *time.Duration) {
	var delay time.Duration
	if retryAfter != nil {
		delay = *retryAfter
	} else {
		delay = cfg.BackoffBase * (1 << (attempt - 1))
		if cfg.BackoffMax > 0 && delay > cfg.BackoffMax {
			delay = cfg.BackoffMax
		}
		// ±25% jitter
		delay += time.Duration(rand.Float64()*float64(delay)*0.5) - delay/4
	}

	log.Debugf("llm retry: backing off for %v before attempt %d", delay, attempt+1)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func logRetryAttempt(req *http.Request, attempt, maxAttempts int, err error, resp *http.Response) {
	fields := log.Fields{
		"method":      req.Method,
		"host":        req.URL.Host,
		"path":        req.URL.Path,
		"attempt":     attempt,
		"maxAttempts": maxAttempts,
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["errorClass"] = ClassifyError(err)
	}
	if resp != nil {
		fields["statusCode"] = resp.StatusCode
	}
	log.WithFields(fields).Warnf("llm retry: attempt %d/%d failed, will retry", attempt, maxAttempts)
}
