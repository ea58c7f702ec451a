package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is the catalog REST API root
const DefaultBaseURL = "https://rebrickable.com/api/v3/lego"

var (
	// ErrTimeout is returned when the caller stops waiting for a queued request
	ErrTimeout = errors.New("request timed out")
	// ErrRetriesExhausted wraps the last failure once every attempt is used
	ErrRetriesExhausted = errors.New("request failed after all retries")
	// ErrEngineReset is returned to callers still waiting when Reset is called
	ErrEngineReset = errors.New("request engine reset")
)

// HTTPError is a non-success status from the API
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Status)
}

// Cache stores response bodies; expiry is the cache's concern
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Doer executes HTTP requests
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Config holds engine timing and defaults
type Config struct {
	BaseURL        string
	RateLimitDelay time.Duration
	RetryAfter429  time.Duration
	BackoffUnit    time.Duration
	DefaultRetries int
	DefaultTimeout time.Duration
	ThumbnailSize  int
	UserAgent      string
}

// DefaultConfig returns the production timings
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		RateLimitDelay: time.Second,
		RetryAfter429:  2 * time.Second,
		BackoffUnit:    time.Second,
		DefaultRetries: 3,
		DefaultTimeout: 10 * time.Second,
		ThumbnailSize:  128,
		UserAgent:      "brick-catalog",
	}
}

// RequestOptions control a single MakeRequest call
type RequestOptions struct {
	UseProxy bool          `json:"useProxy"`
	Retries  int           `json:"retries"`
	Timeout  time.Duration `json:"-"`
	Cache    bool          `json:"cache"`
}

// Option adjusts RequestOptions
type Option func(*RequestOptions)

// WithoutProxy sends the request directly to the API
func WithoutProxy() Option { return func(o *RequestOptions) { o.UseProxy = false } }

// WithoutCache skips both the cache lookup and the cache write
func WithoutCache() Option { return func(o *RequestOptions) { o.Cache = false } }

// WithRetries sets the attempt budget
func WithRetries(n int) Option { return func(o *RequestOptions) { o.Retries = n } }

// WithTimeout sets how long the caller waits
func WithTimeout(d time.Duration) Option { return func(o *RequestOptions) { o.Timeout = d } }

func cacheKey(endpoint string, o RequestOptions) string {
	data, _ := json.Marshal(struct {
		RequestOptions
		TimeoutMs int64 `json:"timeout"`
	}{o, o.Timeout.Milliseconds()})
	return "api_" + endpoint + "_" + string(data)
}

// Status is a snapshot of the engine for diagnostics
type Status struct {
	CurrentProxy     int   `json:"currentProxy"`
	FailedProxies    []int `json:"failedProxies"`
	QueueLength      int   `json:"queueLength"`
	IsProcessing     bool  `json:"isProcessing"`
	RateLimitDelayMs int64 `json:"rateLimitDelay"`
}

type result struct {
	body json.RawMessage
	err  error
}

type queuedRequest struct {
	id       string
	endpoint string
	opts     RequestOptions
}

// Engine serializes API calls through a FIFO queue with one request in
// flight, spacing them by the rate-limit delay.
type Engine struct {
	cfg   Config
	pool  *Pool
	cache Cache
	http  Doer

	baseCtx context.Context
	cancel  context.CancelFunc
	sleep   func(context.Context, time.Duration) error

	mu         sync.Mutex
	queue      []queuedRequest
	handlers   map[string]chan result
	processing bool
}

// NewEngine creates an engine. cache and client may be nil.
func NewEngine(cfg Config, pool *Pool, cache Cache, client Doer) *Engine {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DefaultRetries <= 0 {
		cfg.DefaultRetries = 3
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}
	if pool == nil {
		pool = NewPool(nil, nil, DefaultCooldown)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:      cfg,
		pool:     pool,
		cache:    cache,
		http:     client,
		baseCtx:  ctx,
		cancel:   cancel,
		sleep:    sleepContext,
		handlers: make(map[string]chan result),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pool returns the proxy/key pool in use
func (e *Engine) Pool() *Pool { return e.pool }

// Close aborts the in-flight request and stops the queue worker
func (e *Engine) Close() {
	e.cancel()
}

func (e *Engine) options(opts []Option) RequestOptions {
	o := RequestOptions{
		UseProxy: true,
		Retries:  e.cfg.DefaultRetries,
		Timeout:  e.cfg.DefaultTimeout,
		Cache:    true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Retries < 1 {
		o.Retries = 1
	}
	return o
}

// MakeRequest fetches endpoint (a path below the API base URL) and returns
// the JSON body. Cached responses are returned without queueing. The
// timeout only stops the caller from waiting; the queued request still runs.
func (e *Engine) MakeRequest(ctx context.Context, endpoint string, opts ...Option) (json.RawMessage, error) {
	o := e.options(opts)

	key := cacheKey(endpoint, o)
	if o.Cache && e.cache != nil {
		if data, ok, err := e.cache.Get(ctx, key); err != nil {
			log.Printf("API: cache read for %s failed: %v", endpoint, err)
		} else if ok {
			return json.RawMessage(data), nil
		}
	}

	id := uuid.NewString()
	ch := make(chan result, 1)

	e.mu.Lock()
	e.handlers[id] = ch
	e.queue = append(e.queue, queuedRequest{id: id, endpoint: endpoint, opts: o})
	if !e.processing {
		e.processing = true
		go e.process()
	}
	e.mu.Unlock()

	timer := time.NewTimer(o.Timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.body, r.err
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, o.Timeout, endpoint)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) process() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 || e.baseCtx.Err() != nil {
			e.processing = false
			e.mu.Unlock()
			return
		}
		req := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		body, err := e.execute(e.baseCtx, req)

		e.mu.Lock()
		ch, ok := e.handlers[req.id]
		delete(e.handlers, req.id)
		e.mu.Unlock()
		if ok {
			// Buffered: never blocks even if the caller has stopped waiting
			ch <- result{body: body, err: err}
		}

		e.sleep(e.baseCtx, e.cfg.RateLimitDelay)
	}
}

func (e *Engine) execute(ctx context.Context, req queuedRequest) (json.RawMessage, error) {
	var lastErr error
	retries := req.opts.Retries

	for attempt := 0; attempt < retries; attempt++ {
		target, proxy := e.pool.TargetURL(e.cfg.BaseURL, req.endpoint, req.opts.UseProxy)

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("build request for %s: %w", req.endpoint, err)
		}
		if key := e.pool.APIKey(); key != "" {
			httpReq.Header.Set("Authorization", "key "+key)
		}
		httpReq.Header.Set("Accept", "application/json")
		if e.cfg.UserAgent != "" {
			httpReq.Header.Set("User-Agent", e.cfg.UserAgent)
		}

		body, status, err := e.do(httpReq)
		if err == nil {
			switch {
			case status == http.StatusTooManyRequests:
				lastErr = &HTTPError{Status: status}
				log.Printf("API: rate limited on %s, waiting %s", req.endpoint, e.cfg.RetryAfter429)
				if err := e.sleep(ctx, e.cfg.RetryAfter429); err != nil {
					return nil, err
				}
				continue
			case status >= 500:
				lastErr = &HTTPError{Status: status}
				if proxy >= 0 {
					e.pool.Rotate()
				}
				continue
			case status >= 400:
				return nil, &HTTPError{Status: status}
			}
			if !json.Valid(body) {
				err = fmt.Errorf("invalid JSON from %s", req.endpoint)
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if proxy >= 0 {
				log.Printf("API: proxy %d failed for %s: %v", proxy, req.endpoint, err)
				e.pool.MarkFailed(proxy)
				e.pool.Rotate()
			}
			if attempt < retries-1 {
				if err := e.sleep(ctx, e.cfg.BackoffUnit*time.Duration(attempt+1)); err != nil {
					return nil, err
				}
			}
			continue
		}

		if req.opts.Cache && e.cache != nil {
			if err := e.cache.Set(ctx, cacheKey(req.endpoint, req.opts), body); err != nil {
				log.Printf("API: cache write for %s failed: %v", req.endpoint, err)
			}
		}
		return json.RawMessage(body), nil
	}

	if lastErr == nil {
		return nil, ErrRetriesExhausted
	}
	return nil, fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

func (e *Engine) do(req *http.Request) ([]byte, int, error) {
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// Status returns queue and proxy diagnostics
func (e *Engine) Status() Status {
	e.mu.Lock()
	queueLen, processing := len(e.queue), e.processing
	e.mu.Unlock()
	return Status{
		CurrentProxy:     e.pool.CurrentIndex(),
		FailedProxies:    e.pool.Failed(),
		QueueLength:      queueLen,
		IsProcessing:     processing,
		RateLimitDelayMs: e.cfg.RateLimitDelay.Milliseconds(),
	}
}

// Reset drops queued requests, fails their waiting callers and clears
// proxy failures. A request already in flight finishes but its result is
// discarded.
func (e *Engine) Reset() {
	e.mu.Lock()
	handlers := e.handlers
	e.handlers = make(map[string]chan result)
	e.queue = nil
	e.mu.Unlock()

	for _, ch := range handlers {
		ch <- result{err: ErrEngineReset}
	}
	e.pool.Reset()
}
