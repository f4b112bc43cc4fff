// Package orchestrator provides uniform, resilient invocation of named AI
// services: per-service sliding-window rate limiting, a TTL result cache,
// bounded retry with exponential backoff, a hard timeout, and a bounded call
// history for auditing. Prompt-shaped calls are dispatched to the configured
// LLM backend.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/perfdesk/perfai/internal/provider"
)

// errCallTimeout marks a timer win in the call/timer race so the record gets
// status timeout rather than error.
var errCallTimeout = errors.New("call timed out")

// Options configure an Orchestrator. Zero values select defaults.
type Options struct {
	MaxRetries        int           // total attempts per call, default 3
	Timeout           time.Duration // per-attempt hard timeout, default 30s
	RequestsPerMinute int           // per-service admission limit, default 60
	CacheEnabled      bool
	CacheTTL          time.Duration // default 5m
	SweepInterval     time.Duration // cache sweep period, default 1m
	BaseBackoff       time.Duration // backoff unit; attempt n waits 2^(n-1) × this, default 1s
	MaxHistory        int           // in-memory record bound, default 1000
	Sink              RecordSink    // optional durable audit sink
	Logger            *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.RequestsPerMinute <= 0 {
		o.RequestsPerMinute = 60
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxHistory <= 0 {
		o.MaxHistory = 1000
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Orchestrator owns its cache, rate limiter, service instances, and call
// history exclusively. Construct one per process and inject it; every test
// can build its own.
type Orchestrator struct {
	opts     Options
	backend  provider.Provider
	registry map[string]Factory

	mu       sync.Mutex
	services map[string]Service

	cache   *resultCache
	limiter *rateLimiter
	history *history
	logger  *slog.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates an Orchestrator over the given LLM backend and service
// registry. The cache sweep loop runs until Close.
func New(backend provider.Provider, registry map[string]Factory, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	o := &Orchestrator{
		opts:     opts,
		backend:  backend,
		registry: registry,
		services: make(map[string]Service),
		cache:    newResultCache(opts.CacheTTL),
		limiter:  newRateLimiter(opts.RequestsPerMinute),
		history:  newHistory(opts.MaxHistory),
		logger:   opts.Logger,
		done:     make(chan struct{}),
	}

	if opts.CacheEnabled {
		o.wg.Add(1)
		go o.sweepLoop()
	}
	return o
}

// Close stops the background sweep loop.
func (o *Orchestrator) Close() {
	close(o.done)
	o.wg.Wait()
}

func (o *Orchestrator) sweepLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.done:
			return
		case <-ticker.C:
			if n := o.cache.sweep(); n > 0 {
				o.logger.Debug("cache sweep", "evicted", n)
			}
		}
	}
}

// Call invokes service.method(params) with rate limiting, caching, retry,
// and timeout applied. The envelope is always returned; failures are
// in-band, never panics or error returns.
func (o *Orchestrator) Call(ctx context.Context, req CallRequest) Response {
	start := time.Now()
	callID := uuid.New().String()

	rec := CallRecord{
		ID:        callID,
		Service:   req.Service,
		Method:    req.Method,
		Params:    sanitizeParams(req.Params),
		UserID:    req.Options.UserID,
		Timestamp: start,
		Status:    StatusPending,
	}

	if !o.limiter.allow(req.Service) {
		return o.finish(rec, Response{
			Success: false,
			Error:   fmt.Sprintf("rate limit exceeded for service %q", req.Service),
			CallID:  callID,
		}, start, StatusError)
	}

	useCache := o.opts.CacheEnabled && !req.Options.BypassCache
	key := ""
	if useCache {
		key = cacheKey(req.Service, req.Method, req.Params)
		if data, ok := o.cache.get(key); ok {
			rec.Cached = true
			return o.finish(rec, Response{
				Success: true,
				Data:    data,
				Cached:  true,
				CallID:  callID,
			}, start, StatusSuccess)
		}
	}

	data, err := o.callWithRetry(ctx, req)
	if err != nil {
		status := StatusError
		if errors.Is(err, errCallTimeout) {
			status = StatusTimeout
		}
		return o.finish(rec, Response{
			Success: false,
			Error:   err.Error(),
			CallID:  callID,
		}, start, status)
	}

	if useCache {
		o.cache.put(key, data)
	}
	return o.finish(rec, Response{
		Success: true,
		Data:    data,
		CallID:  callID,
	}, start, StatusSuccess)
}

// finish stamps duration, records exactly one history entry, and returns
// the completed envelope.
func (o *Orchestrator) finish(rec CallRecord, resp Response, start time.Time, status string) Response {
	resp.Duration = time.Since(start).Milliseconds()

	rec.Status = status
	rec.Duration = resp.Duration
	rec.Error = resp.Error
	o.history.append(rec)

	if o.opts.Sink != nil {
		if err := o.opts.Sink.InsertCallRecord(rec); err != nil {
			o.logger.Warn("persisting call record failed", "call_id", rec.ID, "error", err)
		}
	}

	if !resp.Success {
		o.logger.Debug("call failed", "service", rec.Service, "method", rec.Method, "status", status, "error", resp.Error)
	}
	return resp
}

// callWithRetry runs the call up to MaxRetries times, backing off
// 2^(attempt-1) × BaseBackoff between attempts. Every underlying failure is
// treated as transient; only rate-limit rejection (handled before this) is
// non-retryable.
func (o *Orchestrator) callWithRetry(ctx context.Context, req CallRequest) (any, error) {
	var lastErr error
	for attempt := 1; attempt <= o.opts.MaxRetries; attempt++ {
		data, err := o.callOnce(ctx, req)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if attempt < o.opts.MaxRetries {
			backoff := o.opts.BaseBackoff * time.Duration(1<<(attempt-1))
			o.logger.Debug("retrying call", "service", req.Service, "method", req.Method,
				"attempt", attempt, "backoff", backoff, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, lastErr
}

type callResult struct {
	data any
	err  error
}

// callOnce races one invocation against the timeout timer. The timer
// winning abandons the call: the goroutine keeps running and its eventual
// result is discarded (the buffered channel keeps it from leaking).
func (o *Orchestrator) callOnce(ctx context.Context, req CallRequest) (any, error) {
	ch := make(chan callResult, 1)
	go func() {
		data, err := o.execute(ctx, req)
		ch <- callResult{data: data, err: err}
	}()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-time.After(o.opts.Timeout):
		return nil, fmt.Errorf("%w after %s", errCallTimeout, o.opts.Timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// execute resolves the call target: params carrying a "prompt" go straight
// to the LLM backend; everything else goes to the named registry service.
func (o *Orchestrator) execute(ctx context.Context, req CallRequest) (any, error) {
	if prompt, ok := req.Params["prompt"].(string); ok && prompt != "" {
		return o.backend.Complete(ctx, promptRequest(prompt, req.Params))
	}

	svc, err := o.service(req.Service)
	if err != nil {
		return nil, err
	}
	return svc.Invoke(ctx, req.Method, req.Params)
}

// promptRequest shapes a params map into a backend request.
func promptRequest(prompt string, params map[string]any) provider.Request {
	req := provider.Request{Prompt: prompt}
	if s, ok := params["context"].(string); ok {
		req.Context = s
	}
	if s, ok := params["model"].(string); ok {
		req.Model = s
	}
	if n, ok := params["maxTokens"].(float64); ok {
		req.MaxTokens = int(n)
	} else if n, ok := params["maxTokens"].(int); ok {
		req.MaxTokens = n
	}
	if f, ok := params["temperature"].(float64); ok {
		req.Temperature = f
	}
	return req
}

// service returns the named service, constructing and memoizing it on first
// use. Factories receive the orchestrator itself as the Caller
// back-reference.
func (o *Orchestrator) service(name string) (Service, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if svc, ok := o.services[name]; ok {
		return svc, nil
	}
	factory, ok := o.registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", name)
	}
	svc, err := factory(o)
	if err != nil {
		return nil, fmt.Errorf("creating service %q: %w", name, err)
	}
	o.services[name] = svc
	return svc, nil
}

// History returns a copy of the in-memory call records, oldest first.
func (o *Orchestrator) History() []CallRecord {
	return o.history.snapshot()
}

// ClearHistory drops all in-memory call records.
func (o *Orchestrator) ClearHistory() {
	o.history.clear()
}

// ClearCache drops every cached result.
func (o *Orchestrator) ClearCache() {
	o.cache.clear()
}

// Remaining reports how many calls the service may still make in the
// current rate-limit window.
func (o *Orchestrator) Remaining(service string) int {
	return o.limiter.remaining(service)
}

// Metrics summarizes the recorded history.
func (o *Orchestrator) Metrics() Metrics {
	records := o.history.snapshot()
	m := Metrics{PerService: make(map[string]int)}
	var totalMS int64
	for _, r := range records {
		m.TotalCalls++
		m.PerService[r.Service]++
		totalMS += r.Duration
		switch r.Status {
		case StatusSuccess:
			m.Successes++
			if r.Cached {
				m.CacheHits++
			}
		case StatusTimeout:
			m.Timeouts++
			m.Failures++
		default:
			m.Failures++
		}
	}
	if m.TotalCalls > 0 {
		m.AvgDurationMS = float64(totalMS) / float64(m.TotalCalls)
	}
	return m
}
