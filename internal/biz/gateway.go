package biz

import (
	"context"
	"time"

	"RelayGate/internal/conf"
	"RelayGate/internal/data"
	"RelayGate/internal/model"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// Request is one inbound generation request.
type Request struct {
	Prompt    string
	Mode      model.Mode
	ImageMIME string
	ImageData []byte
}

// Result is the caller-facing outcome of Generate. Degraded marks a
// synthesized fallback answer; UsedKeyID is empty in that case and
// RetryAfter hints when a real attempt is worth making again.
type Result struct {
	Text       string
	UsedKeyID  string
	Degraded   bool
	Category   Category
	RetryAfter time.Duration
}

// ProviderClient is the outbound LLM provider contract. Implemented by
// gemini.Client.
type ProviderClient interface {
	GenerateText(ctx context.Context, apiKey, prompt string) (string, error)
	GenerateVision(ctx context.Context, apiKey, prompt, imageMIME string, imageData []byte) (string, error)
}

// GatewayUsecase orchestrates one generation request: select a key, attempt,
// retry across keys on failure, fall back once the pool is exhausted. Every
// path resolves to a Result; no provider error ever escapes to the caller.
type GatewayUsecase struct {
	pool           *data.Pool
	selector       *KeySelector
	limiter        *RateLimiterUseCase
	breaker        *CircuitBreakerUsecase
	fallback       *FallbackResponder
	client         ProviderClient
	audit          AuditLogger
	maxAttempts    int
	attemptTimeout time.Duration
	now            func() time.Time
	logger         *log.Helper
}

// NewGatewayUsecase creates the gateway use case. maxAttempts is bounded by
// the pool size: retrying more often than there are keys cannot help.
func NewGatewayUsecase(
	c *conf.Gateway,
	pool *data.Pool,
	selector *KeySelector,
	limiter *RateLimiterUseCase,
	breaker *CircuitBreakerUsecase,
	fallback *FallbackResponder,
	client ProviderClient,
	audit AuditLogger,
	logger log.Logger,
) *GatewayUsecase {
	maxAttempts := 3
	attemptTimeout := 30 * time.Second
	if c != nil {
		if c.MaxAttempts > 0 {
			maxAttempts = int(c.MaxAttempts)
		}
		if d := c.AttemptTimeout.AsDuration(); d > 0 {
			attemptTimeout = d
		}
	}
	if maxAttempts > pool.Size() {
		maxAttempts = pool.Size()
	}

	return &GatewayUsecase{
		pool:           pool,
		selector:       selector,
		limiter:        limiter,
		breaker:        breaker,
		fallback:       fallback,
		client:         client,
		audit:          audit,
		maxAttempts:    maxAttempts,
		attemptTimeout: attemptTimeout,
		now:            time.Now,
		logger:         log.NewHelper(logger),
	}
}

// Generate serves one request through the healthiest available key. The only
// error it returns is invalid input; provider failures are absorbed into
// retries and, once the pool is exhausted for this request, a degraded
// fallback Result.
func (uc *GatewayUsecase) Generate(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Prompt == "" {
		return nil, kerrors.BadRequest("EMPTY_PROMPT", "prompt must not be empty")
	}
	if req.Mode == "" {
		req.Mode = model.ModeText
	}
	if req.Mode == model.ModeVision && len(req.ImageData) == 0 {
		return nil, kerrors.BadRequest("MISSING_IMAGE", "vision mode requires image data")
	}

	requestID := uuid.NewString()
	tried := make(map[string]struct{})

	for len(tried) < uc.maxAttempts {
		sel, found := uc.selector.SelectKey(ctx, tried)
		if !found {
			break
		}
		rec := sel.Record

		text, err := uc.attempt(ctx, rec.Secret, req)
		if err == nil {
			uc.breaker.OnSuccess(ctx, rec)
			uc.logger.Infow("msg", "generation served",
				"request_id", requestID,
				"key_id", rec.ID,
				"mode", req.Mode,
				"probe", sel.Probe)
			return &Result{Text: text, UsedKeyID: rec.ID}, nil
		}

		tried[rec.ID] = struct{}{}

		// A fired caller deadline aborts the in-flight call; charge the key
		// a transient failure and stop burning the remaining attempts.
		if ctx.Err() != nil {
			uc.breaker.OnFailure(ctx, rec, KindTransient)
			break
		}

		kind := Classify(err)
		uc.logger.Warnw("msg", "attempt failed",
			"request_id", requestID,
			"key_id", rec.ID,
			"kind", kind.String(),
			"error", err)

		if !kind.Retryable() {
			uc.breaker.Disable(ctx, rec, err.Error())
			continue
		}
		uc.breaker.OnFailure(ctx, rec, kind)
	}

	return uc.respondDegraded(ctx, requestID, req, len(tried)), nil
}

// attempt issues one outbound call bounded by the per-attempt timeout.
// No lock is held here: key state is read before and updated after.
func (uc *GatewayUsecase) attempt(ctx context.Context, secret string, req *Request) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, uc.attemptTimeout)
	defer cancel()

	if req.Mode == model.ModeVision {
		return uc.client.GenerateVision(attemptCtx, secret, req.Prompt, req.ImageMIME, req.ImageData)
	}
	return uc.client.GenerateText(attemptCtx, secret, req.Prompt)
}

// respondDegraded synthesizes the fallback answer once no key is usable.
func (uc *GatewayUsecase) respondDegraded(ctx context.Context, requestID string, req *Request, keysTried int) *Result {
	fb := uc.fallback.Respond(req)
	retryAfter := uc.earliestRetry(ctx)

	uc.logger.Warnw("msg", "pool exhausted, serving fallback",
		"request_id", requestID,
		"category", fb.Category,
		"keys_tried", keysTried,
		"retry_after", retryAfter)
	uc.audit.Record(ctx, "", data.AuditEventFallbackServed.String(), "", "",
		map[string]interface{}{
			"request_id": requestID,
			"category":   string(fb.Category),
			"keys_tried": keysTried,
		})

	return &Result{
		Text:       fb.Text,
		Degraded:   true,
		Category:   fb.Category,
		RetryAfter: retryAfter,
	}
}

// earliestRetry scans the pool for the soonest moment any key could admit a
// request again: the shortest of backoff holds, circuit recovery remainders
// and window waits. Zero when every key is disabled.
func (uc *GatewayUsecase) earliestRetry(ctx context.Context) time.Duration {
	now := uc.now()
	var earliest time.Duration
	haveAny := false

	consider := func(d time.Duration) {
		if d < 0 {
			d = 0
		}
		if !haveAny || d < earliest {
			earliest = d
			haveAny = true
		}
	}

	for _, rec := range uc.pool.Records() {
		rec.Lock()
		disabled := rec.Disabled
		state := rec.State
		openedAt := rec.OpenedAt
		hold := rec.HoldUntil
		rec.Unlock()

		if disabled {
			continue
		}

		wait := time.Duration(0)
		if state == model.CircuitOpen && openedAt != nil {
			wait = openedAt.Add(uc.breaker.RecoveryTimeout()).Sub(now)
		}
		if hold.After(now) {
			if h := hold.Sub(now); h > wait {
				wait = h
			}
		}
		if allowed, windowWait := uc.limiter.Allow(ctx, rec.ID); !allowed && windowWait > wait {
			wait = windowWait
		}
		consider(wait)
	}

	return earliest
}
