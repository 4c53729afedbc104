package apns

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/pkg/retry"
)

// FeedbackHook is called once for every envelope that reaches a terminal status.
type FeedbackHook func(*Envelope)

// RetryPolicy is asked before a failed envelope is queued again. Returning
// false cancels further attempts.
type RetryPolicy func(*Envelope) bool

// AlwaysRetry is the default RetryPolicy.
func AlwaysRetry(*Envelope) bool { return true }

// Config tunes the delivery engine.
type Config struct {
	// BaseURL defaults to Development.
	BaseURL string
	// RetryLimit is the number of failed sends after which an envelope is
	// given up. Defaults to 1.
	RetryLimit int
	// RetryInterval is slept after every failed send.
	RetryInterval time.Duration
	Feedback      FeedbackHook
	ShouldRetry   RetryPolicy
}

// Engine queues envelopes and sends them one at a time.
type Engine struct {
	transport     Transport
	auth          Authenticator
	baseURL       string
	retryLimit    int
	retryInterval time.Duration
	feedback      FeedbackHook
	shouldRetry   RetryPolicy
	logger        *slog.Logger
	sleep         func(context.Context, time.Duration) error

	mu    sync.Mutex
	queue queue

	// drainMu keeps drains sequential; the transport session and the token
	// cache are used by one envelope at a time.
	drainMu sync.Mutex
}

func NewEngine(transport Transport, auth Authenticator, cfg Config, logger *slog.Logger) *Engine {
	if cfg.BaseURL == "" {
		cfg.BaseURL = Development
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 1
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = AlwaysRetry
	}
	if auth == nil {
		auth = NewCertificateAuthenticator(CertificateIdentity{})
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		transport:     transport,
		auth:          auth,
		baseURL:       cfg.BaseURL,
		retryLimit:    cfg.RetryLimit,
		retryInterval: cfg.RetryInterval,
		feedback:      cfg.Feedback,
		shouldRetry:   cfg.ShouldRetry,
		logger:        logger,
		sleep:         retry.Sleep,
	}
}

// Enqueue validates msg once and queues one envelope per device token, in
// token order. Nothing is queued when validation fails.
func (e *Engine) Enqueue(msg *Message) error {
	if len(msg.deviceTokens) == 0 {
		return ErrNoDeviceTokens
	}
	data, err := msg.Validate()
	if err != nil {
		return err
	}

	e.mu.Lock()
	for _, token := range msg.deviceTokens {
		e.queue.PushBack(newEnvelope(msg, token, data))
	}
	e.mu.Unlock()

	e.logger.Debug("message enqueued",
		slog.String("custom_id", msg.customID),
		slog.Int("device_tokens", len(msg.deviceTokens)),
	)
	return nil
}

// Len returns the number of queued envelopes.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Len()
}

// Drain sends queued envelopes until the queue is empty or ctx is done and
// returns the envelopes that ended unsuccessfully. Cancellation is checked
// between envelopes; the remaining ones stay queued.
func (e *Engine) Drain(ctx context.Context) []*Envelope {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	e.logger.Debug("sending started", slog.Int("queued", e.Len()))

	var unsuccessful []*Envelope
	for {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("sending interrupted", slog.Int("queued", e.Len()), slog.Any("error", err))
			break
		}
		env, ok := e.pop()
		if !ok {
			break
		}
		if failed := e.process(ctx, env); failed != nil {
			unsuccessful = append(unsuccessful, failed)
		}
		e.logger.Debug("envelope processed", slog.Int("queued", e.Len()))
	}
	return unsuccessful
}

func (e *Engine) pop() (*Envelope, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.PopFront()
}

func (e *Engine) pushBack(env *Envelope) {
	e.mu.Lock()
	e.queue.PushBack(env)
	e.mu.Unlock()
}

func (e *Engine) pushFront(env *Envelope) {
	e.mu.Lock()
	e.queue.PushFront(env)
	e.mu.Unlock()
}

// process sends env once and applies the retry policy. It returns env when it
// ended unsuccessfully.
func (e *Engine) process(ctx context.Context, env *Envelope) *Envelope {
	status := e.send(ctx, env)

	if status.TokenExpired() {
		if !env.tokenRefreshed && e.auth.Invalidate() {
			env.tokenRefreshed = true
			e.logger.Info("provider token expired, requesting refresh", slog.String("device_token", env.deviceToken))
			e.pushFront(env)
			return nil
		}
	} else {
		env.tokenRefreshed = false
	}

	env.transition(status)
	log := e.logger.With(
		slog.String("app_bundle", env.message.appBundle),
		slog.String("device_token", env.deviceToken),
	)

	if status.Success() {
		log.Debug("message sent", slog.String("apns_id", status.ApnsID))
		e.notify(env)
		return nil
	}

	defer e.backoff(ctx)

	env.retriesCount++
	last := env.status
	if env.retriesCount >= e.retryLimit {
		env.transition(Status{Kind: StatusExceededSendingLimit, Previous: &last})
		log.Error("sending limit exceeded", slog.String("status", env.status.String()))
		e.notify(env)
		return env
	}

	if !e.shouldRetry(env) {
		env.transition(Status{Kind: StatusResendingCanceled, Previous: &last})
		log.Debug("resending cancelled", slog.String("status", last.String()))
		e.notify(env)
		return env
	}

	env.transition(Status{Kind: StatusEnqueuedForResend, Previous: &last})
	log.Warn("enqueued for resend",
		slog.Int("retries_left", e.retryLimit-env.retriesCount),
		slog.String("inner_status", last.String()),
	)
	e.pushBack(env)
	return nil
}

func (e *Engine) send(ctx context.Context, env *Envelope) Status {
	if err := ValidateDeviceToken(env.deviceToken); err != nil {
		return Classify(nil, err, env.status)
	}

	req := e.buildRequest(env)
	if err := e.auth.Authorize(req.Header); err != nil {
		return Classify(nil, err, env.status)
	}

	resp, err := e.transport.Send(ctx, req)
	return Classify(resp, err, env.status)
}

func (e *Engine) buildRequest(env *Envelope) *Request {
	msg := env.message

	header := make(http.Header)
	header.Set("apns-topic", msg.appBundle)
	header.Set("apns-push-type", msg.PushType())
	header.Set("apns-priority", strconv.Itoa(int(msg.priority)))
	header.Set("content-type", "application/json")
	if msg.customID != "" {
		header.Set("apns-id", msg.customID)
	}
	if msg.collapseID != "" {
		header.Set("apns-collapse-id", msg.collapseID)
	}
	if exp, ok := msg.expiration.header(); ok {
		header.Set("apns-expiration", exp)
	}

	return &Request{
		URL:    e.baseURL + "/3/device/" + env.deviceToken,
		Method: http.MethodPost,
		Header: header,
		Body:   env.encodedPayload,
	}
}

func (e *Engine) notify(env *Envelope) {
	if e.feedback != nil {
		e.feedback(env)
	}
}

func (e *Engine) backoff(ctx context.Context) {
	if e.retryInterval <= 0 {
		return
	}
	_ = e.sleep(ctx, e.retryInterval)
}
