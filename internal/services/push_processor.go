package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/pkg/apns"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/pkg/metrics"
)

const providerName = "apns"

var (
	// ErrInvalidRequest marks requests that will never succeed and must not be requeued.
	ErrInvalidRequest = errors.New("invalid push request")
	// ErrDeliveryFailed is returned when no device token could be reached.
	ErrDeliveryFailed = errors.New("push delivery failed")
)

// TokenCache tracks device tokens that are no longer active.
type TokenCache interface {
	IsTokenSuppressed(ctx context.Context, token string) (bool, error)
	SuppressToken(ctx context.Context, token string, since time.Time) error
}

// DeliveryConfig carries the engine settings applied to every request.
type DeliveryConfig struct {
	BaseURL       string
	DefaultTopic  string
	RetryLimit    int
	RetryInterval time.Duration
}

type PushProcessor struct {
	transport     apns.Transport
	auth          apns.Authenticator
	delivery      DeliveryConfig
	statusUpdater *StatusUpdater
	cache         TokenCache
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewPushProcessor wires a processor. auth and transport are shared by every
// request; cache may be nil.
func NewPushProcessor(
	transport apns.Transport,
	auth apns.Authenticator,
	delivery DeliveryConfig,
	statusUpdater *StatusUpdater,
	cache TokenCache,
	metrics *metrics.Metrics,
	logger *slog.Logger,
) *PushProcessor {
	return &PushProcessor{
		transport:     transport,
		auth:          auth,
		delivery:      delivery,
		statusUpdater: statusUpdater,
		cache:         cache,
		metrics:       metrics,
		logger:        logger,
	}
}

// Process delivers one request. Each call drains its own engine so that
// concurrent workers only share the authenticator and the transport.
func (p *PushProcessor) Process(ctx context.Context, req *models.PushRequest) error {
	if req.Channel != "" && req.Channel != "push" {
		return fmt.Errorf("%w: unexpected channel %s", ErrInvalidRequest, req.Channel)
	}
	p.metrics.IncConsumed()
	log := p.logger.With(slog.String("request_id", req.RequestID))

	sent := p.statusUpdater.DeliveredTokens(ctx, req.RequestID)
	tokens, err := p.filterTokens(ctx, req.User.PushTokens, sent)
	if err != nil {
		log.Error("failed to filter tokens", slog.Any("error", err))
		return err
	}
	if len(tokens) == 0 {
		if len(sent) > 0 {
			log.Info("every token was delivered by an earlier attempt")
			p.metrics.IncDelivered()
			p.statusUpdater.MarkDelivered(ctx, req.RequestID, providerName)
			return nil
		}
		return p.reject(ctx, req.RequestID, errors.New("no valid push tokens"))
	}

	msg, err := BuildMessage(req, tokens, p.delivery.DefaultTopic)
	if err != nil {
		return p.reject(ctx, req.RequestID, err)
	}

	// tokens delivered before an interrupted run count toward the outcome
	delivered, failed := p.countDelivered(req.User.PushTokens, sent), 0
	engine := apns.NewEngine(p.transport, p.auth, apns.Config{
		BaseURL:       p.delivery.BaseURL,
		RetryLimit:    p.delivery.RetryLimit,
		RetryInterval: p.delivery.RetryInterval,
		ShouldRetry:   ShouldRetry,
		Feedback: func(env *apns.Envelope) {
			if env.Status().Success() {
				delivered++
			} else {
				failed++
			}
			// outcomes must be stored even when shutdown interrupts the drain
			p.handleFeedback(context.WithoutCancel(ctx), req.RequestID, env)
		},
	}, log)

	if err := engine.Enqueue(msg); err != nil {
		return p.reject(ctx, req.RequestID, err)
	}

	p.statusUpdater.MarkProcessing(ctx, req.RequestID)
	unsuccessful := engine.Drain(ctx)

	if remaining := engine.Len(); remaining > 0 {
		log.Warn("delivery interrupted", slog.Int("remaining", remaining))
		return ctx.Err()
	}

	switch {
	case failed == 0:
		p.metrics.IncDelivered()
		p.statusUpdater.MarkDelivered(ctx, req.RequestID, providerName)
		return nil
	case delivered > 0:
		p.metrics.IncPartial()
		p.statusUpdater.MarkPartial(ctx, req.RequestID, providerName, summarize(unsuccessful))
		return nil
	default:
		p.metrics.IncFailed()
		detail := summarize(unsuccessful)
		p.statusUpdater.MarkFailed(ctx, req.RequestID, providerName, detail)
		return fmt.Errorf("%w: %s", ErrDeliveryFailed, detail)
	}
}

func (p *PushProcessor) reject(ctx context.Context, requestID string, err error) error {
	p.statusUpdater.MarkFailed(ctx, requestID, providerName, err.Error())
	p.metrics.IncFailed()
	return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
}

// filterTokens keeps APNs tokens that are well formed, not yet delivered for
// this request and not suppressed.
func (p *PushProcessor) filterTokens(ctx context.Context, tokens []models.PushToken, sent map[string]struct{}) ([]string, error) {
	filtered := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if !token.SupportsAPNS() || apns.ValidateDeviceToken(token.Token) != nil {
			continue
		}
		if _, dup := seen[token.Token]; dup {
			continue
		}
		seen[token.Token] = struct{}{}
		if _, done := sent[token.Token]; done {
			continue
		}
		if p.cache != nil {
			suppressed, err := p.cache.IsTokenSuppressed(ctx, token.Token)
			if err != nil {
				return nil, err
			}
			if suppressed {
				p.metrics.IncSuppressed()
				continue
			}
		}
		filtered = append(filtered, token.Token)
	}
	return filtered, nil
}

func (p *PushProcessor) countDelivered(tokens []models.PushToken, sent map[string]struct{}) int {
	if len(sent) == 0 {
		return 0
	}
	count := 0
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, dup := seen[token.Token]; dup {
			continue
		}
		seen[token.Token] = struct{}{}
		if _, done := sent[token.Token]; done {
			count++
		}
	}
	return count
}

func (p *PushProcessor) handleFeedback(ctx context.Context, requestID string, env *apns.Envelope) {
	status := env.Status()
	result := models.PushResult{
		Token:    env.DeviceToken(),
		Provider: providerName,
		Outcome:  status.Kind.String(),
		Attempts: env.RetriesCount(),
	}

	switch status.Kind {
	case apns.StatusSuccessfullySent:
		result.Status = models.ResultDelivered
		result.ApnsID = status.ApnsID
		result.Attempts++
	case apns.StatusResendingCanceled:
		result.Status = models.ResultCanceled
	default:
		result.Status = models.ResultFailed
	}
	p.metrics.AddRetried(result.Attempts - 1)

	if last := status.Last(); last != nil {
		result.Reason = last.Reason
		if result.Reason == "" {
			result.Reason = last.String()
		}
		if last.Kind == apns.StatusDeviceTokenNoLongerActive && p.cache != nil {
			if err := p.cache.SuppressToken(ctx, env.DeviceToken(), last.Time()); err != nil {
				p.logger.Warn("failed to suppress token", slog.String("device_token", env.DeviceToken()), slog.Any("error", err))
			}
		}
	}

	p.statusUpdater.RecordResult(ctx, requestID, result)
}

// ShouldRetry stops retrying failures the gateway will keep returning for the
// same request.
func ShouldRetry(env *apns.Envelope) bool {
	status := env.Status()
	switch status.Kind {
	case apns.StatusIncorrectRequest,
		apns.StatusIncorrectPath,
		apns.StatusIncorrectRequestMethod,
		apns.StatusDeviceTokenNoLongerActive,
		apns.StatusPayloadTooLarge:
		return false
	case apns.StatusIncorrectCertificate:
		return status.TokenExpired()
	default:
		return true
	}
}

// BuildMessage converts a request into a validated-ready gateway message.
func BuildMessage(req *models.PushRequest, tokens []string, defaultTopic string) (*apns.Message, error) {
	topic := req.AppBundle
	if topic == "" {
		topic = defaultTopic
	}
	msg, err := apns.NewMessage(topic, tokens...)
	if err != nil {
		return nil, err
	}

	n := req.Notification
	title := RenderTemplate(n.Title, req.Variables)
	subtitle := RenderTemplate(n.Subtitle, req.Variables)
	body := RenderTemplate(n.Body, req.Variables)
	switch {
	case title != "" || subtitle != "":
		msg.SetAlert(apns.DetailedAlert(apns.AlertDetail{Title: title, Subtitle: subtitle, Body: body}))
	case body != "":
		msg.SetAlert(apns.TextAlert(body))
	}
	if n.Badge != nil {
		msg.SetBadge(*n.Badge)
	}
	msg.SetSound(n.Sound)
	msg.SetCategory(n.Category)
	msg.SetThreadID(n.ThreadID)
	msg.SetContentAvailable(n.ContentAvailable)
	msg.SetMutableContent(n.MutableContent)
	if len(req.Data) > 0 {
		msg.SetCustomPayload(req.Data)
	}

	opts := req.Options
	switch strings.ToLower(opts.Priority) {
	case "high":
		msg.SetPriority(apns.PriorityHigh)
	case "low":
		msg.SetPriority(apns.PriorityLow)
	case "":
		if msg.PushType() == "background" {
			msg.SetPriority(apns.PriorityLow)
		}
	default:
		return nil, fmt.Errorf("unknown priority %q", opts.Priority)
	}

	switch strings.ToLower(opts.Mode) {
	case "", "regular":
	case "voip":
		msg.SetMode(apns.ModeVoIP)
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}

	switch {
	case opts.ExpireImmediately:
		msg.SetExpiration(apns.ExpireImmediately())
	case opts.ExpiresAt != nil:
		msg.SetExpiration(apns.ExpireAt(*opts.ExpiresAt))
	}

	msg.SetCollapseID(opts.CollapseID)

	apnsID := opts.ApnsID
	if apnsID == "" {
		apnsID = uuid.NewString()
	} else if _, err := uuid.Parse(apnsID); err != nil {
		return nil, fmt.Errorf("apns id must be a UUID: %w", err)
	}
	msg.SetCustomID(strings.ToLower(apnsID))

	return msg, nil
}

func summarize(envelopes []*apns.Envelope) string {
	parts := make([]string, 0, len(envelopes))
	for _, env := range envelopes {
		parts = append(parts, fmt.Sprintf("%s:%s", env.DeviceToken(), env.Status()))
	}
	return strings.Join(parts, ", ")
}
