package services

import (
	"context"

	"log/slog"

	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/internal/models"
)

const (
	StatusProcessing = "processing"
	StatusDelivered  = "delivered"
	StatusPartial    = "partially_delivered"
	StatusFailed     = "failed"
)

// StatusStore persists request and per-token outcomes.
type StatusStore interface {
	UpdateStatus(ctx context.Context, requestID, status, provider, detail string) error
	RecordDelivery(ctx context.Context, requestID string, result models.PushResult) error
	DeliveredTokens(ctx context.Context, requestID string) ([]string, error)
}

// StatusUpdater logs and swallows store errors so a broken status table never
// blocks delivery.
type StatusUpdater struct {
	store  StatusStore
	logger *slog.Logger
}

func NewStatusUpdater(store StatusStore, logger *slog.Logger) *StatusUpdater {
	return &StatusUpdater{
		store:  store,
		logger: logger,
	}
}

func (s *StatusUpdater) MarkProcessing(ctx context.Context, requestID string) {
	s.update(ctx, requestID, StatusProcessing, "", "")
}

func (s *StatusUpdater) MarkDelivered(ctx context.Context, requestID, provider string) {
	s.update(ctx, requestID, StatusDelivered, provider, "")
}

func (s *StatusUpdater) MarkPartial(ctx context.Context, requestID, provider, detail string) {
	s.update(ctx, requestID, StatusPartial, provider, detail)
}

func (s *StatusUpdater) MarkFailed(ctx context.Context, requestID, provider, detail string) {
	s.update(ctx, requestID, StatusFailed, provider, detail)
}

func (s *StatusUpdater) RecordResult(ctx context.Context, requestID string, result models.PushResult) {
	if err := s.store.RecordDelivery(ctx, requestID, result); err != nil {
		s.logger.Error("failed to record delivery",
			slog.String("request_id", requestID),
			slog.String("device_token", result.Token),
			slog.Any("error", err),
		)
	}
}

// DeliveredTokens returns the tokens already delivered for requestID. A store
// error yields an empty set so the request is still attempted.
func (s *StatusUpdater) DeliveredTokens(ctx context.Context, requestID string) map[string]struct{} {
	tokens, err := s.store.DeliveredTokens(ctx, requestID)
	if err != nil {
		s.logger.Warn("failed to load delivered tokens",
			slog.String("request_id", requestID),
			slog.Any("error", err),
		)
		return nil
	}
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

func (s *StatusUpdater) update(ctx context.Context, requestID, status, provider, detail string) {
	if err := s.store.UpdateStatus(ctx, requestID, status, provider, detail); err != nil {
		s.logger.Error("failed to update status",
			slog.String("request_id", requestID),
			slog.String("status", status),
			slog.Any("error", err),
		)
	}
}
