package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/internal/services"
)

// Processor delivers one decoded push request.
type Processor interface {
	Process(ctx context.Context, req *models.PushRequest) error
}

type PushConsumer struct {
	base          *BaseConsumer
	processor     Processor
	logger        *slog.Logger
	maxDeliveries int
}

func NewPushConsumer(base *BaseConsumer, processor Processor, logger *slog.Logger, maxDeliveries int) *PushConsumer {
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &PushConsumer{
		base:          base,
		processor:     processor,
		logger:        logger,
		maxDeliveries: maxDeliveries,
	}
}

func (p *PushConsumer) Start(ctx context.Context) error {
	return p.base.Start(ctx, p.handleDelivery)
}

// handleDelivery acks on success, dead-letters malformed or invalid requests,
// always requeues work interrupted by shutdown and requeues other failures
// until maxDeliveries is reached.
func (p *PushConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) error {
	var req models.PushRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		p.logger.Error("failed to unmarshal push request", slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}
	log := p.logger.With(slog.String("request_id", req.RequestID), slog.String("correlation_id", req.CorrelationID))

	err := p.processor.Process(ctx, &req)
	if err == nil {
		return msg.Ack(false)
	}

	if errors.Is(err, services.ErrInvalidRequest) {
		log.Error("invalid push request, message dead-lettered", slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		log.Info("shutting down, message requeued", slog.Any("error", err))
		_ = msg.Nack(false, true)
		return err
	}

	requeue := p.shouldRetry(&msg, &req)
	if requeue {
		log.Warn("processing failed, message requeued", slog.Any("error", err))
	} else {
		log.Error("processing failed, message dead-lettered", slog.Any("error", err))
	}
	_ = msg.Nack(false, requeue)
	return err
}

// shouldRetry requeues a transient failure once. Messages that come back
// through the dead letter queue carry their count in x-death.
func (p *PushConsumer) shouldRetry(msg *amqp.Delivery, req *models.PushRequest) bool {
	if msg.Redelivered {
		return false
	}
	attempts := deliveryAttempts(msg)
	if req.RetryCount > attempts {
		attempts = req.RetryCount
	}
	return attempts+1 < p.maxDeliveries
}

// deliveryAttempts counts previous dead-lettering cycles from the x-death header.
func deliveryAttempts(msg *amqp.Delivery) int {
	if raw, ok := msg.Headers["x-death"]; ok {
		if deaths, ok := raw.([]interface{}); ok && len(deaths) > 0 {
			if table, ok := deaths[0].(amqp.Table); ok {
				if count, ok := table["count"].(int64); ok {
					return int(count)
				}
			}
		}
	}
	return 0
}
