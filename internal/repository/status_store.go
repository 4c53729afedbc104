package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/internal/models"
)

// NotificationStatus mirrors the schema used by the API gateway.
type NotificationStatus struct {
	RequestID string `gorm:"primaryKey"`
	Status    string
	UpdatedAt time.Time
	Provider  string
	Detail    string
}

// DeliveryRecord is the final outcome for one device token of a request.
type DeliveryRecord struct {
	RequestID   string `gorm:"primaryKey"`
	DeviceToken string `gorm:"primaryKey"`
	Status      string
	Outcome     string
	ApnsID      string
	Reason      string
	Attempts    int
	UpdatedAt   time.Time
}

type StatusStore struct {
	db            *gorm.DB
	tableName     string
	deliveryTable string
	now           func() time.Time
}

func NewStatusStore(db *gorm.DB, tableName, deliveryTable string) *StatusStore {
	if tableName == "" {
		tableName = "notification_statuses"
	}
	if deliveryTable == "" {
		deliveryTable = "push_deliveries"
	}
	return &StatusStore{
		db:            db,
		tableName:     tableName,
		deliveryTable: deliveryTable,
		now:           time.Now,
	}
}

// Migrate creates or updates both tables.
func (s *StatusStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Table(s.tableName).AutoMigrate(&NotificationStatus{}); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Table(s.deliveryTable).AutoMigrate(&DeliveryRecord{})
}

func (s *StatusStore) UpdateStatus(ctx context.Context, requestID, status, provider, detail string) error {
	ns := NotificationStatus{
		RequestID: requestID,
		Status:    status,
		UpdatedAt: s.now(),
		Provider:  provider,
		Detail:    detail,
	}
	return s.db.WithContext(ctx).Table(s.tableName).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at", "provider", "detail"}),
		}).Create(&ns).Error
}

func (s *StatusStore) RecordDelivery(ctx context.Context, requestID string, result models.PushResult) error {
	rec := DeliveryRecord{
		RequestID:   requestID,
		DeviceToken: result.Token,
		Status:      result.Status,
		Outcome:     result.Outcome,
		ApnsID:      result.ApnsID,
		Reason:      result.Reason,
		Attempts:    result.Attempts,
		UpdatedAt:   s.now(),
	}
	return s.db.WithContext(ctx).Table(s.deliveryTable).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}, {Name: "device_token"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "outcome", "apns_id", "reason", "attempts", "updated_at"}),
		}).Create(&rec).Error
}

// DeliveredTokens lists the device tokens of a request that already reached
// the gateway, so a redelivered request does not push them twice.
func (s *StatusStore) DeliveredTokens(ctx context.Context, requestID string) ([]string, error) {
	var tokens []string
	err := s.db.WithContext(ctx).Table(s.deliveryTable).
		Where("request_id = ? AND status = ?", requestID, models.ResultDelivered).
		Pluck("device_token", &tokens).Error
	return tokens, err
}
