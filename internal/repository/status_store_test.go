package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/internal/models"
)

func newMockStore(t *testing.T) (*StatusStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	store := NewStatusStore(gdb, "", "")
	store.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return store, mock
}

func TestStatusStore_UpdateStatus(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "upsert",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "notification_statuses"`)).
					WithArgs("req-1", "delivered", sqlmock.AnyArg(), "apns", "").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "notification_statuses"`)).
					WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setupMock(mock)

			err := store.UpdateStatus(context.Background(), "req-1", "delivered", "apns", "")
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStatusStore_RecordDelivery(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "push_deliveries"`)).
		WithArgs("req-1", "token-a", models.ResultFailed, "exceededSendingLimit", "", "Unregistered", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.RecordDelivery(context.Background(), "req-1", models.PushResult{
		Token:    "token-a",
		Provider: "apns",
		Status:   models.ResultFailed,
		Outcome:  "exceededSendingLimit",
		Reason:   "Unregistered",
		Attempts: 3,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusStore_DeliveredTokens(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT "device_token" FROM "push_deliveries" WHERE`).
		WithArgs("req-1", models.ResultDelivered).
		WillReturnRows(sqlmock.NewRows([]string{"device_token"}).AddRow("token-a").AddRow("token-b"))

	tokens, err := store.DeliveredTokens(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"token-a", "token-b"}, tokens)
	assert.NoError(t, mock.ExpectationsWereMet())
}
