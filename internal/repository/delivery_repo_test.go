package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/deliverhub/webhook-relay/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDeliveryRepo(t *testing.T) (*GormDeliveryRepo, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm.Open() error: %v", err)
	}

	return NewGormDeliveryRepo(db), mock
}

func deliveryRows(status domain.Status) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "webhook_id", "client_id", "provider", "event_type",
		"payload", "status", "retry_count", "max_retries",
	}).AddRow(
		"d-1", "wh-1", "rest-431", "CAREEM", "order_created",
		`{"orderId":"ord-1"}`, string(status), 1, 5,
	)
}

func TestLockForProcessingClaimsPendingInOneGuardedUpdate(t *testing.T) {
	t.Parallel()

	repo, mock := newMockDeliveryRepo(t)

	// The claim must be a single conditional update keyed on the pending
	// status, never a read-then-write pair.
	mock.ExpectExec(`UPDATE "deliveries" SET "status"=\$1,"updated_at"=\$2 WHERE id = \$3 AND status = \$4`).
		WithArgs(string(domain.StatusProcessing), sqlmock.AnyArg(), "d-1", string(domain.StatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "deliveries" WHERE id = \$1`).
		WithArgs("d-1", 1).
		WillReturnRows(deliveryRows(domain.StatusProcessing))

	delivery, err := repo.LockForProcessing(context.Background(), "d-1")
	if err != nil {
		t.Fatalf("LockForProcessing() error = %v", err)
	}
	if delivery == nil {
		t.Fatal("expected claimed delivery, got nil")
	}
	if delivery.Status != domain.StatusProcessing {
		t.Fatalf("Status = %s, want %s", delivery.Status, domain.StatusProcessing)
	}
	if delivery.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", delivery.RetryCount)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLockForProcessingLosesRaceToOtherClaimer(t *testing.T) {
	t.Parallel()

	repo, mock := newMockDeliveryRepo(t)

	// Another worker already flipped the row to processing: the guarded
	// update touches zero rows and the loser skips without error.
	mock.ExpectExec(`UPDATE "deliveries" SET "status"=\$1,"updated_at"=\$2 WHERE id = \$3 AND status = \$4`).
		WithArgs(string(domain.StatusProcessing), sqlmock.AnyArg(), "d-1", string(domain.StatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "deliveries" WHERE id = \$1`).
		WithArgs("d-1", 1).
		WillReturnRows(deliveryRows(domain.StatusProcessing))

	delivery, err := repo.LockForProcessing(context.Background(), "d-1")
	if err != nil {
		t.Fatalf("LockForProcessing() error = %v", err)
	}
	if delivery != nil {
		t.Fatalf("expected nil for lost claim, got delivery with status %s", delivery.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLockForProcessingMissingDelivery(t *testing.T) {
	t.Parallel()

	repo, mock := newMockDeliveryRepo(t)

	mock.ExpectExec(`UPDATE "deliveries" SET "status"=\$1,"updated_at"=\$2 WHERE id = \$3 AND status = \$4`).
		WithArgs(string(domain.StatusProcessing), sqlmock.AnyArg(), "d-9", string(domain.StatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "deliveries" WHERE id = \$1`).
		WithArgs("d-9", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.LockForProcessing(context.Background(), "d-9")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("LockForProcessing() error = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
