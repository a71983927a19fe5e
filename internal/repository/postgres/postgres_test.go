package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental/internal/domain"
	"rental/internal/repository"
)

var rentalRowColumns = []string{"id", "vehicle_id", "customer_id", "start_date", "end_date", "total_amount", "status", "paid_at", "created_at", "updated_at"}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRentalRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRentalRepository(db)
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rental := &domain.RentalRequest{
		ID:          "r-1",
		VehicleID:   "v-1",
		CustomerID:  "c-1",
		StartDate:   date(2024, 1, 1),
		EndDate:     date(2024, 1, 31),
		TotalAmount: decimal.RequireFromString("1200.00"),
		Status:      domain.RentalStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	mock.ExpectExec("INSERT INTO rental_requests").
		WithArgs("r-1", "v-1", "c-1", rental.StartDate, rental.EndDate, sqlmock.AnyArg(), domain.RentalStatusPending, nil, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, repo.Create(context.Background(), rental))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRentalRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRentalRepository(db)
	ctx := context.Background()
	paidAt := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows(rentalRowColumns).
			AddRow("r-1", "v-1", "c-1", date(2024, 1, 1), date(2024, 1, 31), "1200.00", "APPROVED", paidAt, paidAt, paidAt)

		mock.ExpectQuery(`SELECT (.+) FROM rental_requests WHERE id = \$1`).
			WithArgs("r-1").
			WillReturnRows(rows)

		rental, err := repo.GetByID(ctx, "r-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RentalStatusApproved, rental.Status)
		assert.True(t, rental.TotalAmount.Equal(decimal.NewFromInt(1200)))
		require.NotNil(t, rental.PaidAt)
		assert.True(t, rental.IsPaid())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM rental_requests WHERE id = \$1`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(rentalRowColumns))

		_, err := repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRentalRepository_GetByIDForUpdate_LocksRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRentalRepository(db)
	rows := sqlmock.NewRows(rentalRowColumns).
		AddRow("r-1", "v-1", "c-1", date(2024, 1, 1), date(2024, 1, 31), "1200.00", "APPROVED", nil, time.Now(), time.Now())

	mock.ExpectQuery(`SELECT (.+) FROM rental_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs("r-1").
		WillReturnRows(rows)

	rental, err := repo.GetByIDForUpdate(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Nil(t, rental.PaidAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRentalRepository_ListBlocking(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRentalRepository(db)
	start, end := date(2024, 2, 1), date(2024, 2, 5)

	rows := sqlmock.NewRows(rentalRowColumns).
		AddRow("r-2", "v-1", "c-2", date(2024, 2, 3), date(2024, 2, 8), "250.00", "PENDING", nil, time.Now(), time.Now())

	mock.ExpectQuery(`SELECT (.+) FROM rental_requests WHERE vehicle_id = \$1 AND status IN \('PENDING', 'APPROVED'\)`).
		WithArgs("v-1", start, end, "r-1").
		WillReturnRows(rows)

	rentals, err := repo.ListBlocking(context.Background(), "v-1", start, end, "r-1")
	require.NoError(t, err)
	require.Len(t, rentals, 1)
	assert.Equal(t, "r-2", rentals[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRentalRepository_Update_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRentalRepository(db)
	mock.ExpectExec("UPDATE rental_requests").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Update(context.Background(), &domain.RentalRequest{ID: "missing", Status: domain.RentalStatusApproved})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_Create_DuplicateLivePayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepository(db)
	mock.ExpectExec("INSERT INTO payments").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err = repo.Create(context.Background(), &domain.Payment{
		ID:              "p-2",
		RentalRequestID: "r-1",
		Amount:          decimal.NewFromInt(500),
		Method:          domain.PaymentMethodMock,
		Status:          domain.PaymentStatusPending,
		CreatedAt:       time.Now(),
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_GetPendingByRental_None(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepository(db)
	mock.ExpectQuery(`SELECT (.+) FROM payments WHERE rental_request_id = \$1 AND status = 'PENDING'`).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	payment, err := repo.GetPendingByRental(context.Background(), "r-1")
	assert.NoError(t, err)
	assert.Nil(t, payment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_Settle_OnlyFromPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepository(db)
	settled := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE payments SET (.+) WHERE id = \$6 AND status = 'PENDING'`).
		WithArgs(domain.PaymentStatusSuccess, "/v1/payments/p-1/receipt.pdf", nil, nil, settled, "p-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Settle(context.Background(), &domain.Payment{
		ID:         "p-1",
		Status:     domain.PaymentStatusSuccess,
		ReceiptURL: "/v1/payments/p-1/receipt.pdf",
		SettledAt:  &settled,
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_RecordProviderRef(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepository(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE payments SET provider_ref = \$1 WHERE id = \$2`).
		WithArgs("chrg_1", "p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE payments SET provider_ref = \$1 WHERE id = \$2`).
		WithArgs("chrg_2", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.RecordProviderRef(ctx, "p-1", "chrg_1"))
	assert.ErrorIs(t, repo.RecordProviderRef(ctx, "missing", "chrg_2"), repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptRepository_RoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewReceiptRepository(db)
	ctx := context.Background()
	receipt := &domain.Receipt{
		ID:              "rc-1",
		PaymentID:       "p-1",
		RentalRequestID: "r-1",
		Total:           decimal.RequireFromString("500.00"),
		Currency:        "THB",
		IssuedAt:        time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	var stored []byte
	mock.ExpectExec("INSERT INTO receipts").
		WithArgs("rc-1", "p-1", "r-1", sqlmock.AnyArg(), receipt.IssuedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.Create(ctx, receipt))

	stored = []byte(`{"id":"rc-1","payment_id":"p-1","rental_request_id":"r-1","total":"500","currency":"THB","issued_at":"2024-01-01T12:00:00Z"}`)
	mock.ExpectQuery(`SELECT record FROM receipts WHERE payment_id = \$1`).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(stored))

	got, err := repo.GetByPaymentID(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "rc-1", got.ID)
	assert.True(t, got.Total.Equal(receipt.Total))
	assert.True(t, got.IssuedAt.Equal(receipt.IssuedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVehicleDirectory_LockVehicle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := NewVehicleDirectory(db)
	rows := sqlmock.NewRows([]string{"id", "store_id", "name", "owner_id", "name", "plate_number", "rent_per_day", "rent_per_month", "is_available"}).
		AddRow("v-1", "s-1", "Downtown", "o-1", "Civic", "AB-1234", "50.00", "1200.00", true)

	mock.ExpectQuery(`SELECT (.+) FROM vehicles v JOIN stores s ON s.id = v.store_id WHERE v.id = \$1 FOR UPDATE OF v`).
		WithArgs("v-1").
		WillReturnRows(rows)

	v, err := dir.LockVehicle(context.Background(), "v-1")
	require.NoError(t, err)
	assert.Equal(t, "o-1", v.OwnerID)
	assert.True(t, v.RentPerMonth.Equal(decimal.NewFromInt(1200)))
	assert.True(t, v.IsAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_RetriesSerializationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tx := NewTransactor(db, 3)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rental_requests").
		WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rental_requests").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	err = tx.WithinTx(context.Background(), func(ctx context.Context, store repository.Store) error {
		attempts++
		return store.Rentals().Update(ctx, &domain.RentalRequest{ID: "r-1", Status: domain.RentalStatusApproved})
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_GivesUpAfterMaxRetries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tx := NewTransactor(db, 2)
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE rental_requests").
			WillReturnError(&pq.Error{Code: "40P01", Message: "deadlock detected"})
		mock.ExpectRollback()
	}

	err = tx.WithinTx(context.Background(), func(ctx context.Context, store repository.Store) error {
		return store.Rentals().Update(ctx, &domain.RentalRequest{ID: "r-1"})
	})
	assert.ErrorIs(t, err, repository.ErrSerialization)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_BusinessErrorIsNotRetried(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tx := NewTransactor(db, 3)
	errBusiness := errors.New("conflict")

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err = tx.WithinTx(context.Background(), func(ctx context.Context, store repository.Store) error {
		attempts++
		return errBusiness
	})
	assert.ErrorIs(t, err, errBusiness)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
