package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtrack/internal/payment/models"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/sentinel"
)

func TestCreateSecondPaymentConflicts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO payments").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "payments_citation_id_key"})

	err = NewPostgres(db).Create(context.Background(), &models.Payment{
		ID: uuid.New(), CitationID: uuid.New(), ReceiptNo: "R-100", Amount: decimal.NewFromInt(1250),
		Method: models.MethodCash, PaidAt: time.Now(),
	})
	assert.ErrorIs(t, err, sentinel.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptExistsExcludesSelf(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	self := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE receipt_no = $1 AND id <> $2")).
		WithArgs("R-100", self).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	taken, err := NewPostgres(db).ReceiptExists(context.Background(), "R-100", self)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestListFiltersByMethodAndRange(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	page, err := pagination.New(1, 10)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.method = $1 AND p.paid_at >= $2 AND p.paid_at <= $3 ORDER BY p.paid_at DESC, p.id LIMIT $4 OFFSET $5")).
		WithArgs(models.MethodOnline, from, to, 10, 0).
		WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM payments p WHERE p.method = $1 AND p.paid_at >= $2 AND p.paid_at <= $3")).
		WithArgs(models.MethodOnline, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	store := NewPostgres(db)
	f := models.ListFilter{Method: models.MethodOnline, From: from, To: to, Page: page}
	items, err := store.List(context.Background(), f)
	require.NoError(t, err)
	assert.Empty(t, items)
	n, err := store.Count(context.Background(), f)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingPayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec("DELETE FROM payments").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPostgres(db).Delete(context.Background(), id)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
