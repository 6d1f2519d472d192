package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtrack/internal/violator/models"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/sentinel"
)

func TestCreateMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO violators").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "violators_license_number_key"})

	err = NewPostgres(db).Create(context.Background(), &models.Violator{ID: uuid.New(), LicenseNumber: "L-1"})
	assert.ErrorIs(t, err, sentinel.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM violators WHERE id = \\$1").WithArgs(id).WillReturnRows(sqlmock.NewRows(nil))

	_, err = NewPostgres(db).Find(context.Background(), id)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestListSearchesAllNameColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	page, err := pagination.New(1, 10)
	require.NoError(t, err)
	now := time.Now()
	cols := []string{"id", "license_number", "contact_no", "first_name", "last_name", "gender", "address", "age",
		"date_of_birth", "nationality", "license_type", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR license_number ILIKE $1 OR contact_no ILIKE $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3")).
		WithArgs("%cruz%", 10, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(uuid.NewString(), "L-1", "09171234567", "Juan", "Dela Cruz", "Male", "Rizal St", 34, now, "", "", now, now))

	items, err := NewPostgres(db).List(context.Background(), models.ListFilter{Search: "cruz", Page: page})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.GenderMale, items[0].Gender)
	assert.NoError(t, mock.ExpectationsWereMet())
}
