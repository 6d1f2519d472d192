package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"vtrack/internal/platform/postgres"
	"vtrack/internal/violator/models"
	"vtrack/pkg/platform/sentinel"
	txcontext "vtrack/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const columns = `id, license_number, contact_no, first_name, last_name, gender, address, age,
	date_of_birth, nationality, license_type, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, v *models.Violator) error {
	_, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO violators (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, v.ID, v.LicenseNumber, v.ContactNo, v.FirstName, v.LastName, v.Gender, v.Address, v.Age,
		v.DateOfBirth, v.Nationality, v.LicenseType, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert violator: %w", postgres.MapError(err))
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, id uuid.UUID) (*models.Violator, error) {
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT `+columns+` FROM violators WHERE id = $1`, id)
	v, err := scanViolator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find violator: %w", postgres.MapError(err))
	}
	return v, nil
}

func (s *PostgresStore) LicenseExists(ctx context.Context, license string, except uuid.UUID) (bool, error) {
	var exists bool
	err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM violators WHERE license_number = $1 AND id <> $2)
	`, license, except).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check license: %w", postgres.MapError(err))
	}
	return exists, nil
}

func filter(f models.ListFilter) (string, []any) {
	if f.Search == "" {
		return "", nil
	}
	return ` WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR license_number ILIKE $1 OR contact_no ILIKE $1`,
		[]any{"%" + f.Search + "%"}
}

func (s *PostgresStore) List(ctx context.Context, f models.ListFilter) ([]models.Violator, error) {
	where, args := filter(f)
	args = append(args, f.Page.Limit, f.Page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM violators%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		columns, where, len(args)-1, len(args))

	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list violators: %w", postgres.MapError(err))
	}
	defer rows.Close()

	var out []models.Violator
	for rows.Next() {
		v, err := scanViolator(rows)
		if err != nil {
			return nil, fmt.Errorf("scan violator: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, f models.ListFilter) (int, error) {
	where, args := filter(f)
	var n int
	if err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM violators`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count violators: %w", postgres.MapError(err))
	}
	return n, nil
}

func (s *PostgresStore) Update(ctx context.Context, v *models.Violator) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		UPDATE violators
		SET license_number = $2, contact_no = $3, first_name = $4, last_name = $5, gender = $6,
		    address = $7, age = $8, date_of_birth = $9, nationality = $10, license_type = $11, updated_at = $12
		WHERE id = $1
	`, v.ID, v.LicenseNumber, v.ContactNo, v.FirstName, v.LastName, v.Gender, v.Address, v.Age,
		v.DateOfBirth, v.Nationality, v.LicenseType, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update violator: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `DELETE FROM violators WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete violator: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanViolator(row scanner) (*models.Violator, error) {
	var v models.Violator
	err := row.Scan(&v.ID, &v.LicenseNumber, &v.ContactNo, &v.FirstName, &v.LastName, &v.Gender, &v.Address,
		&v.Age, &v.DateOfBirth, &v.Nationality, &v.LicenseType, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
