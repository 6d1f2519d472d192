package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vtrack/internal/org/models"
	"vtrack/internal/platform/postgres"
	"vtrack/pkg/platform/sentinel"
	txcontext "vtrack/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const locationColumns = `id, name, street_address, zip_code, created_at, updated_at`

func (s *PostgresStore) CreateLocation(ctx context.Context, l *models.Location) error {
	_, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO locations (`+locationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, l.ID, l.Name, l.StreetAddress, l.ZipCode, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert location: %w", postgres.MapError(err))
	}
	return nil
}

func (s *PostgresStore) FindLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id)
	l, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find location: %w", postgres.MapError(err))
	}
	return l, nil
}

func locationFilter(f models.LocationFilter) (string, []any) {
	if f.Search == "" {
		return "", nil
	}
	return ` WHERE name ILIKE $1 OR street_address ILIKE $1`, []any{"%" + f.Search + "%"}
}

func (s *PostgresStore) ListLocations(ctx context.Context, f models.LocationFilter) ([]models.Location, error) {
	where, args := locationFilter(f)
	args = append(args, f.Page.Limit, f.Page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM locations%s ORDER BY name, id LIMIT $%d OFFSET $%d`,
		locationColumns, where, len(args)-1, len(args))

	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", postgres.MapError(err))
	}
	defer rows.Close()

	var out []models.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountLocations(ctx context.Context, f models.LocationFilter) (int, error) {
	where, args := locationFilter(f)
	var n int
	if err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM locations`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count locations: %w", postgres.MapError(err))
	}
	return n, nil
}

func (s *PostgresStore) UpdateLocation(ctx context.Context, l *models.Location) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		UPDATE locations SET name = $2, street_address = $3, zip_code = $4, updated_at = $5 WHERE id = $1
	`, l.ID, l.Name, l.StreetAddress, l.ZipCode, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update location: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

func (s *PostgresStore) DeleteLocation(ctx context.Context, id uuid.UUID) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete location: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

const teamColumns = `t.id, t.name, t.description, t.location_id, t.created_at, t.updated_at`

const teamView = `SELECT ` + teamColumns + `, COALESCE(l.name, '')
	FROM teams t
	LEFT JOIN locations l ON l.id = t.location_id`

func (s *PostgresStore) CreateTeam(ctx context.Context, t *models.Team) error {
	_, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO teams (id, name, description, location_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.Name, t.Description, t.LocationID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert team: %w", postgres.MapError(err))
	}
	return nil
}

func (s *PostgresStore) FindTeam(ctx context.Context, id uuid.UUID) (*models.TeamView, error) {
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, teamView+` WHERE t.id = $1`, id)
	t, err := scanTeam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find team: %w", postgres.MapError(err))
	}
	return t, nil
}

func teamFilter(f models.TeamFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.LocationID != uuid.Nil {
		args = append(args, f.LocationID)
		conds = append(conds, fmt.Sprintf("t.location_id = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conds = append(conds, fmt.Sprintf("t.name ILIKE $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) ListTeams(ctx context.Context, f models.TeamFilter) ([]models.TeamView, error) {
	where, args := teamFilter(f)
	args = append(args, f.Page.Limit, f.Page.Offset())
	query := fmt.Sprintf(`%s%s ORDER BY t.name, t.id LIMIT $%d OFFSET $%d`, teamView, where, len(args)-1, len(args))

	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", postgres.MapError(err))
	}
	defer rows.Close()

	var out []models.TeamView
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountTeams(ctx context.Context, f models.TeamFilter) (int, error) {
	where, args := teamFilter(f)
	var n int
	if err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM teams t`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count teams: %w", postgres.MapError(err))
	}
	return n, nil
}

func (s *PostgresStore) UpdateTeam(ctx context.Context, t *models.Team) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		UPDATE teams SET name = $2, description = $3, location_id = $4, updated_at = $5 WHERE id = $1
	`, t.ID, t.Name, t.Description, t.LocationID, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update team: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

func (s *PostgresStore) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete team: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLocation(row scanner) (*models.Location, error) {
	var l models.Location
	if err := row.Scan(&l.ID, &l.Name, &l.StreetAddress, &l.ZipCode, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func scanTeam(row scanner) (*models.TeamView, error) {
	var (
		t        models.TeamView
		location uuid.NullUUID
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &location, &t.CreatedAt, &t.UpdatedAt, &t.LocationName); err != nil {
		return nil, err
	}
	if location.Valid {
		t.LocationID = &location.UUID
	}
	return &t, nil
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
