package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vtrack/internal/platform/postgres"
	"vtrack/internal/user/models"
	"vtrack/pkg/platform/sentinel"
	txcontext "vtrack/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const columns = `u.id, u.email, u.password_hash, u.first_name, u.last_name, u.role, u.team_id, u.badge_number,
	u.phone, u.is_active, u.created_at, u.updated_at`

const viewQuery = `SELECT ` + columns + `, COALESCE(t.name, '')
	FROM users u
	LEFT JOIN teams t ON t.id = u.team_id`

func (s *PostgresStore) Create(ctx context.Context, u *models.User) error {
	_, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, team_id, badge_number,
			phone, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.TeamID, u.BadgeNumber,
		u.Phone, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", postgres.MapError(err))
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.findBy(ctx, `u.id = $1`, id)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findBy(ctx, `u.email = $1`, email)
}

func (s *PostgresStore) findBy(ctx context.Context, cond string, arg any) (*models.User, error) {
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT `+columns+` FROM users u WHERE `+cond, arg)
	var u models.User
	err := row.Scan(userDest(&u)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", postgres.MapError(err))
	}
	return &u, nil
}

func (s *PostgresStore) FindView(ctx context.Context, id uuid.UUID) (*models.View, error) {
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, viewQuery+` WHERE u.id = $1`, id)
	v, err := scanView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user view: %w", postgres.MapError(err))
	}
	return v, nil
}

func filter(f models.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Role != "" {
		add("u.role = $%d", f.Role)
	}
	if f.TeamID != uuid.Nil {
		add("u.team_id = $%d", f.TeamID)
	}
	if f.Active != nil {
		add("u.is_active = $%d", *f.Active)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) List(ctx context.Context, f models.ListFilter) ([]models.View, error) {
	where, args := filter(f)
	args = append(args, f.Page.Limit, f.Page.Offset())
	query := fmt.Sprintf(`%s%s ORDER BY u.created_at DESC, u.id LIMIT $%d OFFSET $%d`, viewQuery, where, len(args)-1, len(args))

	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", postgres.MapError(err))
	}
	defer rows.Close()

	var out []models.View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, f models.ListFilter) (int, error) {
	where, args := filter(f)
	var n int
	if err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM users u`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", postgres.MapError(err))
	}
	return n, nil
}

func (s *PostgresStore) Update(ctx context.Context, u *models.User) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		UPDATE users
		SET first_name = $2, last_name = $3, team_id = $4, badge_number = $5, phone = $6, is_active = $7, updated_at = $8
		WHERE id = $1
	`, u.ID, u.FirstName, u.LastName, u.TeamID, u.BadgeNumber, u.Phone, u.IsActive, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
	if err != nil {
		return fmt.Errorf("update password: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func userDest(u *models.User) []any {
	return []any{&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role, teamScanner{u},
		&u.BadgeNumber, &u.Phone, &u.IsActive, &u.CreatedAt, &u.UpdatedAt}
}

// teamScanner scans a nullable team_id straight into User.TeamID.
type teamScanner struct {
	u *models.User
}

func (t teamScanner) Scan(src any) error {
	var id uuid.NullUUID
	if err := id.Scan(src); err != nil {
		return err
	}
	t.u.TeamID = nil
	if id.Valid {
		t.u.TeamID = &id.UUID
	}
	return nil
}

func scanView(row scanner) (*models.View, error) {
	var v models.View
	dest := append(userDest(&v.User), &v.TeamName)
	if err := row.Scan(dest...); err != nil {
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
