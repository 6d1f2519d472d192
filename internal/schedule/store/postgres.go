package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vtrack/internal/platform/postgres"
	"vtrack/internal/schedule/models"
	"vtrack/pkg/platform/sentinel"
	txcontext "vtrack/pkg/platform/tx"
)

// PostgresStore persists violation types and their penalty tiers.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const typeColumns = `id, name, level, base_penalty, description, created_at, updated_at`

func (s *PostgresStore) CreateType(ctx context.Context, t *models.ViolationType, tiers []models.PenaltyTier) error {
	exec := txcontext.Execer(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO violation_types (`+typeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.Name, t.Level, t.BasePenalty, t.Description, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert violation type: %w", postgres.MapError(err))
	}
	return s.insertTiers(ctx, exec, tiers)
}

func (s *PostgresStore) insertTiers(ctx context.Context, exec txcontext.Executor, tiers []models.PenaltyTier) error {
	for _, tier := range tiers {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO penalty_tiers (violation_type_id, tier, amount)
			VALUES ($1, $2, $3)
		`, tier.ViolationTypeID, tier.Tier, tier.Amount)
		if err != nil {
			return fmt.Errorf("insert penalty tier: %w", postgres.MapError(err))
		}
	}
	return nil
}

func (s *PostgresStore) FindType(ctx context.Context, id uuid.UUID) (*models.ViolationType, error) {
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+typeColumns+` FROM violation_types WHERE id = $1`, id)
	t, err := scanType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find violation type: %w", err)
	}
	return t, nil
}

func typeFilter(f models.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Level != "" {
		args = append(args, f.Level)
		conds = append(conds, fmt.Sprintf("level = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) ListTypes(ctx context.Context, f models.ListFilter) ([]models.ViolationType, error) {
	where, args := typeFilter(f)
	args = append(args, f.Page.Limit, f.Page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM violation_types%s ORDER BY level, name, id LIMIT $%d OFFSET $%d`,
		typeColumns, where, len(args)-1, len(args))

	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list violation types: %w", postgres.MapError(err))
	}
	defer rows.Close()

	var out []models.ViolationType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan violation type: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountTypes(ctx context.Context, f models.ListFilter) (int, error) {
	where, args := typeFilter(f)
	var n int
	err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM violation_types`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count violation types: %w", postgres.MapError(err))
	}
	return n, nil
}

func (s *PostgresStore) ListTiers(ctx context.Context, typeID uuid.UUID) ([]models.PenaltyTier, error) {
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT violation_type_id, tier, amount
		FROM penalty_tiers
		WHERE violation_type_id = $1
		ORDER BY CASE tier WHEN 'First Offense' THEN 1 WHEN 'Second Offense' THEN 2 ELSE 3 END
	`, typeID)
	if err != nil {
		return nil, fmt.Errorf("list penalty tiers: %w", postgres.MapError(err))
	}
	defer rows.Close()

	var out []models.PenaltyTier
	for rows.Next() {
		var tier models.PenaltyTier
		if err := rows.Scan(&tier.ViolationTypeID, &tier.Tier, &tier.Amount); err != nil {
			return nil, fmt.Errorf("scan penalty tier: %w", err)
		}
		out = append(out, tier)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateType(ctx context.Context, t *models.ViolationType) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		UPDATE violation_types
		SET name = $2, level = $3, base_penalty = $4, description = $5, updated_at = $6
		WHERE id = $1
	`, t.ID, t.Name, t.Level, t.BasePenalty, t.Description, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update violation type: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

// ReplaceTiers overwrites the tier amounts of one type.
func (s *PostgresStore) ReplaceTiers(ctx context.Context, typeID uuid.UUID, tiers []models.PenaltyTier) error {
	exec := txcontext.Execer(ctx, s.db)
	if _, err := exec.ExecContext(ctx, `DELETE FROM penalty_tiers WHERE violation_type_id = $1`, typeID); err != nil {
		return fmt.Errorf("delete penalty tiers: %w", postgres.MapError(err))
	}
	return s.insertTiers(ctx, exec, tiers)
}

// DeleteType removes the tiers, then the type.
func (s *PostgresStore) DeleteType(ctx context.Context, id uuid.UUID) error {
	exec := txcontext.Execer(ctx, s.db)
	if _, err := exec.ExecContext(ctx, `DELETE FROM penalty_tiers WHERE violation_type_id = $1`, id); err != nil {
		return fmt.Errorf("delete penalty tiers: %w", postgres.MapError(err))
	}
	res, err := exec.ExecContext(ctx, `DELETE FROM violation_types WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete violation type: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

func (s *PostgresStore) LookupTier(ctx context.Context, typeID uuid.UUID, tier models.Tier) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT amount FROM penalty_tiers WHERE violation_type_id = $1 AND tier = $2
	`, typeID, tier).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, sentinel.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lookup penalty tier: %w", postgres.MapError(err))
	}
	return amount, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanType(row scanner) (*models.ViolationType, error) {
	var t models.ViolationType
	if err := row.Scan(&t.ID, &t.Name, &t.Level, &t.BasePenalty, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
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
