package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vtrack/internal/payment/models"
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

const columns = `p.id, p.citation_id, p.receipt_no, p.amount, p.method, p.paid_at, p.processed_by, p.notes,
	p.created_at, p.updated_at`

const viewQuery = `SELECT ` + columns + `,
	v.first_name || ' ' || v.last_name, c.total_amount, c.status, u.first_name || ' ' || u.last_name
	FROM payments p
	JOIN citations c ON c.id = p.citation_id
	JOIN violators v ON v.id = c.violator_id
	JOIN users u ON u.id = p.processed_by`

// Create relies on the UNIQUE constraints on citation_id and receipt_no as
// the last line against a second payment; both surface as ErrConflict.
func (s *PostgresStore) Create(ctx context.Context, p *models.Payment) error {
	_, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO payments (id, citation_id, receipt_no, amount, method, paid_at, processed_by, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.CitationID, p.ReceiptNo, p.Amount, p.Method, p.PaidAt, p.ProcessedBy, p.Notes, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", postgres.MapError(err))
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT `+columns+` FROM payments p WHERE p.id = $1`, id)
	var p models.Payment
	err := row.Scan(paymentDest(&p)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", postgres.MapError(err))
	}
	return &p, nil
}

func (s *PostgresStore) ReceiptExists(ctx context.Context, receipt string, except uuid.UUID) (bool, error) {
	var exists bool
	err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE receipt_no = $1 AND id <> $2)
	`, receipt, except).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check receipt: %w", postgres.MapError(err))
	}
	return exists, nil
}

func (s *PostgresStore) FindView(ctx context.Context, id uuid.UUID) (*models.View, error) {
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, viewQuery+` WHERE p.id = $1`, id)
	v, err := scanView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment view: %w", postgres.MapError(err))
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
	if f.CitationID != uuid.Nil {
		add("p.citation_id = $%d", f.CitationID)
	}
	if f.Method != "" {
		add("p.method = $%d", f.Method)
	}
	if !f.From.IsZero() {
		add("p.paid_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("p.paid_at <= $%d", f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) List(ctx context.Context, f models.ListFilter) ([]models.View, error) {
	where, args := filter(f)
	args = append(args, f.Page.Limit, f.Page.Offset())
	query := fmt.Sprintf(`%s%s ORDER BY p.paid_at DESC, p.id LIMIT $%d OFFSET $%d`, viewQuery, where, len(args)-1, len(args))

	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", postgres.MapError(err))
	}
	defer rows.Close()

	var out []models.View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, f models.ListFilter) (int, error) {
	where, args := filter(f)
	var n int
	if err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM payments p`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count payments: %w", postgres.MapError(err))
	}
	return n, nil
}

func (s *PostgresStore) Update(ctx context.Context, p *models.Payment) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		UPDATE payments
		SET receipt_no = $2, amount = $3, method = $4, paid_at = $5, notes = $6, updated_at = $7
		WHERE id = $1
	`, p.ID, p.ReceiptNo, p.Amount, p.Method, p.PaidAt, p.Notes, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payment: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func paymentDest(p *models.Payment) []any {
	return []any{&p.ID, &p.CitationID, &p.ReceiptNo, &p.Amount, &p.Method, &p.PaidAt, &p.ProcessedBy, &p.Notes,
		&p.CreatedAt, &p.UpdatedAt}
}

func scanView(row scanner) (*models.View, error) {
	var v models.View
	dest := append(paymentDest(&v.Payment), &v.ViolatorName, &v.CitationTotal, &v.CitationStatus, &v.ProcessedByName)
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
