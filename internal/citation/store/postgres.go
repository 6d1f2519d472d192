package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vtrack/internal/citation/models"
	"vtrack/internal/platform/postgres"
	"vtrack/pkg/platform/sentinel"
	txcontext "vtrack/pkg/platform/tx"
)

// PostgresStore persists citations and their line items.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const columns = `c.id, c.violator_id, c.officer_id, c.location, c.issued_at, c.status, c.total_amount, c.evidence,
	c.officers_note, c.confiscated, c.confiscated_returned, c.plate_no, c.or_number, c.cr_number, c.is_accident,
	c.permit, c.vehicle_plate_no, c.vehicle_year, c.vehicle_make, c.vehicle_body, c.vehicle_color,
	c.registered_owner, c.registered_owner_address, c.vehicle_place_issued, c.created_at, c.updated_at`

const viewColumns = columns + `,
	v.first_name || ' ' || v.last_name, v.license_number, u.first_name || ' ' || u.last_name,
	(SELECT COUNT(*) FROM citation_line_items li WHERE li.citation_id = c.id),
	p.id, p.receipt_no, p.amount, p.method, p.paid_at`

const viewFrom = ` FROM citations c
	JOIN violators v ON v.id = c.violator_id
	JOIN users u ON u.id = c.officer_id
	LEFT JOIN payments p ON p.citation_id = c.id`

// Create inserts the citation row, then every line item, on the caller's
// transaction. The caller rolls back if any insert fails.
func (s *PostgresStore) Create(ctx context.Context, c *models.Citation, items []models.LineItem) error {
	exec := txcontext.Execer(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO citations (id, violator_id, officer_id, location, issued_at, status, total_amount, evidence,
			officers_note, confiscated, confiscated_returned, plate_no, or_number, cr_number, is_accident,
			permit, vehicle_plate_no, vehicle_year, vehicle_make, vehicle_body, vehicle_color,
			registered_owner, registered_owner_address, vehicle_place_issued, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26)
	`, c.ID, c.ViolatorID, c.OfficerID, c.Location, c.IssuedAt, c.Status, c.TotalAmount, c.Evidence,
		c.OfficersNote, c.Confiscated, c.ConfiscatedReturned, c.PlateNo, c.ORNumber, c.CRNumber, c.IsAccident,
		c.Permit, c.VehiclePlateNo, c.Year, c.VehicleMake, c.Body, c.Color,
		c.RegisteredOwner, c.RegisteredOwnerAddress, c.VehiclePlaceIssued, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert citation: %w", postgres.MapError(err))
	}
	if len(items) == 0 {
		return nil
	}

	values := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*6)
	for _, item := range items {
		n := len(args)
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6))
		args = append(args, item.ID, item.CitationID, item.ViolationTypeID, item.Tier, item.AppliedPenalty, item.Position)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO citation_line_items (id, citation_id, violation_type_id, tier, applied_penalty, position)
		VALUES `+strings.Join(values, ", "), args...)
	if err != nil {
		return fmt.Errorf("insert line items: %w", postgres.MapError(err))
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, id uuid.UUID) (*models.Citation, error) {
	return s.findCitation(ctx, `SELECT `+columns+` FROM citations c WHERE c.id = $1`, id)
}

// LockForPayment reads the citation and holds its row lock until the
// caller's transaction ends, serializing concurrent payments.
func (s *PostgresStore) LockForPayment(ctx context.Context, id uuid.UUID) (*models.Citation, error) {
	return s.findCitation(ctx, `SELECT `+columns+` FROM citations c WHERE c.id = $1 FOR UPDATE`, id)
}

func (s *PostgresStore) findCitation(ctx context.Context, query string, id uuid.UUID) (*models.Citation, error) {
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, query, id)
	c, err := scanCitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find citation: %w", postgres.MapError(err))
	}
	return c, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id uuid.UUID, status models.Status, at time.Time) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx,
		`UPDATE citations SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return fmt.Errorf("set citation status: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

func (s *PostgresStore) FindView(ctx context.Context, id uuid.UUID) (*models.View, error) {
	exec := txcontext.Execer(ctx, s.db)
	row := exec.QueryRowContext(ctx, `SELECT `+viewColumns+viewFrom+` WHERE c.id = $1`, id)
	view, err := scanView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find citation view: %w", postgres.MapError(err))
	}

	rows, err := exec.QueryContext(ctx, `
		SELECT li.id, li.citation_id, li.violation_type_id, li.tier, li.applied_penalty, li.position, t.name, t.level
		FROM citation_line_items li
		JOIN violation_types t ON t.id = li.violation_type_id
		WHERE li.citation_id = $1
		ORDER BY li.position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", postgres.MapError(err))
	}
	defer rows.Close()
	for rows.Next() {
		var item models.LineItemView
		if err := rows.Scan(&item.ID, &item.CitationID, &item.ViolationTypeID, &item.Tier, &item.AppliedPenalty,
			&item.Position, &item.ViolationName, &item.Level); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		view.LineItems = append(view.LineItems, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return view, nil
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
	if f.Status != "" {
		add("c.status = $%d", f.Status)
	}
	if f.ViolatorID != uuid.Nil {
		add("c.violator_id = $%d", f.ViolatorID)
	}
	if f.OfficerID != uuid.Nil {
		add("c.officer_id = $%d", f.OfficerID)
	}
	if !f.From.IsZero() {
		add("c.issued_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("c.issued_at <= $%d", f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) List(ctx context.Context, f models.ListFilter) ([]models.View, error) {
	where, args := filter(f)
	args = append(args, f.Page.Limit, f.Page.Offset())
	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY c.issued_at DESC, c.created_at DESC, c.id LIMIT $%d OFFSET $%d`,
		viewColumns, viewFrom, where, len(args)-1, len(args))

	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list citations: %w", postgres.MapError(err))
	}
	defer rows.Close()

	var out []models.View
	for rows.Next() {
		view, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan citation: %w", err)
		}
		out = append(out, *view)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, f models.ListFilter) (int, error) {
	where, args := filter(f)
	var n int
	if err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM citations c`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count citations: %w", postgres.MapError(err))
	}
	return n, nil
}

// Update writes the amendable fields. Totals and line items are never rewritten.
func (s *PostgresStore) Update(ctx context.Context, c *models.Citation) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		UPDATE citations
		SET status = $2, officers_note = $3, confiscated = $4, confiscated_returned = $5,
		    plate_no = $6, or_number = $7, cr_number = $8, updated_at = $9
		WHERE id = $1
	`, c.ID, c.Status, c.OfficersNote, c.Confiscated, c.ConfiscatedReturned, c.PlateNo, c.ORNumber, c.CRNumber, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update citation: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

// Delete removes the line items before the citation. A payment row still
// referencing the citation fails the delete with ErrConflict.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	exec := txcontext.Execer(ctx, s.db)
	if _, err := exec.ExecContext(ctx, `DELETE FROM citation_line_items WHERE citation_id = $1`, id); err != nil {
		return fmt.Errorf("delete line items: %w", postgres.MapError(err))
	}
	res, err := exec.ExecContext(ctx, `DELETE FROM citations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete citation: %w", postgres.MapError(err))
	}
	return requireRow(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func citationDest(c *models.Citation) []any {
	return []any{&c.ID, &c.ViolatorID, &c.OfficerID, &c.Location, &c.IssuedAt, &c.Status, &c.TotalAmount, &c.Evidence,
		&c.OfficersNote, &c.Confiscated, &c.ConfiscatedReturned, &c.PlateNo, &c.ORNumber, &c.CRNumber, &c.IsAccident,
		&c.Permit, &c.VehiclePlateNo, &c.Year, &c.VehicleMake, &c.Body, &c.Color,
		&c.RegisteredOwner, &c.RegisteredOwnerAddress, &c.VehiclePlaceIssued, &c.CreatedAt, &c.UpdatedAt}
}

func scanCitation(row scanner) (*models.Citation, error) {
	var c models.Citation
	if err := row.Scan(citationDest(&c)...); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanView(row scanner) (*models.View, error) {
	var (
		v       models.View
		payment struct {
			id      uuid.NullUUID
			receipt sql.NullString
			amount  decimal.NullDecimal
			method  sql.NullString
			paidAt  sql.NullTime
		}
	)
	dest := append(citationDest(&v.Citation), &v.ViolatorName, &v.DriversLicense, &v.OfficerName, &v.ViolationsCount,
		&payment.id, &payment.receipt, &payment.amount, &payment.method, &payment.paidAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if payment.id.Valid {
		v.Payment = &models.PaymentSummary{
			ID:        payment.id.UUID,
			ReceiptNo: payment.receipt.String,
			Amount:    payment.amount.Decimal,
			Method:    payment.method.String,
			PaidAt:    payment.paidAt.Time,
		}
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
