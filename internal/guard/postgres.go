package guard

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"vtrack/internal/platform/postgres"
	txcontext "vtrack/pkg/platform/tx"
)

var existsQueries = map[Reference]string{
	ViolatorCitations:      `SELECT EXISTS (SELECT 1 FROM citations WHERE violator_id = $1)`,
	ViolationTypeLineItems: `SELECT EXISTS (SELECT 1 FROM citation_line_items WHERE violation_type_id = $1)`,
	LocationTeams:          `SELECT EXISTS (SELECT 1 FROM teams WHERE location_id = $1)`,
	TeamUsers:              `SELECT EXISTS (SELECT 1 FROM users WHERE team_id = $1)`,
	UserCitations:          `SELECT EXISTS (SELECT 1 FROM citations WHERE officer_id = $1)`,
	UserPayments:           `SELECT EXISTS (SELECT 1 FROM payments WHERE processed_by = $1)`,
	CitationPayments:       `SELECT EXISTS (SELECT 1 FROM payments WHERE citation_id = $1)`,
}

// PostgresChecker runs one fixed EXISTS query per reference.
type PostgresChecker struct {
	db *sql.DB
}

func NewPostgresChecker(db *sql.DB) *PostgresChecker {
	return &PostgresChecker{db: db}
}

func (c *PostgresChecker) Exists(ctx context.Context, ref Reference, id uuid.UUID) (bool, error) {
	query, ok := existsQueries[ref]
	if !ok {
		return false, fmt.Errorf("no query for reference %q", ref)
	}
	var exists bool
	if err := txcontext.Execer(ctx, c.db).QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s: %w", ref, postgres.MapError(err))
	}
	return exists, nil
}
