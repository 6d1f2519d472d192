// Package memory is an in-process database implementing every store port.
// It backs development mode when no DATABASE_URL is configured, and the
// service and handler tests.
//
// All tables share one lock. RunInTx holds the write lock for the whole unit
// of work and restores a snapshot of every table when the unit fails, so
// transactions are serializable and a failed unit leaves nothing behind.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	citation "vtrack/internal/citation/models"
	org "vtrack/internal/org/models"
	"vtrack/internal/outbox"
	payment "vtrack/internal/payment/models"
	schedule "vtrack/internal/schedule/models"
	user "vtrack/internal/user/models"
	violator "vtrack/internal/violator/models"
)

type txKey struct{}

type tables struct {
	locations map[uuid.UUID]org.Location
	teams     map[uuid.UUID]org.Team
	users     map[uuid.UUID]user.User
	violators map[uuid.UUID]violator.Violator
	types     map[uuid.UUID]schedule.ViolationType
	tiers     map[uuid.UUID]map[schedule.Tier]decimal.Decimal
	citations map[uuid.UUID]citation.Citation
	lineItems map[uuid.UUID][]citation.LineItem
	payments  map[uuid.UUID]payment.Payment
	outbox    []outbox.Event
}

func newTables() tables {
	return tables{
		locations: make(map[uuid.UUID]org.Location),
		teams:     make(map[uuid.UUID]org.Team),
		users:     make(map[uuid.UUID]user.User),
		violators: make(map[uuid.UUID]violator.Violator),
		types:     make(map[uuid.UUID]schedule.ViolationType),
		tiers:     make(map[uuid.UUID]map[schedule.Tier]decimal.Decimal),
		citations: make(map[uuid.UUID]citation.Citation),
		lineItems: make(map[uuid.UUID][]citation.LineItem),
		payments:  make(map[uuid.UUID]payment.Payment),
	}
}

// clone copies every table. Rows are values and slices are never mutated in
// place, so copying the maps is enough.
func (t tables) clone() tables {
	tiers := make(map[uuid.UUID]map[schedule.Tier]decimal.Decimal, len(t.tiers))
	for id, m := range t.tiers {
		tiers[id] = maps.Clone(m)
	}
	return tables{
		locations: maps.Clone(t.locations),
		teams:     maps.Clone(t.teams),
		users:     maps.Clone(t.users),
		violators: maps.Clone(t.violators),
		types:     maps.Clone(t.types),
		tiers:     tiers,
		citations: maps.Clone(t.citations),
		lineItems: maps.Clone(t.lineItems),
		payments:  maps.Clone(t.payments),
		outbox:    append([]outbox.Event(nil), t.outbox...),
	}
}

type DB struct {
	mu sync.RWMutex
	t  tables
}

func New() *DB {
	return &DB{t: newTables()}
}

// RunInTx runs fn with exclusive access to every table. Nested calls join
// the outer unit.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.inTx(ctx) {
		return fn(ctx)
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.t.clone()
	if err := fn(context.WithValue(ctx, txKey{}, db)); err != nil {
		db.t = snapshot
		return err
	}
	return nil
}

func (db *DB) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*DB)
	return ok && owner == db
}

func (db *DB) read(ctx context.Context, fn func(t *tables) error) error {
	if !db.inTx(ctx) {
		db.mu.RLock()
		defer db.mu.RUnlock()
	}
	return fn(&db.t)
}

func (db *DB) write(ctx context.Context, fn func(t *tables) error) error {
	if !db.inTx(ctx) {
		db.mu.Lock()
		defer db.mu.Unlock()
	}
	return fn(&db.t)
}

func (db *DB) Schedule() *ScheduleStore      { return &ScheduleStore{db: db} }
func (db *DB) Violators() *ViolatorStore     { return &ViolatorStore{db: db} }
func (db *DB) Citations() *CitationStore     { return &CitationStore{db: db} }
func (db *DB) Payments() *PaymentStore       { return &PaymentStore{db: db} }
func (db *DB) Org() *OrgStore                { return &OrgStore{db: db} }
func (db *DB) Users() *UserStore             { return &UserStore{db: db} }
func (db *DB) References() *ReferenceChecker { return &ReferenceChecker{db: db} }
func (db *DB) Outbox() *OutboxStore          { return &OutboxStore{db: db} }
