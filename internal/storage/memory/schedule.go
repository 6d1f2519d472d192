package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	schedule "vtrack/internal/schedule/models"
	"vtrack/pkg/platform/sentinel"
)

type ScheduleStore struct {
	db *DB
}

func (s *ScheduleStore) CreateType(ctx context.Context, vt *schedule.ViolationType, tiers []schedule.PenaltyTier) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.types[vt.ID]; ok {
			return sentinel.ErrConflict
		}
		t.types[vt.ID] = *vt
		t.tiers[vt.ID] = tierMap(tiers)
		return nil
	})
}

func tierMap(tiers []schedule.PenaltyTier) map[schedule.Tier]decimal.Decimal {
	m := make(map[schedule.Tier]decimal.Decimal, len(tiers))
	for _, tier := range tiers {
		m[tier.Tier] = tier.Amount
	}
	return m
}

func (s *ScheduleStore) FindType(ctx context.Context, id uuid.UUID) (*schedule.ViolationType, error) {
	var out schedule.ViolationType
	err := s.db.read(ctx, func(t *tables) error {
		vt, ok := t.types[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		out = vt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func matchType(vt schedule.ViolationType, f schedule.ListFilter) bool {
	if f.Level != "" && vt.Level != f.Level {
		return false
	}
	return f.Search == "" || containsFold(vt.Name, f.Search)
}

func (s *ScheduleStore) filterTypes(t *tables, f schedule.ListFilter) []schedule.ViolationType {
	var out []schedule.ViolationType
	for _, vt := range t.types {
		if matchType(vt, f) {
			out = append(out, vt)
		}
	}
	slices.SortFunc(out, func(a, b schedule.ViolationType) int {
		return cmp.Or(
			cmp.Compare(a.Level, b.Level),
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.ID.String(), b.ID.String()),
		)
	})
	return out
}

func (s *ScheduleStore) ListTypes(ctx context.Context, f schedule.ListFilter) ([]schedule.ViolationType, error) {
	var out []schedule.ViolationType
	err := s.db.read(ctx, func(t *tables) error {
		all := s.filterTypes(t, f)
		start, end := f.Page.Window(len(all))
		out = all[start:end]
		return nil
	})
	return out, err
}

func (s *ScheduleStore) CountTypes(ctx context.Context, f schedule.ListFilter) (int, error) {
	var n int
	err := s.db.read(ctx, func(t *tables) error {
		for _, vt := range t.types {
			if matchType(vt, f) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *ScheduleStore) ListTiers(ctx context.Context, typeID uuid.UUID) ([]schedule.PenaltyTier, error) {
	var out []schedule.PenaltyTier
	err := s.db.read(ctx, func(t *tables) error {
		for _, tier := range schedule.Tiers {
			if amount, ok := t.tiers[typeID][tier]; ok {
				out = append(out, schedule.PenaltyTier{ViolationTypeID: typeID, Tier: tier, Amount: amount})
			}
		}
		return nil
	})
	return out, err
}

func (s *ScheduleStore) UpdateType(ctx context.Context, vt *schedule.ViolationType) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.types[vt.ID]; !ok {
			return sentinel.ErrNotFound
		}
		t.types[vt.ID] = *vt
		return nil
	})
}

func (s *ScheduleStore) ReplaceTiers(ctx context.Context, typeID uuid.UUID, tiers []schedule.PenaltyTier) error {
	return s.db.write(ctx, func(t *tables) error {
		t.tiers[typeID] = tierMap(tiers)
		return nil
	})
}

// DeleteType enforces the same restriction as the foreign key on line items.
func (s *ScheduleStore) DeleteType(ctx context.Context, id uuid.UUID) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.types[id]; !ok {
			return sentinel.ErrNotFound
		}
		if t.typeReferenced(id) {
			return sentinel.ErrConflict
		}
		delete(t.tiers, id)
		delete(t.types, id)
		return nil
	})
}

func (s *ScheduleStore) LookupTier(ctx context.Context, typeID uuid.UUID, tier schedule.Tier) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := s.db.read(ctx, func(t *tables) error {
		a, ok := t.tiers[typeID][tier]
		if !ok {
			return sentinel.ErrNotFound
		}
		amount = a
		return nil
	})
	return amount, err
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
