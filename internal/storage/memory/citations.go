package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	citation "vtrack/internal/citation/models"
	"vtrack/pkg/platform/sentinel"
)

type CitationStore struct {
	db *DB
}

// Create writes the citation and its line items, checking the same foreign
// keys the relational schema enforces.
func (s *CitationStore) Create(ctx context.Context, c *citation.Citation, items []citation.LineItem) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.citations[c.ID]; ok {
			return sentinel.ErrConflict
		}
		if _, ok := t.violators[c.ViolatorID]; !ok {
			return sentinel.ErrConflict
		}
		if _, ok := t.users[c.OfficerID]; !ok {
			return sentinel.ErrConflict
		}
		for _, item := range items {
			if _, ok := t.types[item.ViolationTypeID]; !ok {
				return sentinel.ErrConflict
			}
		}
		t.citations[c.ID] = *c
		t.lineItems[c.ID] = slices.Clone(items)
		return nil
	})
}

func (s *CitationStore) Find(ctx context.Context, id uuid.UUID) (*citation.Citation, error) {
	var out citation.Citation
	err := s.db.read(ctx, func(t *tables) error {
		c, ok := t.citations[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LockForPayment reads the citation. The caller's unit of work already
// holds the table lock.
func (s *CitationStore) LockForPayment(ctx context.Context, id uuid.UUID) (*citation.Citation, error) {
	return s.Find(ctx, id)
}

func (s *CitationStore) SetStatus(ctx context.Context, id uuid.UUID, status citation.Status, at time.Time) error {
	return s.db.write(ctx, func(t *tables) error {
		c, ok := t.citations[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		c.Status = status
		c.UpdatedAt = at
		t.citations[id] = c
		return nil
	})
}

func (t *tables) citationView(c citation.Citation, withItems bool) citation.View {
	v := citation.View{Citation: c, ViolationsCount: len(t.lineItems[c.ID])}
	if violator, ok := t.violators[c.ViolatorID]; ok {
		v.ViolatorName = violator.FullName()
		v.DriversLicense = violator.LicenseNumber
	}
	if officer, ok := t.users[c.OfficerID]; ok {
		v.OfficerName = officer.FullName()
	}
	if p, ok := t.paymentFor(c.ID); ok {
		v.Payment = p.Summary()
	}
	if withItems {
		for _, item := range t.lineItems[c.ID] {
			iv := citation.LineItemView{LineItem: item}
			if vt, ok := t.types[item.ViolationTypeID]; ok {
				iv.ViolationName = vt.Name
				iv.Level = vt.Level
			}
			v.LineItems = append(v.LineItems, iv)
		}
	}
	return v
}

func (s *CitationStore) FindView(ctx context.Context, id uuid.UUID) (*citation.View, error) {
	var out citation.View
	err := s.db.read(ctx, func(t *tables) error {
		c, ok := t.citations[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		out = t.citationView(c, true)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func matchCitation(c citation.Citation, f citation.ListFilter) bool {
	switch {
	case f.Status != "" && c.Status != f.Status:
		return false
	case f.ViolatorID != uuid.Nil && c.ViolatorID != f.ViolatorID:
		return false
	case f.OfficerID != uuid.Nil && c.OfficerID != f.OfficerID:
		return false
	case !f.From.IsZero() && c.IssuedAt.Before(f.From):
		return false
	case !f.To.IsZero() && c.IssuedAt.After(f.To):
		return false
	}
	return true
}

func (s *CitationStore) List(ctx context.Context, f citation.ListFilter) ([]citation.View, error) {
	var out []citation.View
	err := s.db.read(ctx, func(t *tables) error {
		var all []citation.Citation
		for _, c := range t.citations {
			if matchCitation(c, f) {
				all = append(all, c)
			}
		}
		slices.SortFunc(all, func(a, b citation.Citation) int {
			return cmp.Or(
				b.IssuedAt.Compare(a.IssuedAt),
				b.CreatedAt.Compare(a.CreatedAt),
				cmp.Compare(a.ID.String(), b.ID.String()),
			)
		})
		start, end := f.Page.Window(len(all))
		for _, c := range all[start:end] {
			out = append(out, t.citationView(c, false))
		}
		return nil
	})
	return out, err
}

func (s *CitationStore) Count(ctx context.Context, f citation.ListFilter) (int, error) {
	var n int
	err := s.db.read(ctx, func(t *tables) error {
		for _, c := range t.citations {
			if matchCitation(c, f) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *CitationStore) Update(ctx context.Context, c *citation.Citation) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.citations[c.ID]; !ok {
			return sentinel.ErrNotFound
		}
		t.citations[c.ID] = *c
		return nil
	})
}

// Delete removes the line items, then the citation.
func (s *CitationStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.citations[id]; !ok {
			return sentinel.ErrNotFound
		}
		if _, paid := t.paymentFor(id); paid {
			return sentinel.ErrConflict
		}
		delete(t.lineItems, id)
		delete(t.citations, id)
		return nil
	})
}
