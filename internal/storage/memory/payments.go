package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"

	payment "vtrack/internal/payment/models"
	"vtrack/pkg/platform/sentinel"
)

type PaymentStore struct {
	db *DB
}

func (t *tables) paymentFor(citationID uuid.UUID) (payment.Payment, bool) {
	for _, p := range t.payments {
		if p.CitationID == citationID {
			return p, true
		}
	}
	return payment.Payment{}, false
}

func (t *tables) receiptTaken(receipt string, except uuid.UUID) bool {
	for _, p := range t.payments {
		if p.ReceiptNo == receipt && p.ID != except {
			return true
		}
	}
	return false
}

// Create enforces the one-payment-per-citation and unique receipt rules.
func (s *PaymentStore) Create(ctx context.Context, p *payment.Payment) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.citations[p.CitationID]; !ok {
			return sentinel.ErrConflict
		}
		if _, ok := t.payments[p.ID]; ok {
			return sentinel.ErrConflict
		}
		if _, ok := t.paymentFor(p.CitationID); ok || t.receiptTaken(p.ReceiptNo, uuid.Nil) {
			return sentinel.ErrConflict
		}
		t.payments[p.ID] = *p
		return nil
	})
}

func (s *PaymentStore) Find(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	var out payment.Payment
	err := s.db.read(ctx, func(t *tables) error {
		p, ok := t.payments[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PaymentStore) ReceiptExists(ctx context.Context, receipt string, except uuid.UUID) (bool, error) {
	var taken bool
	err := s.db.read(ctx, func(t *tables) error {
		taken = t.receiptTaken(receipt, except)
		return nil
	})
	return taken, err
}

func (t *tables) paymentView(p payment.Payment) payment.View {
	v := payment.View{Payment: p}
	if c, ok := t.citations[p.CitationID]; ok {
		v.CitationTotal = c.TotalAmount
		v.CitationStatus = c.Status
		if violator, ok := t.violators[c.ViolatorID]; ok {
			v.ViolatorName = violator.FullName()
		}
	}
	if u, ok := t.users[p.ProcessedBy]; ok {
		v.ProcessedByName = u.FullName()
	}
	return v
}

func (s *PaymentStore) FindView(ctx context.Context, id uuid.UUID) (*payment.View, error) {
	var out payment.View
	err := s.db.read(ctx, func(t *tables) error {
		p, ok := t.payments[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		out = t.paymentView(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func matchPayment(p payment.Payment, f payment.ListFilter) bool {
	switch {
	case f.CitationID != uuid.Nil && p.CitationID != f.CitationID:
		return false
	case f.Method != "" && p.Method != f.Method:
		return false
	case !f.From.IsZero() && p.PaidAt.Before(f.From):
		return false
	case !f.To.IsZero() && p.PaidAt.After(f.To):
		return false
	}
	return true
}

func (s *PaymentStore) List(ctx context.Context, f payment.ListFilter) ([]payment.View, error) {
	var out []payment.View
	err := s.db.read(ctx, func(t *tables) error {
		var all []payment.Payment
		for _, p := range t.payments {
			if matchPayment(p, f) {
				all = append(all, p)
			}
		}
		slices.SortFunc(all, func(a, b payment.Payment) int {
			return cmp.Or(b.PaidAt.Compare(a.PaidAt), cmp.Compare(a.ID.String(), b.ID.String()))
		})
		start, end := f.Page.Window(len(all))
		for _, p := range all[start:end] {
			out = append(out, t.paymentView(p))
		}
		return nil
	})
	return out, err
}

func (s *PaymentStore) Count(ctx context.Context, f payment.ListFilter) (int, error) {
	var n int
	err := s.db.read(ctx, func(t *tables) error {
		for _, p := range t.payments {
			if matchPayment(p, f) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *PaymentStore) Update(ctx context.Context, p *payment.Payment) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.payments[p.ID]; !ok {
			return sentinel.ErrNotFound
		}
		if t.receiptTaken(p.ReceiptNo, p.ID) {
			return sentinel.ErrConflict
		}
		t.payments[p.ID] = *p
		return nil
	})
}

func (s *PaymentStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.payments[id]; !ok {
			return sentinel.ErrNotFound
		}
		delete(t.payments, id)
		return nil
	})
}
