package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"

	violator "vtrack/internal/violator/models"
	"vtrack/pkg/platform/sentinel"
)

type ViolatorStore struct {
	db *DB
}

func (t *tables) licenseTaken(license string, except uuid.UUID) bool {
	for _, v := range t.violators {
		if v.LicenseNumber == license && v.ID != except {
			return true
		}
	}
	return false
}

func (s *ViolatorStore) Create(ctx context.Context, v *violator.Violator) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.violators[v.ID]; ok || t.licenseTaken(v.LicenseNumber, uuid.Nil) {
			return sentinel.ErrConflict
		}
		t.violators[v.ID] = *v
		return nil
	})
}

func (s *ViolatorStore) Find(ctx context.Context, id uuid.UUID) (*violator.Violator, error) {
	var out violator.Violator
	err := s.db.read(ctx, func(t *tables) error {
		v, ok := t.violators[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ViolatorStore) LicenseExists(ctx context.Context, license string, except uuid.UUID) (bool, error) {
	var taken bool
	err := s.db.read(ctx, func(t *tables) error {
		taken = t.licenseTaken(license, except)
		return nil
	})
	return taken, err
}

func matchViolator(v violator.Violator, f violator.ListFilter) bool {
	if f.Search == "" {
		return true
	}
	return containsFold(v.FirstName, f.Search) ||
		containsFold(v.LastName, f.Search) ||
		containsFold(v.LicenseNumber, f.Search) ||
		containsFold(v.ContactNo, f.Search)
}

func (s *ViolatorStore) List(ctx context.Context, f violator.ListFilter) ([]violator.Violator, error) {
	var out []violator.Violator
	err := s.db.read(ctx, func(t *tables) error {
		var all []violator.Violator
		for _, v := range t.violators {
			if matchViolator(v, f) {
				all = append(all, v)
			}
		}
		slices.SortFunc(all, func(a, b violator.Violator) int {
			return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
		})
		start, end := f.Page.Window(len(all))
		out = all[start:end]
		return nil
	})
	return out, err
}

func (s *ViolatorStore) Count(ctx context.Context, f violator.ListFilter) (int, error) {
	var n int
	err := s.db.read(ctx, func(t *tables) error {
		for _, v := range t.violators {
			if matchViolator(v, f) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *ViolatorStore) Update(ctx context.Context, v *violator.Violator) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.violators[v.ID]; !ok {
			return sentinel.ErrNotFound
		}
		if t.licenseTaken(v.LicenseNumber, v.ID) {
			return sentinel.ErrConflict
		}
		t.violators[v.ID] = *v
		return nil
	})
}

func (s *ViolatorStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.violators[id]; !ok {
			return sentinel.ErrNotFound
		}
		if t.violatorReferenced(id) {
			return sentinel.ErrConflict
		}
		delete(t.violators, id)
		return nil
	})
}
