package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	user "vtrack/internal/user/models"
	"vtrack/pkg/platform/sentinel"
)

type UserStore struct {
	db *DB
}

func (t *tables) emailTaken(email string) bool {
	for _, u := range t.users {
		if u.Email == email {
			return true
		}
	}
	return false
}

func (s *UserStore) Create(ctx context.Context, u *user.User) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.users[u.ID]; ok || t.emailTaken(u.Email) {
			return sentinel.ErrConflict
		}
		if u.TeamID != nil {
			if _, ok := t.teams[*u.TeamID]; !ok {
				return sentinel.ErrConflict
			}
		}
		t.users[u.ID] = *u
		return nil
	})
}

func (s *UserStore) Find(ctx context.Context, id uuid.UUID) (*user.User, error) {
	var out user.User
	err := s.db.read(ctx, func(t *tables) error {
		u, ok := t.users[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	var out user.User
	err := s.db.read(ctx, func(t *tables) error {
		for _, u := range t.users {
			if u.Email == email {
				out = u
				return nil
			}
		}
		return sentinel.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *tables) userView(u user.User) user.View {
	v := user.View{User: u}
	if u.TeamID != nil {
		v.TeamName = t.teams[*u.TeamID].Name
	}
	return v
}

func (s *UserStore) FindView(ctx context.Context, id uuid.UUID) (*user.View, error) {
	var out user.View
	err := s.db.read(ctx, func(t *tables) error {
		u, ok := t.users[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		out = t.userView(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func matchUser(u user.User, f user.ListFilter) bool {
	switch {
	case f.Role != "" && u.Role != f.Role:
		return false
	case f.TeamID != uuid.Nil && (u.TeamID == nil || *u.TeamID != f.TeamID):
		return false
	case f.Active != nil && u.IsActive != *f.Active:
		return false
	}
	return true
}

func (s *UserStore) List(ctx context.Context, f user.ListFilter) ([]user.View, error) {
	var out []user.View
	err := s.db.read(ctx, func(t *tables) error {
		var all []user.User
		for _, u := range t.users {
			if matchUser(u, f) {
				all = append(all, u)
			}
		}
		slices.SortFunc(all, func(a, b user.User) int {
			return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
		})
		start, end := f.Page.Window(len(all))
		for _, u := range all[start:end] {
			out = append(out, t.userView(u))
		}
		return nil
	})
	return out, err
}

func (s *UserStore) Count(ctx context.Context, f user.ListFilter) (int, error) {
	var n int
	err := s.db.read(ctx, func(t *tables) error {
		for _, u := range t.users {
			if matchUser(u, f) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *UserStore) Update(ctx context.Context, u *user.User) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.users[u.ID]; !ok {
			return sentinel.ErrNotFound
		}
		if u.TeamID != nil {
			if _, ok := t.teams[*u.TeamID]; !ok {
				return sentinel.ErrConflict
			}
		}
		t.users[u.ID] = *u
		return nil
	})
}

func (s *UserStore) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	return s.db.write(ctx, func(t *tables) error {
		u, ok := t.users[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		u.PasswordHash = hash
		u.UpdatedAt = at
		t.users[id] = u
		return nil
	})
}

func (s *UserStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.users[id]; !ok {
			return sentinel.ErrNotFound
		}
		if t.userReferenced(id) {
			return sentinel.ErrConflict
		}
		delete(t.users, id)
		return nil
	})
}
