package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/narrate/internal/common"
	"github.com/google/uuid"
)

// MemoryRepository keeps users in process memory. Returned users are copies.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*User
	now   func() time.Time
	newID func() string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[string]*User),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Create stores user with a new id and, unless set, a creation time.
func (r *MemoryRepository) Create(ctx context.Context, user *User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conflict("", user.Username, user.Email) {
		return nil, common.ErrorAlreadyExists
	}

	u := user.clone()
	u.ID = r.newID()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now().UTC()
	}
	r.byID[u.ID] = u
	return u.clone(), nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u.clone(), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.find(func(u *User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.find(func(u *User) bool { return strings.EqualFold(u.Username, username) })
}

func (r *MemoryRepository) Update(ctx context.Context, user *User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[user.ID]; !ok {
		return nil, common.ErrorNotFound
	}
	if r.conflict(user.ID, user.Username, user.Email) {
		return nil, common.ErrorAlreadyExists
	}
	u := user.clone()
	r.byID[u.ID] = u
	return u.clone(), nil
}

func (r *MemoryRepository) Search(ctx context.Context, query string, limit int, after *Cursor) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query = strings.ToLower(query)
	var matched []*User
	for _, u := range r.byID {
		if !u.Verified || !strings.Contains(strings.ToLower(u.Username), query) {
			continue
		}
		if after != nil && !after.precedes(u) {
			continue
		}
		matched = append(matched, u)
	}

	sort.Slice(matched, func(i, j int) bool {
		return Cursor{ID: matched[i].ID, CreatedAt: matched[i].CreatedAt}.precedes(matched[j])
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]*User, len(matched))
	for i, u := range matched {
		out[i] = u.clone()
	}
	return out, nil
}

func (r *MemoryRepository) find(match func(*User) bool) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if match(u) {
			return u.clone(), nil
		}
	}
	return nil, common.ErrorNotFound
}

// conflict reports whether another user than id holds username or email.
// Callers hold mu.
func (r *MemoryRepository) conflict(id, username, email string) bool {
	for _, u := range r.byID {
		if u.ID == id {
			continue
		}
		if strings.EqualFold(u.Username, username) || strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}
