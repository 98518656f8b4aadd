package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"pawtrace-qr/internal/domain/pool"
)

type poolRepo struct {
	mu        sync.RWMutex
	byShortID map[string]pool.Entry
	state     *pool.State
}

func NewPoolRepo() pool.Repository {
	return &poolRepo{
		byShortID: make(map[string]pool.Entry),
	}
}

func (r *poolRepo) Insert(ctx context.Context, e pool.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(e.ShortID) == "" {
		return errors.New("short id required")
	}
	if _, exists := r.byShortID[e.ShortID]; exists {
		return pool.ErrDuplicateShortID
	}
	r.byShortID[e.ShortID] = e
	return nil
}

func (r *poolRepo) GetByShortID(ctx context.Context, shortID string) (pool.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byShortID[shortID]
	if !ok {
		return pool.Entry{}, pool.ErrNotFound
	}
	return e, nil
}

func (r *poolRepo) ListUnassigned(ctx context.Context, tag pool.TagType, limit int) ([]pool.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]pool.Entry, 0)
	for _, e := range r.byShortID {
		if e.Assigned() {
			continue
		}
		if tag != "" && e.TagType != tag {
			continue
		}
		out = append(out, e)
	}

	// Orden estable por created_at asc (consistencia con el adapter pg)
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ShortID < out[j].ShortID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *poolRepo) CountUnassigned(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.byShortID {
		if !e.Assigned() {
			n++
		}
	}
	return n, nil
}

func (r *poolRepo) CountTotal(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byShortID), nil
}

func (r *poolRepo) Assign(ctx context.Context, shortID, petID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byShortID[shortID]
	if !ok {
		return pool.ErrNotFound
	}
	if e.Assigned() {
		return pool.ErrAlreadyAssigned
	}
	now := time.Now()
	e.PetID = &petID
	e.AssignedAt = &now
	r.byShortID[shortID] = e
	return nil
}

func (r *poolRepo) Release(ctx context.Context, shortID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked(shortID)
}

func (r *poolRepo) releaseLocked(shortID string) error {
	e, ok := r.byShortID[shortID]
	if !ok {
		return pool.ErrNotFound
	}
	if !e.Assigned() {
		return pool.ErrNotAssigned
	}
	e.PetID = nil
	e.AssignedAt = nil
	r.byShortID[shortID] = e
	return nil
}

// Reassign hace el swap bajo un solo lock: equivale a la transacción única
// del adapter pg.
func (r *poolRepo) Reassign(ctx context.Context, petID, newShortID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.byShortID[newShortID]
	if !ok {
		return pool.ErrNotFound
	}
	if target.Assigned() {
		return pool.ErrAlreadyAssigned
	}

	// Liberar el código actual del pet, si tiene.
	for id, e := range r.byShortID {
		if e.Assigned() && *e.PetID == petID {
			_ = r.releaseLocked(id)
			break
		}
	}

	now := time.Now()
	target.PetID = &petID
	target.AssignedAt = &now
	r.byShortID[newShortID] = target
	return nil
}

func (r *poolRepo) SetQRURL(ctx context.Context, shortID, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byShortID[shortID]
	if !ok {
		return pool.ErrNotFound
	}
	e.QRURL = url
	r.byShortID[shortID] = e
	return nil
}

func (r *poolRepo) GetState(ctx context.Context) (pool.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.state == nil {
		return pool.State{}, pool.ErrNoState
	}
	return *r.state, nil
}

func (r *poolRepo) SaveState(ctx context.Context, s pool.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = &s
	return nil
}
