package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/certfsm/internal/fsm"
	"github.com/jmerrifield20/certfsm/internal/lifecycle/model"
)

// MemoryDomainRepository is an in-memory, thread-safe implementation of
// the domain record store. It backs the memory storage driver for
// dependency-free deployments and is the store used by the service and
// handler tests. Reads hand out copies so callers always observe a
// consistent snapshot of a record.
type MemoryDomainRepository struct {
	mu   sync.RWMutex
	rows map[string]*model.DomainRecord
}

// NewMemoryDomainRepository creates an empty MemoryDomainRepository.
func NewMemoryDomainRepository() *MemoryDomainRepository {
	return &MemoryDomainRepository{rows: make(map[string]*model.DomainRecord)}
}

// Create inserts a new domain record in its initial state.
func (r *MemoryDomainRepository) Create(_ context.Context, rec *model.DomainRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[rec.Domain]; ok {
		return ErrDomainExists
	}

	rec.ID = uuid.New()
	if rec.State == "" {
		rec.State = fsm.StateUnissued
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	cp := *rec
	r.rows[rec.Domain] = &cp
	return nil
}

// GetByDomain returns a copy of the record for the given domain.
func (r *MemoryDomainRepository) GetByDomain(_ context.Context, domain string) (*model.DomainRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.rows[domain]
	if !ok {
		return nil, ErrDomainNotFound
	}
	cp := *rec
	return &cp, nil
}

// List returns copies of all records ordered by creation time.
func (r *MemoryDomainRepository) List(_ context.Context) ([]*model.DomainRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.DomainRecord, 0, len(r.rows))
	for _, rec := range r.rows {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Domain < out[j].Domain
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update persists the mutable lifecycle fields of a record, keyed by
// domain.
func (r *MemoryDomainRepository) Update(_ context.Context, rec *model.DomainRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.rows[rec.Domain]
	if !ok {
		return ErrDomainNotFound
	}
	stored.State = rec.State
	stored.ExpiresAt = rec.ExpiresAt
	stored.LastError = rec.LastError
	stored.LastChecked = rec.LastChecked
	stored.UpdatedAt = rec.UpdatedAt
	return nil
}
