// Package store persists investigations. The memory variant backs unit
// tests and single-node deployments.
package store

import (
	"context"
	"sort"
	"sync"

	"limsd/internal/investigation/models"
	id "limsd/pkg/domain"
	"limsd/pkg/platform/sentinel"
)

type MemoryStore struct {
	mu      sync.RWMutex
	records map[id.InvestigationID]*models.Investigation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[id.InvestigationID]*models.Investigation)}
}

func (s *MemoryStore) Create(_ context.Context, inv *models.Investigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[inv.ID]; ok {
		return sentinel.ErrDuplicate
	}
	inv.Version = 1
	cp := *inv
	s.records[inv.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, invID id.InvestigationID) (*models.Investigation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.records[invID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, inv *models.Investigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[inv.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != inv.Version {
		return sentinel.ErrConflict
	}
	inv.Version++
	cp := *inv
	s.records[inv.ID] = &cp
	return nil
}

// List returns investigations newest first, optionally filtered by status.
func (s *MemoryStore) List(_ context.Context, status models.Status, limit int) ([]*models.Investigation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Investigation
	for _, inv := range s.records {
		if status != "" && inv.Status != status {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Number > out[j].Number
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountOpen(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, inv := range s.records {
		if inv.Status != models.StatusClosed {
			n++
		}
	}
	return n, nil
}
