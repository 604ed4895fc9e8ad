// Package store persists notification inbox entries.
package store

import (
	"context"
	"sort"
	"sync"

	"limsd/internal/notification/models"
	id "limsd/pkg/domain"
	"limsd/pkg/platform/sentinel"
)

type MemoryStore struct {
	mu      sync.RWMutex
	records map[id.NotificationID]*models.Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[id.NotificationID]*models.Notification)}
}

func (s *MemoryStore) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[n.ID]; ok {
		return sentinel.ErrDuplicate
	}
	cp := *n
	s.records[n.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, notifID id.NotificationID) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.records[notifID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryStore) Save(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[n.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *n
	s.records[n.ID] = &cp
	return nil
}

// ListByUser returns the user's notifications newest first.
func (s *MemoryStore) ListByUser(_ context.Context, userID id.UserID, unreadOnly bool, limit int) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Notification
	for _, n := range s.records {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UnreadCount(_ context.Context, userID id.UserID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, rec := range s.records {
		if rec.UserID == userID && !rec.Read {
			n++
		}
	}
	return n, nil
}
