package store

import (
	"context"
	"sync"

	"limsd/internal/qc/models"
	id "limsd/pkg/domain"
	"limsd/pkg/platform/sentinel"
)

// MemoryStore keeps charts and their series in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	charts map[id.ChartID]*models.QcChart
	points map[id.ChartID][]*models.QcDataPoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		charts: make(map[id.ChartID]*models.QcChart),
		points: make(map[id.ChartID][]*models.QcDataPoint),
	}
}

func (s *MemoryStore) CreateChart(_ context.Context, chart *models.QcChart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.charts[chart.ID]; ok {
		return sentinel.ErrDuplicate
	}
	chart.Version = 1
	cp := *chart
	s.charts[chart.ID] = &cp
	return nil
}

func (s *MemoryStore) GetChart(_ context.Context, chartID id.ChartID) (*models.QcChart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chart, ok := s.charts[chartID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *chart
	return &cp, nil
}

func (s *MemoryStore) ListCharts(_ context.Context) ([]*models.QcChart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.QcChart, 0, len(s.charts))
	for _, chart := range s.charts {
		cp := *chart
		out = append(out, &cp)
	}
	return out, nil
}

// SaveObservation persists the updated chart statistics and the new point
// as one write. The chart's version guards against interleaved writers; the
// service serializes per chart, so a conflict here means a bug upstream.
func (s *MemoryStore) SaveObservation(_ context.Context, chart *models.QcChart, point *models.QcDataPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.charts[chart.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != chart.Version {
		return sentinel.ErrConflict
	}
	chart.Version++
	cp := *chart
	s.charts[chart.ID] = &cp
	pp := *point
	s.points[chart.ID] = append(s.points[chart.ID], &pp)
	return nil
}

// ListRecentPoints returns up to limit points newest-first.
func (s *MemoryStore) ListRecentPoints(_ context.Context, chartID id.ChartID, limit int) ([]*models.QcDataPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.points[chartID]
	if limit <= 0 || limit > len(series) {
		limit = len(series)
	}
	out := make([]*models.QcDataPoint, 0, limit)
	for i := len(series) - 1; i >= len(series)-limit; i-- {
		cp := *series[i]
		out = append(out, &cp)
	}
	return out, nil
}
