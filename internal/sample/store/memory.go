package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"limsd/internal/sample/models"
	id "limsd/pkg/domain"
	"limsd/pkg/platform/sentinel"
)

// MemoryStore keeps jobs and samples in process memory. It hands out deep
// copies and enforces the same version check as the Postgres store, so
// service-level concurrency tests exercise the real conflict path.
type MemoryStore struct {
	mu          sync.RWMutex
	jobs        map[id.JobID]*models.Job
	samples     map[id.SampleID]*models.Sample
	byBarcode   map[string]id.SampleID
	byJobNumber map[string]id.JobID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:        make(map[id.JobID]*models.Job),
		samples:     make(map[id.SampleID]*models.Sample),
		byBarcode:   make(map[string]id.SampleID),
		byJobNumber: make(map[string]id.JobID),
	}
}

func (s *MemoryStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return sentinel.ErrDuplicate
	}
	if _, ok := s.byJobNumber[job.JobNumber]; ok {
		return sentinel.ErrDuplicate
	}
	cp := *job
	s.jobs[job.ID] = &cp
	s.byJobNumber[job.JobNumber] = job.ID
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, jobID id.JobID) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) CreateSample(_ context.Context, sample *models.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.samples[sample.ID]; ok {
		return sentinel.ErrDuplicate
	}
	sample.Version = 1
	s.samples[sample.ID] = sample.Clone()
	if sample.Barcode != "" {
		s.byBarcode[sample.Barcode] = sample.ID
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sampleID id.SampleID) (*models.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sample, ok := s.samples[sampleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return sample.Clone(), nil
}

func (s *MemoryStore) FindByBarcode(_ context.Context, barcode string) (*models.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sampleID, ok := s.byBarcode[barcode]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.samples[sampleID].Clone(), nil
}

func (s *MemoryStore) FindByTest(_ context.Context, testID id.SampleTestID) (*models.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sample := range s.samples {
		if sample.TestByID(testID) != nil {
			return sample.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) FindByResult(_ context.Context, resultID id.TestResultID) (*models.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sample := range s.samples {
		if sample.TestByResultID(resultID) != nil {
			return sample.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Update writes the sample back if the caller's version still matches the
// stored one, then bumps it. A mismatch means another writer got there first.
func (s *MemoryStore) Update(_ context.Context, sample *models.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.samples[sample.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != sample.Version {
		return sentinel.ErrConflict
	}
	sample.Version++
	s.samples[sample.ID] = sample.Clone()
	return nil
}

func (s *MemoryStore) ListByJob(_ context.Context, jobID id.JobID) ([]*models.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Sample
	for _, sample := range s.samples {
		if sample.JobID == jobID {
			out = append(out, sample.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SampleNumber < out[j].SampleNumber })
	return out, nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status models.SampleStatus, limit int) ([]*models.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Sample
	for _, sample := range s.samples {
		if sample.Status == status {
			out = append(out, sample.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountByStatus(_ context.Context) (map[models.SampleStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.SampleStatus]int)
	for _, sample := range s.samples {
		counts[sample.Status]++
	}
	return counts, nil
}

// ListOverdue returns open samples whose due date has passed.
func (s *MemoryStore) ListOverdue(_ context.Context, now time.Time) ([]*models.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Sample
	for _, sample := range s.samples {
		if sample.Status.Terminal() || sample.DueDate == nil {
			continue
		}
		if sample.DueDate.Before(now) {
			out = append(out, sample.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(*out[j].DueDate) })
	return out, nil
}
