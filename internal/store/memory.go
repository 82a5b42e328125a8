package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lautwerk/speech_go_server/internal/model"
)

// MemoryStore keeps job records in-process. This is the default backend;
// records do not survive a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*model.Job
	locks *lockTable
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]*model.Job),
		locks: newLockTable(),
	}
}

func (s *MemoryStore) Create(ctx context.Context, audioRef string) (*model.Job, error) {
	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.NewString(),
		Status:    model.StatusUploaded,
		AudioRef:  audioRef,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return job.Clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error) {
	lock := s.locks.of(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	// Mutate a copy so a failing fn leaves the record untouched.
	next := job.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.jobs[id] = next
	s.mu.Unlock()

	return next.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	// Hold the per-id lock so a removal never interleaves with an
	// in-flight Update on the same record.
	lock := s.locks.of(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	_, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.locks.drop(id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.Clone())
	}
	return jobs, nil
}
