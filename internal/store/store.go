// Package store holds the job registry. All mutation goes through
// Update, which is linearized per job id; no ordering is implied across
// different ids.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/lautwerk/speech_go_server/internal/model"
)

var ErrNotFound = errors.New("job not found")

// JobStore is the process-wide registry of jobs.
type JobStore interface {
	// Create allocates a fresh unique id with status uploaded and an
	// empty result, and returns a snapshot of the new record.
	Create(ctx context.Context, audioRef string) (*model.Job, error)

	// Get returns a snapshot of the job, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Job, error)

	// Update applies fn to the record under the job's lock, refreshes
	// UpdatedAt and returns the post-mutation snapshot. Mutations to the
	// same id are serialized. Returns ErrNotFound for unknown ids; an
	// error from fn aborts the mutation.
	Update(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error)

	// Delete removes the record. Unknown ids return ErrNotFound.
	Delete(ctx context.Context, id string) error

	// List returns snapshots of every job, for eviction sweeps.
	List(ctx context.Context) ([]*model.Job, error)
}

// lockTable hands out one mutex per job id so read-modify-write cycles
// on the same job never interleave, without a store-wide lock.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) of(id string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	return l
}

func (t *lockTable) drop(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, id)
}
