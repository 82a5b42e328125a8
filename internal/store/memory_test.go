package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lautwerk/speech_go_server/internal/model"
)

func TestMemoryStore_Create(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job, err := s.Create(ctx, "/tmp/a.wav")
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.StatusUploaded, job.Status)
	assert.Equal(t, "/tmp/a.wav", job.AudioRef)
	assert.Nil(t, job.Result.Transcription)
	assert.Nil(t, job.Result.Phonemes)
	assert.Nil(t, job.Result.Analysis)
	assert.Empty(t, job.Error)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestMemoryStore_Create_UniqueIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		job, err := s.Create(ctx, "/tmp/a.wav")
		require.NoError(t, err)
		assert.False(t, seen[job.ID], "duplicate id %s", job.ID)
		seen[job.ID] = true
	}
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Get_ReturnsSnapshot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.Create(ctx, "/tmp/a.wav")
	require.NoError(t, err)

	// Mutating a snapshot must not leak into the store.
	snap, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	snap.Status = model.StatusFailed
	snap.Result.Transcription = &model.Transcription{Text: "tampered"}

	again, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploaded, again.Status)
	assert.Nil(t, again.Result.Transcription)
}

func TestMemoryStore_Update(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.Create(ctx, "/tmp/a.wav")
	require.NoError(t, err)
	createdAt := created.UpdatedAt

	updated, err := s.Update(ctx, created.ID, func(j *model.Job) error {
		j.Status = model.StatusTranscribing
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusTranscribing, updated.Status)
	assert.False(t, updated.UpdatedAt.Before(createdAt))
}

func TestMemoryStore_Update_NotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Update(context.Background(), "no-such-id", func(j *model.Job) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Update_FnErrorAborts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.Create(ctx, "/tmp/a.wav")
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = s.Update(ctx, created.ID, func(j *model.Job) error {
		j.Status = model.StatusFailed
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// The failed mutation must not be visible.
	job, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploaded, job.Status)
}

func TestMemoryStore_Update_SameIDSerialized(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.Create(ctx, "/tmp/a.wav")
	require.NoError(t, err)

	// Concurrent read-modify-write increments; the count survives only
	// if updates on one id are linearized.
	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, created.ID, func(j *model.Job) error {
				if j.Result.Summary == "" {
					j.Result.Summary = "."
				} else {
					j.Result.Summary += "."
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	job, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, job.Result.Summary, n)
}

func TestMemoryStore_DeleteWaitsForInFlightUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.Create(ctx, "/tmp/a.wav")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	updateDone := make(chan error, 1)
	go func() {
		_, err := s.Update(ctx, created.ID, func(j *model.Job) error {
			close(entered)
			<-release
			j.Status = model.StatusPending
			return nil
		})
		updateDone <- err
	}()
	<-entered

	deleteDone := make(chan error, 1)
	go func() {
		deleteDone <- s.Delete(ctx, created.ID)
	}()

	// Delete must block until the update's lock is released.
	select {
	case <-deleteDone:
		t.Fatal("delete completed while an update was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.NoError(t, <-updateDone)
	assert.NoError(t, <-deleteDone)

	_, err = s.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.Create(ctx, "/tmp/a.wav")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, created.ID))

	_, err = s.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, created.ID), ErrNotFound)
}

func TestMemoryStore_List(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	jobs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	a, _ := s.Create(ctx, "/tmp/a.wav")
	b, _ := s.Create(ctx, "/tmp/b.wav")

	jobs, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	ids := map[string]bool{jobs[0].ID: true, jobs[1].ID: true}
	assert.True(t, ids[a.ID])
	assert.True(t, ids[b.ID])
}
