package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lautwerk/speech_go_server/config"
	"github.com/lautwerk/speech_go_server/internal/model"
	"github.com/lautwerk/speech_go_server/internal/pkg/audio"
	"github.com/lautwerk/speech_go_server/internal/pkg/oss"
	"github.com/lautwerk/speech_go_server/internal/store"
	"github.com/lautwerk/speech_go_server/internal/worker"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrAudioMissing  = errors.New("audio file no longer available")
	ErrNotWav        = errors.New("file must be a WAV file")
	ErrFileTooLarge  = errors.New("file too large")
	ErrEmptyUpload   = errors.New("empty upload")
	ErrSampleMissing = errors.New("sample audio file not found")
	ErrJobBusy       = errors.New("job is already being processed")
	ErrQueueFull     = errors.New("processing queue is full, try again later")
)

// JobService is the boundary consumed by the HTTP layer. Every operation
// returns a job snapshot or fails fast; stage execution itself is handed
// to the runner and never blocks the caller.
type JobService struct {
	jobs    store.JobStore
	files   *audio.Store
	runner  *worker.Runner
	reports *oss.Client // optional, archived reports follow their job
	cfg     *config.Config
}

func NewJobService(jobs store.JobStore, files *audio.Store, runner *worker.Runner, reports *oss.Client, cfg *config.Config) *JobService {
	return &JobService{
		jobs:    jobs,
		files:   files,
		runner:  runner,
		reports: reports,
		cfg:     cfg,
	}
}

// Submit stores the uploaded WAV and creates the job record with status
// uploaded. Processing does not start until Start is called.
func (s *JobService) Submit(ctx context.Context, filename string, data []byte) (*model.Job, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".wav") {
		return nil, ErrNotWav
	}
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	if int64(len(data)) > s.cfg.Upload.MaxSize {
		return nil, ErrFileTooLarge
	}

	job, err := s.jobs.Create(ctx, "")
	if err != nil {
		return nil, err
	}

	path, err := s.files.Save(job.ID, data)
	if err != nil {
		// Without audio the record is useless; drop it again.
		if delErr := s.jobs.Delete(ctx, job.ID); delErr != nil {
			log.Printf("Job %s: failed to roll back record: %v", job.ID, delErr)
		}
		return nil, err
	}

	job, err = s.jobs.Update(ctx, job.ID, func(j *model.Job) error {
		j.AudioRef = path
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Job %s: uploaded %d bytes", job.ID, len(data))
	return job, nil
}

// Start begins processing a previously uploaded job. It returns the
// pending snapshot immediately; the pipeline runs detached. A job whose
// pipeline is already in flight is rejected so only one transition
// sequence ever runs per record; a terminal job may be started again,
// discarding the previous attempt's result.
func (s *JobService) Start(ctx context.Context, id string, includePhonemes bool) (*model.Job, error) {
	job, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.files.Exists(job.AudioRef) {
		return nil, ErrAudioMissing
	}

	job, err = s.jobs.Update(ctx, id, func(j *model.Job) error {
		if j.Status != model.StatusUploaded && !j.Status.Terminal() {
			return ErrJobBusy
		}
		j.Status = model.StatusPending
		j.IncludePhonemes = includePhonemes
		j.Result = model.Result{}
		j.Error = ""
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrJobBusy) {
			return nil, ErrJobBusy
		}
		return nil, s.mapStoreErr(err)
	}

	if err := s.runner.Enqueue(worker.Task{JobID: id, IncludePhonemes: includePhonemes}); err != nil {
		s.rollbackPending(ctx, id)
		return nil, ErrQueueFull
	}
	return job, nil
}

// Status returns the current snapshot. Reading has no side effects.
func (s *JobService) Status(ctx context.Context, id string) (*model.Job, error) {
	return s.get(ctx, id)
}

// Reprocess creates a brand-new job sharing the original's audio and
// starts it. The original record is left untouched as an audit trail of
// the earlier attempt.
func (s *JobService) Reprocess(ctx context.Context, id string, includePhonemes bool) (*model.Job, error) {
	original, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.files.Exists(original.AudioRef) {
		return nil, ErrAudioMissing
	}

	fresh, err := s.jobs.Create(ctx, "")
	if err != nil {
		return nil, err
	}

	path, err := s.files.CopyFor(fresh.ID, original.AudioRef)
	if err != nil {
		if delErr := s.jobs.Delete(ctx, fresh.ID); delErr != nil {
			log.Printf("Job %s: failed to roll back record: %v", fresh.ID, delErr)
		}
		if errors.Is(err, audio.ErrAudioNotFound) {
			return nil, ErrAudioMissing
		}
		return nil, err
	}

	fresh, err = s.jobs.Update(ctx, fresh.ID, func(j *model.Job) error {
		j.AudioRef = path
		j.Status = model.StatusPending
		j.IncludePhonemes = includePhonemes
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.runner.Enqueue(worker.Task{JobID: fresh.ID, IncludePhonemes: includePhonemes}); err != nil {
		s.rollbackPending(ctx, fresh.ID)
		return nil, ErrQueueFull
	}

	log.Printf("Job %s: reprocessing as %s", id, fresh.ID)
	return fresh, nil
}

// UseSample creates and immediately starts a job for the built-in sample
// audio.
func (s *JobService) UseSample(ctx context.Context, includePhonemes bool) (*model.Job, error) {
	samplePath, err := s.files.SamplePath()
	if err != nil {
		return nil, ErrSampleMissing
	}

	job, err := s.jobs.Create(ctx, samplePath)
	if err != nil {
		return nil, err
	}

	job, err = s.jobs.Update(ctx, job.ID, func(j *model.Job) error {
		j.Status = model.StatusPending
		j.IncludePhonemes = includePhonemes
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.runner.Enqueue(worker.Task{JobID: job.ID, IncludePhonemes: includePhonemes}); err != nil {
		s.rollbackPending(ctx, job.ID)
		return nil, ErrQueueFull
	}
	return job, nil
}

// rollbackPending reverts a record whose task never made it onto the
// queue, so the stored status does not promise processing that will
// never happen.
func (s *JobService) rollbackPending(ctx context.Context, id string) {
	if _, err := s.jobs.Update(ctx, id, func(j *model.Job) error {
		j.Status = model.StatusUploaded
		return nil
	}); err != nil {
		log.Printf("Job %s: failed to roll back pending status: %v", id, err)
	}
}

// SampleFile returns the path of the built-in sample for direct serving.
func (s *JobService) SampleFile() (string, error) {
	path, err := s.files.SamplePath()
	if err != nil {
		return "", ErrSampleMissing
	}
	return path, nil
}

// CleanupExpired evicts terminal jobs older than the retention window and
// removes their audio files. Returns the number of evicted jobs.
func (s *JobService) CleanupExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	jobs, err := s.jobs.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	evicted := 0
	for _, job := range jobs {
		if !job.Status.Terminal() || job.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.files.Remove(job.AudioRef); err != nil {
			log.Printf("Job %s: failed to remove audio: %v", job.ID, err)
			continue
		}
		if s.reports != nil && job.ReportURL != "" {
			if err := s.reports.DeleteReport(job.ReportURL); err != nil {
				log.Printf("Job %s: failed to delete archived report: %v", job.ID, err)
			}
		}
		if err := s.jobs.Delete(ctx, job.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("Job %s: failed to evict: %v", job.ID, err)
			continue
		}
		evicted++
	}

	if evicted > 0 {
		log.Printf("Evicted %d expired jobs", evicted)
	}
	return evicted, nil
}

func (s *JobService) get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	return job, nil
}

func (s *JobService) mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrJobNotFound
	}
	return fmt.Errorf("job store: %w", err)
}
