package service

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lautwerk/speech_go_server/config"
	"github.com/lautwerk/speech_go_server/internal/model"
	"github.com/lautwerk/speech_go_server/internal/pkg/audio"
	"github.com/lautwerk/speech_go_server/internal/provider/mock"
	"github.com/lautwerk/speech_go_server/internal/store"
	"github.com/lautwerk/speech_go_server/internal/testutil"
	"github.com/lautwerk/speech_go_server/internal/worker"
)

type serviceFixture struct {
	service *JobService
	jobs    store.JobStore
	files   *audio.Store
	runner  *worker.Runner
	dir     string
}

func setupService(t *testing.T) *serviceFixture {
	t.Helper()

	dir := t.TempDir()
	samplePath := testutil.WriteTestAudio(t, dir, "sample.wav")

	files, err := audio.NewStore(filepath.Join(dir, "uploads"), samplePath)
	require.NoError(t, err)

	jobs := store.NewMemoryStore()
	pipeline := worker.NewPipeline(
		jobs,
		&mock.Transcriber{Text: "hello world"},
		&mock.Recognizer{Text: "hə.loʊ wɚld"},
		&mock.Analyzer{},
		nil, nil,
	)
	runner := worker.NewRunner(pipeline, 2, 8)
	runner.Start()
	t.Cleanup(runner.Stop)

	cfg := &config.Config{}
	cfg.Upload.MaxSize = 1024 * 1024
	cfg.Upload.TempDir = filepath.Join(dir, "uploads")
	cfg.Upload.SampleFile = samplePath

	return &serviceFixture{
		service: NewJobService(jobs, files, runner, nil, cfg),
		jobs:    jobs,
		files:   files,
		runner:  runner,
		dir:     dir,
	}
}

func (f *serviceFixture) waitComplete(t *testing.T, id string) *model.Job {
	t.Helper()

	var job *model.Job
	require.Eventually(t, func() bool {
		got, err := f.jobs.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = got
		return got.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestJobService_Submit(t *testing.T) {
	f := setupService(t)

	job, err := f.service.Submit(context.Background(), "speech.wav", testutil.TestWAV)
	require.NoError(t, err)

	assert.Equal(t, model.StatusUploaded, job.Status)
	assert.NotEmpty(t, job.ID)
	assert.True(t, f.files.Exists(job.AudioRef))

	data, err := os.ReadFile(job.AudioRef)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestWAV, data)
}

func TestJobService_Submit_Validation(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, "speech.mp3", testutil.TestWAV)
	assert.ErrorIs(t, err, ErrNotWav)

	_, err = f.service.Submit(ctx, "speech.wav", nil)
	assert.ErrorIs(t, err, ErrEmptyUpload)

	_, err = f.service.Submit(ctx, "speech.wav", make([]byte, 2*1024*1024))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	// Uppercase extension is fine.
	_, err = f.service.Submit(ctx, "SPEECH.WAV", testutil.TestWAV)
	assert.NoError(t, err)
}

func TestJobService_Start(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	job, err := f.service.Submit(ctx, "speech.wav", testutil.TestWAV)
	require.NoError(t, err)

	started, err := f.service.Start(ctx, job.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, started.Status)
	assert.True(t, started.IncludePhonemes)

	final := f.waitComplete(t, job.ID)
	assert.Equal(t, model.StatusComplete, final.Status)
	require.NotNil(t, final.Result.Transcription)
	assert.Equal(t, "hello world", final.Result.Transcription.Text)
	require.NotNil(t, final.Result.Phonemes)
}

// countingTranscriber tracks how many pipeline runs actually reach the
// transcription stage.
type countingTranscriber struct {
	calls int32
	delay time.Duration
}

func (c *countingTranscriber) Transcribe(ctx context.Context, audioPath string) (*model.Transcription, error) {
	atomic.AddInt32(&c.calls, 1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.delay):
	}
	return &model.Transcription{
		Text:     "hello world",
		Segments: []model.Segment{{SpeakerID: "speaker_0", Content: "hello world"}},
	}, nil
}

func TestJobService_Start_RejectsJobInFlight(t *testing.T) {
	dir := t.TempDir()
	files, err := audio.NewStore(filepath.Join(dir, "uploads"), "")
	require.NoError(t, err)

	jobs := store.NewMemoryStore()
	transcriber := &countingTranscriber{delay: 100 * time.Millisecond}
	pipeline := worker.NewPipeline(jobs, transcriber, &mock.Recognizer{}, &mock.Analyzer{}, nil, nil)
	runner := worker.NewRunner(pipeline, 2, 8)
	runner.Start()
	t.Cleanup(runner.Stop)

	cfg := &config.Config{}
	cfg.Upload.MaxSize = 1 << 20
	svc := NewJobService(jobs, files, runner, nil, cfg)
	ctx := context.Background()

	job, err := svc.Submit(ctx, "speech.wav", testutil.TestWAV)
	require.NoError(t, err)
	_, err = svc.Start(ctx, job.ID, false)
	require.NoError(t, err)

	// A second start while the first run is in flight enqueues nothing.
	_, err = svc.Start(ctx, job.ID, false)
	assert.ErrorIs(t, err, ErrJobBusy)

	require.Eventually(t, func() bool {
		got, err := jobs.Get(ctx, job.ID)
		return err == nil && got.Status == model.StatusComplete
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&transcriber.calls))
}

func TestJobService_Start_RestartAfterFailure(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	job, err := f.service.Submit(ctx, "speech.wav", testutil.TestWAV)
	require.NoError(t, err)

	_, err = f.jobs.Update(ctx, job.ID, func(j *model.Job) error {
		j.Status = model.StatusFailed
		j.Error = "transcription: provider returned 503"
		return nil
	})
	require.NoError(t, err)

	// Terminal jobs may be started again; the failed attempt is cleared.
	started, err := f.service.Start(ctx, job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, started.Status)
	assert.Empty(t, started.Error)

	final := f.waitComplete(t, job.ID)
	assert.Equal(t, model.StatusComplete, final.Status)
	assert.Empty(t, final.Error)
}

func TestJobService_Start_QueueFullRollsBack(t *testing.T) {
	dir := t.TempDir()
	files, err := audio.NewStore(filepath.Join(dir, "uploads"), "")
	require.NoError(t, err)

	jobs := store.NewMemoryStore()
	pipeline := worker.NewPipeline(jobs, &mock.Transcriber{Text: "hello"}, &mock.Recognizer{}, &mock.Analyzer{}, nil, nil)
	// Capacity one and never started, so the second task is rejected.
	runner := worker.NewRunner(pipeline, 1, 1)

	cfg := &config.Config{}
	cfg.Upload.MaxSize = 1 << 20
	svc := NewJobService(jobs, files, runner, nil, cfg)
	ctx := context.Background()

	first, err := svc.Submit(ctx, "speech.wav", testutil.TestWAV)
	require.NoError(t, err)
	second, err := svc.Submit(ctx, "speech.wav", testutil.TestWAV)
	require.NoError(t, err)

	_, err = svc.Start(ctx, first.ID, false)
	require.NoError(t, err)

	_, err = svc.Start(ctx, second.ID, false)
	assert.ErrorIs(t, err, ErrQueueFull)

	// The record must not claim pending when nothing will process it.
	got, err := svc.Status(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploaded, got.Status)
}

func TestJobService_Start_NotFound(t *testing.T) {
	f := setupService(t)

	_, err := f.service.Start(context.Background(), "no-such-id", false)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobService_Start_AudioGone(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	job, err := f.service.Submit(ctx, "speech.wav", testutil.TestWAV)
	require.NoError(t, err)
	require.NoError(t, os.Remove(job.AudioRef))

	_, err = f.service.Start(ctx, job.ID, false)
	assert.ErrorIs(t, err, ErrAudioMissing)
}

func TestJobService_Status_IsReadOnly(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	job, err := f.service.Submit(ctx, "speech.wav", testutil.TestWAV)
	require.NoError(t, err)

	first, err := f.service.Status(ctx, job.ID)
	require.NoError(t, err)
	second, err := f.service.Status(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, model.StatusUploaded, second.Status)
}

func TestJobService_Status_NotFound(t *testing.T) {
	f := setupService(t)

	_, err := f.service.Status(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobService_Reprocess(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	job, err := f.service.Submit(ctx, "speech.wav", testutil.TestWAV)
	require.NoError(t, err)
	_, err = f.service.Start(ctx, job.ID, false)
	require.NoError(t, err)
	original := f.waitComplete(t, job.ID)

	fresh, err := f.service.Reprocess(ctx, job.ID, true)
	require.NoError(t, err)

	assert.NotEqual(t, original.ID, fresh.ID)
	assert.NotEqual(t, original.AudioRef, fresh.AudioRef)
	assert.True(t, f.files.Exists(fresh.AudioRef))

	final := f.waitComplete(t, fresh.ID)
	assert.Equal(t, model.StatusComplete, final.Status)

	// The original record is untouched by the new attempt.
	again, err := f.service.Status(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, original.Status, again.Status)
	assert.Equal(t, original.UpdatedAt, again.UpdatedAt)
}

func TestJobService_Reprocess_NotFound(t *testing.T) {
	f := setupService(t)

	_, err := f.service.Reprocess(context.Background(), "no-such-id", false)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobService_UseSample(t *testing.T) {
	f := setupService(t)

	job, err := f.service.UseSample(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, job.Status)

	final := f.waitComplete(t, job.ID)
	assert.Equal(t, model.StatusComplete, final.Status)

	// The sample itself must survive cleanup of the finished job.
	_, err = f.service.CleanupExpired(context.Background(), 0)
	require.NoError(t, err)
	_, err = f.service.SampleFile()
	assert.NoError(t, err)
}

func TestJobService_UseSample_Missing(t *testing.T) {
	f := setupService(t)
	require.NoError(t, os.Remove(filepath.Join(f.dir, "sample.wav")))

	_, err := f.service.UseSample(context.Background(), false)
	assert.ErrorIs(t, err, ErrSampleMissing)
}

func TestJobService_CleanupExpired(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	// A finished job past the retention window.
	done, err := f.service.Submit(ctx, "speech.wav", testutil.TestWAV)
	require.NoError(t, err)
	_, err = f.service.Start(ctx, done.ID, false)
	require.NoError(t, err)
	done = f.waitComplete(t, done.ID)

	// A job that never started; non-terminal jobs are never evicted.
	fresh, err := f.service.Submit(ctx, "speech.wav", testutil.TestWAV)
	require.NoError(t, err)

	evicted, err := f.service.CleanupExpired(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	_, err = f.service.Status(ctx, done.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.False(t, f.files.Exists(done.AudioRef))

	kept, err := f.service.Status(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploaded, kept.Status)
	assert.True(t, f.files.Exists(kept.AudioRef))
}

func TestJobService_CleanupExpired_RespectsRetention(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	job, err := f.service.Submit(ctx, "speech.wav", testutil.TestWAV)
	require.NoError(t, err)
	_, err = f.service.Start(ctx, job.ID, false)
	require.NoError(t, err)
	f.waitComplete(t, job.ID)

	// Just finished, so a 24h window keeps it.
	evicted, err := f.service.CleanupExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, evicted)
}
