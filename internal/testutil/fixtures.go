package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lautwerk/speech_go_server/internal/model"
)

// jobStore is the slice of the store contract the fixtures need,
// declared locally so store tests can import this package.
type jobStore interface {
	Create(ctx context.Context, audioRef string) (*model.Job, error)
	Update(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error)
}

// TestWAV is a minimal payload standing in for real audio in tests.
var TestWAV = []byte("RIFF....WAVEfmt test audio bytes")

// WriteTestAudio drops a fake WAV into dir and returns its path.
func WriteTestAudio(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, TestWAV, 0644); err != nil {
		t.Fatalf("Failed to write test audio: %v", err)
	}
	return path
}

// TestJob creates a job in the store, optionally customized.
func TestJob(t *testing.T, s jobStore, opts ...func(*model.Job)) *model.Job {
	t.Helper()

	job, err := s.Create(context.Background(), "/tmp/nonexistent.wav")
	if err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}

	if len(opts) == 0 {
		return job
	}

	job, err = s.Update(context.Background(), job.ID, func(j *model.Job) error {
		for _, opt := range opts {
			opt(j)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to customize test job: %v", err)
	}
	return job
}

// WithStatus sets the job status.
func WithStatus(status model.Status) func(*model.Job) {
	return func(j *model.Job) {
		j.Status = status
	}
}

// WithAudioRef sets the audio reference.
func WithAudioRef(ref string) func(*model.Job) {
	return func(j *model.Job) {
		j.AudioRef = ref
	}
}

// WithTranscription fills the transcription slot with plain text.
func WithTranscription(text string) func(*model.Job) {
	return func(j *model.Job) {
		j.Result.Transcription = &model.Transcription{
			Text:     text,
			Segments: []model.Segment{{SpeakerID: "speaker_0", Content: text}},
		}
	}
}
