// Package provider defines the contracts for the three external
// processing stages. Adapters are stateless with respect to the job
// store: they consume audio or text and return a result or a
// stage-tagged error, never a panic.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/lautwerk/speech_go_server/internal/model"
)

// Stage names used to tag failures. They prefix the error string stored
// on a failed job.
const (
	StageTranscription = "transcription"
	StagePhonemes      = "phonemes"
	StageAnalysis      = "analysis"
)

// StageError marks a failure of one named stage. Validation failures
// (a response missing required fields) use the same type.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Errf builds a StageError for the given stage.
func Errf(stage, format string, args ...interface{}) *StageError {
	return &StageError{Stage: stage, Err: fmt.Errorf(format, args...)}
}

// AsStage wraps err into a StageError unless it already is one.
func AsStage(stage string, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return &StageError{Stage: stage, Err: err}
}

// Transcriber converts stored audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*model.Transcription, error)
}

// PhonemeRecognizer extracts the phoneme sequence from stored audio.
type PhonemeRecognizer interface {
	Recognize(ctx context.Context, audioPath string) (*model.Phonemes, error)
}

// AnalysisInput is what the analyzer receives. Phonemes is nil when the
// phoneme stage was skipped or failed; analyzers must tolerate that.
type AnalysisInput struct {
	Transcript string
	Segments   []model.Segment
	Phonemes   *model.Phonemes
}

// Analyzer produces the structured findings and, separately, a
// free-text conversation summary.
type Analyzer interface {
	Analyze(ctx context.Context, in AnalysisInput) (*model.Analysis, error)
	Summarize(ctx context.Context, transcript string) (string, error)
}
