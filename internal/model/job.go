package model

import (
	"time"
)

// Status is the job lifecycle state. Transitions are strictly forward;
// complete and failed are terminal.
type Status string

const (
	StatusUploaded          Status = "uploaded"
	StatusPending           Status = "pending"
	StatusTranscribing      Status = "transcribing"
	StatusTranscribed       Status = "transcribed"
	StatusPhonemeProcessing Status = "phoneme_processing"
	StatusPhonemeComplete   Status = "phoneme_complete"
	StatusAnalyzing         Status = "analyzing"
	StatusComplete          Status = "complete"
	StatusFailed            Status = "failed"
)

// Terminal reports whether no further automatic transition may occur.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job is one audio-processing request and its evolving state. The ID is
// the external handle; AudioRef points at the stored WAV and lives at
// least as long as the job.
type Job struct {
	ID              string    `json:"id"`
	Status          Status    `json:"status"`
	IncludePhonemes bool      `json:"include_phonetics"`
	AudioRef        string    `json:"-"`
	Result          Result    `json:"result"`
	ReportURL       string    `json:"report_url,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can never mutate a stored record
// through a snapshot.
func (j *Job) Clone() *Job {
	c := *j
	c.Result = j.Result.clone()
	return &c
}

// Result holds the independently populated per-stage output slots. Each
// slot is nil until its stage has succeeded.
type Result struct {
	Transcription *Transcription `json:"transcription,omitempty"`
	Phonemes      *Phonemes      `json:"phonemes,omitempty"`
	Analysis      *Analysis      `json:"analysis,omitempty"`
	Summary       string         `json:"summary,omitempty"`
}

func (r Result) clone() Result {
	c := r
	if r.Transcription != nil {
		t := *r.Transcription
		t.Segments = append([]Segment(nil), r.Transcription.Segments...)
		c.Transcription = &t
	}
	if r.Phonemes != nil {
		p := *r.Phonemes
		p.Sequence = append([]string(nil), r.Phonemes.Sequence...)
		c.Phonemes = &p
	}
	if r.Analysis != nil {
		a := r.Analysis.clone()
		c.Analysis = &a
	}
	return c
}

// Transcription is the speech-to-text output: the full text plus the
// speaker-tagged segment list built from the provider's word stream.
type Transcription struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

type Segment struct {
	SpeakerID string `json:"speaker_id"`
	Content   string `json:"content"`
}

// Phonemes is the recognizer output: the raw space-joined string and the
// split sequence.
type Phonemes struct {
	Text       string   `json:"text"`
	Sequence   []string `json:"phonemes"`
	Confidence float64  `json:"confidence"`
}
