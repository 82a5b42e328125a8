// Package mock provides scripted stage adapters. They back the test
// suite and the server's no-credentials mode, where pipeline behavior
// can be exercised without provider accounts.
package mock

import (
	"context"
	"strings"
	"time"

	"github.com/lautwerk/speech_go_server/internal/model"
	"github.com/lautwerk/speech_go_server/internal/provider"
)

// Transcriber returns a fixed transcription, or Err when set.
type Transcriber struct {
	Text     string
	Segments []model.Segment
	Delay    time.Duration
	Err      error
}

func (m *Transcriber) Transcribe(ctx context.Context, audioPath string) (*model.Transcription, error) {
	if err := wait(ctx, m.Delay); err != nil {
		return nil, provider.AsStage(provider.StageTranscription, err)
	}
	if m.Err != nil {
		return nil, provider.AsStage(provider.StageTranscription, m.Err)
	}
	segments := m.Segments
	if segments == nil {
		segments = []model.Segment{{SpeakerID: "speaker_0", Content: m.Text}}
	}
	return &model.Transcription{Text: m.Text, Language: "en", Segments: segments}, nil
}

// Recognizer returns a fixed phoneme string, or Err when set.
type Recognizer struct {
	Text  string
	Delay time.Duration
	Err   error
}

func (m *Recognizer) Recognize(ctx context.Context, audioPath string) (*model.Phonemes, error) {
	if err := wait(ctx, m.Delay); err != nil {
		return nil, provider.AsStage(provider.StagePhonemes, err)
	}
	if m.Err != nil {
		return nil, provider.AsStage(provider.StagePhonemes, m.Err)
	}
	return &model.Phonemes{
		Text:       m.Text,
		Sequence:   strings.Fields(m.Text),
		Confidence: 1.0,
	}, nil
}

// Analyzer returns fixed findings and a fixed summary. AnalyzeErr and
// SummarizeErr inject failures independently; GotPhonemes records
// whether the last Analyze call received phoneme data.
type Analyzer struct {
	Analysis     *model.Analysis
	Summary      string
	Delay        time.Duration
	AnalyzeErr   error
	SummarizeErr error

	GotPhonemes bool
}

func (m *Analyzer) Analyze(ctx context.Context, in provider.AnalysisInput) (*model.Analysis, error) {
	if err := wait(ctx, m.Delay); err != nil {
		return nil, provider.AsStage(provider.StageAnalysis, err)
	}
	m.GotPhonemes = in.Phonemes != nil
	if m.AnalyzeErr != nil {
		return nil, provider.AsStage(provider.StageAnalysis, m.AnalyzeErr)
	}
	if m.Analysis != nil {
		return m.Analysis, nil
	}
	return &model.Analysis{
		Mistakes:     []model.ErrorCorrection{},
		Inaccuracies: []model.ErrorCorrection{},
		Vocabularies: []model.Vocabulary{},
	}, nil
}

func (m *Analyzer) Summarize(ctx context.Context, transcript string) (string, error) {
	if m.SummarizeErr != nil {
		return "", provider.AsStage(provider.StageAnalysis, m.SummarizeErr)
	}
	if m.Summary != "" {
		return m.Summary, nil
	}
	return "The speaker talked briefly. No summary model is configured.", nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
