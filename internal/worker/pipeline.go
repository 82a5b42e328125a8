package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/lautwerk/speech_go_server/internal/model"
	"github.com/lautwerk/speech_go_server/internal/pkg/oss"
	"github.com/lautwerk/speech_go_server/internal/pkg/pubsub"
	"github.com/lautwerk/speech_go_server/internal/provider"
	"github.com/lautwerk/speech_go_server/internal/store"
)

// Pipeline is the job state machine. It sequences the three stages,
// persists each transition through the store, and converts every stage
// failure into a terminal failed status. Stages within one job run
// strictly sequentially; no store-wide lock is held while an adapter
// call is in flight.
type Pipeline struct {
	jobs        store.JobStore
	transcriber provider.Transcriber
	recognizer  provider.PhonemeRecognizer
	analyzer    provider.Analyzer
	ossClient   *oss.Client       // optional
	publisher   *pubsub.Publisher // optional, nil-safe
}

func NewPipeline(
	jobs store.JobStore,
	transcriber provider.Transcriber,
	recognizer provider.PhonemeRecognizer,
	analyzer provider.Analyzer,
	ossClient *oss.Client,
	publisher *pubsub.Publisher,
) *Pipeline {
	return &Pipeline{
		jobs:        jobs,
		transcriber: transcriber,
		recognizer:  recognizer,
		analyzer:    analyzer,
		ossClient:   ossClient,
		publisher:   publisher,
	}
}

// Run executes the full transition sequence for one job. Errors never
// escape: they end up on the job record instead.
func (p *Pipeline) Run(ctx context.Context, jobID string, includePhonemes bool) {
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		log.Printf("Job %s: vanished before processing: %v", jobID, err)
		return
	}
	audioRef := job.AudioRef

	// Stage 1: speech-to-text.
	if _, err := p.transition(ctx, jobID, model.StatusTranscribing, nil); err != nil {
		return
	}

	transcription, err := p.transcriber.Transcribe(ctx, audioRef)
	if err != nil {
		p.fail(ctx, jobID, provider.AsStage(provider.StageTranscription, err))
		return
	}

	if _, err := p.transition(ctx, jobID, model.StatusTranscribed, func(j *model.Job) {
		j.Result.Transcription = transcription
	}); err != nil {
		return
	}
	log.Printf("Job %s: transcription done, %d segments", jobID, len(transcription.Segments))

	// Stage 2: phoneme recognition, only when requested. A failure here
	// is non-fatal: analysis still runs, without phoneme data.
	var phonemes *model.Phonemes
	if includePhonemes {
		if _, err := p.transition(ctx, jobID, model.StatusPhonemeProcessing, nil); err != nil {
			return
		}

		phonemes, err = p.recognizer.Recognize(ctx, audioRef)
		if err != nil {
			log.Printf("Job %s: phoneme stage failed, continuing without phonemes: %v", jobID, err)
			phonemes = nil
		} else {
			if _, err := p.transition(ctx, jobID, model.StatusPhonemeComplete, func(j *model.Job) {
				j.Result.Phonemes = phonemes
			}); err != nil {
				return
			}
		}
	}

	// Stage 3: language analysis, depends on the transcript and the
	// optional phonemes.
	if _, err := p.transition(ctx, jobID, model.StatusAnalyzing, nil); err != nil {
		return
	}

	analysis, err := p.analyzer.Analyze(ctx, provider.AnalysisInput{
		Transcript: transcription.Text,
		Segments:   transcription.Segments,
		Phonemes:   phonemes,
	})
	if err != nil {
		p.fail(ctx, jobID, provider.AsStage(provider.StageAnalysis, err))
		return
	}

	// Summary is best-effort; the findings stand on their own.
	summary, err := p.analyzer.Summarize(ctx, transcription.Text)
	if err != nil {
		log.Printf("Job %s: summary failed: %v", jobID, err)
		summary = ""
	}

	final, err := p.transition(ctx, jobID, model.StatusComplete, func(j *model.Job) {
		j.Result.Analysis = analysis
		j.Result.Summary = summary
	})
	if err != nil {
		return
	}
	log.Printf("Job %s: complete, %d mistakes, %d inaccuracies",
		jobID, len(analysis.Mistakes), len(analysis.Inaccuracies))

	p.archiveReport(ctx, final)
}

// transition advances the job to the given status, applying extra result
// mutations under the same per-job lock, and publishes progress.
func (p *Pipeline) transition(ctx context.Context, jobID string, status model.Status, mutate func(*model.Job)) (*model.Job, error) {
	job, err := p.jobs.Update(ctx, jobID, func(j *model.Job) error {
		if j.Status.Terminal() {
			return errors.New("job already terminal")
		}
		j.Status = status
		if mutate != nil {
			mutate(j)
		}
		return nil
	})
	if err != nil {
		log.Printf("Job %s: failed to persist status %s: %v", jobID, status, err)
		return nil, err
	}

	if err := p.publisher.PublishProgress(ctx, jobID, status, ""); err != nil {
		log.Printf("Job %s: failed to publish progress: %v", jobID, err)
	}
	return job, nil
}

// fail marks the job terminally failed with a stage-tagged error, keeping
// whatever result slots earlier stages already filled.
func (p *Pipeline) fail(ctx context.Context, jobID string, stageErr *provider.StageError) {
	log.Printf("Job %s: %v", jobID, stageErr)

	_, err := p.jobs.Update(ctx, jobID, func(j *model.Job) error {
		if j.Status.Terminal() {
			return errors.New("job already terminal")
		}
		j.Status = model.StatusFailed
		j.Error = stageErr.Error()
		return nil
	})
	if err != nil {
		log.Printf("Job %s: failed to persist failure: %v", jobID, err)
		return
	}

	if err := p.publisher.PublishProgress(ctx, jobID, model.StatusFailed, stageErr.Error()); err != nil {
		log.Printf("Job %s: failed to publish failure: %v", jobID, err)
	}
}

// archiveReport uploads the finished job's report JSON to OSS when
// configured. Failures only log; the job stays complete.
func (p *Pipeline) archiveReport(ctx context.Context, job *model.Job) {
	if p.ossClient == nil || job == nil {
		return
	}

	report, err := json.Marshal(job)
	if err != nil {
		log.Printf("Job %s: failed to marshal report: %v", job.ID, err)
		return
	}

	url, err := p.ossClient.UploadReport(job.ID, report)
	if err != nil {
		log.Printf("Job %s: failed to archive report: %v", job.ID, err)
		return
	}

	if _, err := p.jobs.Update(ctx, job.ID, func(j *model.Job) error {
		j.ReportURL = url
		return nil
	}); err != nil {
		log.Printf("Job %s: failed to record report URL: %v", job.ID, err)
	}
}
