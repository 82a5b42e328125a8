// Package elevenlabs wraps the ElevenLabs speech-to-text API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lautwerk/speech_go_server/config"
	"github.com/lautwerk/speech_go_server/internal/model"
	"github.com/lautwerk/speech_go_server/internal/provider"
)

type Client struct {
	apiKey  string
	baseURL string
	modelID string
	http    *http.Client
}

func NewClient(cfg *config.ElevenLabsConfig) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		modelID: cfg.ModelID,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// speechToTextResponse mirrors the provider payload: a flat word stream
// with speaker ids from diarization.
type speechToTextResponse struct {
	LanguageCode        string  `json:"language_code"`
	LanguageProbability float64 `json:"language_probability"`
	Text                string  `json:"text"`
	Words               []word  `json:"words"`
}

type word struct {
	Text      string  `json:"text"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Type      string  `json:"type"` // word, spacing, audio_event
	SpeakerID string  `json:"speaker_id"`
}

func (c *Client) Transcribe(ctx context.Context, audioPath string) (*model.Transcription, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, provider.Errf(provider.StageTranscription, "failed to read audio: %v", err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, provider.Errf(provider.StageTranscription, "failed to build form: %v", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, provider.Errf(provider.StageTranscription, "failed to build form: %v", err)
	}
	form.WriteField("model_id", c.modelID)
	// Speaker diarization, language auto-detected.
	form.WriteField("diarize", "true")
	if err := form.Close(); err != nil {
		return nil, provider.Errf(provider.StageTranscription, "failed to build form: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/speech-to-text", &body)
	if err != nil {
		return nil, provider.Errf(provider.StageTranscription, "failed to build request: %v", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, provider.Errf(provider.StageTranscription, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, provider.Errf(provider.StageTranscription,
			"provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out speechToTextResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, provider.Errf(provider.StageTranscription, "malformed response: %v", err)
	}

	return toTranscription(&out)
}

func toTranscription(out *speechToTextResponse) (*model.Transcription, error) {
	segments := extractSegments(out.Words)

	text := out.Text
	if text == "" {
		parts := make([]string, 0, len(segments))
		for _, s := range segments {
			parts = append(parts, s.Content)
		}
		text = strings.Join(parts, "\n")
	}
	if text == "" {
		return nil, provider.Errf(provider.StageTranscription, "empty transcript in response")
	}

	return &model.Transcription{
		Text:     text,
		Language: out.LanguageCode,
		Segments: segments,
	}, nil
}

// extractSegments groups consecutive words by speaker, skipping spacing
// and audio-event entries.
func extractSegments(words []word) []model.Segment {
	var segments []model.Segment
	var current []string
	currentSpeaker := ""

	flush := func() {
		if len(current) > 0 {
			segments = append(segments, model.Segment{
				SpeakerID: currentSpeaker,
				Content:   strings.Join(current, " "),
			})
			current = nil
		}
	}

	for _, w := range words {
		if w.Type != "word" {
			continue
		}
		if currentSpeaker == "" || w.SpeakerID != currentSpeaker {
			flush()
			currentSpeaker = w.SpeakerID
		}
		current = append(current, w.Text)
	}
	flush()

	return segments
}
