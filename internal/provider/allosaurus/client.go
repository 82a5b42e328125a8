// Package allosaurus wraps the phoneme-recognition sidecar. The sidecar
// runs the Allosaurus model behind a small HTTP endpoint; this client
// posts the audio and parses the recognized phoneme sequence.
package allosaurus

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
	endpoint string
	http     *http.Client
}

func NewClient(cfg *config.AllosaurusConfig) *Client {
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type recognizeResponse struct {
	Text       string   `json:"text"`
	Phonemes   []string `json:"phonemes"`
	Confidence float64  `json:"confidence"`
}

func (c *Client) Recognize(ctx context.Context, audioPath string) (*model.Phonemes, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, provider.Errf(provider.StagePhonemes, "failed to read audio: %v", err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, provider.Errf(provider.StagePhonemes, "failed to build form: %v", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, provider.Errf(provider.StagePhonemes, "failed to build form: %v", err)
	}
	if err := form.Close(); err != nil {
		return nil, provider.Errf(provider.StagePhonemes, "failed to build form: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/recognize", &body)
	if err != nil {
		return nil, provider.Errf(provider.StagePhonemes, "failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, provider.Errf(provider.StagePhonemes, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, provider.Errf(provider.StagePhonemes,
			"recognizer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, provider.Errf(provider.StagePhonemes, "malformed response: %v", err)
	}

	if out.Text == "" && len(out.Phonemes) == 0 {
		return nil, provider.Errf(provider.StagePhonemes, "empty phoneme sequence in response")
	}

	// The sidecar may return only the space-joined string; split it.
	if len(out.Phonemes) == 0 {
		out.Phonemes = strings.Fields(out.Text)
	}
	if out.Text == "" {
		out.Text = strings.Join(out.Phonemes, " ")
	}
	if out.Confidence == 0 {
		// Allosaurus does not report confidence by default.
		out.Confidence = 1.0
	}

	return &model.Phonemes{
		Text:       out.Text,
		Sequence:   out.Phonemes,
		Confidence: out.Confidence,
	}, nil
}
