// Package mistral wraps the Mistral chat API for language analysis and
// conversation summaries.
package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lautwerk/speech_go_server/config"
	"github.com/lautwerk/speech_go_server/internal/model"
	"github.com/lautwerk/speech_go_server/internal/provider"
)

const analysisPrompt = `You are a language evaluation assistant. Examine the transcribed audio
recording for language mistakes and stylistic improvements a language
learner should know about.

Classify findings into three lists:
- "mistakes": serious errors that impair understanding (non-existent
  words, grammatical errors, lexical errors).
- "inaccuracies": understandable but unnatural language (filler words,
  repetitions, stutters, unidiomatic phrasing).
- "vocabularies": suggestions replacing overused simple words with
  richer alternatives.

Reply with ONLY valid JSON of this exact shape:
{
  "mistakes": [{"quote": "...", "error_type": "...", "correction": "..."}],
  "inaccuracies": [{"quote": "...", "error_type": "...", "correction": "..."}],
  "vocabularies": [{"quote": "...", "synonyms": ["..."]}]
}
Every "quote" MUST be an exact substring of the transcript, word for
word, so it can be highlighted automatically. When phoneme data is
provided, additionally fill "phonetic_issues":
[{"phoneme": "...", "hint": "..."}] for sounds the speaker struggled
with.`

const summaryPrompt = `Summarize the following conversation transcript in two or three
sentences, addressing the speaker directly. Reply with plain text only.`

type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

func NewClient(cfg *config.MistralConfig) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) Analyze(ctx context.Context, in provider.AnalysisInput) (*model.Analysis, error) {
	user := in.Transcript
	if in.Phonemes != nil {
		user += "\n\nRecognized phonemes (IPA): " + in.Phonemes.Text
	}

	content, err := c.complete(ctx, analysisPrompt, user, true)
	if err != nil {
		return nil, provider.AsStage(provider.StageAnalysis, err)
	}

	analysis, err := parseAnalysis(content)
	if err != nil {
		return nil, err
	}

	locateSpans(analysis, in.Transcript)
	return analysis, nil
}

func (c *Client) Summarize(ctx context.Context, transcript string) (string, error) {
	content, err := c.complete(ctx, summaryPrompt, transcript, false)
	if err != nil {
		return "", provider.AsStage(provider.StageAnalysis, err)
	}
	return strings.TrimSpace(content), nil
}

func (c *Client) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if jsonMode {
		reqBody.ResponseFormat = &respFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", provider.Errf(provider.StageAnalysis,
			"provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", provider.Errf(provider.StageAnalysis, "malformed response: %v", err)
	}
	if len(out.Choices) == 0 {
		return "", provider.Errf(provider.StageAnalysis, "no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}

// requiredFields is the minimal contract the analysis payload must meet.
// Field-name drift from the provider has broken this integration before,
// so absent fields are rejected here rather than surfacing as nil slices
// deep in the client.
var requiredFields = []string{"mistakes", "inaccuracies", "vocabularies"}

func parseAnalysis(content string) (*model.Analysis, error) {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, provider.Errf(provider.StageAnalysis, "response is not valid JSON: %v", err)
	}

	for _, field := range requiredFields {
		v, ok := raw[field]
		if !ok || string(v) == "null" {
			return nil, provider.Errf(provider.StageAnalysis,
				"response missing required field %q", field)
		}
	}

	var analysis model.Analysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return nil, provider.Errf(provider.StageAnalysis, "unexpected response shape: %v", err)
	}

	if analysis.Mistakes == nil {
		analysis.Mistakes = []model.ErrorCorrection{}
	}
	if analysis.Inaccuracies == nil {
		analysis.Inaccuracies = []model.ErrorCorrection{}
	}
	if analysis.Vocabularies == nil {
		analysis.Vocabularies = []model.Vocabulary{}
	}

	return &analysis, nil
}

// locateSpans resolves each quote to its byte range in the transcript so
// the client can highlight findings without re-searching.
func locateSpans(a *model.Analysis, transcript string) {
	fill := func(items []model.ErrorCorrection) {
		for i := range items {
			if idx := strings.Index(transcript, items[i].Quote); idx >= 0 && items[i].Quote != "" {
				items[i].Span = &[2]int{idx, idx + len(items[i].Quote)}
			}
		}
	}
	fill(a.Mistakes)
	fill(a.Inaccuracies)
}
