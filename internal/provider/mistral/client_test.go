package mistral

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lautwerk/speech_go_server/config"
	"github.com/lautwerk/speech_go_server/internal/model"
	"github.com/lautwerk/speech_go_server/internal/provider"
)

func newTestClient(serverURL string) *Client {
	return NewClient(&config.MistralConfig{
		APIKey:         "test-key",
		BaseURL:        serverURL,
		Model:          "mistral-small-latest",
		TimeoutSeconds: 5,
	})
}

// chatServer returns a stub completions endpoint that replies with the
// given message content.
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral-small-latest", req.Model)
		require.Len(t, req.Messages, 2)

		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{
				{Message: chatMessage{Role: "assistant", Content: content}},
			},
		})
	}))
}

func TestAnalyze(t *testing.T) {
	server := chatServer(t, `{
		"mistakes": [{"quote": "I goed home", "error_type": "grammatical error", "correction": "I went home"}],
		"inaccuracies": [],
		"vocabularies": [{"quote": "good", "synonyms": ["excellent", "great"]}]
	}`)
	defer server.Close()

	client := newTestClient(server.URL)
	got, err := client.Analyze(context.Background(), provider.AnalysisInput{
		Transcript: "Yesterday I goed home early.",
	})
	require.NoError(t, err)

	require.Len(t, got.Mistakes, 1)
	assert.Equal(t, "I goed home", got.Mistakes[0].Quote)
	assert.Equal(t, "I went home", got.Mistakes[0].Correction)
	assert.Empty(t, got.Inaccuracies)
	require.Len(t, got.Vocabularies, 1)
	assert.Equal(t, []string{"excellent", "great"}, got.Vocabularies[0].Synonyms)
}

func TestAnalyze_MissingRequiredField(t *testing.T) {
	// No "vocabularies" key at all.
	server := chatServer(t, `{"mistakes": [], "inaccuracies": []}`)
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Analyze(context.Background(), provider.AnalysisInput{Transcript: "hello"})
	require.Error(t, err)

	var se *provider.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, provider.StageAnalysis, se.Stage)
	assert.Contains(t, err.Error(), `required field "vocabularies"`)
}

func TestAnalyze_NullRequiredField(t *testing.T) {
	server := chatServer(t, `{"mistakes": null, "inaccuracies": [], "vocabularies": []}`)
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Analyze(context.Background(), provider.AnalysisInput{Transcript: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required field "mistakes"`)
}

func TestAnalyze_InvalidJSON(t *testing.T) {
	server := chatServer(t, "Sure! Here is the analysis you asked for.")
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Analyze(context.Background(), provider.AnalysisInput{Transcript: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestAnalyze_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"rate limited"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Analyze(context.Background(), provider.AnalysisInput{Transcript: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestAnalyze_SendsPhonemes(t *testing.T) {
	var gotUser string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotUser = req.Messages[1].Content

		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{
				{Message: chatMessage{Content: `{"mistakes": [], "inaccuracies": [], "vocabularies": []}`}},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Analyze(context.Background(), provider.AnalysisInput{
		Transcript: "hello world",
		Phonemes:   &model.Phonemes{Text: "h ə l oʊ"},
	})
	require.NoError(t, err)

	assert.Contains(t, gotUser, "hello world")
	assert.Contains(t, gotUser, "h ə l oʊ")
}

func TestSummarize(t *testing.T) {
	server := chatServer(t, "  You spoke about your day.  ")
	defer server.Close()

	client := newTestClient(server.URL)
	got, err := client.Summarize(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, "You spoke about your day.", got)
}

func TestParseAnalysis_NormalizesNilOptionalField(t *testing.T) {
	got, err := parseAnalysis(`{"mistakes": [], "inaccuracies": [], "vocabularies": []}`)
	require.NoError(t, err)

	assert.NotNil(t, got.Mistakes)
	assert.NotNil(t, got.Inaccuracies)
	assert.NotNil(t, got.Vocabularies)
	assert.Empty(t, got.PhoneticIssues)
}

func TestLocateSpans(t *testing.T) {
	transcript := "Yesterday I goed home early."
	analysis := &model.Analysis{
		Mistakes: []model.ErrorCorrection{
			{Quote: "I goed home"},
			{Quote: "not in the transcript"},
			{Quote: ""},
		},
	}

	locateSpans(analysis, transcript)

	require.NotNil(t, analysis.Mistakes[0].Span)
	span := *analysis.Mistakes[0].Span
	assert.Equal(t, "I goed home", transcript[span[0]:span[1]])
	assert.Nil(t, analysis.Mistakes[1].Span)
	assert.Nil(t, analysis.Mistakes[2].Span)
}
