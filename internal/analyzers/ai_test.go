package analyzers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atharva309/CodeSense/internal/review"
)

func chatReplyWith(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		reply := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(reply))
	}
}

func TestAIAnalyzer_NoKeyIsNoop(t *testing.T) {
	analyzer := NewAIAnalyzer("", "gpt-4o")

	findings, err := analyzer.Analyze(context.Background(), &Input{
		Path:    "app/main.py",
		Content: "x = 1\n",
	})
	require.NoError(t, err)
	assert.Nil(t, findings)
}

func TestAIAnalyzer_NormalizesFindings(t *testing.T) {
	srv := httptest.NewServer(chatReplyWith(t, `{
		"findings": [
			{"file": "app/main.py", "severity": "HIGH", "title": "SQL injection", "rationale": "raw string query", "start_line": 12, "end_line": 14, "patch": "@@ -12 +12 @@"},
			{}
		]
	}`))
	defer srv.Close()

	analyzer := NewAIAnalyzer("test-key", "gpt-4o", WithCompletionsURL(srv.URL))

	findings, err := analyzer.Analyze(context.Background(), &Input{
		Repo:    "acme/widget",
		Path:    "app/main.py",
		Content: "q = \"select * from t where id=\" + uid\n",
	})
	require.NoError(t, err)
	require.Len(t, findings, 2)

	assert.Equal(t, "ai", findings[0].Tool)
	assert.Equal(t, review.SeverityHigh, findings[0].Severity)
	assert.Equal(t, "SQL injection", findings[0].Title)
	require.NotNil(t, findings[0].StartLine)
	assert.Equal(t, 12, *findings[0].StartLine)

	// An empty finding object still gets usable defaults.
	assert.Equal(t, "ai", findings[1].Tool)
	assert.Equal(t, "app/main.py", findings[1].FilePath)
	assert.Equal(t, "AI suggestion", findings[1].Title)
	assert.Equal(t, review.SeverityInfo, findings[1].Severity)
	assert.Nil(t, findings[1].StartLine)
}

func TestAIAnalyzer_MalformedModelOutput(t *testing.T) {
	srv := httptest.NewServer(chatReplyWith(t, "sorry, here is prose instead of JSON"))
	defer srv.Close()

	analyzer := NewAIAnalyzer("test-key", "gpt-4o", WithCompletionsURL(srv.URL))

	findings, err := analyzer.Analyze(context.Background(), &Input{Path: "a.py", Content: "x=1\n"})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestAIAnalyzer_RetriesWithoutTemperature(t *testing.T) {
	var requests []chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		if req.Temperature != 0 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": {"message": "Unsupported value: 'temperature' does not support 0.2 with this model."}}`))
			return
		}
		chatReplyWith(t, `{"findings": [{"title": "use a context manager", "severity": "low"}]}`)(w, r)
	}))
	defer srv.Close()

	analyzer := NewAIAnalyzer("test-key", "gpt-4o", WithCompletionsURL(srv.URL))

	findings, err := analyzer.Analyze(context.Background(), &Input{Path: "a.py", Content: "f = open('x')\n"})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "use a context manager", findings[0].Title)

	require.Len(t, requests, 2)
	assert.InDelta(t, defaultAITemperature, requests[0].Temperature, 0.0001)
	assert.Zero(t, requests[1].Temperature)
}

func TestAIAnalyzer_ServerErrorYieldsNoFindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	analyzer := NewAIAnalyzer("test-key", "gpt-4o", WithCompletionsURL(srv.URL))

	findings, err := analyzer.Analyze(context.Background(), &Input{Path: "a.py", Content: "x=1\n"})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestAIAnalyzer_PromptCapsSnippetAndPriorFindings(t *testing.T) {
	analyzer := NewAIAnalyzer("test-key", "gpt-4o")

	big := make([]byte, maxSnippetChars*2)
	for i := range big {
		big[i] = 'x'
	}

	var prior []review.Finding
	for i := 0; i < 500; i++ {
		prior = append(prior, review.Finding{
			FilePath: "a.py",
			Severity: review.SeverityLow,
			Title:    "some fairly long lint finding title to inflate the JSON",
			Tool:     "ruff",
		})
	}

	prompt := analyzer.buildUserPrompt(&Input{
		Repo:    "acme/widget",
		Path:    "a.py",
		Content: string(big),
		Prior:   prior,
	})

	assert.Less(t, len(prompt), maxSnippetChars+maxPriorChars+500)
	assert.Contains(t, prompt, "Repository: acme/widget")
	assert.Contains(t, prompt, "File: a.py")
}
