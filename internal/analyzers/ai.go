package analyzers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pitabwire/util"

	"github.com/Atharva309/CodeSense/internal/review"
)

const (
	defaultChatCompletionsURL = "https://api.openai.com/v1/chat/completions"

	// Prompt budget: code beyond this is cut, not summarized.
	maxSnippetChars = 8000
	maxPriorChars   = 4000

	defaultAITemperature = 0.2
)

const aiSystemPrompt = "You are a precise code reviewer. " +
	"Return ONLY valid JSON with key 'findings' as an array. " +
	"Each finding: {file, severity in [info,low,medium,high], title, rationale, start_line, end_line, patch(optional)}. " +
	"If nothing to add, return {\"findings\": []}."

// AIAnalyzer asks a chat-completion model to review one file, feeding it
// the changed code plus the lint findings already collected. Without an
// API key it is a no-op; AI review is additive, never required.
type AIAnalyzer struct {
	apiKey     string
	model      string
	apiURL     string
	httpClient *http.Client
}

// AIOption configures an AIAnalyzer.
type AIOption func(*AIAnalyzer)

// WithCompletionsURL points the analyzer at a different API endpoint,
// e.g. a proxy or a test server.
func WithCompletionsURL(url string) AIOption {
	return func(a *AIAnalyzer) {
		a.apiURL = url
	}
}

// NewAIAnalyzer creates an AI reviewer for the given model.
func NewAIAnalyzer(apiKey, model string, opts ...AIOption) *AIAnalyzer {
	a := &AIAnalyzer{
		apiKey: apiKey,
		model:  model,
		apiURL: defaultChatCompletionsURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Analyzer.
func (a *AIAnalyzer) Name() string {
	return "ai"
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type aiFinding struct {
	File      string `json:"file"`
	Severity  string `json:"severity"`
	Title     string `json:"title"`
	Rationale string `json:"rationale"`
	StartLine *int   `json:"start_line"`
	EndLine   *int   `json:"end_line"`
	Patch     string `json:"patch"`
}

type aiFindings struct {
	Findings []aiFinding `json:"findings"`
}

// Analyze implements Analyzer. Model failures never fail a review; they
// are logged and the file simply gets no AI findings.
func (a *AIAnalyzer) Analyze(ctx context.Context, in *Input) ([]review.Finding, error) {
	if a.apiKey == "" {
		return nil, nil
	}
	log := util.Log(ctx)

	userPrompt := a.buildUserPrompt(in)

	content, ok := a.complete(ctx, userPrompt, defaultAITemperature)
	if !ok {
		return nil, nil
	}

	var parsed aiFindings
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		log.Warn("model returned non-JSON review, skipping", "file", in.Path)
		return nil, nil
	}

	findings := make([]review.Finding, 0, len(parsed.Findings))
	for _, f := range parsed.Findings {
		out := review.Finding{
			FilePath:  f.File,
			Severity:  review.NormalizeSeverity(f.Severity),
			Title:     f.Title,
			Rationale: f.Rationale,
			StartLine: f.StartLine,
			EndLine:   f.EndLine,
			Patch:     f.Patch,
			Tool:      "ai",
		}
		if out.FilePath == "" {
			out.FilePath = in.Path
		}
		if out.Title == "" {
			out.Title = "AI suggestion"
		}
		findings = append(findings, out)
	}
	return findings, nil
}

func (a *AIAnalyzer) buildUserPrompt(in *Input) string {
	snippet := in.Content
	if len(snippet) > maxSnippetChars {
		snippet = snippet[:maxSnippetChars]
	}

	priorJSON, err := json.Marshal(in.Prior)
	if err != nil || len(in.Prior) == 0 {
		priorJSON = []byte("[]")
	}
	prior := string(priorJSON)
	if len(prior) > maxPriorChars {
		prior = prior[:maxPriorChars]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\nFile: %s\n\n", in.Repo, in.Path)
	fmt.Fprintf(&b, "Changed code (snippet):\n<<<CODE\n%s\n>>>\n\n", snippet)
	fmt.Fprintf(&b, "Existing findings to consider:\n%s\n\n", prior)
	b.WriteString("If you propose a change, add a minimal unified diff in 'patch'. Keep it small and accurate.\n")
	return b.String()
}

// complete calls the chat completions endpoint. Some models reject a
// custom temperature with a 400; those get one retry with the parameter
// dropped.
func (a *AIAnalyzer) complete(ctx context.Context, userPrompt string, temperature float64) (string, bool) {
	log := util.Log(ctx)

	content, status, errMsg, err := a.send(ctx, userPrompt, temperature)
	if err != nil {
		log.WithError(err).Warn("ai review request failed")
		return "", false
	}

	if status == http.StatusBadRequest && temperature != 0 &&
		strings.Contains(strings.ToLower(errMsg), "temperature") {
		content, status, errMsg, err = a.send(ctx, userPrompt, 0)
		if err != nil {
			log.WithError(err).Warn("ai review retry failed")
			return "", false
		}
	}

	if status != http.StatusOK {
		log.Warn("ai review rejected", "status", status, "message", errMsg)
		return "", false
	}
	return content, true
}

func (a *AIAnalyzer) send(
	ctx context.Context,
	userPrompt string,
	temperature float64,
) (content string, status int, errMsg string, err error) {
	req := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: aiSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", 0, "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", 0, "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, "", fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", 0, "", fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var apiErr chatError
		_ = json.Unmarshal(respBody, &apiErr)
		return "", httpResp.StatusCode, apiErr.Error.Message, nil
	}

	var resp chatResponse
	if unmarshalErr := json.Unmarshal(respBody, &resp); unmarshalErr != nil {
		return "", httpResp.StatusCode, "", fmt.Errorf("unmarshal response: %w", unmarshalErr)
	}
	if len(resp.Choices) == 0 {
		return "", httpResp.StatusCode, "", nil
	}
	return resp.Choices[0].Message.Content, httpResp.StatusCode, "", nil
}
