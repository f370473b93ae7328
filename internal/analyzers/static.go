package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pitabwire/util"

	"github.com/Atharva309/CodeSense/internal/review"
)

// MaxFileChars caps the content size the pipeline analyzes. Oversized
// files are skipped entirely rather than truncated; a partial lint would
// report wrong line numbers.
const MaxFileChars = 200_000

// StaticAnalyzer runs language lint tools against a scratch copy of the
// file. Python files get ruff, black and bandit; other extensions are
// passed through without findings.
type StaticAnalyzer struct {
	runner ToolRunner
}

// NewStaticAnalyzer creates a static analyzer backed by the given runner.
func NewStaticAnalyzer(runner ToolRunner) *StaticAnalyzer {
	return &StaticAnalyzer{runner: runner}
}

// Name implements Analyzer.
func (a *StaticAnalyzer) Name() string {
	return "static"
}

// Analyze implements Analyzer.
func (a *StaticAnalyzer) Analyze(ctx context.Context, in *Input) ([]review.Finding, error) {
	if in.Content == "" || len(in.Content) > MaxFileChars {
		return nil, nil
	}

	switch strings.ToLower(filepath.Ext(in.Path)) {
	case ".py":
		return a.pythonChecks(ctx, in)
	}
	return nil, nil
}

// scratchPath decides the relative path the file is written under inside
// the scratch directory. Paths that would escape it fall back to the base
// name.
func scratchPath(path string) string {
	cleaned := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return filepath.Base(cleaned)
	}
	return cleaned
}

func (a *StaticAnalyzer) pythonChecks(ctx context.Context, in *Input) ([]review.Finding, error) {
	tmp, err := os.MkdirTemp("", "lint-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	rel := scratchPath(in.Path)
	full := filepath.Join(tmp, rel)
	if mkErr := os.MkdirAll(filepath.Dir(full), 0o750); mkErr != nil {
		return nil, fmt.Errorf("create scratch dir: %w", mkErr)
	}
	if writeErr := os.WriteFile(full, []byte(in.Content), 0o600); writeErr != nil {
		return nil, fmt.Errorf("write scratch file: %w", writeErr)
	}

	var findings []review.Finding
	findings = append(findings, a.runRuff(ctx, tmp, rel, in.Path)...)
	findings = append(findings, a.runBlack(ctx, tmp, rel, in.Path)...)
	findings = append(findings, a.runBandit(ctx, tmp, rel, in.Path)...)
	return findings, nil
}

// runRuff parses ruff's "path:line:col: message" lines. A line number that
// does not parse leaves the range unset rather than guessing.
func (a *StaticAnalyzer) runRuff(ctx context.Context, dir, rel, displayPath string) []review.Finding {
	stdout, _, _, err := a.runner.Run(ctx, dir, []string{"ruff", "check", rel})
	if err != nil {
		util.Log(ctx).WithError(err).Warn("ruff run failed", "file", displayPath)
		return nil
	}

	var findings []review.Finding
	for _, line := range strings.Split(stdout, "\n") {
		parts := strings.SplitN(line, ":", 4)
		if len(parts) < 3 || !strings.HasSuffix(parts[0], ".py") {
			continue
		}

		var startLine *int
		if n, convErr := strconv.Atoi(strings.TrimSpace(parts[1])); convErr == nil {
			startLine = &n
		}

		findings = append(findings, review.Finding{
			FilePath:  displayPath,
			Severity:  review.SeverityLow,
			Title:     strings.TrimSpace(line),
			Rationale: "Ruff lint finding",
			StartLine: startLine,
			EndLine:   startLine,
			Tool:      "ruff",
		})
	}
	return findings
}

// runBlack only cares whether black would change the file; the exact diff
// is left to the developer's formatter.
func (a *StaticAnalyzer) runBlack(ctx context.Context, dir, rel, displayPath string) []review.Finding {
	stdout, stderr, _, err := a.runner.Run(ctx, dir, []string{"black", "--check", rel})
	if err != nil {
		util.Log(ctx).WithError(err).Warn("black run failed", "file", displayPath)
		return nil
	}

	if !strings.Contains(stdout+stderr, "would reformat") {
		return nil
	}

	one := 1
	return []review.Finding{{
		FilePath:  displayPath,
		Severity:  review.SeverityInfo,
		Title:     "Formatting differs from Black",
		Rationale: "Run black to format",
		StartLine: &one,
		EndLine:   &one,
		Tool:      "black",
	}}
}

type banditReport struct {
	Results []banditIssue `json:"results"`
}

type banditIssue struct {
	TestName      string `json:"test_name"`
	IssueSeverity string `json:"issue_severity"`
	IssueText     string `json:"issue_text"`
	LineNumber    *int   `json:"line_number"`
}

func (a *StaticAnalyzer) runBandit(ctx context.Context, dir, rel, displayPath string) []review.Finding {
	stdout, _, _, err := a.runner.Run(ctx, dir, []string{"bandit", "-q", "-f", "json", "-r", rel})
	if err != nil {
		util.Log(ctx).WithError(err).Warn("bandit run failed", "file", displayPath)
		return nil
	}

	var report banditReport
	if jsonErr := json.Unmarshal([]byte(stdout), &report); jsonErr != nil {
		return nil
	}

	var findings []review.Finding
	for _, issue := range report.Results {
		title := issue.TestName
		if title == "" {
			title = "Bandit issue"
		}
		if title == "request_without_timeout" {
			title = "HTTP request without timeout"
		}

		severity := review.SeverityLow
		if issue.IssueSeverity != "" {
			severity = review.NormalizeSeverity(issue.IssueSeverity)
		}

		findings = append(findings, review.Finding{
			FilePath:  displayPath,
			Severity:  severity,
			Title:     title,
			Rationale: issue.IssueText,
			StartLine: issue.LineNumber,
			EndLine:   issue.LineNumber,
			Tool:      "bandit",
		})
	}
	return findings
}
