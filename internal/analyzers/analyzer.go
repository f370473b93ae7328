// Package analyzers produces findings for changed files. Two backends
// exist: static lint tools run against a scratch copy of the file, and an
// AI reviewer that sees the code plus the lint findings.
package analyzers

import (
	"context"

	"github.com/Atharva309/CodeSense/internal/review"
)

// Input is one file handed to an analyzer.
type Input struct {
	Repo    string
	Path    string
	Content string

	// Prior carries findings already produced for this file by earlier
	// analyzers, so later ones can build on them instead of repeating.
	Prior []review.Finding
}

// Analyzer inspects one file and returns its findings. Analyzers degrade
// gracefully: a file they cannot process yields no findings, not a failed
// review.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, in *Input) ([]review.Finding, error)
}
