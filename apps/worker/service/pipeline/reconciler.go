package pipeline

import (
	"github.com/Atharva309/CodeSense/internal/review"
)

// findingKey identifies a finding for reconciliation. Line bounds take
// part in the key, so the same title at different locations stays as
// separate findings.
type findingKey struct {
	tool     string
	file     string
	title    string
	start    int
	hasStart bool
	end      int
	hasEnd   bool
}

func keyOf(f *review.Finding) findingKey {
	tool := f.Tool
	if tool == "" {
		tool = "ai"
	}
	k := findingKey{
		tool:  tool,
		file:  f.FilePath,
		title: f.Title,
	}
	if f.StartLine != nil {
		k.start = *f.StartLine
		k.hasStart = true
	}
	if f.EndLine != nil {
		k.end = *f.EndLine
		k.hasEnd = true
	}
	return k
}

// Reconcile collapses duplicate findings down to one per key, keeping the
// higher severity when duplicates collide. Output order is first-seen
// order; a severity upgrade keeps the original position, and an equal
// severity keeps the original finding.
func Reconcile(findings []review.Finding) []review.Finding {
	out := make([]review.Finding, 0, len(findings))
	index := make(map[findingKey]int, len(findings))

	for _, f := range findings {
		k := keyOf(&f)
		if at, seen := index[k]; seen {
			if f.Severity.Rank() > out[at].Severity.Rank() {
				out[at] = f
			}
			continue
		}
		index[k] = len(out)
		out = append(out, f)
	}
	return out
}
