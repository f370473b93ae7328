package review

import "strings"

// NormalizeRepoName reduces the many ways a repository can be written
// ("https://github.com/acme/widget", "github.com/acme/widget/",
// "git@github.com:acme/widget.git") to the canonical "owner/name" form
// used for tenant matching. Unrecognisable input is returned trimmed.
func NormalizeRepoName(raw string) string {
	name := strings.TrimSpace(raw)

	// scheme prefix: https://host/owner/name
	if idx := strings.Index(name, "://"); idx >= 0 {
		name = name[idx+3:]
	}

	// scp-like prefix: git@host:owner/name
	if at := strings.Index(name, "@"); at >= 0 {
		if colon := strings.Index(name[at:], ":"); colon >= 0 {
			name = name[at+colon+1:]
		}
	}

	name = strings.Trim(name, "/")
	name = strings.TrimSuffix(name, ".git")

	// host prefix: the leading segment of host/owner/name contains a dot.
	parts := strings.Split(name, "/")
	if len(parts) > 2 && strings.Contains(parts[0], ".") {
		name = strings.Join(parts[1:], "/")
	}

	return name
}
