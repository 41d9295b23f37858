// Package remote resolves where richcord's release metadata lives on GitHub.
//
// Values stamped at build time win; otherwise the repository is read from the
// git origin of the working directory, which covers `go run` from a checkout.
package remote

import (
	"context"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Set at build time via:
//
//	-X tools.zach/dev/richcord/internal/remote.ldOwner=...
//	-X tools.zach/dev/richcord/internal/remote.ldRepo=...
var (
	ldOwner string
	ldRepo  string
)

// Branch holds the release manifest.
const Branch = "main"

var githubRemoteRe = regexp.MustCompile(`github\.com[:/]([^/\s]+)/([^/\s]+?)(?:\.git)?/?$`)

// Repository identifies a GitHub repository.
type Repository struct {
	Owner string
	Name  string
}

// Valid reports whether both parts are known.
func (r Repository) Valid() bool { return r.Owner != "" && r.Name != "" }

// RawURL returns the raw content URL for path on Branch, or "" when the
// repository is unknown.
func (r Repository) RawURL(path string) string {
	if !r.Valid() {
		return ""
	}
	return "https://raw.githubusercontent.com/" + r.Owner + "/" + r.Name + "/" + Branch + "/" + strings.TrimPrefix(path, "/")
}

// ParseOrigin extracts the repository from a GitHub remote URL in HTTPS or
// SSH form.
func ParseOrigin(origin string) (Repository, bool) {
	m := githubRemoteRe.FindStringSubmatch(strings.TrimSpace(origin))
	if len(m) != 3 {
		return Repository{}, false
	}
	return Repository{Owner: m[1], Name: m[2]}, true
}

// gitOrigin is swapped out in tests.
var gitOrigin = func(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "git", "remote", "get-url", "origin").Output()
	return string(out), err
}

var resolve = sync.OnceValue(func() Repository {
	if ldOwner != "" && ldRepo != "" {
		return Repository{Owner: ldOwner, Name: ldRepo}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	origin, err := gitOrigin(ctx)
	if err != nil {
		slog.Debug("remote: no build-time repository and no git origin", "error", err)
		return Repository{}
	}
	repo, _ := ParseOrigin(origin)
	return repo
})

// Current returns the repository richcord was built from. The result is
// computed once per process.
func Current() Repository {
	return resolve()
}
