// Package update compares the running version against the release manifest
// published in the repository.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/mod/semver"

	"tools.zach/dev/richcord/internal/paths"
	"tools.zach/dev/richcord/internal/remote"
)

// ErrNoManifest means no manifest URL could be determined.
var ErrNoManifest = errors.New("release manifest location unknown")

// Result is the outcome of a version check.
type Result struct {
	Current string `json:"current"`
	Latest  string `json:"latest"`
	Newer   bool   `json:"newer"`
}

// Checker fetches the release manifest.
type Checker struct {
	url    string
	client *retryablehttp.Client
}

// NewChecker returns a checker for the manifest of the current repository.
func NewChecker() *Checker {
	return newChecker(remote.Current().RawURL(paths.ReleaseManifest))
}

func newChecker(url string) *Checker {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = time.Second
	c.HTTPClient.Timeout = 5 * time.Second
	c.Logger = nil
	return &Checker{url: url, client: c}
}

// Check reports whether a release newer than current exists. Development
// builds that are not valid semver never report a newer version.
func (c *Checker) Check(ctx context.Context, current string) (Result, error) {
	res := Result{Current: current}
	if c.url == "" {
		return res, ErrNoManifest
	}
	latest, err := c.fetchLatest(ctx)
	if err != nil {
		return res, err
	}
	res.Latest = latest
	res.Newer = Less(current, latest)
	return res, nil
}

// Notify runs Check and logs when an update is available. Failures are only
// logged at debug level.
func (c *Checker) Notify(ctx context.Context, current string) {
	res, err := c.Check(ctx, current)
	if err != nil {
		slog.Debug("version check failed", "error", err)
		return
	}
	if res.Newer {
		slog.Info("new version available", "current", res.Current, "latest", res.Latest)
	}
}

// fetchLatest returns the version stored under the "." key of the manifest.
func (c *Checker) fetchLatest(ctx context.Context) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", c.url, resp.StatusCode)
	}

	var manifest map[string]string
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&manifest); err != nil {
		return "", fmt.Errorf("parsing manifest: %w", err)
	}
	latest := manifest["."]
	if latest == "" {
		return "", errors.New("manifest has no release version")
	}
	return latest, nil
}

// Less reports whether a is an older version than b. Either side may omit
// the leading "v"; invalid versions never compare as less.
func Less(a, b string) bool {
	va, vb := canonical(a), canonical(b)
	if !semver.IsValid(va) || !semver.IsValid(vb) {
		return false
	}
	return semver.Compare(va, vb) < 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
