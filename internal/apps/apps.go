// Package apps lists the user's running windowed applications and extracts
// their icons by shelling out to the platform's own tools.
package apps

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	// ErrUnavailable is returned when the platform tool is not installed.
	ErrUnavailable = errors.New("process listing tool unavailable")

	// ErrUnsupported is returned on platforms without a listing strategy.
	ErrUnsupported = errors.New("process listing not supported on this platform")
)

// App is a running application with a visible window.
type App struct {
	Name  string `json:"name"`
	PID   int    `json:"pid"`
	Title string `json:"title,omitempty"`
	Path  string `json:"path,omitempty"`
}

// Lister lists running applications.
type Lister interface {
	List(ctx context.Context) ([]App, error)
}

type runFunc func(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error)

// ///////////////////////////////////////////////
// Shell Lister
// ///////////////////////////////////////////////

// ShellLister implements Lister with PowerShell on Windows, wmctrl on
// Linux, and osascript on macOS. Results are filtered through ignore globs,
// deduplicated by name, sorted, and cached for the configured TTL.
type ShellLister struct {
	ignore []string
	ttl    time.Duration

	goos string
	run  runFunc
	comm func(pid int) (string, error)
	now  func() time.Time

	mu     sync.Mutex
	cached []App
	at     time.Time
}

// NewShellLister creates a lister. ignore holds doublestar patterns matched
// case-insensitively against the app name; ttl of zero disables caching.
func NewShellLister(ignore []string, ttl time.Duration) *ShellLister {
	return &ShellLister{
		ignore: ignore,
		ttl:    ttl,
		goos:   runtime.GOOS,
		run:    runCommand,
		comm:   procComm,
		now:    time.Now,
	}
}

// List returns the running applications. On failure it returns an empty
// list and the error.
func (l *ShellLister) List(ctx context.Context) ([]App, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ttl > 0 && !l.at.IsZero() && l.now().Sub(l.at) < l.ttl {
		return slices.Clone(l.cached), nil
	}

	raw, err := l.list(ctx)
	if err != nil {
		return []App{}, err
	}

	apps := l.normalize(raw)
	l.cached, l.at = apps, l.now()
	return slices.Clone(apps), nil
}

// Invalidate drops the cached list.
func (l *ShellLister) Invalidate() {
	l.mu.Lock()
	l.cached, l.at = nil, time.Time{}
	l.mu.Unlock()
}

func (l *ShellLister) list(ctx context.Context) ([]App, error) {
	switch l.goos {
	case "windows":
		out, stderr, err := l.run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", windowsListScript)
		if err != nil {
			return nil, formatError("powershell", err, stderr)
		}
		return parsePowerShellCSV(out)
	case "linux":
		out, stderr, err := l.run(ctx, "wmctrl", "-lp")
		if err != nil {
			return nil, formatError("wmctrl", err, stderr)
		}
		return parseWmctrl(out, l.comm), nil
	case "darwin":
		out, stderr, err := l.run(ctx, "osascript", "-e", darwinListScript)
		if err != nil {
			return nil, formatError("osascript", err, stderr)
		}
		return parseOsascript(out), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, l.goos)
	}
}

func (l *ShellLister) normalize(raw []App) []App {
	seen := make(map[string]bool, len(raw))
	out := make([]App, 0, len(raw))
	for _, a := range raw {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			continue
		}
		key := strings.ToLower(a.Name)
		if seen[key] || l.ignored(key) {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b App) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out
}

func (l *ShellLister) ignored(lowerName string) bool {
	for _, pattern := range l.ignore {
		if ok, _ := doublestar.Match(strings.ToLower(pattern), lowerName); ok {
			return true
		}
	}
	return false
}

// ///////////////////////////////////////////////
// Platform Output
// ///////////////////////////////////////////////

const windowsListScript = `Get-Process | Where-Object { $_.MainWindowTitle } | ` +
	`Select-Object Name,Id,MainWindowTitle,Path | ConvertTo-Csv -NoTypeInformation`

const darwinListScript = `set out to ""
tell application "System Events"
	repeat with p in (every process whose background only is false)
		set out to out & (unix id of p) & tab & (name of p) & linefeed
	end repeat
end tell
return out`

// parsePowerShellCSV reads ConvertTo-Csv output. Columns are located by
// header name.
func parsePowerShellCSV(out string) ([]App, error) {
	// Windows PowerShell 5 prefixes its UTF-8 output with a BOM.
	out = strings.TrimPrefix(out, "\ufeff")
	r := csv.NewReader(strings.NewReader(out))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing process list: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		col[strings.TrimSpace(h)] = i
	}
	field := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var apps []App
	for _, rec := range records[1:] {
		pid, _ := strconv.Atoi(field(rec, "Id"))
		apps = append(apps, App{
			Name:  field(rec, "Name"),
			PID:   pid,
			Title: field(rec, "MainWindowTitle"),
			Path:  field(rec, "Path"),
		})
	}
	return apps, nil
}

// parseWmctrl reads `wmctrl -lp` lines: window ID, desktop, PID, host, then
// the title. The process name comes from comm.
func parseWmctrl(out string, comm func(pid int) (string, error)) []App {
	var apps []App
	for line := range strings.Lines(out) {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		pid, err := strconv.Atoi(fields[2])
		if err != nil || pid <= 0 {
			continue
		}
		title := strings.Join(fields[4:], " ")
		name, err := comm(pid)
		if err != nil || name == "" {
			name = title
		}
		apps = append(apps, App{Name: name, PID: pid, Title: title})
	}
	return apps
}

// parseOsascript reads "pid<TAB>name" lines.
func parseOsascript(out string) []App {
	var apps []App
	for line := range strings.Lines(out) {
		pidText, name, ok := strings.Cut(strings.TrimRight(line, "\r\n"), "\t")
		if !ok {
			continue
		}
		pid, _ := strconv.Atoi(strings.TrimSpace(pidText))
		apps = append(apps, App{Name: name, PID: pid})
	}
	return apps
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

func procComm(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func runCommand(ctx context.Context, name string, args ...string) (string, string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", "", fmt.Errorf("%w: %s", ErrUnavailable, name)
		}
		return "", "", fmt.Errorf("locating %s: %w", name, err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err = cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}

func formatError(tool string, err error, stderr string) error {
	if stderr == "" {
		return fmt.Errorf("%s: %w", tool, err)
	}
	return fmt.Errorf("%s: %w: %s", tool, err, stderr)
}
