package apps

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrNoIcon is returned when no icon can be produced for an app.
var ErrNoIcon = errors.New("no icon available")

// IconProvider returns an app's icon as PNG bytes.
type IconProvider interface {
	Icon(ctx context.Context, app App) ([]byte, error)
}

// ShellIcons extracts executable icons through PowerShell. Only Windows is
// supported; elsewhere every call returns ErrNoIcon.
type ShellIcons struct {
	goos string
	run  runFunc
}

func NewShellIcons() *ShellIcons {
	return &ShellIcons{goos: runtime.GOOS, run: runCommand}
}

func (s *ShellIcons) Icon(ctx context.Context, app App) ([]byte, error) {
	if s.goos != "windows" || app.Path == "" {
		return nil, ErrNoIcon
	}

	script := fmt.Sprintf(windowsIconScript, strings.ReplaceAll(app.Path, "'", "''"))
	out, stderr, err := s.run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	if err != nil {
		return nil, formatError("powershell", err, stderr)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return nil, ErrNoIcon
	}
	png, err := base64.StdEncoding.DecodeString(out)
	if err != nil {
		return nil, fmt.Errorf("decoding icon for %s: %w", app.Name, err)
	}
	return png, nil
}

const windowsIconScript = `Add-Type -AssemblyName System.Drawing; ` +
	`$icon = [System.Drawing.Icon]::ExtractAssociatedIcon('%s'); ` +
	`if ($icon) { $ms = New-Object System.IO.MemoryStream; ` +
	`$icon.ToBitmap().Save($ms, [System.Drawing.Imaging.ImageFormat]::Png); ` +
	`[Convert]::ToBase64String($ms.ToArray()) }`
