// Package tui holds the interactive terminal views.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"tools.zach/dev/richcord/internal/apps"
	"tools.zach/dev/richcord/internal/presence"
)

type mode int

const (
	modeList mode = iota
	modeSearch
)

// Picker lets the user choose one running application.
type Picker struct {
	apps     []apps.App
	filtered []apps.App
	cursor   int
	offset   int
	height   int
	mode     mode
	search   textinput.Model

	chosen   *apps.App
	quitting bool
}

// NewPicker returns a picker over list, which is shown in the given order.
func NewPicker(list []apps.App) Picker {
	si := textinput.New()
	si.Placeholder = "filter..."
	si.CharLimit = 64

	p := Picker{apps: list, search: si, height: 20}
	p.applyFilter()
	return p
}

func (p Picker) Init() tea.Cmd { return nil }

func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.height = msg.Height
		p.clampOffset()
		return p, nil
	case tea.KeyMsg:
		if p.mode == modeSearch {
			return p.updateSearch(msg)
		}
		return p.updateList(msg)
	}
	return p, nil
}

func (p Picker) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		p.quitting = true
		return p, tea.Quit
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.filtered)-1 {
			p.cursor++
		}
	case "home", "g":
		p.cursor = 0
	case "end", "G":
		p.cursor = max(0, len(p.filtered)-1)
	case "/":
		p.search.Focus()
		p.mode = modeSearch
		return p, textinput.Blink
	case "enter":
		if len(p.filtered) == 0 {
			return p, nil
		}
		app := p.filtered[p.cursor]
		p.chosen = &app
		p.quitting = true
		return p, tea.Quit
	}
	p.clampOffset()
	return p, nil
}

func (p Picker) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		p.quitting = true
		return p, tea.Quit
	case "enter", "esc":
		p.search.Blur()
		p.mode = modeList
		return p, nil
	}

	var cmd tea.Cmd
	p.search, cmd = p.search.Update(msg)
	p.applyFilter()
	return p, cmd
}

func (p *Picker) applyFilter() {
	q := strings.ToLower(strings.TrimSpace(p.search.Value()))
	p.filtered = nil
	for _, a := range p.apps {
		if q == "" || strings.Contains(strings.ToLower(a.Name+" "+a.Title), q) {
			p.filtered = append(p.filtered, a)
		}
	}
	if p.cursor >= len(p.filtered) {
		p.cursor = max(0, len(p.filtered)-1)
	}
	p.clampOffset()
}

func (p Picker) visibleRows() int {
	return max(1, p.height-3)
}

func (p *Picker) clampOffset() {
	visible := p.visibleRows()
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if p.cursor >= p.offset+visible {
		p.offset = p.cursor - visible + 1
	}
	p.offset = max(0, p.offset)
}

func (p Picker) View() string {
	if p.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Running applications"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %d of %d", len(p.filtered), len(p.apps))))
	b.WriteString("\n")

	if len(p.filtered) == 0 {
		b.WriteString(dimStyle.Render("  no matching applications") + "\n")
	}
	end := min(len(p.filtered), p.offset+p.visibleRows())
	for i := p.offset; i < end; i++ {
		a := p.filtered[i]
		row := a.Name
		if a.Title != "" && a.Title != a.Name {
			row += dimStyle.Render("  " + a.Title)
		}
		if i == p.cursor {
			b.WriteString(selectedStyle.Render(a.Name) + "\n")
			continue
		}
		b.WriteString(normalStyle.Render(row) + "\n")
	}

	if p.mode == modeSearch {
		b.WriteString(statusBarStyle.Render("Filter:") + " " + p.search.View())
	} else {
		b.WriteString(helpStyle.Render("  enter: select  /: filter  q: cancel"))
	}
	return b.String()
}

// Chosen returns the selected application, if any.
func (p Picker) Chosen() (apps.App, bool) {
	if p.chosen == nil {
		return apps.App{}, false
	}
	return *p.chosen, true
}

// Pick runs the picker on the terminal and returns the chosen app. ok is
// false when the user cancelled.
func Pick(ctx context.Context, list []apps.App, in io.Reader, out io.Writer) (app apps.App, ok bool, err error) {
	prog := tea.NewProgram(NewPicker(list),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	final, err := prog.Run()
	if err != nil {
		return apps.App{}, false, err
	}
	app, ok = final.(Picker).Chosen()
	return app, ok, nil
}

// Describe returns the presence shown for a picked application. image, when
// set, becomes the large image.
func Describe(app apps.App, image string) presence.Description {
	desc := presence.Description{
		Details:         "Using " + app.Name,
		ShowElapsedTime: true,
	}
	if app.Title != "" && app.Title != app.Name {
		desc.State = app.Title
	}
	if image != "" {
		desc.LargeImageKey = image
		desc.LargeImageText = app.Name
	}
	return desc
}
