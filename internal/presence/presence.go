// Package presence turns a user-facing presence description into the activity
// payload sent to Discord.
//
// [Builder.Build] is pure: the same description and session start always
// produce the same payload. Payloads are validated against Discord's field
// limits before they leave this package, so a rejected update is reported
// here rather than by Discord.
package presence

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"tools.zach/dev/richcord/internal/discord"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

const (
	// DefaultDetails replaces an empty details line.
	DefaultDetails = "Online"
	// DefaultState replaces an empty state line.
	DefaultState = "Active"

	// MaxButtons is the number of buttons Discord renders.
	MaxButtons = 2

	maxTextLen   = 128
	maxLabelLen  = 32
	maxButtonURL = 512
)

// ///////////////////////////////////////////////
// Data Types
// ///////////////////////////////////////////////

// Button is a labelled link shown under the activity.
type Button struct {
	Label string `json:"label" yaml:"label" toml:"label"`
	URL   string `json:"url" yaml:"url" toml:"url"`
}

// complete reports whether both label and URL are set.
func (b *Button) complete() bool {
	return b != nil && b.Label != "" && b.URL != ""
}

// Description is what a user asks to show. Empty text fields fall back to
// placeholders and incomplete buttons are dropped.
type Description struct {
	Details         string  `json:"details,omitempty" yaml:"details,omitempty" toml:"details,omitempty"`
	State           string  `json:"state,omitempty" yaml:"state,omitempty" toml:"state,omitempty"`
	LargeImageKey   string  `json:"largeImageKey,omitempty" yaml:"largeImageKey,omitempty" toml:"large_image_key,omitempty"`
	LargeImageText  string  `json:"largeImageText,omitempty" yaml:"largeImageText,omitempty" toml:"large_image_text,omitempty"`
	SmallImageKey   string  `json:"smallImageKey,omitempty" yaml:"smallImageKey,omitempty" toml:"small_image_key,omitempty"`
	SmallImageText  string  `json:"smallImageText,omitempty" yaml:"smallImageText,omitempty" toml:"small_image_text,omitempty"`
	Button1         *Button `json:"button1,omitempty" yaml:"button1,omitempty" toml:"button1,omitempty"`
	Button2         *Button `json:"button2,omitempty" yaml:"button2,omitempty" toml:"button2,omitempty"`
	ShowElapsedTime bool    `json:"showElapsedTime,omitempty" yaml:"showElapsedTime,omitempty" toml:"show_elapsed_time,omitempty"`
	// ActivityType is one of playing, listening, watching or competing.
	// Empty means playing.
	ActivityType string `json:"activityType,omitempty" yaml:"activityType,omitempty" toml:"activity_type,omitempty"`
}

var activityTypes = map[string]discord.ActivityType{
	"":          discord.ActivityPlaying,
	"playing":   discord.ActivityPlaying,
	"listening": discord.ActivityListening,
	"watching":  discord.ActivityWatching,
	"competing": discord.ActivityCompeting,
}

// ValidationError lists every field that violates Discord's limits.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid presence: " + strings.Join(e.Problems, "; ")
}

// ///////////////////////////////////////////////
// Builder
// ///////////////////////////////////////////////

// Builder converts descriptions into activity payloads.
type Builder struct {
	// DefaultDetails and DefaultState replace empty text. Zero values use
	// the package defaults.
	DefaultDetails string
	DefaultState   string
}

// Build returns the activity for desc. start is the session start time; it
// becomes the elapsed-time anchor when desc.ShowElapsedTime is set, so the
// timer does not reset on every update.
func (b Builder) Build(desc Description, start time.Time) (*discord.Activity, error) {
	if err := Validate(desc); err != nil {
		return nil, err
	}

	act := &discord.Activity{
		Type:    activityTypes[strings.ToLower(desc.ActivityType)],
		Details: orDefault(desc.Details, b.DefaultDetails, DefaultDetails),
		State:   orDefault(desc.State, b.DefaultState, DefaultState),
	}

	if desc.ShowElapsedTime {
		act.Timestamps = &discord.Timestamps{Start: start.Unix()}
	}

	if desc.LargeImageKey != "" || desc.LargeImageText != "" || desc.SmallImageKey != "" || desc.SmallImageText != "" {
		act.Assets = &discord.Assets{
			LargeImage: desc.LargeImageKey,
			LargeText:  desc.LargeImageText,
			SmallImage: desc.SmallImageKey,
			SmallText:  desc.SmallImageText,
		}
	}

	for _, btn := range []*Button{desc.Button1, desc.Button2} {
		if btn.complete() {
			act.Buttons = append(act.Buttons, discord.Button{Label: btn.Label, URL: btn.URL})
		}
	}

	return act, nil
}

// Validate checks desc against Discord's limits. Incomplete buttons are not
// an error since Build drops them.
func Validate(desc Description) error {
	var problems []string
	check := func(field, value string, limit int) {
		if n := utf8.RuneCountInString(value); n > limit {
			problems = append(problems, fmt.Sprintf("%s is %d characters (max %d)", field, n, limit))
		}
	}

	check("details", desc.Details, maxTextLen)
	check("state", desc.State, maxTextLen)
	check("largeImageText", desc.LargeImageText, maxTextLen)
	check("smallImageText", desc.SmallImageText, maxTextLen)

	for i, btn := range []*Button{desc.Button1, desc.Button2} {
		if !btn.complete() {
			continue
		}
		name := fmt.Sprintf("button%d", i+1)
		check(name+".label", btn.Label, maxLabelLen)
		if len(btn.URL) > maxButtonURL {
			problems = append(problems, fmt.Sprintf("%s.url is %d bytes (max %d)", name, len(btn.URL), maxButtonURL))
		} else if u, err := url.Parse(btn.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("%s.url %q must be an absolute http(s) URL", name, btn.URL))
		}
	}

	if _, ok := activityTypes[strings.ToLower(desc.ActivityType)]; !ok {
		problems = append(problems, fmt.Sprintf("activityType %q must be one of playing, listening, watching, competing", desc.ActivityType))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func orDefault(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
