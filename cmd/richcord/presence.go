package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"tools.zach/dev/richcord/internal/presence"
)

// presenceFlags are the flags that describe a presence, shared by `set` and
// `profile save`.
type presenceFlags struct {
	file       string
	details    string
	state      string
	largeImage string
	largeText  string
	smallImage string
	smallText  string
	buttons    []string
	elapsed    bool
	kind       string
}

func (f *presenceFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.file, "file", "f", "", "read the presence from a JSON, JSONC, YAML or TOML file")
	fs.StringVarP(&f.details, "details", "d", "", "first line of the activity")
	fs.StringVarP(&f.state, "state", "s", "", "second line of the activity")
	fs.StringVar(&f.largeImage, "large-image", "", "large image asset key, URL or local file")
	fs.StringVar(&f.largeText, "large-text", "", "tooltip for the large image")
	fs.StringVar(&f.smallImage, "small-image", "", "small image asset key, URL or local file")
	fs.StringVar(&f.smallText, "small-text", "", "tooltip for the small image")
	fs.StringArrayVarP(&f.buttons, "button", "b", nil, `button as "Label=https://url" (up to two)`)
	fs.BoolVarP(&f.elapsed, "elapsed", "e", false, "show time elapsed since the session started")
	fs.StringVarP(&f.kind, "type", "t", "", "activity type: playing, listening, watching or competing")
}

// description builds the presence from --file, then applies any flag that
// was set explicitly on top of it.
func (f *presenceFlags) description(cmd *cobra.Command) (presence.Description, error) {
	var desc presence.Description
	if f.file != "" {
		var err error
		if desc, err = presence.LoadFile(f.file); err != nil {
			return presence.Description{}, err
		}
	}

	changed := cmd.Flags().Changed
	set := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = v
		}
	}
	set("details", &desc.Details, f.details)
	set("state", &desc.State, f.state)
	set("large-image", &desc.LargeImageKey, f.largeImage)
	set("large-text", &desc.LargeImageText, f.largeText)
	set("small-image", &desc.SmallImageKey, f.smallImage)
	set("small-text", &desc.SmallImageText, f.smallText)
	set("type", &desc.ActivityType, f.kind)
	if changed("elapsed") {
		desc.ShowElapsedTime = f.elapsed
	}

	if changed("button") {
		if len(f.buttons) > presence.MaxButtons {
			return presence.Description{}, fmt.Errorf("at most %d buttons are allowed", presence.MaxButtons)
		}
		desc.Button1, desc.Button2 = nil, nil
		for i, raw := range f.buttons {
			b, err := parseButton(raw)
			if err != nil {
				return presence.Description{}, err
			}
			if i == 0 {
				desc.Button1 = b
			} else {
				desc.Button2 = b
			}
		}
	}
	return desc, nil
}

func parseButton(raw string) (*presence.Button, error) {
	label, url, ok := strings.Cut(raw, "=")
	label, url = strings.TrimSpace(label), strings.TrimSpace(url)
	if !ok || label == "" || url == "" {
		return nil, fmt.Errorf("invalid button %q: want Label=URL", raw)
	}
	return &presence.Button{Label: label, URL: url}, nil
}

// resolveImages uploads image fields that point at local data when uploads
// are enabled. Asset keys and remote URLs are left alone.
func (a *app) resolveImages(ctx context.Context, desc *presence.Description) error {
	if !a.cfg.Images.Upload {
		return nil
	}
	up := a.uploader()
	for _, field := range []*string{&desc.LargeImageKey, &desc.SmallImageKey} {
		if !isLocalImage(*field) {
			continue
		}
		res := up.Upload(ctx, *field)
		if !res.Success {
			return fmt.Errorf("image %s: %s", *field, res.Error)
		}
		if res.Fallback {
			a.log.Warn("image upload failed, using an inline data URI", "image", *field, "error", res.Error)
		}
		*field = res.URL
	}
	return nil
}

func isLocalImage(v string) bool {
	if v == "" {
		return false
	}
	if strings.HasPrefix(v, "data:") || strings.HasPrefix(v, "file://") {
		return true
	}
	info, err := os.Stat(v)
	return err == nil && info.Mode().IsRegular()
}
