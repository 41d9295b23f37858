// Command genconfig writes config.default.toml from config.ExampleConfig,
// annotated with config.ConfigDocs. go generate runs it from
// internal/config.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"tools.zach/dev/richcord/internal/config"
)

func main() {
	out := flag.String("o", "../../config.default.toml", "output path")
	flag.Parse()

	text, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "genconfig: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, []byte(text), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "genconfig: write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}

// render encodes cfg and interleaves the docs: section banners, comments
// above keys, alternatives below them, and commented stubs for documented
// keys the encoder left out.
func render(cfg *config.Config, docs map[string]config.FieldDoc) (string, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}

	r := renderer{docs: docs, emitted: map[string]bool{}}
	r.lines = append(r.lines,
		"# ///////////////////////////////////////////////",
		"# Richcord Configuration",
		"# ///////////////////////////////////////////////",
		"",
	)

	for line := range strings.Lines(raw.String()) {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "[") && !strings.HasPrefix(line, "[["):
			r.section(strings.Trim(line, "[] "), line)
		case strings.HasPrefix(line, "#") || !strings.Contains(line, "="):
			r.lines = append(r.lines, line)
		default:
			r.key(line)
		}
	}
	r.flushOmitted()

	return strings.TrimRight(strings.Join(r.lines, "\n"), "\n") + "\n", nil
}

type renderer struct {
	docs    map[string]config.FieldDoc
	emitted map[string]bool
	path    []string
	lines   []string
}

func (r *renderer) section(name, header string) {
	r.flushOmitted()
	r.path = strings.Split(name, ".")
	r.lines = append(r.lines, "", fmt.Sprintf("# ///// %s /////", sectionName(name)), "")
	r.comment(r.docs[name].Comment)
	r.lines = append(r.lines, header)
}

func (r *renderer) key(line string) {
	key, _, _ := strings.Cut(line, "=")
	full := r.qualify(strings.TrimSpace(key))
	r.emitted[full] = true

	doc := r.docs[full]
	r.comment(doc.Comment)
	r.lines = append(r.lines, line)
	for _, alt := range doc.Alternatives {
		r.lines = append(r.lines, "# "+alt)
	}
}

// flushOmitted adds commented entries for documented keys of the current
// section that the encoder skipped (omitempty zero values).
func (r *renderer) flushOmitted() {
	if len(r.path) == 0 {
		return
	}
	prefix := strings.Join(r.path, ".") + "."

	var missing []string
	for full := range r.docs {
		rest, ok := strings.CutPrefix(full, prefix)
		if ok && !strings.Contains(rest, ".") && !r.emitted[full] {
			missing = append(missing, full)
		}
	}
	slices.Sort(missing)

	for _, full := range missing {
		doc := r.docs[full]
		r.lines = append(r.lines, "")
		r.comment(doc.Comment)
		for _, alt := range doc.Alternatives {
			r.lines = append(r.lines, "# "+alt)
		}
		r.emitted[full] = true
	}
}

func (r *renderer) comment(text string) {
	if text == "" {
		return
	}
	for _, l := range strings.Split(text, "\n") {
		r.lines = append(r.lines, "# "+l)
	}
}

func (r *renderer) qualify(key string) string {
	if len(r.path) == 0 {
		return key
	}
	return strings.Join(r.path, ".") + "." + key
}

// sectionName title-cases the last segment of a dotted section name.
func sectionName(section string) string {
	parts := strings.Split(section, ".")
	last := parts[len(parts)-1]
	if last == "" {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
