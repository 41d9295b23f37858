package presence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Parse decodes a description in the format named by ext (".yaml", ".yml",
// ".json", ".jsonc" or ".toml"). JSON input may carry comments and trailing
// commas. Unknown fields are rejected in every format.
func Parse(ext string, data []byte) (Description, error) {
	var desc Description

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&desc); err != nil {
			return Description{}, fmt.Errorf("parsing yaml: %w", err)
		}
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&desc); err != nil {
			return Description{}, fmt.Errorf("parsing json: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &desc)
		if err != nil {
			return Description{}, fmt.Errorf("parsing toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Description{}, fmt.Errorf("parsing toml: unknown field %q", undecoded[0].String())
		}
	default:
		return Description{}, fmt.Errorf("unsupported presence file type %q", ext)
	}

	return desc, nil
}

// LoadFile reads a description from path, picking the format from the
// extension.
func LoadFile(path string) (Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Description{}, fmt.Errorf("reading %s: %w", path, err)
	}
	desc, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return Description{}, fmt.Errorf("%s: %w", path, err)
	}
	return desc, nil
}
