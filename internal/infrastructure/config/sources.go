package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/browser-source/internal/source"
)

var ErrUnknownFormat = errors.New("unknown definitions format")

// SourceDefinition is one source created on startup.
type SourceDefinition struct {
	Name     string
	Visible  bool
	Active   bool
	Settings source.Settings
}

type definitionsFile struct {
	Sources []map[string]interface{} `json:"sources" yaml:"sources" toml:"sources"`
}

// LoadSources reads source definitions from path. The format follows the
// extension: .yaml/.yml, .toml or .json. Keys a definition leaves out keep
// their default value.
//
// path may be a glob such as /etc/sources/**/*.yaml. Matches load in
// lexical order and names must be unique across all of them.
func LoadSources(path string) ([]SourceDefinition, error) {
	files := []string{path}
	if strings.ContainsAny(path, "*?[{") {
		matches, err := doublestar.FilepathGlob(path, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob definitions: %w", err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no definitions match %q", path)
		}
		sort.Strings(matches)
		files = matches
	}

	var defs []SourceDefinition
	owner := make(map[string]string)
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read definitions: %w", err)
		}
		parsed, err := ParseSources(data, filepath.Ext(file))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		for _, def := range parsed {
			if prev, ok := owner[def.Name]; ok {
				return nil, fmt.Errorf("%s: duplicate name %q (first defined in %s)", file, def.Name, prev)
			}
			owner[def.Name] = file
		}
		defs = append(defs, parsed...)
	}
	return defs, nil
}

// ParseSources decodes definitions in the format named by ext.
func ParseSources(data []byte, ext string) ([]SourceDefinition, error) {
	var file definitionsFile
	var err error
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &file)
	case "toml":
		err = toml.Unmarshal(data, &file)
	case "json":
		err = sonic.Unmarshal(data, &file)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse definitions: %w", err)
	}

	defs := make([]SourceDefinition, 0, len(file.Sources))
	seen := make(map[string]bool, len(file.Sources))
	for i, raw := range file.Sources {
		def, err := decodeDefinition(raw)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("source %d: duplicate name %q", i, def.Name)
		}
		seen[def.Name] = true
		defs = append(defs, def)
	}
	return defs, nil
}

// decodeDefinition overlays raw onto the default settings by round-tripping
// it through JSON, so every format shares the settings field names.
func decodeDefinition(raw map[string]interface{}) (SourceDefinition, error) {
	def := SourceDefinition{Visible: true, Active: true, Settings: source.DefaultSettings()}

	name, _ := raw["name"].(string)
	if name == "" {
		return def, errors.New("name is required")
	}
	def.Name = name
	if v, ok := raw["visible"].(bool); ok {
		def.Visible = v
	}
	if v, ok := raw["active"].(bool); ok {
		def.Active = v
	}

	encoded, err := sonic.Marshal(raw)
	if err != nil {
		return def, fmt.Errorf("encode settings: %w", err)
	}
	if err := sonic.Unmarshal(encoded, &def.Settings); err != nil {
		return def, fmt.Errorf("decode settings: %w", err)
	}
	def.Settings = def.Settings.Normalize()
	return def, nil
}
