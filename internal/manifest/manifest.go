// Package manifest declares deployment modules in YAML or TOML files and
// compiles them into module definitions.
//
// A manifest lists modules; each module lists actions in the order they are
// registered. String values of the form ${...} are references:
//
//	${token}          future of the action with id "token" in this module
//	${Token.token}    result "token" of the used module Token
//	${param:supply}   module parameter "supply"
//	${account:0}      the runner's first account
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is a manifest encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	// FormatJSON is decoded by the YAML parser.
	FormatJSON Format = "json"
)

// File is a parsed manifest.
type File struct {
	// Main is the module compiled by Compile. It may be omitted when the
	// file declares a single module.
	Main    string   `yaml:"main,omitempty" toml:"main,omitempty" json:"main,omitempty"`
	Modules []Module `yaml:"modules" toml:"modules" json:"modules"`
}

// Module declares one module.
type Module struct {
	ID         string            `yaml:"module" toml:"module" json:"module"`
	Version    string            `yaml:"version,omitempty" toml:"version,omitempty" json:"version,omitempty"`
	Parameters map[string]any    `yaml:"parameters,omitempty" toml:"parameters,omitempty" json:"parameters,omitempty"`
	Uses       []string          `yaml:"uses,omitempty" toml:"uses,omitempty" json:"uses,omitempty"`
	Actions    []Action          `yaml:"actions" toml:"actions" json:"actions"`
	Results    map[string]string `yaml:"results,omitempty" toml:"results,omitempty" json:"results,omitempty"`
}

// Action declares one action. Exactly one of the kind keys (Deploy, Library,
// Call, StaticCall, ContractAt, Send) is set.
type Action struct {
	ID string `yaml:"id,omitempty" toml:"id,omitempty" json:"id,omitempty"`

	Deploy     string `yaml:"deploy,omitempty" toml:"deploy,omitempty" json:"deploy,omitempty"`
	Library    string `yaml:"library,omitempty" toml:"library,omitempty" json:"library,omitempty"`
	Call       string `yaml:"call,omitempty" toml:"call,omitempty" json:"call,omitempty"`
	StaticCall string `yaml:"staticCall,omitempty" toml:"staticCall,omitempty" json:"staticCall,omitempty"`
	ContractAt string `yaml:"contractAt,omitempty" toml:"contractAt,omitempty" json:"contractAt,omitempty"`
	Send       any    `yaml:"send,omitempty" toml:"send,omitempty" json:"send,omitempty"`

	Target    string            `yaml:"target,omitempty" toml:"target,omitempty" json:"target,omitempty"`
	Args      []any             `yaml:"args,omitempty" toml:"args,omitempty" json:"args,omitempty"`
	Address   any               `yaml:"address,omitempty" toml:"address,omitempty" json:"address,omitempty"`
	Value     any               `yaml:"value,omitempty" toml:"value,omitempty" json:"value,omitempty"`
	Data      string            `yaml:"data,omitempty" toml:"data,omitempty" json:"data,omitempty"`
	From      any               `yaml:"from,omitempty" toml:"from,omitempty" json:"from,omitempty"`
	After     []string          `yaml:"after,omitempty" toml:"after,omitempty" json:"after,omitempty"`
	Libraries map[string]string `yaml:"libraries,omitempty" toml:"libraries,omitempty" json:"libraries,omitempty"`
}

// Kind returns the action kind, or "" when zero or several kind keys are set.
func (a *Action) Kind() string {
	var kinds []string
	if a.Deploy != "" {
		kinds = append(kinds, "deploy")
	}
	if a.Library != "" {
		kinds = append(kinds, "library")
	}
	if a.Call != "" {
		kinds = append(kinds, "call")
	}
	if a.StaticCall != "" {
		kinds = append(kinds, "staticCall")
	}
	if a.ContractAt != "" {
		kinds = append(kinds, "contractAt")
	}
	if a.Send != nil {
		kinds = append(kinds, "send")
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Module returns the declaration of the module with the given id.
func (f *File) Module(id string) (*Module, bool) {
	for i := range f.Modules {
		if f.Modules[i].ID == id {
			return &f.Modules[i], true
		}
	}
	return nil, false
}

// MainModule returns the id of the module Compile builds.
func (f *File) MainModule() string {
	if f.Main != "" {
		return f.Main
	}
	if len(f.Modules) == 1 {
		return f.Modules[0].ID
	}
	return ""
}

// DetectFormat picks the format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ParseFormat resolves a user-supplied format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "", "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// Load reads and validates a manifest file.
func Load(path string) (*File, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return Parse(data, format)
}

// Parse decodes and validates a manifest. Unknown keys are rejected.
func Parse(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatYAML, FormatJSON:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
		for _, key := range md.Undecoded() {
			if !freeForm(key) {
				return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidManifest, key.String())
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// freeForm reports whether key lies inside a value decoded as any, where the
// TOML decoder leaves nested keys unmarked.
func freeForm(key toml.Key) bool {
	for _, part := range key {
		switch part {
		case "parameters", "args", "address", "value", "from", "send":
			return true
		}
	}
	return false
}
