package layout

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Document is the on-disk form of a layout.
type Document struct {
	Name   string     `json:"name" yaml:"name" toml:"name"`
	Rows   int        `json:"rows" yaml:"rows" toml:"rows"`
	Cols   int        `json:"cols" yaml:"cols" toml:"cols"`
	Layers []LayerDoc `json:"layers" yaml:"layers" toml:"layers"`
	Taps   []TapDoc   `json:"taps,omitempty" yaml:"taps,omitempty" toml:"taps,omitempty"`
}

// LayerDoc is one layer: a grid of key tokens, one slice per row.
type LayerDoc struct {
	Name string     `json:"name" yaml:"name" toml:"name"`
	Keys [][]string `json:"keys" yaml:"keys" toml:"keys"`
}

// TapDoc assigns a tap keycode to a modifier or layer key.
type TapDoc struct {
	Row int    `json:"row" yaml:"row" toml:"row"`
	Col int    `json:"col" yaml:"col" toml:"col"`
	Key string `json:"key" yaml:"key" toml:"key"`
}

// Format names a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatOf picks the encoding from a file extension, defaulting to YAML.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("layout.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// Validate checks a document against the layout JSON schema.
func (d *Document) Validate() error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile layout schema: %w", err)
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode layout: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Parse decodes, schema-validates and builds a layout.
func Parse(data []byte, format Format) (*Layout, error) {
	doc := &Document{}
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), doc); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown layout format %q", format)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return Build(doc)
}

// Load reads a layout file.
func Load(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	l, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Encode serializes a document.
func (d *Document) Encode(format Format) ([]byte, error) {
	switch format {
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(d); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatJSON:
		return json.MarshalIndent(d, "", "  ")
	case FormatYAML:
		return yaml.Marshal(d)
	}
	return nil, fmt.Errorf("unknown layout format %q", format)
}
