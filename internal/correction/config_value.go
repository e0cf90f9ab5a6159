package correction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/selfcorrect/internal/models"
)

// ConfigValue sets a dotted key path in a JSON, YAML or TOML file to Value.
// Missing intermediate levels are created as empty mappings.
type ConfigValue struct{}

// Kind implements Corrector.
func (ConfigValue) Kind() models.CorrectionKind { return models.KindFixConfigValue }

// Validate implements Corrector.
func (ConfigValue) Validate(desc models.CorrectionDescriptor) error {
	if err := requireFiles(desc); err != nil {
		return err
	}
	if desc.ConfigKey == "" {
		return fmt.Errorf("%w: fix-config-value needs a configKey", ErrInvalid)
	}
	for _, part := range strings.Split(desc.ConfigKey, ".") {
		if part == "" {
			return fmt.Errorf("%w: empty segment in key %q", ErrInvalid, desc.ConfigKey)
		}
	}
	if _, err := codecFor(desc.Files()[0]); err != nil {
		return err
	}
	return nil
}

// Apply implements Corrector.
func (c ConfigValue) Apply(ctx context.Context, desc models.CorrectionDescriptor) (Result, error) {
	res := Result{Kind: c.Kind()}
	if err := c.Validate(desc); err != nil {
		return res, err
	}
	path := desc.Files()[0]
	content, mode, err := readFile(path)
	if err != nil {
		return res, err
	}
	codec, _ := codecFor(path)

	doc, err := codec.decode([]byte(content))
	if err != nil {
		return res, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := setPath(doc, strings.Split(desc.ConfigKey, "."), desc.Value); err != nil {
		return res, fmt.Errorf("set %s in %s: %w", desc.ConfigKey, path, err)
	}
	out, err := codec.encode(doc)
	if err != nil {
		return res, fmt.Errorf("encode %s: %w", path, err)
	}
	if err := writeFile(path, string(out), mode); err != nil {
		return res, err
	}
	res.Files = []string{path}
	res.Changed = true
	return res, nil
}

// setPath walks doc along keys, creating maps as needed, and sets the leaf.
func setPath(doc map[string]any, keys []string, value any) error {
	current := doc
	for i, k := range keys[:len(keys)-1] {
		next, ok := current[k]
		if !ok || next == nil {
			m := make(map[string]any)
			current[k] = m
			current = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s is a %T, not a mapping", ErrInvalid, strings.Join(keys[:i+1], "."), next)
		}
		current = m
	}
	current[keys[len(keys)-1]] = value
	return nil
}

type codec struct {
	decode func([]byte) (map[string]any, error)
	encode func(map[string]any) ([]byte, error)
}

func codecFor(path string) (codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return codec{decode: decodeJSON, encode: encodeJSON}, nil
	case ".yaml", ".yml":
		return codec{decode: decodeYAML, encode: encodeYAML}, nil
	case ".toml":
		return codec{decode: decodeTOML, encode: encodeTOML}, nil
	default:
		return codec{}, fmt.Errorf("%w: unsupported config format %q", ErrInvalid, filepath.Ext(path))
	}
}

func decodeJSON(data []byte) (map[string]any, error) {
	doc := make(map[string]any)
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	return doc, nil
}

func encodeJSON(doc map[string]any) ([]byte, error) {
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func encodeYAML(doc map[string]any) ([]byte, error) {
	return yaml.Marshal(doc)
}

func decodeYAML(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	return doc, nil
}

func decodeTOML(data []byte) (map[string]any, error) {
	doc := make(map[string]any)
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func encodeTOML(doc map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
