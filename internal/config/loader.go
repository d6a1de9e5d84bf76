package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

const includeKey = "$include"

// LoadRaw reads a configuration file into a merged raw map.
//
// Files named under $include (paths or glob patterns, relative to the
// including file) are merged first, in order, and the including file's own
// keys win. Nested sections merge key by key; lists replace. An explicit
// null drops the inherited value so the built-in default applies again.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is required")
	}
	l := &rawLoader{active: map[string]bool{}}
	return l.load(path)
}

// rawLoader tracks the files currently being loaded to catch include cycles.
type rawLoader struct {
	active map[string]bool
}

func (l *rawLoader) load(path string) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if l.active[abs] {
		return nil, fmt.Errorf("config include cycle detected at %s", abs)
	}
	l.active[abs] = true
	defer delete(l.active, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	raw, err := parseFile(data, filepath.Ext(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(abs), err)
	}

	patterns, err := popIncludes(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(abs), err)
	}
	merged := map[string]any{}
	for _, pattern := range patterns {
		files, err := resolveInclude(filepath.Dir(abs), pattern)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(abs), err)
		}
		for _, file := range files {
			inc, err := l.load(file)
			if err != nil {
				return nil, err
			}
			overlay(merged, inc)
		}
	}
	overlay(merged, raw)
	return merged, nil
}

// resolveInclude expands one $include entry. A plain path must exist; a
// glob may match nothing.
func resolveInclude(dir, pattern string) ([]string, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, nil
	}
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dir, pattern)
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", includeKey, pattern, err)
	}
	sort.Strings(files)
	return files, nil
}

func popIncludes(raw map[string]any) ([]string, error) {
	v, ok := raw[includeKey]
	delete(raw, includeKey)
	if !ok || v == nil {
		return nil, nil
	}
	switch v := v.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings", includeKey)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a string or list of strings", includeKey)
	}
}

// overlay merges src into dst in place.
func overlay(dst, src map[string]any) {
	for key, value := range src {
		switch v := value.(type) {
		case nil:
			delete(dst, key)
		case map[string]any:
			if existing, ok := dst[key].(map[string]any); ok {
				overlay(existing, v)
				continue
			}
			fresh := map[string]any{}
			overlay(fresh, v)
			dst[key] = fresh
		default:
			dst[key] = value
		}
	}
}

// parseFile decodes YAML, or JSON5 for .json and .json5 files, expanding
// environment references in string values.
func parseFile(data []byte, ext string) (map[string]any, error) {
	switch strings.ToLower(ext) {
	case ".json", ".json5":
		var raw map[string]any
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			return map[string]any{}, nil
		}
		return expandValues(raw).(map[string]any), nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("expected a single YAML document")
	}
	expandNode(&doc)
	var raw map[string]any
	if err := doc.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// expandNode expands references in scalar values, never in keys. A plain
// scalar that changed is re-typed, so `port: ${PORT}` decodes as a number.
func expandNode(n *yaml.Node) {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			expandNode(c)
		}
	case yaml.MappingNode:
		for i := 1; i < len(n.Content); i += 2 {
			expandNode(n.Content[i])
		}
	case yaml.ScalarNode:
		expanded := expandEnv(n.Value)
		if expanded == n.Value {
			return
		}
		n.Value = expanded
		if n.Style == 0 {
			n.Tag = ""
		}
	}
}

func expandValues(v any) any {
	switch v := v.(type) {
	case string:
		return expandEnv(v)
	case map[string]any:
		for k, item := range v {
			v[k] = expandValues(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = expandValues(item)
		}
		return v
	default:
		return v
	}
}

// expandEnv substitutes $VAR, ${VAR} and ${VAR:-default}. The default
// applies when VAR is unset or empty.
func expandEnv(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(ref string) string {
		name, fallback, hasFallback := strings.Cut(ref, ":-")
		if v := os.Getenv(name); v != "" || !hasFallback {
			return v
		}
		return fallback
	})
}

// decodeRawConfig decodes the merged map strictly: unknown keys fail.
func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(payload))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
