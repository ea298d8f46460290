// Package config overlays an optional YAML file onto the process environment.
//
// Nested keys are joined with "_" and upper-cased, so
//
//	qdrant:
//	  url: http://qdrant:6333
//	kafka:
//	  brokers: [a:9092, b:9092]
//
// sets QDRANT_URL and KAFKA_BROKERS=a:9092,b:9092. Variables already present in
// the environment always win over the file.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Flatten decodes a YAML document into environment-style key/value pairs.
func Flatten(data []byte) (map[string]string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	out := map[string]string{}
	if len(root.Content) == 0 {
		return out, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config yaml: top level must be a mapping")
	}
	if err := flatten("", doc, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(prefix string, n *yaml.Node, out map[string]string) error {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := strings.ToUpper(strings.TrimSpace(n.Content[i].Value))
			key = strings.NewReplacer("-", "_", ".", "_").Replace(key)
			if prefix != "" {
				key = prefix + "_" + key
			}
			if err := flatten(key, n.Content[i+1], out); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		parts := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("config yaml: %s must be a list of scalars", prefix)
			}
			parts = append(parts, item.Value)
		}
		out[prefix] = strings.Join(parts, ",")
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil
		}
		out[prefix] = n.Value
	case yaml.AliasNode:
		return flatten(prefix, n.Alias, out)
	}
	return nil
}

// Apply sets every key that is not already present in the environment and
// returns the keys it set, sorted.
func Apply(values map[string]string) ([]string, error) {
	var applied []string
	for k, v := range values {
		if _, exists := os.LookupEnv(k); exists {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return applied, fmt.Errorf("set %s: %w", k, err)
		}
		applied = append(applied, k)
	}
	sort.Strings(applied)
	return applied, nil
}

// Load reads path and applies it. An empty path is a no-op.
func Load(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	values, err := Flatten(data)
	if err != nil {
		return nil, err
	}
	return Apply(values)
}
