package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Structural limits for configuration documents.
const (
	maxYAMLDepth  = 20
	maxYAMLNodes  = 10000
	maxYAMLKeyLen = 256
)

// safeUnmarshal decodes data into v after bounding nesting depth and node
// count, so alias expansion cannot blow up the decoder.
func safeUnmarshal(data []byte, v any) error {
	if len(data) > MaxFileSize {
		return fmt.Errorf("config too large: %d bytes (max %d)", len(data), MaxFileSize)
	}

	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	count := 0
	if err := checkNode(&root, 0, &count); err != nil {
		return err
	}
	return root.Decode(v)
}

func checkNode(n *yaml.Node, depth int, count *int) error {
	if depth > maxYAMLDepth {
		return fmt.Errorf("nesting depth exceeds %d", maxYAMLDepth)
	}
	*count++
	if *count > maxYAMLNodes {
		return fmt.Errorf("more than %d nodes", maxYAMLNodes)
	}

	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if len(n.Content[i].Value) > maxYAMLKeyLen {
				return fmt.Errorf("key at line %d longer than %d bytes", n.Content[i].Line, maxYAMLKeyLen)
			}
			if err := checkNode(n.Content[i+1], depth+1, count); err != nil {
				return err
			}
		}
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			if err := checkNode(c, depth+1, count); err != nil {
				return err
			}
		}
	case yaml.AliasNode:
		if n.Alias != nil {
			return checkNode(n.Alias, depth+1, count)
		}
	}
	return nil
}
