// Package flowfile loads flow definitions from JSON or YAML documents.
//
// YAML documents use the same field names as the JSON schema; they are
// decoded generically and then mapped through the JSON tags of models.Flow, so
// both formats accept exactly the same shape.
package flowfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/chatflow/pkg/models"
	goyaml "gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var ErrUnsupportedFormat = errors.New("unsupported flow file format")

// FormatOf maps a file extension to its format.
func FormatOf(filePath string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filePath)
	}
}

// Load reads one flow file. A flow without an id takes the file name stem.
func Load(filePath string) (*models.Flow, error) {
	format, err := FormatOf(filePath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading flow file: %w", err)
	}

	flow, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	if flow.ID == "" {
		flow.ID = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}

	return flow, nil
}

// LoadDir loads every .json, .yaml and .yml file in dir, sorted by file name.
func LoadDir(dir string) ([]*models.Flow, error) {
	var files []string

	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to list flow files: %w", err)
		}

		files = append(files, matches...)
	}

	sort.Strings(files)

	flows := make([]*models.Flow, 0, len(files))

	for _, file := range files {
		flow, err := Load(file)
		if err != nil {
			return nil, err
		}

		flows = append(flows, flow)
	}

	return flows, nil
}

// Parse decodes a flow document and fills the defaults a hand-written file may omit.
func Parse(data []byte, format Format) (*models.Flow, error) {
	var raw []byte

	switch format {
	case FormatJSON:
		raw = data
	case FormatYAML:
		var doc any
		if err := goyaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("error unmarshalling YAML: %w", err)
		}

		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("YAML document is not JSON compatible: %w", err)
		}

		raw = converted
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, errors.New("empty flow document")
	}

	var flow models.Flow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return nil, fmt.Errorf("error decoding flow: %w", err)
	}

	applyDefaults(&flow)

	return &flow, nil
}

func applyDefaults(flow *models.Flow) {
	if flow.Status == "" {
		flow.Status = models.FlowStatusDraft
	}

	if flow.Nodes == nil {
		flow.Nodes = []*models.Node{}
	}

	if flow.Edges == nil {
		flow.Edges = []*models.Edge{}
	}

	if flow.Variables == nil {
		flow.Variables = []models.VariableDeclaration{}
	}

	for _, node := range flow.Nodes {
		if node != nil && node.Data == nil {
			node.Data = map[string]any{}
		}
	}

	for _, edge := range flow.Edges {
		if edge != nil && edge.ID == "" {
			edge.ID = edge.Source + "->" + edge.Target
			if edge.SourceHandle != "" {
				edge.ID = edge.Source + ":" + edge.SourceHandle + "->" + edge.Target
			}
		}
	}
}

// Marshal renders a flow in the given format.
func Marshal(flow *models.Flow, format Format) ([]byte, error) {
	data, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("error encoding flow: %w", err)
	}

	switch format {
	case FormatJSON:
		return data, nil
	case FormatYAML:
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}

		return goyaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
