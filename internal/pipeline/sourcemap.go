package pipeline

import (
	"encoding/json"
	"fmt"
)

// SourceMap is a version 3 source map.
type SourceMap struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// ParseSourceMap decodes a source map document.
func ParseSourceMap(data []byte) (*SourceMap, error) {
	var sm SourceMap
	if err := json.Unmarshal(data, &sm); err != nil {
		return nil, fmt.Errorf("decoding source map: %w", err)
	}
	if sm.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version %d", sm.Version)
	}
	if sm.Names == nil {
		sm.Names = []string{}
	}
	return &sm, nil
}

// Marshal encodes the map.
func (sm *SourceMap) Marshal() ([]byte, error) {
	return json.Marshal(sm)
}
