package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/billbuster/billpoints/internal/point"
)

// Export is the interchange payload persisted for a document run: the
// validated points plus the stats block, and the optional summary/tags.
type Export struct {
	Points  []point.Point `json:"points"`
	Summary string        `json:"summary,omitempty"`
	Tags    []string      `json:"tags,omitempty"`
	Stats   RunStats      `json:"stats"`
}

// NewExport builds the export payload from a run result. Points is never
// nil so the serialized form always carries an array.
func NewExport(res *Result) Export {
	pts := res.Points
	if pts == nil {
		pts = []point.Point{}
	}
	return Export{
		Points:  pts,
		Summary: res.Summary,
		Tags:    res.Tags,
		Stats:   res.Stats,
	}
}

// WriteExport serializes a run result to outPath as indented JSON.
func WriteExport(res *Result, outPath string) error {
	data, err := json.MarshalIndent(NewExport(res), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// ReadExport parses a previously written export file.
func ReadExport(path string) (*Export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	var exp Export
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}
	return &exp, nil
}
