package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/billbuster/billpoints/internal/point"
)

// RawPoint is the loosely-typed shape the model returns, validated at the
// boundary before anything downstream sees it.
type RawPoint struct {
	PointType   string   `json:"point_type"`
	Description string   `json:"description"`
	Entities    []string `json:"entities"`
	Reference   string   `json:"reference"`
	Citation    string   `json:"citation"`
	PageNumber  int      `json:"page_number"`
	Confidence  string   `json:"confidence"`
}

const (
	minDescriptionLen = 3
	maxDescriptionLen = 500
)

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`act\s+as\s+|pretend\s+|forget\s+(everything|all)|override|` +
		`new\s+instructions)`,
)

// ValidatePoints converts raw model output into typed points. Any schema
// violation (unknown enum value, missing description) fails the whole
// batch with a *point.ParseError; the chunk is then marked failed.
// Points matching the injection filter are dropped rather than rejected;
// the dropped count is returned for accounting.
func ValidatePoints(raws []RawPoint) ([]point.Point, int, error) {
	pts := make([]point.Point, 0, len(raws))
	dropped := 0

	for i, raw := range raws {
		desc := strings.TrimSpace(raw.Description)
		if len(desc) < minDescriptionLen {
			return nil, 0, &point.ParseError{Reason: fmt.Sprintf("point %d: description too short", i)}
		}
		// Truncate on a rune boundary so multi-byte text stays valid.
		if r := []rune(desc); len(r) > maxDescriptionLen {
			desc = string(r[:maxDescriptionLen])
		}

		ptype, err := point.ParseType(raw.PointType)
		if err != nil {
			return nil, 0, &point.ParseError{Reason: fmt.Sprintf("point %d: %v", i, err)}
		}
		conf, err := point.ParseConfidence(raw.Confidence)
		if err != nil {
			return nil, 0, &point.ParseError{Reason: fmt.Sprintf("point %d: %v", i, err)}
		}

		if injectionPattern.MatchString(desc) {
			dropped++
			continue
		}

		pts = append(pts, point.Point{
			Type:        ptype,
			Description: desc,
			Entities:    cleanEntities(raw.Entities),
			Reference:   strings.TrimSpace(raw.Reference),
			Citation:    strings.TrimSpace(raw.Citation),
			PageNumber:  raw.PageNumber,
			Confidence:  conf,
		})
	}
	return pts, dropped, nil
}

// cleanEntities trims entries and drops empties, preserving the model's
// output order.
func cleanEntities(entities []string) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		e = strings.TrimSpace(e)
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}
