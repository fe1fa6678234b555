package point

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Type categorizes what a legislative point does.
type Type string

const (
	TypeFunding        Type = "funding"
	TypeChange         Type = "change"
	TypeClassification Type = "classification"
	TypeRequirement    Type = "requirement"
	TypePermission     Type = "permission"
	TypeTimeline       Type = "timeline"
	TypePenalty        Type = "penalty"
	TypeOther          Type = "other"
)

var validTypes = map[Type]bool{
	TypeFunding:        true,
	TypeChange:         true,
	TypeClassification: true,
	TypeRequirement:    true,
	TypePermission:     true,
	TypeTimeline:       true,
	TypePenalty:        true,
	TypeOther:          true,
}

// ParseType validates a raw point_type string.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !validTypes[t] {
		return "", fmt.Errorf("unknown point_type %q", s)
	}
	return t, nil
}

// Confidence is the extractor's self-reported confidence in a point.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence validates a raw confidence string.
func ParseConfidence(s string) (Confidence, error) {
	switch c := Confidence(s); c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return c, nil
	}
	return "", fmt.Errorf("unknown confidence %q", s)
}

// Point is a single structured fact extracted from a document chunk.
// Immutable once created.
type Point struct {
	Type         Type       `json:"point_type"`
	Description  string     `json:"description"`
	Entities     []string   `json:"entities"`
	Reference    string     `json:"reference"`
	Citation     string     `json:"citation,omitempty"`
	PageNumber   int        `json:"page_number,omitempty"`
	Confidence   Confidence `json:"confidence"`
	DocumentPath string     `json:"document_path"`
	DocumentName string     `json:"document_name"`
	ChunkIndex   int        `json:"chunk_index"`
}

// Key returns the dedup identity of a point: document path, chunk index and
// a hash of the normalized description. Two extraction passes over the same
// chunk yield the same key for the same fact, which makes delivery
// idempotent under retry.
func (p Point) Key() string {
	h := sha256.Sum256([]byte(NormalizeDescription(p.Description)))
	return fmt.Sprintf("%s#%d#%x", p.DocumentPath, p.ChunkIndex, h[:])
}

// NormalizeDescription lowercases and collapses whitespace so that
// insignificant formatting drift between model responses does not defeat
// dedup.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
