// Package memory carries bounded context across document chunks. The state
// is derived only from points extracted so far, never from raw chunk text,
// so its size is independent of document length.
package memory

import (
	"strings"

	"github.com/billbuster/billpoints/internal/point"
)

const (
	defaultMaxPoints = 5
	maxEntities      = 24
	maxDigestLen     = 240
)

// State is the document-scoped memory carried between chunks. Values are
// copied on update; a State handed to an extraction is never mutated.
type State struct {
	// Digests holds the most recent point descriptions, oldest first.
	Digests []string
	// Entities holds entity names in first-seen order.
	Entities []string
}

// Window produces and updates memory states with a fixed retention bound.
type Window struct {
	maxPoints int
}

// New returns a window keeping the most recent maxPoints point digests.
func New(maxPoints int) *Window {
	if maxPoints <= 0 {
		maxPoints = defaultMaxPoints
	}
	return &Window{maxPoints: maxPoints}
}

// Initial returns the empty state for a new document.
func (w *Window) Initial() State {
	return State{}
}

// Update folds newly extracted points into the state. It is a pure
// function: deterministic for identical inputs, no reads outside its
// arguments. Oldest digests are evicted first once the bound is reached.
func (w *Window) Update(s State, pts []point.Point) State {
	digests := make([]string, len(s.Digests), len(s.Digests)+len(pts))
	copy(digests, s.Digests)
	entities := make([]string, len(s.Entities), len(s.Entities)+4)
	copy(entities, s.Entities)

	seen := make(map[string]bool, len(entities))
	for _, e := range entities {
		seen[e] = true
	}

	for _, p := range pts {
		digests = append(digests, digest(p))
		for _, e := range p.Entities {
			e = strings.TrimSpace(e)
			if e == "" || seen[e] {
				continue
			}
			seen[e] = true
			entities = append(entities, e)
		}
	}

	if len(digests) > w.maxPoints {
		digests = digests[len(digests)-w.maxPoints:]
	}
	if len(entities) > maxEntities {
		entities = entities[len(entities)-maxEntities:]
	}

	return State{Digests: digests, Entities: entities}
}

// Context renders the state as the condensed view embedded in the next
// chunk's prompt. Empty state renders empty.
func (w *Window) Context(s State) string {
	if len(s.Digests) == 0 && len(s.Entities) == 0 {
		return ""
	}

	var sb strings.Builder
	if len(s.Digests) > 0 {
		sb.WriteString("KEY POINTS IDENTIFIED SO FAR:\n")
		for _, d := range s.Digests {
			sb.WriteString("- ")
			sb.WriteString(d)
			sb.WriteString("\n")
		}
	}
	if len(s.Entities) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("ENTITIES MENTIONED SO FAR:\n")
		sb.WriteString(strings.Join(s.Entities, ", "))
		sb.WriteString("\n")
	}
	return sb.String()
}

func digest(p point.Point) string {
	d := strings.TrimSpace(p.Description)
	if r := []rune(d); len(r) > maxDigestLen {
		d = string(r[:maxDigestLen])
	}
	if p.Reference != "" {
		return "[" + string(p.Type) + "] " + d + " (" + p.Reference + ")"
	}
	return "[" + string(p.Type) + "] " + d
}
