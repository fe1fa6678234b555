package chunker

import (
	"fmt"
	"strings"

	"github.com/billbuster/billpoints/internal/point"
)

// Chunk is a bounded, offset-addressed slice of a document's normalized
// text. Offsets are rune-based. Produced once per document, immutable.
type Chunk struct {
	Index       int
	Text        string
	StartOffset int
	EndOffset   int
}

// Config controls chunking behavior.
type Config struct {
	ChunkSize int // Maximum chunk size in characters.
	Overlap   int // Characters shared between consecutive chunks.
}

// DefaultConfig returns the defaults used for legislative text.
func DefaultConfig() Config {
	return Config{
		ChunkSize: 4000,
		Overlap:   500,
	}
}

func (c Config) validate() error {
	if c.ChunkSize <= 0 {
		return &point.ConfigError{Field: "chunkSize", Reason: fmt.Sprintf("must be positive, got %d", c.ChunkSize)}
	}
	if c.Overlap <= 0 {
		return &point.ConfigError{Field: "overlap", Reason: fmt.Sprintf("must be positive, got %d", c.Overlap)}
	}
	if c.Overlap >= c.ChunkSize {
		return &point.ConfigError{Field: "overlap", Reason: fmt.Sprintf("must be smaller than chunkSize (%d >= %d)", c.Overlap, c.ChunkSize)}
	}
	return nil
}

// Split cuts text into overlapping windows. Chunk i starts at
// i*(chunkSize-overlap) and ends at min(start+chunkSize, len); iteration
// stops once a chunk's end reaches the end of the text. The union of
// chunks covers the whole text, indices are contiguous from 0, and
// consecutive chunks share exactly Overlap characters except possibly the
// last pair.
//
// Boundaries are character-offset based rather than word or sentence
// aware: the extraction overlap absorbs facts cut mid-sentence, and the
// offsets stay deterministic for retry.
func Split(text string, cfg Config) ([]Chunk, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, &point.EmptyDocumentError{}
	}

	runes := []rune(text)
	total := len(runes)
	step := cfg.ChunkSize - cfg.Overlap

	var chunks []Chunk
	for i := 0; ; i++ {
		start := i * step
		if start >= total {
			break
		}
		end := start + cfg.ChunkSize
		if end > total {
			end = total
		}
		chunks = append(chunks, Chunk{
			Index:       i,
			Text:        string(runes[start:end]),
			StartOffset: start,
			EndOffset:   end,
		})
		if end == total {
			break
		}
	}
	return chunks, nil
}
