// Package chunk splits oversized text into overlapping windows bounded by
// the embedding model's context size. Chunks are transient: the ingestion
// pipeline recombines them into one working payload before embedding, so
// chunking bounds model input length without multiplying stored records.
package chunk

import (
	"fmt"
	"strings"
)

// Defaults match the embedding model the original deployment ran
// (512-character context window, 100-character overlap).
const (
	DefaultWindow  = 512
	DefaultOverlap = 100
)

// Chunk is one window of source text. Index is the position in the
// splitter's output order.
type Chunk struct {
	Text  string
	Index int
}

// Splitter produces overlapping rune windows. Window and overlap are
// measured in runes so multi-byte text never splits mid-character.
type Splitter struct {
	window  int
	overlap int
}

// NewSplitter validates the window geometry. Overlap must be smaller than
// the window or the cursor would never advance.
func NewSplitter(window, overlap int) (*Splitter, error) {
	if window <= 0 {
		return nil, fmt.Errorf("chunk: window must be positive, got %d", window)
	}
	if overlap < 0 || overlap >= window {
		return nil, fmt.Errorf("chunk: overlap must be in [0, window), got overlap=%d window=%d", overlap, window)
	}
	return &Splitter{window: window, overlap: overlap}, nil
}

// Window returns the configured window size in runes.
func (s *Splitter) Window() int { return s.window }

// Overlap returns the configured overlap in runes.
func (s *Splitter) Overlap() int { return s.overlap }

// Split cuts text into windows of at most Window runes, consecutive
// windows sharing exactly Overlap runes. Text at or under the window size
// comes back as a single chunk.
func (s *Splitter) Split(text string) []Chunk {
	runes := []rune(text)
	if len(runes) <= s.window {
		return []Chunk{{Text: text, Index: 0}}
	}

	step := s.window - s.overlap
	var chunks []Chunk
	for start := 0; ; start += step {
		end := start + s.window
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{Text: string(runes[start:end]), Index: len(chunks)})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Recombine joins chunk texts in output order with a blank-line
// separator, producing the single payload the pipeline embeds.
func Recombine(chunks []Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n")
}
