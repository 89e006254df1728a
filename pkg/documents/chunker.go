package documents

import (
	"errors"
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const chunkEncoding = "cl100k_base"

// Chunker splits text into overlapping token windows.
type Chunker struct {
	size    int
	overlap int
	enc     *tiktoken.Tiktoken
}

// NewChunker builds a chunker with the given window size and overlap,
// both measured in tokens.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", overlap, size)
	}
	enc, err := tiktoken.GetEncoding(chunkEncoding)
	if err != nil {
		return nil, fmt.Errorf("loading %s encoding: %w", chunkEncoding, err)
	}
	return &Chunker{size: size, overlap: overlap, enc: enc}, nil
}

// Split breaks text into chunks of at most the configured token count,
// with consecutive chunks sharing the configured overlap.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= c.size {
		return []string{text}
	}
	step := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(tokens); start += step {
		end := start + c.size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, c.enc.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

// TokenCount returns the number of tokens in text.
func (c *Chunker) TokenCount(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
