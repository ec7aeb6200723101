// Package tokencount estimates prompt token counts for the pre-flight
// cost gate, using the same BPE vocabularies the models bill with.
package tokencount

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// fallbackCharsPerToken approximates token counts when encoding fails.
const fallbackCharsPerToken = 4

// Counter counts tokens with a tiktoken codec.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a counter for the given model, falling back to the
// cl100k vocabulary for models the tokenizer does not know.
func NewCounter(model string) (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in text. On encoding failure it
// falls back to a character-based approximation rather than erroring,
// since the result only feeds a cost estimate.
func (c *Counter) Count(text string) int {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return len(text) / fallbackCharsPerToken
	}
	return len(ids)
}
