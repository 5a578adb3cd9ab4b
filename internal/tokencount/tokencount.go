// Package tokencount counts tokens against the same encoding the rest of
// the Forgetful stack budgets memories with, so the numbers the query
// composer enforces match what a downstream LLM call would actually see.
package tokencount

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// encodingName is the cl100k_base encoding used by gpt-4-class models.
const encodingName = "cl100k_base"

// Counter counts tokens in text. The zero value is not usable; build one
// with New.
type Counter struct {
	encoding *tiktoken.Tiktoken
	log      *zap.Logger
}

// New constructs a Counter, falling back to a whitespace-heuristic
// counter if the tiktoken encoding cannot be loaded.
func New(log *zap.Logger) *Counter {
	if log == nil {
		log = zap.NewNop()
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		log.Warn("could not initialize tiktoken, using whitespace fallback",
			zap.String("encoding", encodingName), zap.Error(err))
		return &Counter{log: log}
	}
	return &Counter{encoding: enc, log: log}
}

// Count returns the number of tokens in text, 0 for empty input.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.encoding != nil {
		return len(c.encoding.Encode(text, nil, nil))
	}
	return len(strings.Fields(text))
}
