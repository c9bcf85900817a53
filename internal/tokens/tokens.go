// Package tokens measures prompt sections so they fit the backend's context window.
package tokens

import (
	"log/slog"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// charsPerToken is used when no codec is available.
const charsPerToken = 4.0

// Counter counts tokens with a tiktoken codec. The zero value is not usable;
// call New.
type Counter struct {
	codec tokenizer.Codec
}

var (
	defaultOnce    sync.Once
	defaultCounter *Counter
)

// Default returns a process-wide cl100k counter.
func Default() *Counter {
	defaultOnce.Do(func() {
		defaultCounter = New(tokenizer.Cl100kBase)
	})
	return defaultCounter
}

// New returns a counter for encoding. If the codec cannot be loaded the
// counter falls back to a character estimate.
func New(encoding tokenizer.Encoding) *Counter {
	codec, err := tokenizer.Get(encoding)
	if err != nil {
		slog.Warn("Failed to load tokenizer, using estimate", "encoding", encoding, "error", err)
		return &Counter{}
	}
	return &Counter{codec: codec}
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.codec != nil {
		if ids, _, err := c.codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return estimate(text)
}

// truncate cuts text to at most max tokens.
func (c *Counter) truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	if c.codec != nil {
		ids, _, err := c.codec.Encode(text)
		if err == nil {
			if len(ids) <= max {
				return text
			}
			if out, err := c.codec.Decode(ids[:max]); err == nil {
				return out
			}
		}
	}
	runes := []rune(text)
	limit := int(float64(max) * charsPerToken)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// FitTail keeps the newest entries of lines whose combined size fits budget.
// The newest line is always kept, cut down to budget if it alone exceeds it.
// A budget <= 0 keeps everything.
func (c *Counter) FitTail(lines []string, budget int) []string {
	if budget <= 0 || len(lines) == 0 {
		return lines
	}
	last := len(lines) - 1
	if n := c.Count(lines[last]); n > budget {
		return []string{c.truncate(lines[last], budget)}
	}
	used := 0
	start := len(lines)
	for i := last; i >= 0; i-- {
		n := c.Count(lines[i])
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	return lines[start:]
}

func estimate(text string) int {
	n := int(float64(len([]rune(text)))/charsPerToken + 0.5)
	if n == 0 {
		return 1
	}
	return n
}
