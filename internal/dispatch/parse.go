package dispatch

import (
	"strings"
)

// Segment delimiters emitted by the backend.
const (
	ThinkingTag = "[Thinking]"
	VerdictTag  = "[Verdict]"
)

// ParseSegments splits raw output into the private thought and the spoken
// verdict. Without a verdict tag the whole text is the verdict and there is
// no thought.
func ParseSegments(raw string) (thought *string, verdict string) {
	v := strings.Index(raw, VerdictTag)
	if v < 0 {
		clean := strings.ReplaceAll(raw, ThinkingTag, "")
		clean = strings.ReplaceAll(clean, VerdictTag, "")
		return nil, strings.TrimSpace(clean)
	}

	verdict = strings.TrimSpace(raw[v+len(VerdictTag):])
	if t := strings.Index(raw, ThinkingTag); t >= 0 && t+len(ThinkingTag) <= v {
		th := strings.TrimSpace(raw[t+len(ThinkingTag) : v])
		thought = &th
	}
	return thought, verdict
}
