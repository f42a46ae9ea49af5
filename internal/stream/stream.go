// Package stream implements the stateful text transforms applied to
// every model chunk before it reaches the caller.
//
// Transform order per phase: reserved-tag guard (short-circuits) →
// whitespace normalization → bold conversion → closing-tag stripping
// (the stripper wraps the whole phase, see TagStripper).
//
// All transforms are pure CPU, carry explicit state and are safe to
// unit test per chunk; none of them holds hidden closure state.
package stream

import "strings"

// Reserved control delimiters. They multiplex sidecar payloads onto the
// user-visible text channel, so the model is never allowed to emit them
// itself: a match in model output is a protocol violation and aborts
// the turn.
const (
	InfoOpen  = "<info>"
	InfoClose = "</info>"
	LogsOpen  = "<logs>"
	LogsClose = "</logs>"
)

// Bold markup inserted in place of markdown '**' markers.
const (
	BoldOpen  = "<strong>"
	BoldClose = "</strong>"
)

// HasReservedTags reports whether text contains any reserved control
// delimiter. Checked before any other transform.
func HasReservedTags(text string) bool {
	for _, tag := range [...]string{InfoOpen, InfoClose, LogsOpen, LogsClose} {
		if strings.Contains(text, tag) {
			return true
		}
	}
	return false
}

// exoticSpace reports whether r is one of the non-breaking or exotic
// Unicode space characters the model tends to emit.
func exoticSpace(r rune) bool {
	switch r {
	case ' ', // no-break space
		' ', // en space
		' ', // em space
		' ', // figure space
		' ', // thin space
		' ', // hair space
		' ', // narrow no-break space
		'　': // ideographic space
		return true
	}
	return false
}

// NormalizeSpaces maps exotic Unicode space characters to ordinary
// spaces and collapses horizontal runs (spaces and tabs) to one space.
// Newlines are preserved so markdown structure survives.
func NormalizeSpaces(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inRun := false
	for _, r := range text {
		if r == ' ' || r == '\t' || exoticSpace(r) {
			if !inRun {
				b.WriteByte(' ')
				inRun = true
			}
			continue
		}
		inRun = false
		b.WriteRune(r)
	}
	return b.String()
}

// BoldConverter replaces markdown '**' markers with open/close bold
// markup across the chunks of one streamed phase. Every '**' occurrence
// toggles the open state; an odd number of markers across the whole
// stream simply leaves it set, which is not an error.
//
// A marker may itself be split across a chunk boundary, one '*' per
// chunk, so a lone trailing '*' is withheld until the next chunk either
// completes the marker or proves it literal. Flush releases a withheld
// '*' at end of stream.
type BoldConverter struct {
	open    bool
	pending bool
}

// Convert rewrites the markers in text, carrying state to the next call.
func (c *BoldConverter) Convert(text string) string {
	if c.pending {
		text = "*" + text
		c.pending = false
	}
	if trailingStars(text)%2 == 1 {
		text = text[:len(text)-1]
		c.pending = true
	}
	if !strings.Contains(text, "**") {
		return text
	}

	parts := strings.Split(text, "**")
	var b strings.Builder
	b.Grow(len(text))
	for i, seg := range parts {
		b.WriteString(seg)
		if i < len(parts)-1 {
			if c.open {
				b.WriteString(BoldClose)
			} else {
				b.WriteString(BoldOpen)
			}
			c.open = !c.open
		}
	}
	return b.String()
}

// Flush returns the withheld trailing '*', if any.
func (c *BoldConverter) Flush() string {
	if !c.pending {
		return ""
	}
	c.pending = false
	return "*"
}

func trailingStars(s string) int {
	n := 0
	for n < len(s) && s[len(s)-1-n] == '*' {
		n++
	}
	return n
}
