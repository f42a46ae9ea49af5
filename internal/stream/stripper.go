package stream

import (
	"regexp"
	"strings"
)

// Closing-question control tags. The model emits them to signal "do not
// append a follow-up question"; they must never reach the caller.
const (
	closingOpen  = "<closing_question>"
	closingClose = "</closing_question>"
)

// boldPairRe matches a complete bold markup pair. A complete pair in
// the combined buffer means no markup tag can be straddling the chunk
// boundary, so the buffer is safe to flush at once.
var boldPairRe = regexp.MustCompile(`<strong>.*?</strong>`)

// TagStripper removes closing-question tags from a streamed phase while
// guaranteeing a tag split across a chunk boundary is still caught.
//
// It keeps exactly one chunk of lookback: each incoming chunk is joined
// with the pending buffer; if the joined text contains a complete
// closing-question tag (or a complete bold pair), it is stripped and
// flushed immediately. Otherwise the previous buffer is flushed and the
// current chunk becomes the new pending buffer. Flush must be called at
// stream end to release the final buffer.
//
// The zero value is ready to use. Not safe for concurrent use.
type TagStripper struct {
	pending string
}

// Feed processes one chunk and returns the text that may be emitted now.
// The returned string may be empty while the stripper buffers.
func (s *TagStripper) Feed(chunk string) string {
	combined := s.pending + chunk

	hasTag := strings.Contains(combined, closingOpen) || strings.Contains(combined, closingClose)
	hasBoldPair := boldPairRe.MatchString(combined)

	if hasTag || hasBoldPair {
		s.pending = ""
		return stripClosingTags(combined)
	}

	out := s.pending
	s.pending = chunk
	return out
}

// Flush returns whatever is still buffered, unconditionally.
func (s *TagStripper) Flush() string {
	out := s.pending
	s.pending = ""
	return out
}

func stripClosingTags(text string) string {
	text = strings.ReplaceAll(text, closingOpen, "")
	return strings.ReplaceAll(text, closingClose, "")
}
