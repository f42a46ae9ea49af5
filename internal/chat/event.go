package chat

// EventKind discriminates the events a turn produces.
type EventKind int

const (
	// EventReply is user-visible reply text, streamed as produced.
	EventReply EventKind = iota

	// EventInfo is the teaser sidecar, at most one per turn.
	EventInfo

	// EventLog is the log sidecar, the final event of a completed turn.
	EventLog

	// EventAbort terminates the turn with no persistence and no log
	// sidecar. The boundary renders it as a generic error message.
	EventAbort
)

// Event is one tagged output of the turn state machine. Reply, info and
// logs stay separate events internally; only the HTTP boundary folds
// them into the delimited text stream.
type Event struct {
	Kind   EventKind
	Text   string    // EventReply
	Info   *InfoBlob // EventInfo
	Log    *LogBlob  // EventLog
	Reason string    // EventAbort
}

// InfoBlob is the teaser payload streamed to the frontend inside
// <info> delimiters.
type InfoBlob struct {
	Teasers any        `json:"teasers"`
	System  SystemInfo `json:"system"`
}

// SystemInfo flags turn-level state for the frontend.
type SystemInfo struct {
	LastMessage bool `json:"last_message"`
}

func reply(text string) Event   { return Event{Kind: EventReply, Text: text} }
func info(blob *InfoBlob) Event { return Event{Kind: EventInfo, Info: blob} }
func logEvent(b *LogBlob) Event { return Event{Kind: EventLog, Log: b} }
func abort(reason string) Event { return Event{Kind: EventAbort, Reason: reason} }
