// Package conv defines the conversation data model shared by the LLM
// adapter, the history store and the chat engine.
//
// A conversation is an ordered list of Turns. Each Turn carries one or
// more Parts; a Part is a tagged union of plain text, a model-issued
// function call, or a function result produced by a tool. Turns are
// immutable once persisted.
package conv

// Roles for conversation turns. The wire protocol of the model API only
// knows "user" and "model"; tool results are carried inside model turns.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResult is the answer a tool produced for a FunctionCall.
type FunctionResult struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Part is a tagged union: exactly one of Text, Call or Result is set.
// A turn is either a plain-text turn, a function-call turn or a
// function-result turn; the three kinds are never mixed ambiguously
// inside one part list.
type Part struct {
	Text   string          `json:"text,omitempty"`
	Call   *FunctionCall   `json:"function_call,omitempty"`
	Result *FunctionResult `json:"function_response,omitempty"`
}

// TextPart returns a plain-text Part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ResultPart returns a function-result Part.
func ResultPart(name string, response map[string]any) Part {
	return Part{Result: &FunctionResult{Name: name, Response: response}}
}

// Turn is one role-tagged message unit of a conversation.
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// UserTurn builds a plain-text user turn.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Parts: []Part{TextPart(text)}}
}

// ModelTurn builds a plain-text model turn.
func ModelTurn(text string) Turn {
	return Turn{Role: RoleModel, Parts: []Part{TextPart(text)}}
}

// FirstText returns the text of the first text part of the turn, or "".
func (t Turn) FirstText() string {
	for _, p := range t.Parts {
		if p.Text != "" {
			return p.Text
		}
	}
	return ""
}

// ChunkKind discriminates the Chunk union.
type ChunkKind int

const (
	// ChunkText carries partial response text.
	ChunkText ChunkKind = iota
	// ChunkCall carries a model-issued function call.
	ChunkCall
	// ChunkFinish signals the end of a candidate with its finish reason.
	ChunkFinish
)

// Chunk is one streamed event from the model, already normalized at the
// SDK boundary. Consumers switch on Kind and never inspect SDK types.
type Chunk struct {
	Kind   ChunkKind
	Text   string        // set when Kind == ChunkText
	Call   *FunctionCall // set when Kind == ChunkCall
	Reason string        // set when Kind == ChunkFinish
}
