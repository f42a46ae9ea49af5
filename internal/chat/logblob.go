package chat

import (
	"strings"
	"time"

	"github.com/baronchat/baron/internal/conv"
	"github.com/baronchat/baron/internal/llm"
)

// LogBlob is the structured record emitted inside <logs> delimiters as
// the final fragment of every completed turn.
type LogBlob struct {
	AdditionalInfo AdditionalInfo `json:"additional_info"`
}

// AdditionalInfo carries the turn's full metadata.
type AdditionalInfo struct {
	Version           string           `json:"version"`
	ConversationKey   string           `json:"conversation_key"`
	Model             string           `json:"model"`
	InputTokens       int              `json:"input_tokens"`
	OutputTokens      int              `json:"output_tokens"`
	RetrievalSeconds  float64          `json:"rag_speed"`
	LLMSeconds        float64          `json:"llm_speed"`
	FunctionCallsArgs []map[string]any `json:"function_calls_args"`
	TrollTriggered    bool             `json:"troll_triggered"`
	TotalSeconds      float64          `json:"total_time"`
	Regenerate        bool             `json:"regenerate"`
	RemainingMessages int              `json:"remaining_user_messages"`
	Timestamp         float64          `json:"timestamp"`
	ArticleIDs        []string         `json:"article_ids"`
	ThinkingProcess   bool             `json:"thinking_process"`
}

// timings accumulates the phase durations of one turn.
type timings struct {
	initial   time.Duration
	retrieval time.Duration
	followup  time.Duration
	total     time.Duration
}

// buildLogBlob assembles the log record from the turn's collected state.
func buildLogBlob(key, model, message string, calls []conv.FunctionCall,
	articleIDs []string, tokensIn, tokensOut, remaining int,
	t timings, regenerate bool) *LogBlob {

	args := make([]map[string]any, 0, len(calls))
	troll := false
	for _, call := range calls {
		if call.Name == llm.ToolTrollResponse {
			troll = true
		}
		if len(call.Args) > 0 {
			args = append(args, call.Args)
		}
	}
	if articleIDs == nil {
		articleIDs = []string{}
	}

	return &LogBlob{AdditionalInfo: AdditionalInfo{
		Version:           "1.0",
		ConversationKey:   key,
		Model:             model,
		InputTokens:       tokensIn,
		OutputTokens:      tokensOut,
		RetrievalSeconds:  t.retrieval.Seconds(),
		LLMSeconds:        t.initial.Seconds() + t.followup.Seconds(),
		FunctionCallsArgs: args,
		TrollTriggered:    troll,
		TotalSeconds:      t.total.Seconds(),
		Regenerate:        regenerate,
		RemainingMessages: remaining,
		Timestamp:         float64(time.Now().UnixMilli()) / 1e3,
		ArticleIDs:        articleIDs,
		ThinkingProcess:   strings.Contains(message, "Thinking Process:"),
	}}
}
