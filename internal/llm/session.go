package llm

import (
	"context"
	"iter"

	"google.golang.org/genai"

	"github.com/baronchat/baron/internal/conv"
	"github.com/baronchat/baron/internal/log"
)

// Session is one streaming chat conversation. The SDK keeps the turn
// history internally, so consecutive Stream calls continue the same
// conversation. Not safe for concurrent use.
type Session struct {
	chat   *genai.Chat
	logger log.Logger
}

// Stream sends parts to the model and yields the response as a flat
// sequence of tagged chunks: text deltas and function calls in arrival
// order, then exactly one finish chunk carrying the finish reason.
// A yielded error ends the sequence.
func (s *Session) Stream(ctx context.Context, parts ...conv.Part) iter.Seq2[conv.Chunk, error] {
	return func(yield func(conv.Chunk, error) bool) {
		var finish string

		for resp, err := range s.chat.SendMessageStream(ctx, toMessageParts(parts)...) {
			if err != nil {
				yield(conv.Chunk{}, err)
				return
			}
			if len(resp.Candidates) == 0 {
				continue
			}

			cand := resp.Candidates[0]
			if cand.FinishReason != "" {
				finish = string(cand.FinishReason)
			}
			if cand.Content == nil {
				continue
			}

			for _, part := range cand.Content.Parts {
				var chunk conv.Chunk
				switch {
				case part.FunctionCall != nil:
					chunk = conv.Chunk{Kind: conv.ChunkCall, Call: &conv.FunctionCall{
						Name: part.FunctionCall.Name,
						Args: part.FunctionCall.Args,
					}}
				case part.Text != "":
					chunk = conv.Chunk{Kind: conv.ChunkText, Text: part.Text}
				default:
					continue
				}
				if !yield(chunk, nil) {
					return
				}
			}
		}

		yield(conv.Chunk{Kind: conv.ChunkFinish, Reason: finish}, nil)
	}
}
