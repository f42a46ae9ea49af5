// Package chat implements the turn state machine of the recommendation
// assistant: quota check, initial model stream, tool-call dispatch,
// followup stream, history persistence and the final log record.
//
// A turn's output is a lazy sequence of tagged events. The HTTP
// boundary serializes info and log events into their delimited wire
// form; inside this package they stay structured.
package chat

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/baronchat/baron/internal/conv"
	"github.com/baronchat/baron/internal/log"
	"github.com/baronchat/baron/internal/search"
	"github.com/baronchat/baron/internal/stream"
)

// Model is the slice of the LLM client a turn needs. The service
// boundary picks the current client and hands it in per turn, so a
// client swap never affects a turn already in flight.
type Model interface {
	Open(ctx context.Context, history []conv.Turn) (Session, error)
	CountTokens(ctx context.Context, history []conv.Turn, texts ...string) (int, error)
	TranslateQuery(ctx context.Context, query string) string
	ModelName() string
}

// Session is one streaming conversation with the model.
type Session interface {
	Stream(ctx context.Context, parts ...conv.Part) iter.Seq2[conv.Chunk, error]
}

// Store is the conversation state the engine reads and writes.
type Store interface {
	Load(ctx context.Context, key string) ([]conv.Turn, error)
	Append(ctx context.Context, key string, turns ...conv.Turn) error
	PopLastExchange(ctx context.Context, key string) (string, error)
	UsageCounter
}

// Retriever runs the article search behind the dataset tool.
type Retriever interface {
	Search(ctx context.Context, query string, f search.Filters, exclude []string) ([]search.Article, error)
}

// Config holds the engine's quota settings, field projections and
// canned texts.
type Config struct {
	Quota             QuotaConfig
	FieldsForLLM      []string
	FieldsForFrontend []string
	NoResultMessage   string
}

func (c *Config) validate() error {
	if c.Quota.Cap <= 0 {
		return fmt.Errorf("chat: quota cap must be positive, got %d", c.Quota.Cap)
	}
	if len(c.FieldsForLLM) == 0 || len(c.FieldsForFrontend) == 0 {
		return fmt.Errorf("chat: field projections must be non-empty")
	}
	return nil
}

// Engine drives complete turns. Safe for concurrent use across
// different conversation keys; two concurrent turns on the same key
// race on history order, which the store does not guard against.
type Engine struct {
	store     Store
	retriever Retriever
	quota     *Quota
	cfg       Config
	logger    log.Logger
}

// NewEngine creates an Engine.
func NewEngine(store Store, retriever Retriever, cfg Config, logger log.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("chat: store is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("chat: retriever is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		store:     store,
		retriever: retriever,
		quota:     NewQuota(store, cfg.Quota),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Send runs one turn for a new user message. The returned sequence
// yields events until the turn completes with a log event, aborts, or
// fails with a transport error.
func (e *Engine) Send(ctx context.Context, m Model, key, message string) iter.Seq2[Event, error] {
	return e.run(ctx, m, key, message, false)
}

// Regenerate replays the most recent user message: trailing model turns
// and the user turn that prompted them are popped from history, then
// that user text runs through the same state machine as a fresh send,
// consuming one quota credit like any other turn.
func (e *Engine) Regenerate(ctx context.Context, m Model, key string) iter.Seq2[Event, error] {
	return e.run(ctx, m, key, "", true)
}

func (e *Engine) run(ctx context.Context, m Model, key, message string, regenerate bool) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		remaining, warning, blocked, err := e.quota.Consume(ctx, key)
		if err != nil {
			yield(Event{}, err)
			return
		}
		if blocked {
			yield(reply(warning), nil)
			return
		}

		fullMsg := message
		if regenerate {
			popped, err := e.store.PopLastExchange(ctx, key)
			if err != nil {
				yield(Event{}, fmt.Errorf("popping last exchange: %w", err))
				return
			}
			fullMsg = popped
			if warning != "" {
				fullMsg = warning + "\n" + popped
			}
		} else if warning != "" {
			fullMsg = warning + "\nUser query: " + message
		}

		history, err := e.store.Load(ctx, key)
		if err != nil {
			yield(Event{}, err)
			return
		}

		session, err := m.Open(ctx, history)
		if err != nil {
			yield(Event{}, err)
			return
		}

		var (
			startTotal = time.Now()
			t          timings
			fullReply  strings.Builder
			calls      []conv.FunctionCall
		)
		lastMessage := remaining == 0

		startInitial := time.Now()
		if !e.streamPhase(ctx, session, []conv.Part{conv.TextPart(fullMsg)}, &fullReply, &calls, yield) {
			return
		}
		t.initial = time.Since(startInitial)

		if len(calls) == 0 && lastMessage {
			blob := &InfoBlob{Teasers: map[string]any{}, System: SystemInfo{LastMessage: true}}
			if !yield(info(blob), nil) {
				return
			}
		}

		var (
			parts      []conv.Part
			metadata   []map[string]any
			articleIDs []string
		)
		if len(calls) > 0 {
			startRetrieval := time.Now()
			registry := e.handlers()
			d := dispatch{model: m, message: fullMsg, seen: extractSeenIDs(history)}
			for _, call := range calls {
				h, ok := registry[call.Name]
				if !ok {
					e.logger.Warn("unknown tool call ignored", "name", call.Name)
					continue
				}
				handlerParts, results := h(ctx, d, call)
				parts = append(parts, handlerParts...)
				if results != nil && metadata == nil {
					metadata = make([]map[string]any, len(results))
					for i, r := range results {
						metadata[i] = r.Project(e.cfg.FieldsForFrontend)
						if id := r.ID(); id != "" {
							articleIDs = append(articleIDs, id)
						}
					}
				}
			}
			t.retrieval = time.Since(startRetrieval)

			if metadata != nil {
				blob := &InfoBlob{Teasers: metadata, System: SystemInfo{LastMessage: lastMessage}}
				if !yield(info(blob), nil) {
					return
				}
			}

			if len(parts) > 0 {
				var followCalls []conv.FunctionCall
				startFollowup := time.Now()
				if !e.streamPhase(ctx, session, parts, &fullReply, &followCalls, yield) {
					return
				}
				t.followup = time.Since(startFollowup)
			}
		}

		turns := []conv.Turn{conv.UserTurn(fullMsg)}
		if len(parts) > 0 {
			turns = append(turns, conv.Turn{Role: conv.RoleModel, Parts: parts})
		}
		turns = append(turns, conv.ModelTurn(fullReply.String()))
		if err := e.store.Append(ctx, key, turns...); err != nil {
			yield(Event{}, fmt.Errorf("persisting turn: %w", err))
			return
		}
		t.total = time.Since(startTotal)

		tokensIn, err := m.CountTokens(ctx, history, fullMsg)
		if err != nil {
			e.logger.Warn("input token count failed", "error", err)
		}
		tokensOut, err := m.CountTokens(ctx, nil, fullReply.String())
		if err != nil {
			e.logger.Warn("output token count failed", "error", err)
		}

		blob := buildLogBlob(key, m.ModelName(), fullMsg, calls, articleIDs,
			tokensIn, tokensOut, remaining, t, regenerate)
		yield(logEvent(blob), nil)
	}
}

// streamPhase drains one model stream through the transform pipeline,
// yielding reply events and collecting function calls. It returns
// false when the turn must stop: transform abort, transport error, or
// the consumer quit.
func (e *Engine) streamPhase(ctx context.Context, session Session, parts []conv.Part,
	fullReply *strings.Builder, calls *[]conv.FunctionCall, yield func(Event, error) bool) bool {

	var (
		stripper stream.TagStripper
		bold     stream.BoldConverter
	)

	emit := func(text string) bool {
		out := stripper.Feed(text)
		if out == "" {
			return true
		}
		fullReply.WriteString(out)
		return yield(reply(out), nil)
	}

	for chunk, err := range session.Stream(ctx, parts...) {
		if err != nil {
			yield(Event{}, err)
			return false
		}
		switch chunk.Kind {
		case conv.ChunkText:
			if stream.HasReservedTags(chunk.Text) {
				yield(abort("reserved tags in model output"), nil)
				return false
			}
			text := bold.Convert(stream.NormalizeSpaces(chunk.Text))
			if !emit(text) {
				return false
			}
		case conv.ChunkCall:
			*calls = append(*calls, *chunk.Call)
		case conv.ChunkFinish:
			if chunk.Reason != "" && chunk.Reason != "STOP" {
				e.logger.Warn("model finished abnormally", "reason", chunk.Reason)
			}
		}
	}

	if out := bold.Flush(); out != "" {
		if !emit(out) {
			return false
		}
	}
	if out := stripper.Flush(); out != "" {
		fullReply.WriteString(out)
		if !yield(reply(out), nil) {
			return false
		}
	}
	return true
}
