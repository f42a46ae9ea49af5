package chat

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"

	"github.com/baronchat/baron/internal/conv"
	"github.com/baronchat/baron/internal/search"
)

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu      sync.Mutex
	history map[string][]conv.Turn
	usage   map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		history: map[string][]conv.Turn{},
		usage:   map[string]int{},
	}
}

func (s *fakeStore) Load(_ context.Context, key string) ([]conv.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conv.Turn(nil), s.history[key]...), nil
}

func (s *fakeStore) Append(_ context.Context, key string, turns ...conv.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[key] = append(s.history[key], turns...)
	return nil
}

func (s *fakeStore) PopLastExchange(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.history[key]
	i := len(turns) - 1
	for i >= 0 && turns[i].Role == conv.RoleModel {
		i--
	}
	if i < 0 {
		return "", errors.New("no history")
	}
	msg := turns[i].FirstText()
	s.history[key] = turns[:i]
	return msg, nil
}

func (s *fakeStore) Usage(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[key], nil
}

func (s *fakeStore) IncrementUsage(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[key]++
	return s.usage[key], nil
}

// fakeSession replays scripted chunk phases, one per Stream call.
type fakeSession struct {
	phases   [][]conv.Chunk
	errs     []error // optional per-phase trailing error
	streamed int
	received [][]conv.Part
}

func (s *fakeSession) Stream(_ context.Context, parts ...conv.Part) iter.Seq2[conv.Chunk, error] {
	idx := s.streamed
	s.streamed++
	s.received = append(s.received, parts)
	return func(yield func(conv.Chunk, error) bool) {
		if idx < len(s.phases) {
			for _, c := range s.phases[idx] {
				if !yield(c, nil) {
					return
				}
			}
		}
		if idx < len(s.errs) && s.errs[idx] != nil {
			yield(conv.Chunk{}, s.errs[idx])
			return
		}
		yield(conv.Chunk{Kind: conv.ChunkFinish, Reason: "STOP"}, nil)
	}
}

// fakeModel hands out one scripted session per Open call.
type fakeModel struct {
	sessions []*fakeSession
	opened   int
	openErr  error
}

func (m *fakeModel) Open(_ context.Context, _ []conv.Turn) (Session, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	s := m.sessions[m.opened]
	m.opened++
	return s, nil
}

func (m *fakeModel) CountTokens(_ context.Context, history []conv.Turn, texts ...string) (int, error) {
	n := len(history)
	for _, t := range texts {
		n += len(t)
	}
	return n, nil
}

func (m *fakeModel) TranslateQuery(_ context.Context, query string) string {
	return query
}

func (m *fakeModel) ModelName() string { return "test-model" }

// fakeRetriever records calls and returns a scripted result.
type fakeRetriever struct {
	articles []search.Article
	err      error
	queries  []string
	excludes [][]string
	filters  []search.Filters
}

func (r *fakeRetriever) Search(_ context.Context, query string, f search.Filters, exclude []string) ([]search.Article, error) {
	r.queries = append(r.queries, query)
	r.filters = append(r.filters, f)
	r.excludes = append(r.excludes, exclude)
	if r.err != nil {
		return nil, r.err
	}
	return r.articles, nil
}

func textChunk(s string) conv.Chunk {
	return conv.Chunk{Kind: conv.ChunkText, Text: s}
}

func callChunk(name string, args map[string]any) conv.Chunk {
	return conv.Chunk{Kind: conv.ChunkCall, Call: &conv.FunctionCall{Name: name, Args: args}}
}

// collect drains a turn into its events, stopping at the first error.
func collect(seq iter.Seq2[Event, error]) ([]Event, error) {
	var events []Event
	for ev, err := range seq {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// replyText concatenates all reply event text.
func replyText(events []Event) string {
	out := ""
	for _, ev := range events {
		if ev.Kind == EventReply {
			out += ev.Text
		}
	}
	return out
}

func eventsOfKind(events []Event, kind EventKind) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		Quota: QuotaConfig{
			Cap:             10,
			WarnTemplate:    "שימו לב: %s\n",
			WarnLastMessage: "זו ההודעה האחרונה שלך",
			BlockedMessage:  "נגמרה המכסה",
		},
		FieldsForLLM:      []string{"article_id", "title", "review", "stars"},
		FieldsForFrontend: []string{"article_id", "title", "stars"},
		NoResultMessage:   "לא נמצאו תוצאות",
	}
}

func newTestEngine(t *testing.T, store Store, retriever Retriever, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(store, retriever, cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	return e
}
