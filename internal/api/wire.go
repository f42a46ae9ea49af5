package api

import (
	"context"

	"github.com/baronchat/baron/internal/chat"
	"github.com/baronchat/baron/internal/conv"
	"github.com/baronchat/baron/internal/llm"
)

// NewModelSource adapts an llm.Handle to the ModelSource the chat
// endpoints consume.
func NewModelSource(h *llm.Handle) ModelSource {
	return &llmSource{handle: h}
}

type llmSource struct {
	handle *llm.Handle
}

func (s *llmSource) Model() chat.Model {
	return modelAdapter{c: s.handle.Client()}
}

func (s *llmSource) Rebuild(ctx context.Context, stale chat.Model) (chat.Model, error) {
	ma, ok := stale.(modelAdapter)
	if !ok {
		return s.Model(), nil
	}
	c, err := s.handle.Rebuild(ctx, ma.c)
	if err != nil {
		return nil, err
	}
	return modelAdapter{c: c}, nil
}

// modelAdapter narrows *llm.Client to the chat.Model interface.
type modelAdapter struct {
	c *llm.Client
}

func (m modelAdapter) Open(ctx context.Context, history []conv.Turn) (chat.Session, error) {
	s, err := m.c.Open(ctx, history)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (m modelAdapter) CountTokens(ctx context.Context, history []conv.Turn, texts ...string) (int, error) {
	return m.c.CountTokens(ctx, history, texts...)
}

func (m modelAdapter) TranslateQuery(ctx context.Context, query string) string {
	return m.c.TranslateQuery(ctx, query)
}

func (m modelAdapter) ModelName() string {
	return m.c.ModelName()
}
