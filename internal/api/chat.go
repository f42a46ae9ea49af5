package api

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"time"

	"github.com/baronchat/baron/internal/chat"
	"github.com/baronchat/baron/internal/log"
	"github.com/baronchat/baron/internal/stream"
)

// Engine runs complete chat turns. Implemented by *chat.Engine.
type Engine interface {
	Send(ctx context.Context, m chat.Model, key, message string) iter.Seq2[chat.Event, error]
	Regenerate(ctx context.Context, m chat.Model, key string) iter.Seq2[chat.Event, error]
}

// ModelSource provides the current model client and replaces it after a
// transport failure. Swaps are atomic; turns in flight keep the client
// they started with.
type ModelSource interface {
	Model() chat.Model
	Rebuild(ctx context.Context, stale chat.Model) (chat.Model, error)
}

// Messages are the canned user-facing texts of the chat endpoints.
type Messages struct {
	NonPaying    string
	LongRequest  string
	GenericError string
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type regenerateRequest struct {
	SessionID string `json:"session_id"`
}

type chatHandler struct {
	engine     Engine
	models     ModelSource
	messages   Messages
	tokenLimit int
	maxRetries int
	retryDelay time.Duration
	logger     log.Logger
}

// send handles POST /chat: validate, enforce paying user, then stream
// the turn as plain text.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body", h.logger)
		return
	}

	token, err := ssoTokenFromRequest(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_token", "invalid sso_token format", h.logger)
		return
	}
	if !token.paying() {
		h.writePlain(w, h.messages.NonPaying)
		return
	}
	if req.Message == "" {
		WriteError(w, http.StatusBadRequest, "empty_message", "message cannot be empty", h.logger)
		return
	}
	if req.SessionID == "" {
		WriteError(w, http.StatusBadRequest, "missing_session", "session_id is required", h.logger)
		return
	}

	// Refuse oversized messages before spending a quota credit.
	n, err := h.models.Model().CountTokens(r.Context(), nil, req.Message)
	if err != nil {
		h.logger.Warn("token limit pre-check failed", "error", err)
	} else if n > h.tokenLimit {
		h.writePlain(w, h.messages.LongRequest)
		return
	}

	key := token.UserID + "_" + req.SessionID
	h.streamTurn(w, r, func(ctx context.Context, m chat.Model) iter.Seq2[chat.Event, error] {
		return h.engine.Send(ctx, m, key, req.Message)
	})
}

// regenerate handles POST /regenerate: replays the last user message.
func (h *chatHandler) regenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body", h.logger)
		return
	}

	token, err := ssoTokenFromRequest(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_token", "invalid sso_token format", h.logger)
		return
	}
	if !token.paying() {
		h.writePlain(w, h.messages.NonPaying)
		return
	}
	if req.SessionID == "" {
		WriteError(w, http.StatusBadRequest, "missing_session", "session_id is required", h.logger)
		return
	}

	key := token.UserID + "_" + req.SessionID
	h.streamTurn(w, r, func(ctx context.Context, m chat.Model) iter.Seq2[chat.Event, error] {
		return h.engine.Regenerate(ctx, m, key)
	})
}

func (h *chatHandler) writePlain(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(text)); err != nil {
		h.logger.Debug("client gone", "error", err)
	}
}

// streamTurn runs one turn and serializes its events onto the response
// as a plain text stream. On a transport failure before the first byte
// was written it rebuilds the model client and retries the whole turn,
// up to the retry ceiling; once bytes are out, a failure just ends the
// stream.
func (h *chatHandler) streamTurn(w http.ResponseWriter, r *http.Request,
	turn func(context.Context, chat.Model) iter.Seq2[chat.Event, error]) {

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	ctx := r.Context()
	flusher, _ := w.(http.Flusher)
	wrote := false
	write := func(s string) bool {
		if s == "" {
			return true
		}
		if _, err := w.Write([]byte(s)); err != nil {
			h.logger.Debug("client disconnected mid-stream", "error", err)
			return false
		}
		wrote = true
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	for attempt := 0; ; attempt++ {
		m := h.models.Model()
		err := h.runTurn(ctx, m, turn, write)
		if err == nil {
			return
		}

		h.logger.Error("chat turn failed", "error", err, "attempt", attempt)
		if wrote || attempt >= h.maxRetries || ctx.Err() != nil {
			return
		}
		if _, rerr := h.models.Rebuild(ctx, m); rerr != nil {
			h.logger.Error("model client rebuild failed", "error", rerr)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(h.retryDelay):
		}
	}
}

// runTurn serializes one turn's events. Reply text goes out verbatim;
// info and log payloads are wrapped in their delimiters here and
// nowhere else.
func (h *chatHandler) runTurn(ctx context.Context, m chat.Model,
	turn func(context.Context, chat.Model) iter.Seq2[chat.Event, error],
	write func(string) bool) error {

	for ev, err := range turn(ctx, m) {
		if err != nil {
			return err
		}
		switch ev.Kind {
		case chat.EventReply:
			if !write(ev.Text) {
				return nil
			}
		case chat.EventInfo:
			payload, err := json.Marshal(ev.Info)
			if err != nil {
				h.logger.Error("marshaling info sidecar", "error", err)
				continue
			}
			if !write(stream.InfoOpen + string(payload) + stream.InfoClose) {
				return nil
			}
		case chat.EventLog:
			payload, err := json.Marshal(ev.Log)
			if err != nil {
				h.logger.Error("marshaling log sidecar", "error", err)
				continue
			}
			if !write(stream.LogsOpen + string(payload) + stream.LogsClose) {
				return nil
			}
		case chat.EventAbort:
			h.logger.Warn("chat turn aborted", "reason", ev.Reason)
			write(h.messages.GenericError)
			return nil
		}
	}
	return nil
}
