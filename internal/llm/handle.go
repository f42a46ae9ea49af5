package llm

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/baronchat/baron/internal/log"
)

// Handle is a swappable reference to the current Client. When a turn
// fails at the session boundary the caller rebuilds the client and the
// swap is atomic: in-flight turns keep the client they started with,
// new turns pick up the replacement.
type Handle struct {
	ptr    atomic.Pointer[Client]
	mu     sync.Mutex
	cfg    Config
	logger log.Logger
}

// NewHandle builds the initial client and wraps it in a Handle.
func NewHandle(ctx context.Context, cfg Config, logger log.Logger) (*Handle, error) {
	c, err := New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	h := &Handle{cfg: cfg, logger: logger}
	h.ptr.Store(c)
	return h, nil
}

// Client returns the current client. The returned value stays valid
// for the duration of a turn even if the handle is rebuilt meanwhile.
func (h *Handle) Client() *Client {
	return h.ptr.Load()
}

// Rebuild replaces the current client with a freshly dialed one and
// returns it. Concurrent rebuilds are serialized; if another goroutine
// already swapped in a replacement for the same stale client, that
// replacement is reused instead of dialing again.
func (h *Handle) Rebuild(ctx context.Context, stale *Client) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur := h.ptr.Load(); cur != stale {
		return cur, nil
	}

	c, err := New(ctx, h.cfg, h.logger)
	if err != nil {
		return nil, err
	}
	h.ptr.Store(c)
	h.logger.Info("llm client rebuilt")
	return c, nil
}
