package chat

import (
	"context"
	"fmt"
)

// UsageCounter is the slice of the history store the quota check needs.
type UsageCounter interface {
	Usage(ctx context.Context, key string) (int, error)
	IncrementUsage(ctx context.Context, key string) (int, error)
}

// QuotaConfig holds the message cap and the canned quota texts.
type QuotaConfig struct {
	// Cap is the number of messages a conversation may consume.
	Cap int

	// WarnTemplate wraps the low-water warnings, e.g. "שימו לב: %s\n".
	WarnTemplate string

	// WarnLastMessage is returned verbatim when this turn consumes the
	// final credit.
	WarnLastMessage string

	// BlockedMessage is returned when the cap is already exhausted.
	BlockedMessage string
}

// Quota enforces the per-conversation message budget.
type Quota struct {
	counter UsageCounter
	cfg     QuotaConfig
}

// NewQuota creates a Quota.
func NewQuota(counter UsageCounter, cfg QuotaConfig) *Quota {
	return &Quota{counter: counter, cfg: cfg}
}

// Consume charges one credit for this turn.
//
// When the budget is already exhausted it reports blocked=true with the
// blocked message and does not increment the counter. Otherwise it
// increments and returns the credits left after this turn plus an
// optional warning. The warning is prepended to the user's message so
// the model can acknowledge the limit conversationally.
func (q *Quota) Consume(ctx context.Context, key string) (remaining int, warning string, blocked bool, err error) {
	used, err := q.counter.Usage(ctx, key)
	if err != nil {
		return 0, "", false, fmt.Errorf("reading usage: %w", err)
	}

	if q.cfg.Cap-used <= 0 {
		return -1, q.cfg.BlockedMessage, true, nil
	}

	if _, err := q.counter.IncrementUsage(ctx, key); err != nil {
		return 0, "", false, fmt.Errorf("incrementing usage: %w", err)
	}
	remaining = q.cfg.Cap - used - 1

	switch {
	case remaining == 0:
		warning = q.cfg.WarnLastMessage
	case remaining == 1:
		warning = fmt.Sprintf(q.cfg.WarnTemplate, "You can send one final message.")
	case remaining == 2:
		warning = fmt.Sprintf(q.cfg.WarnTemplate, fmt.Sprintf("You can send %d more messages.", remaining))
	}
	return remaining, warning, false, nil
}
