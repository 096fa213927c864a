package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Notifier receives best-effort progress notes around a completion call.
// Implementations must not block; the gateway invokes it inline.
type Notifier func(note string)

// Gateway is the workflow-facing wrapper around a Client. One invocation
// means one external call: no retries. Failures are folded into the returned
// text so the workflow engine can carry them into its step log and still
// reach a terminal state.
type Gateway struct {
	client Client
	notify Notifier
	logger *zap.Logger
}

// NewGateway wraps a client. notify and logger may be nil.
func NewGateway(client Client, notify Notifier, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{client: client, notify: notify, logger: logger}
}

// Complete performs one completion call. The returned string is either the
// model reply or an error description; callers can always use it as text.
func (g *Gateway) Complete(ctx context.Context, req CompletionRequest) string {
	g.emit(fmt.Sprintf("Calling completion service (max tokens: %d)", effectiveMaxTokens(req)))

	reply, err := g.client.Complete(ctx, req)
	if err != nil {
		g.logger.Warn("completion call failed", zap.Error(err))
		g.emit(fmt.Sprintf("Completion call failed: %v", err))
		return fmt.Sprintf("Error calling completion service: %v", err)
	}

	g.emit(fmt.Sprintf("Completion received (%d characters)", len(reply)))
	return reply
}

func (g *Gateway) emit(note string) {
	if g.notify == nil {
		return
	}
	// Notifications are observability only; a panicking observer must not
	// take down the primary call.
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("progress notifier panicked", zap.Any("panic", r))
		}
	}()
	g.notify(note)
}

func effectiveMaxTokens(req CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return DefaultMaxTokens
}
