// Package notify implements the message-arrival side effects: a terminal bell and a Redis
// fan-out for other local consumers.
package notify

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/actual-software/chat-bridge/internal/realtime"
	"github.com/actual-software/chat-bridge/pkg/wire"
)

const bell = "\a"

// Bell rings the terminal bell for every message.
type Bell struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBell creates a Bell writing to w.
func NewBell(w io.Writer) *Bell {
	return &Bell{w: w}
}

// Alert writes the bell character.
func (b *Bell) Alert(_ context.Context, _ *wire.InboundMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := io.WriteString(b.w, bell)

	return err
}

// Multi runs every alerter and joins their errors.
type Multi []realtime.Alerter

// Alert calls each alerter in order.
func (m Multi) Alert(ctx context.Context, msg *wire.InboundMessage) error {
	var errs []error

	for _, a := range m {
		if err := a.Alert(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
