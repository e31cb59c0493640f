package bncs

import (
	"context"
	"log/slog"

	"github.com/udisondev/bnetgo/internal/protocol"
)

// HandlerFunc processes one inbound frame for a client.
type HandlerFunc func(ctx context.Context, c *Client, payload []byte) error

// Dispatcher routes frames by message type. The table is built once at
// startup; frames with no registered handler are dropped silently so
// unknown or legacy message types never break a connection.
type Dispatcher struct {
	log      *slog.Logger
	handlers map[byte]HandlerFunc
}

// NewDispatcher creates an empty dispatch table.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		log:      log,
		handlers: make(map[byte]HandlerFunc),
	}
}

// Register binds a handler to a message type.
func (d *Dispatcher) Register(msgType byte, h HandlerFunc) {
	d.handlers[msgType] = h
}

// Dispatch runs the handler for the frame's type, if any.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, frame protocol.Frame) error {
	h, ok := d.handlers[frame.Type]
	if !ok {
		d.log.Debug("dropping unhandled message", "type", frame.Type, "remote", c.IP())
		return nil
	}
	return h(ctx, c, frame.Payload)
}
