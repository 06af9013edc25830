package command

import (
	"context"

	"go.uber.org/zap"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// Handler executes one command's payload against the session issuing it
// and returns a response payload. Framing/decoding of the payload bytes is
// owned by the transport layer; handlers here operate on already-decoded
// request structs via a type switch the caller performs, so Handler is
// deliberately untyped at this layer — internal/system registers concrete
// closures per code.
type Handler func(ctx context.Context, session Session, payload any) (any, error)

// Session is the minimal session context a handler needs: identity for
// permission checks and logging. internal/system implements this.
type Session struct {
	ID     uint32
	UserID uint32
}

// Dispatcher is a code->handler table, mirroring vaultaire's route-table
// registration style (a flat map of route to handler function) rather than
// chi's path router, since commands arrive as a code plus payload, not an
// HTTP path.
type Dispatcher struct {
	handlers map[Code]Handler
	logger   *zap.Logger
}

// NewDispatcher builds an empty dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{handlers: make(map[Code]Handler), logger: logger}
}

// Register binds a handler to a code, overwriting any previous registration.
func (d *Dispatcher) Register(code Code, h Handler) {
	d.handlers[code] = h
}

// Dispatch looks up and invokes the handler for code, returning an
// InvalidInput error if none is registered.
func (d *Dispatcher) Dispatch(ctx context.Context, session Session, code Code, payload any) (any, error) {
	const op = "command.Dispatcher.Dispatch"
	h, ok := d.handlers[code]
	if !ok {
		return nil, flowerr.Newf(flowerr.KindInvalidInput, op, "unregistered command code %d (%s)", code, code.String())
	}
	resp, err := h(ctx, session, payload)
	if err != nil {
		d.logger.Debug("command failed",
			zap.Uint32("code", uint32(code)),
			zap.String("name", code.String()),
			zap.Uint32("session_id", session.ID),
			zap.Error(err))
	}
	return resp, err
}
