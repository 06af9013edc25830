package statelog

import (
	"go.uber.org/zap"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// Handler applies one record's payload to the in-memory system state owned
// by the caller. Handlers are registered by the package that issues the
// corresponding command (internal/system), keeping statelog itself free of
// any dependency on the entities it journals.
type Handler func(data []byte) error

// Dispatcher folds replayed records into live state by code.
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

// Register binds a handler for code, overwriting any previous registration.
func (d *Dispatcher) Register(code Code, h Handler) {
	d.handlers[code] = h
}

// Apply folds every record into state in order, stopping at the first
// handler error. A record whose code has no registered handler is logged
// and skipped rather than treated as fatal, since state log format is
// expected to evolve across versions.
func (d *Dispatcher) Apply(records []Record) error {
	const op = "statelog.Dispatcher.Apply"
	for _, rec := range records {
		h, ok := d.handlers[rec.Code]
		if !ok {
			d.logger.Warn("skipping state log record with unregistered code",
				zap.Uint64("index", rec.Index), zap.Uint32("code", uint32(rec.Code)))
			continue
		}
		if err := h(rec.Data); err != nil {
			return flowerr.Wrap(flowerr.KindCorruption, op, err)
		}
	}
	return nil
}
