package kvdb

import (
	"time"

	"go.uber.org/zap"
)

// EventKind classifies client events.
type EventKind int

const (
	// EventReady is emitted once when a client is constructed.
	EventReady EventKind = iota
	// EventDebug is emitted at the start of each public operation and when a
	// stored value falls back to its raw string.
	EventDebug
	// EventRateLimited is emitted before sleeping on a rate limited call.
	EventRateLimited
	// EventError is emitted when a public operation fails.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventDebug:
		return "debug"
	case EventRateLimited:
		return "rate_limited"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event describes something that happened inside a Client.
type Event struct {
	Kind    EventKind
	Op      string
	Key     string
	OpID    string
	BaseURL string
	// Remaining is the retry budget left after a rate limited attempt.
	Remaining int
	// Delay is the sleep scheduled after a rate limited attempt.
	Delay   time.Duration
	Err     error
	Message string
}

// Observer receives client events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) Observe(Event) {}

// MultiObserver fans events out to every member.
type MultiObserver []Observer

func (m MultiObserver) Observe(e Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(e)
		}
	}
}

type zapObserver struct {
	logger *zap.Logger
}

// NewZapObserver logs events: ready at info, debug at debug, rate limits at
// warn and failures at error.
func NewZapObserver(logger *zap.Logger) Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return zapObserver{logger: logger.Named("kvdb")}
}

func (z zapObserver) Observe(e Event) {
	fields := make([]zap.Field, 0, 6)
	if e.Op != "" {
		fields = append(fields, zap.String("op", e.Op))
	}
	if e.Key != "" {
		fields = append(fields, zap.String("key", e.Key))
	}
	if e.OpID != "" {
		fields = append(fields, zap.String("op_id", e.OpID))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}

	switch e.Kind {
	case EventReady:
		z.logger.Info("client ready", append(fields, zap.String("base_url", e.BaseURL))...)
	case EventDebug:
		msg := e.Message
		if msg == "" {
			msg = "operation"
		}
		z.logger.Debug(msg, fields...)
	case EventRateLimited:
		z.logger.Warn("rate limited, retrying",
			append(fields, zap.Int("remaining", e.Remaining), zap.Duration("delay", e.Delay))...)
	case EventError:
		z.logger.Error("operation failed", fields...)
	}
}
