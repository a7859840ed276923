package sync

import (
	"time"

	"erp-sync-service/internal/events"
	"erp-sync-service/internal/fingerprint"
)

// DefaultHistoryLimit caps history pages when no limit is configured.
const DefaultHistoryLimit = 50

// Engine reconciles candidate records against a tenant store. It holds no
// per-invocation state; every call receives the store it runs against.
type Engine struct {
	hasher       *fingerprint.Hasher
	publisher    events.Publisher
	historyLimit int
	now          func() time.Time
}

type Option func(*Engine)

func WithHasher(h *fingerprint.Hasher) Option {
	return func(e *Engine) { e.hasher = h }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithHistoryLimit sets the largest page History will return.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		hasher:       fingerprint.New(),
		publisher:    events.NopPublisher{},
		historyLimit: DefaultHistoryLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) fingerprint(c Candidate) string {
	return e.hasher.Fingerprint(map[string]any(c))
}
