package clientstate

import (
	"encoding/json"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clock"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
)

// Namespace describes one persisted state shape.
type Namespace[S any] struct {
	// Key is the versioned storage key.
	Key string
	// Defaults builds the zero-value state for a session opened at now.
	Defaults func(now time.Time) S
	// SessionStart extracts the session timestamp used for expiry.
	SessionStart func(S) time.Time
	// Rollover builds the state of a fresh session from an expired one.
	Rollover func(old S, now time.Time) S
	// Normalize, when set, repairs a decoded state (nil slices and the like).
	Normalize func(S) S
}

// Store reads and writes one namespace. It never returns an error: every
// storage fault degrades to default state or a dropped write, and is logged.
type Store[S any] struct {
	backend Backend
	ns      Namespace[S]
	clock   clock.Clock
	expiry  time.Duration
	logger  *logging.ChanneledLogger
}

// NewStore binds ns to backend. expiry is the session lifetime measured from
// the state's SessionStart.
func NewStore[S any](backend Backend, ns Namespace[S], clk clock.Clock, expiry time.Duration, logger *logging.ChanneledLogger) *Store[S] {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Store[S]{backend: backend, ns: ns, clock: clk, expiry: expiry, logger: logger}
}

// Read returns the current state. Absent, corrupt or unreadable data yields
// the defaults, which are not persisted. An expired session is rolled over
// and the rollover is persisted.
func (s *Store[S]) Read() S {
	now := s.clock.Now()

	raw, ok, err := s.backend.GetItem(s.ns.Key)
	if err != nil {
		s.logger.Debug().Warn("Client state read failed, using defaults", "key", s.ns.Key, "error", err.Error())
		return s.ns.Defaults(now)
	}
	if !ok {
		return s.ns.Defaults(now)
	}

	st := s.ns.Defaults(now)
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		s.logger.Debug().Warn("Client state corrupt, using defaults", "key", s.ns.Key, "error", err.Error())
		return s.ns.Defaults(now)
	}
	if s.ns.Normalize != nil {
		st = s.ns.Normalize(st)
	}

	if s.expiry > 0 && now.Sub(s.ns.SessionStart(st)) > s.expiry {
		st = s.ns.Rollover(st, now)
		s.persist(st)
	}
	return st
}

// Write deep-merges patch into the current state and persists the result.
// patch is any JSON-encodable value; nested objects merge key by key while
// arrays and scalars replace. The merged state is returned even when the
// backend drops the write.
func (s *Store[S]) Write(patch any) S {
	current := s.Read()

	base, err := toObject(current)
	if err != nil {
		s.logger.Debug().Error("Client state encode failed", "key", s.ns.Key, "error", err.Error())
		return current
	}
	delta, err := toObject(patch)
	if err != nil {
		s.logger.Debug().Error("Client state patch rejected", "key", s.ns.Key, "error", err.Error())
		return current
	}

	merged, err := json.Marshal(deepMerge(base, delta))
	if err != nil {
		s.logger.Debug().Error("Client state merge failed", "key", s.ns.Key, "error", err.Error())
		return current
	}

	next := s.ns.Defaults(s.clock.Now())
	if err := json.Unmarshal(merged, &next); err != nil {
		s.logger.Debug().Error("Client state merge produced invalid shape", "key", s.ns.Key, "error", err.Error())
		return current
	}
	if s.ns.Normalize != nil {
		next = s.ns.Normalize(next)
	}

	s.persistRaw(string(merged))
	return next
}

// Reset removes the namespace entirely.
func (s *Store[S]) Reset() {
	if err := s.backend.RemoveItem(s.ns.Key); err != nil {
		s.logger.Debug().Warn("Client state reset failed", "key", s.ns.Key, "error", err.Error())
	}
}

func (s *Store[S]) persist(st S) {
	raw, err := json.Marshal(st)
	if err != nil {
		s.logger.Debug().Error("Client state encode failed", "key", s.ns.Key, "error", err.Error())
		return
	}
	s.persistRaw(string(raw))
}

func (s *Store[S]) persistRaw(raw string) {
	if err := s.backend.SetItem(s.ns.Key, raw); err != nil {
		s.logger.Debug().Warn("Client state write dropped", "key", s.ns.Key, "error", err.Error())
	}
}

func toObject(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// deepMerge writes src into dst. Objects present on both sides merge
// recursively; anything else in src replaces the dst value.
func deepMerge(dst, src map[string]any) map[string]any {
	for k, v := range src {
		srcObj, srcIsObj := v.(map[string]any)
		dstObj, dstIsObj := dst[k].(map[string]any)
		if srcIsObj && dstIsObj {
			dst[k] = deepMerge(dstObj, srcObj)
			continue
		}
		dst[k] = v
	}
	return dst
}
