package clientstate

import (
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/domain/gating"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clock"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
)

// Versioned storage keys. Bump the suffix when a shape changes
// incompatibly; old keys are then simply never read.
const (
	GateKey  = "gate_state.v1"
	PopupKey = "popup_state.v1"
)

// GateNamespace describes the content-access gate state.
func GateNamespace() Namespace[gating.GateState] {
	return Namespace[gating.GateState]{
		Key:          GateKey,
		Defaults:     gating.NewGateState,
		SessionStart: func(s gating.GateState) time.Time { return s.SessionStart },
		Rollover:     gating.RolloverGateState,
		Normalize: func(s gating.GateState) gating.GateState {
			if s.DrillHistory == nil {
				s.DrillHistory = []string{}
			}
			if s.UserEmail != nil && *s.UserEmail == "" {
				s.UserEmail = nil
			}
			return s
		},
	}
}

// PopupNamespace describes the popup trigger state.
func PopupNamespace() Namespace[gating.PopupState] {
	return Namespace[gating.PopupState]{
		Key:          PopupKey,
		Defaults:     gating.NewPopupState,
		SessionStart: func(s gating.PopupState) time.Time { return s.SessionStart },
		Rollover:     gating.RolloverPopupState,
	}
}

// Stores bundles both namespaces for one visitor.
type Stores struct {
	Gate  *Store[gating.GateState]
	Popup *Store[gating.PopupState]
}

// NewStores opens both namespaces on backend.
func NewStores(backend Backend, clk clock.Clock, expiry time.Duration, logger *logging.ChanneledLogger) Stores {
	return Stores{
		Gate:  NewStore(backend, GateNamespace(), clk, expiry, logger),
		Popup: NewStore(backend, PopupNamespace(), clk, expiry, logger),
	}
}
