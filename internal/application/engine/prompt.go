// Package engine runs the per-visitor trigger evaluators and the single
// arbitration point that decides which prompt, if any, is on screen.
package engine

import (
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/domain/gating"
)

// Candidate is a request from an evaluator to show a prompt.
type Candidate struct {
	Popup gating.PopupType
	// Gate is set for contentAccess candidates raised by a gated view.
	Gate gating.GateDecision
}

// Prompt is the interstitial currently on screen.
type Prompt struct {
	ID       string               `json:"id"`
	Popup    gating.PopupType     `json:"popup"`
	Gate     gating.GateDecision  `json:"gate,omitempty"`
	Blocking bool                 `json:"blocking"`
	Settings *gating.GateSettings `json:"settings,omitempty"`
	ShownAt  time.Time            `json:"shownAt"`
	// Pending is true while a verification call for this prompt is in flight.
	Pending bool `json:"pending"`
}

// DismissResult is the outcome of a dismissal request.
type DismissResult string

const (
	Dismissed      DismissResult = "dismissed"
	NotShowing     DismissResult = "not_showing"
	NotDismissible DismissResult = "not_dismissible"
)

// EventType names a notification sent to the engine listener.
type EventType string

const (
	EventPromptShown   EventType = "prompt"
	EventPromptCleared EventType = "cleared"
	EventReconciled    EventType = "reconciled"
)

// Event is delivered to the listener after the engine lock is released.
type Event struct {
	Type      EventType `json:"type"`
	VisitorID string    `json:"visitorId"`
	Prompt    *Prompt   `json:"prompt,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Listener receives engine events. It must not call back into the engine
// synchronously.
type Listener func(Event)
