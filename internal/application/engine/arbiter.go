package engine

import (
	"github.com/MichaelMishaev/signals-sub003/internal/domain/gating"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clientstate"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clock"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/security"
)

// Arbiter owns what is currently shown. It is Idle when active is nil and
// Showing otherwise. It is not safe for concurrent use; the engine lock
// serialises every call.
type Arbiter struct {
	active *Prompt
	popups *clientstate.Store[gating.PopupState]
	clock  clock.Clock
	policy gating.Policy
	emit   func(Event)
	newID  func() string
}

// NewArbiter creates an idle arbiter. emit receives show/clear events.
func NewArbiter(popups *clientstate.Store[gating.PopupState], clk clock.Clock, policy gating.Policy, emit func(Event)) *Arbiter {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Arbiter{popups: popups, clock: clk, policy: policy, emit: emit, newID: security.GenerateULID}
}

// Offer shows c if nothing is showing and the popup rule allows it. The
// popup is marked shown in the store before Offer returns. Candidates that
// lose are dropped, never queued.
func (a *Arbiter) Offer(c Candidate) (*Prompt, bool) {
	if a.active != nil {
		return nil, false
	}

	now := a.clock.Now()
	st := a.popups.Read()
	if !gating.ShouldShow(c.Popup, st, now, a.policy.Timing) {
		return nil, false
	}
	a.popups.Write(gating.MarkShown(c.Popup, st, now))

	p := &Prompt{ID: a.newID(), Popup: c.Popup, ShownAt: now}
	if settings, ok := a.policy.Gates.Settings(c.Gate); ok {
		p.Gate = c.Gate
		p.Blocking = settings.Blocking
		p.Settings = &settings
	}
	a.active = p
	a.emit(Event{Type: EventPromptShown, Prompt: p.clone(), At: now})
	return p.clone(), true
}

// Dismiss closes a dismissible prompt.
func (a *Arbiter) Dismiss() DismissResult {
	switch {
	case a.active == nil:
		return NotShowing
	case a.active.Blocking:
		return NotDismissible
	}
	a.clear("dismissed")
	return Dismissed
}

// Submit closes the active prompt after a successful conversion. It reports
// whether anything was showing.
func (a *Arbiter) Submit() bool {
	if a.active == nil {
		return false
	}
	a.clear("submitted")
	return true
}

// SetPending flags the active prompt as waiting on a verification call.
func (a *Arbiter) SetPending(pending bool) bool {
	if a.active == nil {
		return false
	}
	a.active.Pending = pending
	return true
}

// Active returns a copy of the prompt on screen, or nil.
func (a *Arbiter) Active() *Prompt {
	return a.active.clone()
}

// Clear drops the active prompt without a user action.
func (a *Arbiter) Clear(reason string) {
	if a.active != nil {
		a.clear(reason)
	}
}

func (a *Arbiter) clear(reason string) {
	p := a.active
	a.active = nil
	a.emit(Event{Type: EventPromptCleared, Prompt: p, Reason: reason, At: a.clock.Now()})
}

func (p *Prompt) clone() *Prompt {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
