package engine

import (
	"strings"
	"sync"

	"github.com/MichaelMishaev/signals-sub003/internal/domain/gating"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clientstate"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clock"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
)

// Options configures a visitor engine.
type Options struct {
	VisitorID string
	Policy    gating.Policy
	Clock     clock.Clock
	Stores    clientstate.Stores
	Logger    *logging.ChanneledLogger
	Listener  Listener
}

// Engine is the gate and popup state machine of one visitor. All
// mutations run under a single lock, which plays the role of the browser
// event thread; listener callbacks run after it is released.
type Engine struct {
	mu        sync.Mutex
	visitorID string
	policy    gating.Policy
	clock     clock.Clock
	stores    clientstate.Stores
	logger    *logging.ChanneledLogger
	listener  Listener

	arbiter *Arbiter
	idle    *IdleEvaluator
	exit    *ExitIntentEvaluator
	actions *ActionEvaluator
	content *ContentAccessEvaluator

	pending []Event
	mounted bool
	closed  bool
}

// ViewResult is returned by ViewDrill.
type ViewResult struct {
	DrillID      string              `json:"drillId"`
	DrillsViewed int                 `json:"drillsViewed"`
	Revisit      bool                `json:"revisit"`
	Decision     gating.GateDecision `json:"decision"`
	Blocking     bool                `json:"blocking"`
	// Locked is true when the drill body must stay hidden.
	Locked bool    `json:"locked"`
	Prompt *Prompt `json:"prompt,omitempty"`
}

// ActionResult is returned by TrackAction.
type ActionResult struct {
	ActionCount int     `json:"actionCount"`
	Counted     bool    `json:"counted"`
	Prompt      *Prompt `json:"prompt,omitempty"`
}

// ExitResult is returned by PointerLeave.
type ExitResult struct {
	Raised bool    `json:"raised"`
	Prompt *Prompt `json:"prompt,omitempty"`
}

// Snapshot is a consistent view of the visitor's state.
type Snapshot struct {
	VisitorID string              `json:"visitorId"`
	Gate      gating.GateState    `json:"gate"`
	Popup     gating.PopupState   `json:"popup"`
	Decision  gating.GateDecision `json:"decision"`
	Active    *Prompt             `json:"active,omitempty"`
}

// New wires the evaluators and the arbiter for one visitor. Call Mount to
// start the idle timer.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscardLogger()
	}
	if opts.Listener == nil {
		opts.Listener = func(Event) {}
	}

	e := &Engine{
		visitorID: opts.VisitorID,
		policy:    opts.Policy,
		clock:     opts.Clock,
		stores:    opts.Stores,
		logger:    opts.Logger,
		listener:  opts.Listener,
	}
	e.arbiter = NewArbiter(opts.Stores.Popup, opts.Clock, opts.Policy, func(ev Event) {
		e.pending = append(e.pending, ev)
	})
	offer := e.offer
	e.idle = NewIdleEvaluator(opts.Clock, opts.Policy.Timing.IdleTimeout, e.dispatch, offer)
	e.exit = NewExitIntentEvaluator(opts.Clock, opts.Policy.Timing, opts.Stores.Popup, offer)
	e.actions = NewActionEvaluator(opts.Clock, opts.Policy.Timing, opts.Stores.Popup, e.idle, offer)
	e.content = NewContentAccessEvaluator(opts.Stores.Gate, opts.Policy.Gates, offer)
	return e
}

// VisitorID returns the visitor this engine belongs to.
func (e *Engine) VisitorID() string { return e.visitorID }

// run executes fn on the event thread and then delivers queued events.
func (e *Engine) run(fn func()) {
	e.mu.Lock()
	fn()
	events := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, ev := range events {
		ev.VisitorID = e.visitorID
		e.listener(ev)
	}
}

// dispatch is handed to timers so their callbacks join the event thread.
func (e *Engine) dispatch(fn func()) {
	e.run(func() {
		if !e.closed {
			fn()
		}
	})
}

func (e *Engine) offer(c Candidate) (*Prompt, bool) {
	p, ok := e.arbiter.Offer(c)
	log := e.logger.WithVisitor(logging.ChannelPopup, e.visitorID)
	if ok {
		log.Info("Prompt shown", "popup", c.Popup, "gate", c.Gate, "blocking", p.Blocking)
	} else {
		log.Debug("Candidate dropped", "popup", c.Popup, "gate", c.Gate)
	}
	return p, ok
}

// Mount is the page-load hook: it applies session expiry and arms the idle
// timer. Calling it again re-arms the timer.
func (e *Engine) Mount() Snapshot {
	var snap Snapshot
	e.run(func() {
		if !e.closed {
			e.mounted = true
			e.idle.Arm()
		}
		snap = e.snapshot()
	})
	return snap
}

// ViewDrill records a content view, applies the gate policy and counts the
// view as a tracked action.
func (e *Engine) ViewDrill(drillID string) ViewResult {
	drillID = strings.TrimSpace(drillID)
	var res ViewResult
	e.run(func() {
		if drillID == "" {
			st := e.stores.Gate.Read()
			res = ViewResult{DrillsViewed: st.DrillsViewed, Decision: gating.GateNone, Prompt: e.arbiter.Active()}
			return
		}

		out := e.content.View(drillID)
		e.actions.Track()

		res = ViewResult{
			DrillID:      drillID,
			DrillsViewed: out.DrillsViewed,
			Revisit:      out.Revisit,
			Decision:     out.Decision,
			Locked:       out.Decision != gating.GateNone,
			Prompt:       e.arbiter.Active(),
		}
		if settings, ok := e.policy.Gates.Settings(out.Decision); ok {
			res.Blocking = settings.Blocking
		}
		e.logger.WithVisitor(logging.ChannelGate, e.visitorID).Debug("Drill viewed",
			"drillId", drillID, "drillsViewed", out.DrillsViewed, "revisit", out.Revisit, "decision", out.Decision)
	})
	return res
}

// TrackAction counts a generic user action.
func (e *Engine) TrackAction() ActionResult {
	var res ActionResult
	e.run(func() {
		count, counted := e.actions.Track()
		res = ActionResult{ActionCount: count, Counted: counted, Prompt: e.arbiter.Active()}
	})
	return res
}

// PointerLeave feeds the exit-intent evaluator.
func (e *Engine) PointerLeave(ev PointerLeave) ExitResult {
	var res ExitResult
	e.run(func() {
		res.Raised = e.exit.Observe(ev)
		res.Prompt = e.arbiter.Active()
	})
	return res
}

// Dismiss closes the active prompt if it is dismissible.
func (e *Engine) Dismiss() DismissResult {
	var res DismissResult
	e.run(func() { res = e.arbiter.Dismiss() })
	return res
}

// BeginSubmission marks the active prompt as waiting on verification. It
// reports false when nothing is showing.
func (e *Engine) BeginSubmission() bool {
	var ok bool
	e.run(func() { ok = e.arbiter.SetPending(true) })
	return ok
}

// FailSubmission clears the pending flag after a rejected or failed
// verification. State is otherwise untouched.
func (e *Engine) FailSubmission() {
	e.run(func() { e.arbiter.SetPending(false) })
}

// ConfirmEmail records a server-verified email and closes the active
// prompt unless it is the broker gate.
func (e *Engine) ConfirmEmail(email string) Snapshot {
	var snap Snapshot
	e.run(func() {
		e.setEmail(email)
		if active := e.arbiter.Active(); active != nil && active.Gate != gating.GateBroker {
			e.arbiter.Submit()
		}
		e.logger.WithVisitor(logging.ChannelGate, e.visitorID).Info("Email confirmed", "email", logging.MaskEmail(email))
		snap = e.snapshot()
	})
	return snap
}

// ConfirmBrokerAccount unlocks all content and closes any prompt.
func (e *Engine) ConfirmBrokerAccount() Snapshot {
	var snap Snapshot
	e.run(func() {
		e.stores.Gate.Write(gating.GatePatch{HasBrokerAccount: gating.Ptr(true)})
		e.stores.Popup.Write(gating.PopupPatch{UserState: &gating.UserStatePatch{BrokerAccountOpened: gating.Ptr(true)}})
		e.arbiter.Submit()
		e.logger.WithVisitor(logging.ChannelGate, e.visitorID).Info("Broker account confirmed")
		snap = e.snapshot()
	})
	return snap
}

// SyncEmail aligns the stored email flags with the system of record.
// verified=false revokes a claimed email. It reports whether anything
// changed and emits a reconciled event when it did.
func (e *Engine) SyncEmail(email string, verified bool) bool {
	var changed bool
	e.run(func() {
		st := e.stores.Gate.Read()
		current := ""
		if st.UserEmail != nil {
			current = *st.UserEmail
		}
		switch {
		case verified && (!st.HasEmail || current != email):
			e.setEmail(email)
			changed = true
		case !verified && st.HasEmail:
			e.stores.Gate.Write(gating.GatePatch{HasEmail: gating.Ptr(false), UserEmail: gating.Ptr("")})
			e.stores.Popup.Write(gating.PopupPatch{UserState: &gating.UserStatePatch{EmailSubscribed: gating.Ptr(false)}})
			changed = true
		}
		if changed {
			reason := "email_verified"
			if !verified {
				reason = "email_revoked"
			}
			e.pending = append(e.pending, Event{Type: EventReconciled, Reason: reason, At: e.clock.Now()})
			e.logger.WithVisitor(logging.ChannelGate, e.visitorID).Info("Email state reconciled", "reason", reason)
		}
	})
	return changed
}

// RevokeEmail clears a claimed email the server could not corroborate.
func (e *Engine) RevokeEmail() bool {
	return e.SyncEmail("", false)
}

func (e *Engine) setEmail(email string) {
	e.stores.Gate.Write(gating.GatePatch{HasEmail: gating.Ptr(true), UserEmail: gating.Ptr(email)})
	e.stores.Popup.Write(gating.PopupPatch{UserState: &gating.UserStatePatch{EmailSubscribed: gating.Ptr(true)}})
}

// Snapshot returns the current state without side effects beyond expiry.
func (e *Engine) Snapshot() Snapshot {
	var snap Snapshot
	e.run(func() { snap = e.snapshot() })
	return snap
}

func (e *Engine) snapshot() Snapshot {
	gate := e.stores.Gate.Read()
	decision := gating.GateNone
	if gate.DrillsViewed > 1 {
		decision = gating.DecideGate(gate.DrillsViewed, gate.HasEmail, gate.HasBrokerAccount, e.policy.Gates)
	}
	return Snapshot{
		VisitorID: e.visitorID,
		Gate:      gate,
		Popup:     e.stores.Popup.Read(),
		Decision:  decision,
		Active:    e.arbiter.Active(),
	}
}

// Reset destroys both namespaces and the in-memory evaluator state.
func (e *Engine) Reset() {
	e.run(func() {
		e.stores.Gate.Reset()
		e.stores.Popup.Reset()
		e.arbiter.Clear("reset")
		e.exit.reset()
		e.actions.reset()
		if e.mounted && !e.closed {
			e.idle.Arm()
		}
		e.logger.WithVisitor(logging.ChannelGate, e.visitorID).Info("Visitor state reset")
	})
}

// Close stops the idle timer. Later timer fires are ignored.
func (e *Engine) Close() {
	e.run(func() {
		e.closed = true
		e.idle.Stop()
	})
}
