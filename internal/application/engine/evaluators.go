package engine

import (
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/domain/gating"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clientstate"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clock"
)

// offerFunc hands a candidate to the arbiter.
type offerFunc func(Candidate) (*Prompt, bool)

// IdleEvaluator raises an idle candidate after a full idle window with no
// tracked action. Firing does not re-arm it.
type IdleEvaluator struct {
	clock    clock.Clock
	timeout  time.Duration
	dispatch func(func())
	offer    offerFunc

	timer      *clock.Timer
	generation uint64
}

// NewIdleEvaluator creates an unarmed evaluator. dispatch runs the fire
// callback on the engine's event thread.
func NewIdleEvaluator(clk clock.Clock, timeout time.Duration, dispatch func(func()), offer offerFunc) *IdleEvaluator {
	return &IdleEvaluator{clock: clk, timeout: timeout, dispatch: dispatch, offer: offer}
}

// Arm cancels any pending timer and starts a new idle window.
func (e *IdleEvaluator) Arm() {
	e.Stop()
	e.generation++
	gen := e.generation
	e.timer = e.clock.AfterFunc(e.timeout, func() {
		e.dispatch(func() { e.fire(gen) })
	})
}

// Stop cancels the pending timer, if any.
func (e *IdleEvaluator) Stop() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *IdleEvaluator) fire(gen uint64) {
	// A real timer may fire after Stop or Arm raced with it.
	if gen != e.generation {
		return
	}
	e.timer = nil
	e.offer(Candidate{Popup: gating.PopupIdle})
}

// PointerLeave describes the pointer leaving the document.
type PointerLeave struct {
	ClientY          float64 `json:"clientY"`
	HasRelatedTarget bool    `json:"hasRelatedTarget"`
}

// TopEdgeExit reports whether the pointer left through the top edge of the
// document rather than into a child element.
func (p PointerLeave) TopEdgeExit() bool {
	return !p.HasRelatedTarget && p.ClientY <= 0
}

// ExitIntentEvaluator raises exitIntent for subscribed, unconverted
// visitors, at most once per cooldown window.
type ExitIntentEvaluator struct {
	clock  clock.Clock
	timing gating.Timing
	popups *clientstate.Store[gating.PopupState]
	offer  offerFunc

	lastFired time.Time
}

func NewExitIntentEvaluator(clk clock.Clock, timing gating.Timing, popups *clientstate.Store[gating.PopupState], offer offerFunc) *ExitIntentEvaluator {
	return &ExitIntentEvaluator{clock: clk, timing: timing, popups: popups, offer: offer}
}

// Observe handles one pointer-leave event and reports whether a candidate
// was raised.
func (e *ExitIntentEvaluator) Observe(ev PointerLeave) bool {
	if !ev.TopEdgeExit() {
		return false
	}
	now := e.clock.Now()
	if !e.lastFired.IsZero() && now.Sub(e.lastFired) < e.timing.ExitIntentCooldown {
		return false
	}
	if !gating.ShouldShow(gating.PopupExitIntent, e.popups.Read(), now, e.timing) {
		return false
	}
	e.lastFired = now
	e.offer(Candidate{Popup: gating.PopupExitIntent})
	return true
}

func (e *ExitIntentEvaluator) reset() { e.lastFired = time.Time{} }

// ActionEvaluator counts tracked actions and raises fourthAction once.
type ActionEvaluator struct {
	clock  clock.Clock
	timing gating.Timing
	popups *clientstate.Store[gating.PopupState]
	idle   *IdleEvaluator
	offer  offerFunc

	lastAction time.Time
}

func NewActionEvaluator(clk clock.Clock, timing gating.Timing, popups *clientstate.Store[gating.PopupState], idle *IdleEvaluator, offer offerFunc) *ActionEvaluator {
	return &ActionEvaluator{clock: clk, timing: timing, popups: popups, idle: idle, offer: offer}
}

// Track records one action. It returns the new count and false when the
// action was a duplicate inside the dedup window.
func (e *ActionEvaluator) Track() (int, bool) {
	now := e.clock.Now()
	if !e.lastAction.IsZero() && now.Sub(e.lastAction) < e.timing.ActionDedupWindow {
		return e.popups.Read().ActionCount, false
	}
	e.lastAction = now

	st := e.popups.Read()
	count := st.ActionCount + 1
	st = e.popups.Write(gating.PopupPatch{ActionCount: gating.Ptr(count)})
	e.idle.Arm()

	if count == e.timing.FourthActionAt && gating.ShouldShow(gating.PopupFourthAction, st, now, e.timing) {
		e.offer(Candidate{Popup: gating.PopupFourthAction})
	}
	return count, true
}

func (e *ActionEvaluator) reset() { e.lastAction = time.Time{} }

// ViewOutcome is the result of recording one content view.
type ViewOutcome struct {
	DrillsViewed int
	Revisit      bool
	Decision     gating.GateDecision
}

// ContentAccessEvaluator records drill views and applies the gate policy.
type ContentAccessEvaluator struct {
	gates *clientstate.Store[gating.GateState]
	cfg   gating.GatePolicyConfig
	offer offerFunc
}

func NewContentAccessEvaluator(gates *clientstate.Store[gating.GateState], cfg gating.GatePolicyConfig, offer offerFunc) *ContentAccessEvaluator {
	return &ContentAccessEvaluator{gates: gates, cfg: cfg, offer: offer}
}

// View records drillID and raises a contentAccess candidate when the view
// is gated. Revisits do not move the counter.
func (e *ContentAccessEvaluator) View(drillID string) ViewOutcome {
	st := e.gates.Read()
	previous := st.DrillsViewed

	out := ViewOutcome{Revisit: st.HasViewed(drillID)}
	if out.Revisit {
		out.DrillsViewed = previous
		// The view that first counted was already judged; re-judge the
		// current count so a revisit never unlocks gated content.
		out.Decision = gating.DecideGate(previous, st.HasEmail, st.HasBrokerAccount, e.cfg)
		if previous <= 1 {
			out.Decision = gating.GateNone
		}
	} else {
		history := append(append([]string{}, st.DrillHistory...), drillID)
		st = e.gates.Write(gating.GatePatch{
			DrillsViewed: gating.Ptr(previous + 1),
			DrillHistory: history,
		})
		out.DrillsViewed = st.DrillsViewed
		out.Decision = gating.DecideView(previous, st.DrillsViewed, st.HasEmail, st.HasBrokerAccount, e.cfg)
	}

	if out.Decision != gating.GateNone {
		e.offer(Candidate{Popup: gating.PopupContentAccess, Gate: out.Decision})
	}
	return out
}
