package gating

import (
	"errors"
	"testing"
	"time"
)

func TestDecideGate(t *testing.T) {
	cfg := DefaultPolicy().Gates // 2 free, 8 more after email

	tests := []struct {
		name   string
		viewed int
		email  bool
		broker bool
		want   GateDecision
	}{
		{"free allowance", 2, false, false, GateNone},
		{"allowance exhausted", 3, false, false, GateEmail},
		{"email captured within extra views", 9, true, false, GateNone},
		{"email extra views exhausted", 10, true, false, GateBroker},
		{"broker unlocks everything", 500, true, true, GateNone},
		{"broker without email still unlocks", 500, false, true, GateNone},
		{"zero views", 0, false, false, GateNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecideGate(tt.viewed, tt.email, tt.broker, cfg); got != tt.want {
				t.Fatalf("DecideGate(%d, %v, %v) = %s, want %s", tt.viewed, tt.email, tt.broker, got, tt.want)
			}
		})
	}
}

func TestDecideViewFirstViewIsFree(t *testing.T) {
	for threshold := 0; threshold <= 5; threshold++ {
		cfg := GatePolicyConfig{TriggerAfterDrills: threshold, TriggerAfterEmailDrills: 0}
		for _, email := range []bool{false, true} {
			if got := DecideView(0, 1, email, false, cfg); got != GateNone {
				t.Fatalf("threshold %d email %v: first view gated with %s", threshold, email, got)
			}
		}
	}
}

func TestDecideViewEmailScenario(t *testing.T) {
	cfg := GatePolicyConfig{TriggerAfterDrills: 2, TriggerAfterEmailDrills: 8}

	want := []GateDecision{GateNone, GateNone, GateEmail}
	for i, w := range want {
		if got := DecideView(i, i+1, false, false, cfg); got != w {
			t.Fatalf("view %d: got %s, want %s", i+1, got, w)
		}
	}
}

func TestDecideViewBrokerScenario(t *testing.T) {
	cfg := GatePolicyConfig{TriggerAfterDrills: 2, TriggerAfterEmailDrills: 8}

	// Email captured at the third view; eight more views reach eleven.
	if got := DecideView(10, 11, true, false, cfg); got != GateBroker {
		t.Fatalf("got %s, want broker", got)
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}

	bad := DefaultPolicy()
	bad.Gates.TriggerAfterDrills = -1
	if err := bad.Validate(); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}

	bad = DefaultPolicy()
	bad.Timing.IdleTimeout = 0
	if err := bad.Validate(); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestDefaultGateBlocking(t *testing.T) {
	cfg := DefaultPolicy().Gates
	email, _ := cfg.Settings(GateEmail)
	broker, _ := cfg.Settings(GateBroker)
	if email.Blocking {
		t.Fatal("email gate should be dismissible by default")
	}
	if !broker.Blocking {
		t.Fatal("broker gate should block by default")
	}
	if _, ok := cfg.Settings(GateNone); ok {
		t.Fatal("no settings expected for GateNone")
	}
}

func TestShouldShowExitIntent(t *testing.T) {
	timing := DefaultPolicy().Timing
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := NewPopupState(now)
	if ShouldShow(PopupExitIntent, st, now, timing) {
		t.Fatal("exit intent must require a subscription")
	}

	st.UserState.EmailSubscribed = true
	if !ShouldShow(PopupExitIntent, st, now, timing) {
		t.Fatal("subscribed visitor without broker account should be eligible")
	}

	st.PopupsShown.ExitIntentLastShown = Ptr(now.Add(-10 * time.Second))
	if ShouldShow(PopupExitIntent, st, now, timing) {
		t.Fatal("exit intent inside cooldown should be suppressed")
	}

	st.PopupsShown.ExitIntentLastShown = Ptr(now.Add(-timing.ExitIntentCooldown))
	if !ShouldShow(PopupExitIntent, st, now, timing) {
		t.Fatal("exit intent at cooldown boundary should be eligible")
	}

	st.UserState.BrokerAccountOpened = true
	if ShouldShow(PopupExitIntent, st, now, timing) {
		t.Fatal("converted visitors should not see exit intent")
	}
}

func TestShouldShowFourthActionOnce(t *testing.T) {
	timing := DefaultPolicy().Timing
	now := time.Now()
	st := NewPopupState(now)
	if !ShouldShow(PopupFourthAction, st, now, timing) {
		t.Fatal("fresh state should allow fourthAction")
	}
	st.PopupsShown.FourthAction = true
	if ShouldShow(PopupFourthAction, st, now, timing) {
		t.Fatal("fourthAction must not show twice")
	}
	if !ShouldShow(PopupIdle, st, now, timing) || !ShouldShow(PopupContentAccess, st, now, timing) {
		t.Fatal("idle and contentAccess have no cap")
	}
}

func TestRolloverKeepsCrossSessionFields(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := start.Add(48 * time.Hour)

	popups := PopupState{
		ActionCount:  7,
		SessionStart: start,
		PopupsShown:  PopupsShown{Idle: 2, FourthAction: true, ExitIntent: 1, ExitIntentLastShown: Ptr(start)},
		UserState:    UserState{EmailSubscribed: true},
	}
	next := RolloverPopupState(popups, later)
	if next.ActionCount != 0 || next.PopupsShown.Idle != 0 || next.PopupsShown.ExitIntent != 0 || next.PopupsShown.ExitIntentLastShown != nil {
		t.Fatalf("session counters not reset: %+v", next)
	}
	if !next.PopupsShown.FourthAction || !next.UserState.EmailSubscribed {
		t.Fatalf("cross-session flags lost: %+v", next)
	}
	if !next.SessionStart.Equal(later) {
		t.Fatalf("sessionStart = %v, want %v", next.SessionStart, later)
	}

	gate := GateState{DrillsViewed: 5, DrillHistory: []string{"a"}, HasEmail: true, UserEmail: Ptr("a@b.co"), SessionStart: start}
	nextGate := RolloverGateState(gate, later)
	if nextGate.DrillsViewed != 0 || len(nextGate.DrillHistory) != 0 {
		t.Fatalf("gate counters not reset: %+v", nextGate)
	}
	if !nextGate.HasEmail || nextGate.UserEmail == nil || *nextGate.UserEmail != "a@b.co" {
		t.Fatalf("gate email lost: %+v", nextGate)
	}
}
