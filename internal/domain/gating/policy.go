// Package gating defines the content-access gate policy, the persisted
// visitor state shapes, and the popup eligibility rules. Everything here is
// pure: no storage, no clocks, no I/O.
package gating

import (
	"errors"
	"fmt"
	"time"
)

// GateDecision is the outcome of the content-access policy.
type GateDecision string

const (
	GateNone   GateDecision = "none"
	GateEmail  GateDecision = "email"
	GateBroker GateDecision = "broker"
)

// GateSettings describes one gate. Price and Benefits are presentation-only.
type GateSettings struct {
	Blocking bool     `yaml:"blocking" json:"blocking"`
	Price    string   `yaml:"price,omitempty" json:"price,omitempty"`
	Benefits []string `yaml:"benefits,omitempty" json:"benefits,omitempty"`
}

// GatePolicyConfig holds the declarative gate thresholds.
type GatePolicyConfig struct {
	// TriggerAfterDrills is the number of free views before any gate.
	TriggerAfterDrills int `yaml:"triggerAfterDrills" json:"triggerAfterDrills"`
	// TriggerAfterEmailDrills is the number of additional views granted
	// after the email gate is satisfied, before the broker gate.
	TriggerAfterEmailDrills int          `yaml:"triggerAfterEmailDrills" json:"triggerAfterEmailDrills"`
	EmailGate               GateSettings `yaml:"emailGate" json:"emailGate"`
	BrokerGate              GateSettings `yaml:"brokerGate" json:"brokerGate"`
}

// Timing holds every time window used by the store and the evaluators.
type Timing struct {
	SessionExpiry      time.Duration `yaml:"sessionExpiry" json:"sessionExpiry"`
	IdleTimeout        time.Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ExitIntentCooldown time.Duration `yaml:"exitIntentCooldown" json:"exitIntentCooldown"`
	ActionDedupWindow  time.Duration `yaml:"actionDedupWindow" json:"actionDedupWindow"`
	FourthActionAt     int           `yaml:"fourthActionAt" json:"fourthActionAt"`
}

// Policy is the immutable configuration loaded once at start.
type Policy struct {
	Gates  GatePolicyConfig `yaml:"gates" json:"gates"`
	Timing Timing           `yaml:"timing" json:"timing"`
}

// DefaultPolicy returns dismissible-email / blocking-broker gating after two
// free drills and eight more after email capture.
func DefaultPolicy() Policy {
	return Policy{
		Gates: GatePolicyConfig{
			TriggerAfterDrills:      2,
			TriggerAfterEmailDrills: 8,
			EmailGate: GateSettings{
				Blocking: false,
				Price:    "Free",
				Benefits: []string{"Daily signal digest", "Full drill archive"},
			},
			BrokerGate: GateSettings{
				Blocking: true,
				Price:    "Funded account",
				Benefits: []string{"Unlimited drills", "Live signal alerts"},
			},
		},
		Timing: Timing{
			SessionExpiry:      24 * time.Hour,
			IdleTimeout:        60 * time.Second,
			ExitIntentCooldown: 30 * time.Second,
			ActionDedupWindow:  50 * time.Millisecond,
			FourthActionAt:     4,
		},
	}
}

// ErrInvalidPolicy is wrapped by every Validate failure.
var ErrInvalidPolicy = errors.New("invalid gate policy")

// Validate rejects thresholds and windows that cannot drive the engine.
func (p Policy) Validate() error {
	switch {
	case p.Gates.TriggerAfterDrills < 0:
		return fmt.Errorf("%w: triggerAfterDrills must be >= 0", ErrInvalidPolicy)
	case p.Gates.TriggerAfterEmailDrills < 0:
		return fmt.Errorf("%w: triggerAfterEmailDrills must be >= 0", ErrInvalidPolicy)
	case p.Timing.SessionExpiry <= 0:
		return fmt.Errorf("%w: sessionExpiry must be positive", ErrInvalidPolicy)
	case p.Timing.IdleTimeout <= 0:
		return fmt.Errorf("%w: idleTimeout must be positive", ErrInvalidPolicy)
	case p.Timing.ExitIntentCooldown < 0:
		return fmt.Errorf("%w: exitIntentCooldown must be >= 0", ErrInvalidPolicy)
	case p.Timing.ActionDedupWindow < 0:
		return fmt.Errorf("%w: actionDedupWindow must be >= 0", ErrInvalidPolicy)
	case p.Timing.FourthActionAt < 1:
		return fmt.Errorf("%w: fourthActionAt must be >= 1", ErrInvalidPolicy)
	}
	return nil
}

// DecideGate maps a view count and the visitor's conversion flags to a gate.
func DecideGate(drillsViewed int, hasEmail, hasBrokerAccount bool, cfg GatePolicyConfig) GateDecision {
	switch {
	case hasBrokerAccount:
		return GateNone
	case hasEmail && drillsViewed >= cfg.TriggerAfterDrills+cfg.TriggerAfterEmailDrills:
		return GateBroker
	case !hasEmail && drillsViewed > cfg.TriggerAfterDrills:
		return GateEmail
	default:
		return GateNone
	}
}

// DecideView applies DecideGate to a single content view. previous is the
// counter before the view was recorded and current the counter after it.
// The first view of a session is always free.
func DecideView(previous, current int, hasEmail, hasBrokerAccount bool, cfg GatePolicyConfig) GateDecision {
	if previous == 0 {
		return GateNone
	}
	return DecideGate(current, hasEmail, hasBrokerAccount, cfg)
}

// Settings returns the configured settings for a gate decision.
func (c GatePolicyConfig) Settings(d GateDecision) (GateSettings, bool) {
	switch d {
	case GateEmail:
		return c.EmailGate, true
	case GateBroker:
		return c.BrokerGate, true
	default:
		return GateSettings{}, false
	}
}
