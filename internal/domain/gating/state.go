package gating

import "time"

// GateState is the content-access namespace for one visitor.
type GateState struct {
	DrillsViewed     int       `json:"drillsViewed"`
	DrillHistory     []string  `json:"drillHistory"`
	HasEmail         bool      `json:"hasEmail"`
	UserEmail        *string   `json:"userEmail"`
	HasBrokerAccount bool      `json:"hasBrokerAccount"`
	SessionStart     time.Time `json:"sessionStart"`
}

// HasViewed reports whether drillID is already in the session history.
func (s GateState) HasViewed(drillID string) bool {
	for _, id := range s.DrillHistory {
		if id == drillID {
			return true
		}
	}
	return false
}

// GatePatch is a partial GateState; nil fields are left untouched by a write.
type GatePatch struct {
	DrillsViewed     *int       `json:"drillsViewed,omitempty"`
	DrillHistory     []string   `json:"drillHistory,omitempty"`
	HasEmail         *bool      `json:"hasEmail,omitempty"`
	UserEmail        *string    `json:"userEmail,omitempty"`
	HasBrokerAccount *bool      `json:"hasBrokerAccount,omitempty"`
	SessionStart     *time.Time `json:"sessionStart,omitempty"`
}

// PopupType names a promotional interstitial.
type PopupType string

const (
	PopupIdle          PopupType = "idle"
	PopupContentAccess PopupType = "contentAccess"
	PopupFourthAction  PopupType = "fourthAction"
	PopupExitIntent    PopupType = "exitIntent"
)

// PopupsShown holds per-type display counters. FourthAction is a
// shown-ever flag that survives session rollover.
type PopupsShown struct {
	Idle                int        `json:"idle"`
	ContentAccess       int        `json:"contentAccess"`
	FourthAction        bool       `json:"fourthAction"`
	ExitIntent          int        `json:"exitIntent"`
	ExitIntentLastShown *time.Time `json:"exitIntentLastShown"`
}

// UserState carries conversion flags that persist across sessions.
type UserState struct {
	EmailSubscribed     bool `json:"emailSubscribed"`
	BrokerAccountOpened bool `json:"brokerAccountOpened"`
}

// PopupState is the popup namespace for one visitor.
type PopupState struct {
	ActionCount  int         `json:"actionCount"`
	SessionStart time.Time   `json:"sessionStart"`
	PopupsShown  PopupsShown `json:"popupsShown"`
	UserState    UserState   `json:"userState"`
}

// PopupPatch is a partial PopupState.
type PopupPatch struct {
	ActionCount  *int              `json:"actionCount,omitempty"`
	SessionStart *time.Time        `json:"sessionStart,omitempty"`
	PopupsShown  *PopupsShownPatch `json:"popupsShown,omitempty"`
	UserState    *UserStatePatch   `json:"userState,omitempty"`
}

// PopupsShownPatch is a partial PopupsShown.
type PopupsShownPatch struct {
	Idle                *int       `json:"idle,omitempty"`
	ContentAccess       *int       `json:"contentAccess,omitempty"`
	FourthAction        *bool      `json:"fourthAction,omitempty"`
	ExitIntent          *int       `json:"exitIntent,omitempty"`
	ExitIntentLastShown *time.Time `json:"exitIntentLastShown,omitempty"`
}

// UserStatePatch is a partial UserState.
type UserStatePatch struct {
	EmailSubscribed     *bool `json:"emailSubscribed,omitempty"`
	BrokerAccountOpened *bool `json:"brokerAccountOpened,omitempty"`
}

// NewGateState returns the zero-value gate state for a session opened at now.
func NewGateState(now time.Time) GateState {
	return GateState{DrillHistory: []string{}, SessionStart: now}
}

// RolloverGateState keeps the email and broker flags of an expired session.
func RolloverGateState(old GateState, now time.Time) GateState {
	next := NewGateState(now)
	next.HasEmail = old.HasEmail
	next.UserEmail = old.UserEmail
	next.HasBrokerAccount = old.HasBrokerAccount
	return next
}

// NewPopupState returns the zero-value popup state for a session opened at now.
func NewPopupState(now time.Time) PopupState {
	return PopupState{SessionStart: now}
}

// RolloverPopupState keeps the fourthAction flag and the user state of an
// expired session; every other counter restarts.
func RolloverPopupState(old PopupState, now time.Time) PopupState {
	next := NewPopupState(now)
	next.PopupsShown.FourthAction = old.PopupsShown.FourthAction
	next.UserState = old.UserState
	return next
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }
