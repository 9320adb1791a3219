package gating

import "time"

// ShouldShow reports whether a popup of type t may be raised for state st at now.
func ShouldShow(t PopupType, st PopupState, now time.Time, timing Timing) bool {
	switch t {
	case PopupIdle, PopupContentAccess:
		return true
	case PopupFourthAction:
		return !st.PopupsShown.FourthAction
	case PopupExitIntent:
		if !st.UserState.EmailSubscribed || st.UserState.BrokerAccountOpened {
			return false
		}
		last := st.PopupsShown.ExitIntentLastShown
		return last == nil || now.Sub(*last) >= timing.ExitIntentCooldown
	default:
		return false
	}
}

// MarkShown returns the patch that records one display of t at now.
func MarkShown(t PopupType, st PopupState, now time.Time) PopupPatch {
	shown := &PopupsShownPatch{}
	switch t {
	case PopupIdle:
		shown.Idle = Ptr(st.PopupsShown.Idle + 1)
	case PopupContentAccess:
		shown.ContentAccess = Ptr(st.PopupsShown.ContentAccess + 1)
	case PopupFourthAction:
		shown.FourthAction = Ptr(true)
	case PopupExitIntent:
		shown.ExitIntent = Ptr(st.PopupsShown.ExitIntent + 1)
		shown.ExitIntentLastShown = Ptr(now)
	}
	return PopupPatch{PopupsShown: shown}
}
