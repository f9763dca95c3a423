package monitor

import "github.com/zaqqye/seb_proctor/internal/models"

// Signal is a raw environment event from the exam host.
type Signal string

const (
	SignalHidden        Signal = "visibility_hidden"
	SignalVisible       Signal = "visibility_visible"
	SignalBlur          Signal = "blur"
	SignalFocus         Signal = "focus"
	SignalBeforeUnload  Signal = "beforeunload"
	SignalPageHide      Signal = "pagehide"
	SignalAppBackground Signal = "app_background"
	SignalOrientation   Signal = "orientation_change"
)

// Classify maps a signal to the incident it may represent. Blur is returned
// unconfirmed; the monitor debounces it before reporting.
func Classify(s Signal) (models.IncidentKind, bool) {
	switch s {
	case SignalHidden:
		return models.IncidentTabSwitch, true
	case SignalBlur:
		return models.IncidentWindowBlur, true
	case SignalBeforeUnload, SignalPageHide:
		return models.IncidentNavigationAttempt, true
	case SignalAppBackground:
		return models.IncidentAppSwitch, true
	case SignalOrientation:
		return models.IncidentOrientationCheat, true
	}
	return "", false
}

// restoresFocus reports whether s cancels a pending blur.
func restoresFocus(s Signal) bool {
	return s == SignalFocus || s == SignalVisible
}
