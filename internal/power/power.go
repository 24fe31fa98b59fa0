// Package power maps Roku's raw power-mode strings to the interpreted
// three-state view used by entity states and automation triggers.
package power

import "strings"

// State is the interpreted power state.
type State string

const (
	On      State = "on"
	Standby State = "standby"
	Off     State = "off"
	Unknown State = "unknown"
)

// ActiveApp is the foreground-app descriptor attached to a poll sample.
type ActiveApp struct {
	ID   string
	Name string
	Type string
}

// IsScreensaver reports whether the foreground app is the screensaver.
func (a *ActiveApp) IsScreensaver() bool {
	return a != nil && strings.EqualFold(a.Type, "screensaver")
}

// Interpret translates a raw power-mode value plus the foreground app into
// an interpreted state. Rules are ordered; first match wins.
//
// "Ready" means the display is off while the device is powered and
// listening, so it maps to standby rather than on. Unknown values default
// to on: a wrong "on" is a missed standby, a wrong "standby" fires false
// offline alarms. That asymmetry is intentional.
func Interpret(rawPowerMode string, app *ActiveApp) State {
	mode := strings.ToLower(strings.TrimSpace(rawPowerMode))

	switch mode {
	case "standby", "displayoff", "display off", "ready":
		return Standby
	case "headless":
		if app.IsScreensaver() {
			return Standby
		}
		return On
	case "poweron", "power on":
		if app.IsScreensaver() {
			return Standby
		}
		return On
	}

	if strings.Contains(mode, "off") || strings.Contains(mode, "standby") || strings.Contains(mode, "ready") {
		return Standby
	}

	return On
}
