package power

import "testing"

func TestInterpret(t *testing.T) {
	screensaver := &ActiveApp{ID: "55545", Name: "Default screensaver", Type: "screensaver"}
	netflix := &ActiveApp{ID: "12", Name: "Netflix", Type: "appl"}

	cases := []struct {
		name string
		mode string
		app  *ActiveApp
		want State
	}{
		{"standby", "Standby", nil, Standby},
		{"display off spaced", "Display Off", nil, Standby},
		{"display off joined", "DisplayOff", nil, Standby},
		{"ready is display-off", "Ready", nil, Standby},
		{"poweron with app", "PowerOn", netflix, On},
		{"poweron with screensaver", "PowerOn", screensaver, Standby},
		{"power on spaced", "Power On", netflix, On},
		{"headless no app", "Headless", nil, On},
		{"headless screensaver", "Headless", screensaver, Standby},
		{"substring off", "SuspendOff", nil, Standby},
		{"substring ready", "AlmostReady", nil, Standby},
		{"unknown leans on", "garbage", nil, On},
		{"empty leans on", "", nil, On},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Interpret(tc.mode, tc.app); got != tc.want {
				t.Fatalf("Interpret(%q, %+v) = %q, want %q", tc.mode, tc.app, got, tc.want)
			}
		})
	}
}

func TestIsScreensaver(t *testing.T) {
	if (&ActiveApp{Type: "Screensaver"}).IsScreensaver() != true {
		t.Fatal("type match should be case-insensitive")
	}
	var nilApp *ActiveApp
	if nilApp.IsScreensaver() {
		t.Fatal("nil app is not a screensaver")
	}
}
