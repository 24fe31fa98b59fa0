package ecp

// Remote key names accepted by /keypress. The set is fixed by the protocol.
const (
	KeyHome       = "Home"
	KeyRev        = "Rev"
	KeyFwd        = "Fwd"
	KeyPlay       = "Play"
	KeySelect     = "Select"
	KeyLeft       = "Left"
	KeyRight      = "Right"
	KeyDown       = "Down"
	KeyUp         = "Up"
	KeyBack       = "Back"
	KeyInfo       = "Info"
	KeyBackspace  = "Backspace"
	KeySearch     = "Search"
	KeyEnter      = "Enter"
	KeyVolumeUp   = "VolumeUp"
	KeyVolumeDown = "VolumeDown"
	KeyVolumeMute = "VolumeMute"
	KeyChannelUp  = "ChannelUp"
	KeyChannelDn  = "ChannelDown"
	KeyInputHDMI1 = "InputHDMI1"
	KeyInputHDMI2 = "InputHDMI2"
	KeyInputHDMI3 = "InputHDMI3"
	KeyInputHDMI4 = "InputHDMI4"
	KeyInputAV1   = "InputAV1"
	KeyPowerOn    = "PowerOn"
	KeyPowerOff   = "PowerOff"
)

var knownKeys = map[string]struct{}{
	KeyHome: {}, KeyRev: {}, KeyFwd: {}, KeyPlay: {}, KeySelect: {},
	KeyLeft: {}, KeyRight: {}, KeyDown: {}, KeyUp: {}, KeyBack: {},
	KeyInfo: {}, KeyBackspace: {}, KeySearch: {}, KeyEnter: {},
	KeyVolumeUp: {}, KeyVolumeDown: {}, KeyVolumeMute: {},
	KeyChannelUp: {}, KeyChannelDn: {},
	KeyInputHDMI1: {}, KeyInputHDMI2: {}, KeyInputHDMI3: {}, KeyInputHDMI4: {},
	KeyInputAV1: {}, KeyPowerOn: {}, KeyPowerOff: {},
}

// ValidKey reports whether key is part of the fixed keypress surface.
// Literal keys ("Lit_x") are also accepted.
func ValidKey(key string) bool {
	if _, ok := knownKeys[key]; ok {
		return true
	}
	return len(key) > 4 && key[:4] == "Lit_"
}
