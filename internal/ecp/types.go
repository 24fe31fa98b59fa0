package ecp

import (
	"encoding/xml"
	"strings"
)

// DeviceInfo is the subset of /query/device-info the bridge relies on.
type DeviceInfo struct {
	XMLName            xml.Name `xml:"device-info"`
	SerialNumber       string   `xml:"serial-number"`
	DeviceID           string   `xml:"device-id"`
	VendorName         string   `xml:"vendor-name"`
	ModelName          string   `xml:"model-name"`
	ModelNumber        string   `xml:"model-number"`
	SoftwareVersion    string   `xml:"software-version"`
	SoftwareBuild      string   `xml:"software-build"`
	UserDeviceName     string   `xml:"user-device-name"`
	FriendlyDeviceName string   `xml:"friendly-device-name"`
	PowerMode          string   `xml:"power-mode"`
	IsTV               bool     `xml:"is-tv"`
	IsStick            bool     `xml:"is-stick"`
	WifiMAC            string   `xml:"wifi-mac"`
	EthernetMAC        string   `xml:"ethernet-mac"`
	NetworkType        string   `xml:"network-type"`
}

// Name returns the best available human-readable device name.
func (d DeviceInfo) Name() string {
	if n := strings.TrimSpace(d.UserDeviceName); n != "" {
		return n
	}
	if n := strings.TrimSpace(d.FriendlyDeviceName); n != "" {
		return n
	}
	return strings.TrimSpace(d.ModelName)
}

// MAC prefers the interface the device is actually using.
func (d DeviceInfo) MAC() string {
	if strings.EqualFold(d.NetworkType, "ethernet") && d.EthernetMAC != "" {
		return d.EthernetMAC
	}
	if d.WifiMAC != "" {
		return d.WifiMAC
	}
	return d.EthernetMAC
}

// App is one installed channel from /query/apps.
type App struct {
	ID      string `xml:"id,attr"`
	Type    string `xml:"type,attr"`
	Version string `xml:"version,attr"`
	Name    string `xml:",chardata"`
}

type appsEnvelope struct {
	XMLName xml.Name `xml:"apps"`
	Apps    []App    `xml:"app"`
}

// ActiveApp describes the foreground app. Type is "screensaver" when the
// screensaver element was present in the response.
type ActiveApp struct {
	ID   string
	Name string
	Type string
}

// IsHome reports whether the home screen is in the foreground (ECP reports
// the literal app name "Roku" with no id there).
func (a ActiveApp) IsHome() bool {
	return a.ID == "" && strings.EqualFold(strings.TrimSpace(a.Name), "Roku")
}

type activeAppEnvelope struct {
	XMLName     xml.Name   `xml:"active-app"`
	App         *activeElm `xml:"app"`
	Screensaver *activeElm `xml:"screensaver"`
}

type activeElm struct {
	ID   string `xml:"id,attr"`
	Type string `xml:"type,attr"`
	Name string `xml:",chardata"`
}

// MediaPlayer is the transport state from /query/media-player.
type MediaPlayer struct {
	XMLName xml.Name `xml:"player"`
	Error   bool     `xml:"error,attr"`
	State   string   `xml:"state,attr"`
	Plugin  *struct {
		ID   string `xml:"id,attr"`
		Name string `xml:"name,attr"`
	} `xml:"plugin"`
	Position string `xml:"position"`
	Duration string `xml:"duration"`
}
