// Package events fans bridge events out to in-process subscribers and
// connected websocket clients.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies what happened.
type Type string

const (
	TypeDeviceAdded     Type = "device-added"
	TypeDeviceRemoved   Type = "device-removed"
	TypeDeviceIPChanged Type = "device-ip-changed"
	TypeDeviceOnline    Type = "device-online"
	TypeDeviceOffline   Type = "device-offline"
	TypeStateUpdated    Type = "state-updated"
)

// Event is the broadcast payload. ID and Timestamp are filled on publish.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	DeviceID  string         `json:"device_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"ts"`
}

func stamp(evt Event) Event {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return evt
}
