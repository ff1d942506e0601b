// Package mqtt provides MQTT telemetry and command intake with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/beam-controller/internal/logic"
)

// Topics are the MQTT topics used under a prefix.
type Topics struct {
	Events  string // state transitions
	System  string // lifecycle events and status snapshots
	Command string // inbound diagnostic commands
}

// TopicsFor derives the topic set from prefix.
func TopicsFor(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	return Topics{
		Events:  prefix + "/events",
		System:  prefix + "/system",
		Command: prefix + "/command",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a state transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(tr logic.Transition) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Command is an inbound request on the command topic.
type Command string

const (
	CommandDiag   Command = "diag"
	CommandResume Command = "resume"
)

// ParseCommand accepts a bare command word, optionally surrounded by whitespace.
func ParseCommand(payload []byte) (Command, error) {
	switch c := Command(strings.ToLower(strings.TrimSpace(string(payload)))); c {
	case CommandDiag, CommandResume:
		return c, nil
	default:
		return "", fmt.Errorf("unknown command %q", c)
	}
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Beam BeamPayload `json:"beam"`
}

// BeamPayload contains the transition details.
type BeamPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	From      string `json:"from"`
	To        string `json:"to"`
	Override  bool   `json:"override"`
}

// FormatPayload creates the JSON payload for a state transition.
func FormatPayload(tr logic.Transition) ([]byte, error) {
	payload := Payload{
		Beam: BeamPayload{
			Timestamp: tr.Time.UTC().Format(time.RFC3339Nano),
			Event:     "TRANSITION",
			From:      string(tr.From),
			To:        string(tr.To),
			Override:  tr.Override,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
