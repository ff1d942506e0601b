// Package logic contains the decision-and-actuation core of the beam controller.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State is the controller's light behaviour state.
type State string

const (
	StateOff        State = "OFF"
	StateOnBright   State = "ON_BRIGHT"
	StateOnDim      State = "ON_DIM"
	StateForceOn    State = "FORCE_ON"
	StateFlash      State = "FLASH"
	StateDiagnostic State = "DIAGNOSTIC"
)

// Transition is emitted whenever the controller changes state.
type Transition struct {
	Time     time.Time
	From     State
	To       State
	Override bool // override-pending flag after the transition
}

// Step is a single ramp output update.
type Step struct {
	Level      int
	Complement int // MaxLevel - Level, for the inverted indicator
}

// Input represents a single tick's sample of the request line.
type Input struct {
	Request bool // raw, undebounced
	Time    time.Time
}

// Result is what a single tick produced. Both fields are nil when nothing changed.
type Result struct {
	Transition *Transition
	Step       *Step
}

// InitialSample holds the first raw readings used to seed the controller.
type InitialSample struct {
	Voltage float64 // volts
	Light   float64 // raw sensor counts
	Request bool
}

// TransitionCounts tracks how many times each state was entered since startup.
type TransitionCounts struct {
	Off        int
	OnBright   int
	OnDim      int
	ForceOn    int
	Flash      int
	Diagnostic int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    TransitionCounts
}

// Status is a point-in-time view of the controller's internals.
type Status struct {
	State        State
	Level        int
	Target       int
	Voltage      float64
	Light        float64
	LightEnabled bool
	PowerOK      bool // voltage band above
	Dark         bool // light band above
	Request      bool // debounced
	Override     bool
	Counts       TransitionCounts
}
