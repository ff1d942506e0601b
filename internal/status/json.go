package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	State         string     `json:"state"`
	Ready         bool       `json:"ready"`
	Output        OutputJSON `json:"output"`
	Inputs        InputsJSON `json:"inputs"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"state_counts"`
	Config        ConfigJSON `json:"config"`
}

// OutputJSON reports the ramp.
type OutputJSON struct {
	Level  int `json:"level"`
	Target int `json:"target"`
}

// InputsJSON reports the conditioned inputs.
type InputsJSON struct {
	Voltage      float64 `json:"voltage"`
	PowerOK      bool    `json:"power_ok"`
	Light        float64 `json:"light"`
	LightEnabled bool    `json:"light_enabled"`
	Dark         bool    `json:"dark"`
	Request      bool    `json:"request"`
	Override     bool    `json:"override"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of state entry counts.
type CountsJSON struct {
	Off        int `json:"off"`
	OnBright   int `json:"on_bright"`
	OnDim      int `json:"on_dim"`
	ForceOn    int `json:"force_on"`
	Flash      int `json:"flash"`
	Diagnostic int `json:"diagnostic"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs           int64   `json:"tick_ms"`
	HeartbeatMs      int64   `json:"heartbeat_ms"`
	Broker           string  `json:"broker"`
	HTTPAddr         string  `json:"http_addr"`
	VoltageLower     float64 `json:"voltage_lower"`
	VoltageUpper     float64 `json:"voltage_upper"`
	LightLower       float64 `json:"light_lower"`
	LightUpper       float64 `json:"light_upper"`
	FlashMs          int64   `json:"flash_ms"`
	OverrideWindowMs int64   `json:"override_window_ms"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func buildInner(snap Snapshot) StatusInner {
	st := snap.Controller
	state := string(st.State)
	if state == "" {
		state = "UNKNOWN"
	}
	cal := snap.Config.Calibration

	return StatusInner{
		State: state,
		Ready: snap.Ready,
		Output: OutputJSON{
			Level:  st.Level,
			Target: st.Target,
		},
		Inputs: InputsJSON{
			Voltage:      round2(st.Voltage),
			PowerOK:      st.PowerOK,
			Light:        round2(st.Light),
			LightEnabled: st.LightEnabled,
			Dark:         st.Dark,
			Request:      st.Request,
			Override:     st.Override,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Off:        st.Counts.Off,
			OnBright:   st.Counts.OnBright,
			OnDim:      st.Counts.OnDim,
			ForceOn:    st.Counts.ForceOn,
			Flash:      st.Counts.Flash,
			Diagnostic: st.Counts.Diagnostic,
		},
		Config: ConfigJSON{
			TickMs:           snap.Config.TickMs,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
			VoltageLower:     cal.VoltageLower,
			VoltageUpper:     cal.VoltageUpper,
			LightLower:       cal.LightLower,
			LightUpper:       cal.LightUpper,
			FlashMs:          cal.FlashDuration.Milliseconds(),
			OverrideWindowMs: cal.OverrideWindow.Milliseconds(),
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
