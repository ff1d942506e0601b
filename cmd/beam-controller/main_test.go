package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/beam-controller/internal/adc"
	"github.com/sweeney/beam-controller/internal/gpio"
	"github.com/sweeney/beam-controller/internal/logic"
	"github.com/sweeney/beam-controller/internal/mqtt"
	"github.com/sweeney/beam-controller/internal/pwm"
	"github.com/sweeney/beam-controller/internal/status"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from the loop goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// repeat returns n copies of v.
func repeat(v bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

type harness struct {
	request *gpio.FakeReader
	analog  *adc.FakeReader
	out     *pwm.FakeOutput
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	console *bytes.Buffer
	logs    *bytes.Buffer
	d       *daemon
}

// newHarness builds a daemon on fakes. The initial request value is the
// first scripted sample.
func newHarness(t *testing.T, samples []bool, volts, light float64, heartbeat time.Duration) *harness {
	t.Helper()
	h := &harness{
		request: gpio.NewFakeReader(samples...),
		analog:  &adc.FakeReader{Volts: volts, Counts: light},
		out:     &pwm.FakeOutput{},
		pub:     mqtt.NewFakePublisher(),
		console: &bytes.Buffer{},
		logs:    &bytes.Buffer{},
	}
	cal := logic.DefaultCalibration()
	ctrl, err := logic.NewController(cal, logic.InitialSample{Voltage: volts, Light: light, Request: samples[0]}, t0)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	h.tracker = status.NewTracker(t0, status.Config{Calibration: cal})
	h.d = newDaemon(daemonConfig{
		ctrl:      ctrl,
		request:   h.request,
		analog:    h.analog,
		out:       h.out,
		publisher: h.pub,
		conn:      h.pub,
		tracker:   h.tracker,
		logger:    slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		heartbeat: heartbeat,
		console:   h.console,
	})
	return h
}

// loopRun drives daemon.loop over unbuffered channels, so every send returns
// only once the loop has picked it up and the previous one is finished.
type loopRun struct {
	tick  chan time.Time
	sig   chan os.Signal
	lines chan string
	cmds  chan mqtt.Command
	errCh chan error
}

// startLoop runs the loop with a clock that advances 1ms per event,
// starting 1ms after the controller was created.
func startLoop(h *harness) *loopRun {
	r := &loopRun{
		tick:  make(chan time.Time),
		sig:   make(chan os.Signal, 1),
		lines: make(chan string),
		cmds:  make(chan mqtt.Command),
		errCh: make(chan error, 1),
	}
	clock := fakeClock(t0.Add(time.Millisecond), time.Millisecond)
	go func() {
		r.errCh <- h.d.loop(clock, r.tick, r.sig, r.lines, r.cmds)
	}()
	return r
}

// sync waits until the loop has finished the previous event. It costs one
// clock step.
func (r *loopRun) sync() {
	r.lines <- ""
}

func (r *loopRun) ticks(n int) {
	for i := 0; i < n; i++ {
		r.tick <- time.Time{}
	}
}

// stop sends sig and waits for the loop (and its telemetry) to finish.
func (r *loopRun) stop(t *testing.T, sig os.Signal) {
	t.Helper()
	r.sig <- sig
	if err := <-r.errCh; err != nil {
		t.Fatalf("loop returned error: %v", err)
	}
}

func transitions(pub *mqtt.FakePublisher) []string {
	out := make([]string, len(pub.Transitions))
	for i, tr := range pub.Transitions {
		out[i] = string(tr.From) + "->" + string(tr.To)
	}
	return out
}

func equal(a, b []string) bool {
	return strings.Join(a, ",") == strings.Join(b, ",")
}

func TestLoopIdle(t *testing.T) {
	h := newHarness(t, []bool{false}, 13.0, 800, 0)
	r := startLoop(h)
	r.ticks(50)
	r.stop(t, syscall.SIGTERM)

	if len(h.pub.Transitions) != 0 {
		t.Errorf("expected no transitions, got %v", transitions(h.pub))
	}
	if len(h.out.Steps) != 0 {
		t.Errorf("expected no output steps, got %d", len(h.out.Steps))
	}
	if names := h.pub.SystemEventNames(); !equal(names, []string{"SHUTDOWN"}) {
		t.Fatalf("system events: got %v, want [SHUTDOWN]", names)
	}
	ev := h.pub.SystemEvents[0]
	if ev.Reason != "SIGTERM" || !ev.Retained {
		t.Errorf("shutdown event: got reason %q retained %v", ev.Reason, ev.Retained)
	}
}

func TestLoopRequestWithPowerRampsUp(t *testing.T) {
	// Raw request rises at ms2 and is confirmed at ms23
	samples := append([]bool{false}, repeat(true, 60)...)
	h := newHarness(t, samples, 13.0, 800, 0)
	r := startLoop(h)
	r.ticks(60)
	r.stop(t, syscall.SIGINT)

	if got := transitions(h.pub); !equal(got, []string{"OFF->ON_BRIGHT"}) {
		t.Fatalf("transitions: got %v", got)
	}
	if want := t0.Add(23 * time.Millisecond); !h.pub.Transitions[0].Time.Equal(want) {
		t.Errorf("transition time: got %v, want %v", h.pub.Transitions[0].Time, want)
	}

	wantLevels := []int{3, 6, 9, 12}
	if len(h.out.Steps) != len(wantLevels) {
		t.Fatalf("steps: got %v, want levels %v", h.out.Steps, wantLevels)
	}
	for i, lvl := range wantLevels {
		if h.out.Steps[i] != (logic.Step{Level: lvl, Complement: 255 - lvl}) {
			t.Errorf("step %d: got %+v, want level %d", i, h.out.Steps[i], lvl)
		}
	}

	if h.analog.VoltageReads != 0 {
		t.Errorf("voltage sampled %d times before its interval elapsed", h.analog.VoltageReads)
	}
	if h.pub.SystemEvents[0].Reason != "SIGINT" {
		t.Errorf("shutdown reason: got %q, want SIGINT", h.pub.SystemEvents[0].Reason)
	}

	snap := h.tracker.Snapshot()
	if snap.Controller.State != logic.StateOnBright || snap.Controller.Level != 12 {
		t.Errorf("tracker: got state %s level %d", snap.Controller.State, snap.Controller.Level)
	}
}

func TestLoopLowPowerFlashesThenDims(t *testing.T) {
	samples := append([]bool{false}, repeat(true, 600)...)
	h := newHarness(t, samples, 11.0, 300, 0)
	r := startLoop(h)
	r.ticks(600)
	r.stop(t, syscall.SIGTERM)

	want := []string{"OFF->FLASH", "FLASH->ON_DIM"}
	if got := transitions(h.pub); !equal(got, want) {
		t.Fatalf("transitions: got %v, want %v", got, want)
	}
	// Flash lasts strictly longer than 500ms
	if want := t0.Add(524 * time.Millisecond); !h.pub.Transitions[1].Time.Equal(want) {
		t.Errorf("flash end: got %v, want %v", h.pub.Transitions[1].Time, want)
	}
	if h.analog.VoltageReads == 0 {
		t.Error("expected voltage to be sampled")
	}
	if target := h.tracker.Snapshot().Controller.Target; target != 0 {
		t.Errorf("target after flash: got %d, want 0", target)
	}
}

func TestLoopDiagnosticsFromConsole(t *testing.T) {
	h := newHarness(t, []bool{false}, 13.0, 800, 0)
	r := startLoop(h)
	r.ticks(5)              // ms1-5
	r.lines <- "d"          // ms6
	r.lines <- "level 100"  // ms7
	r.lines <- "frobnicate" // ms8
	r.lines <- "exit"       // ms9
	r.ticks(20)             // ms10-29, ramp steps at ms20
	r.stop(t, syscall.SIGTERM)

	want := []string{"OFF->DIAGNOSTIC", "DIAGNOSTIC->OFF"}
	if got := transitions(h.pub); !equal(got, want) {
		t.Fatalf("transitions: got %v, want %v", got, want)
	}

	wantSteps := []logic.Step{{Level: 100, Complement: 155}, {Level: 97, Complement: 158}}
	if len(h.out.Steps) != len(wantSteps) {
		t.Fatalf("steps: got %+v, want %+v", h.out.Steps, wantSteps)
	}
	for i := range wantSteps {
		if h.out.Steps[i] != wantSteps[i] {
			t.Errorf("step %d: got %+v, want %+v", i, h.out.Steps[i], wantSteps[i])
		}
	}

	console := h.console.String()
	for _, s := range []string{"type help", "level 100", "error: unknown command", "resumed"} {
		if !strings.Contains(console, s) {
			t.Errorf("console output missing %q:\n%s", s, console)
		}
	}
}

func TestLoopIgnoresLinesOutsideDiagnostics(t *testing.T) {
	h := newHarness(t, []bool{false}, 13.0, 800, 0)
	r := startLoop(h)
	r.lines <- "level 200"
	r.lines <- "exit"
	r.ticks(3)
	r.stop(t, syscall.SIGTERM)

	if len(h.pub.Transitions) != 0 || len(h.out.Steps) != 0 {
		t.Errorf("expected no effect, got transitions %v steps %v", transitions(h.pub), h.out.Steps)
	}
}

func TestLoopDiagnosticsFromCommands(t *testing.T) {
	h := newHarness(t, []bool{false}, 13.0, 800, 0)
	r := startLoop(h)
	r.cmds <- mqtt.CommandResume // ignored, not in diagnostics
	r.cmds <- mqtt.CommandDiag
	r.ticks(3)
	if st := h.tracker.Snapshot().Controller.State; st != logic.StateDiagnostic {
		t.Errorf("tracker state during diagnostics: got %s", st)
	}
	r.cmds <- mqtt.CommandDiag // already there
	r.cmds <- mqtt.CommandResume
	r.ticks(3)
	r.stop(t, syscall.SIGTERM)

	want := []string{"OFF->DIAGNOSTIC", "DIAGNOSTIC->OFF"}
	if got := transitions(h.pub); !equal(got, want) {
		t.Fatalf("transitions: got %v, want %v", got, want)
	}
	if n := h.tracker.Snapshot().Controller.Counts.Diagnostic; n != 1 {
		t.Errorf("diagnostic count: got %d, want 1", n)
	}
}

func TestLoopClosedLinesChannel(t *testing.T) {
	h := newHarness(t, []bool{false}, 13.0, 800, 0)
	r := startLoop(h)
	close(r.lines)
	r.ticks(10)
	r.stop(t, syscall.SIGTERM)

	if names := h.pub.SystemEventNames(); !equal(names, []string{"SHUTDOWN"}) {
		t.Errorf("system events: got %v", names)
	}
}

func TestLoopHeartbeat(t *testing.T) {
	h := newHarness(t, []bool{false}, 13.0, 800, 10*time.Millisecond)
	h.pub.Connected = true
	r := startLoop(h)
	r.ticks(25)
	r.stop(t, syscall.SIGTERM)

	want := []string{"HEARTBEAT", "HEARTBEAT", "SHUTDOWN"}
	if names := h.pub.SystemEventNames(); !equal(names, want) {
		t.Fatalf("system events: got %v, want %v", names, want)
	}

	hb := h.pub.SystemEvents[0]
	if hb.Retained {
		t.Error("heartbeat should not be retained")
	}
	if !hb.Timestamp.Equal(t0.Add(10 * time.Millisecond)) {
		t.Errorf("heartbeat time: got %v", hb.Timestamp)
	}
	payload := string(h.pub.SystemPayloads[0])
	for _, s := range []string{`"event":"HEARTBEAT"`, `"state":"OFF"`, `"connected":true`} {
		if !strings.Contains(payload, s) {
			t.Errorf("heartbeat payload missing %s: %s", s, payload)
		}
	}
}

func TestStartupEvent(t *testing.T) {
	h := newHarness(t, []bool{false}, 13.0, 800, 0)
	h.d.startup(logic.InitialSample{Voltage: 13.0, Light: 800}, t0)
	r := startLoop(h)
	r.stop(t, syscall.SIGTERM)

	if names := h.pub.SystemEventNames(); !equal(names, []string{"STARTUP", "SHUTDOWN"}) {
		t.Fatalf("system events: got %v", names)
	}
	if !h.pub.SystemEvents[0].Retained {
		t.Error("startup should be retained")
	}
	if last, ok := h.out.Last(); !ok || last != (logic.Step{Level: 0, Complement: 255}) {
		t.Errorf("initial output: got %+v (ok=%v)", last, ok)
	}
	if !strings.Contains(h.logs.String(), "voltage_span=1.5s") {
		t.Errorf("startup report missing averaging span:\n%s", h.logs.String())
	}
}

func TestStartupWarnsWhenLightSensorDisabled(t *testing.T) {
	h := newHarness(t, []bool{false}, 13.0, 1023, 0)
	h.d.startup(logic.InitialSample{Voltage: 13.0, Light: 1023}, t0)
	h.d.telemetry.close()

	if !strings.Contains(h.logs.String(), "light sensor disabled") {
		t.Errorf("expected disabled sensor warning:\n%s", h.logs.String())
	}
}

func TestLoopReadErrorsLoggedOnce(t *testing.T) {
	h := newHarness(t, []bool{false}, 13.0, 800, 0)
	h.analog.VoltageError = errors.New("iio timeout")
	r := startLoop(h)
	r.ticks(150)
	r.stop(t, syscall.SIGTERM)

	// Due from ms101; a failed read leaves the channel due on every tick
	if h.analog.VoltageReads != 50 {
		t.Errorf("voltage reads: got %d, want 50", h.analog.VoltageReads)
	}
	if n := strings.Count(h.logs.String(), "read failed"); n != 1 {
		t.Errorf("read failure logged %d times, want 1", n)
	}
}

func TestLoopRequestReadErrorKeepsLastValue(t *testing.T) {
	samples := append([]bool{false}, repeat(true, 10)...)
	h := newHarness(t, samples, 13.0, 800, 0)
	r := startLoop(h)
	r.ticks(10) // raw true from ms2
	r.sync()    // ms11
	h.request.ReadError = errors.New("gpio fault")
	r.ticks(20) // ms12-31, still treated as true
	r.stop(t, syscall.SIGTERM)

	if got := transitions(h.pub); !equal(got, []string{"OFF->ON_BRIGHT"}) {
		t.Errorf("transitions: got %v", got)
	}
	if !strings.Contains(h.logs.String(), "gpio fault") {
		t.Error("expected request read failure to be logged")
	}
}

func TestLoopPublishErrorDoesNotStop(t *testing.T) {
	samples := append([]bool{false}, repeat(true, 40)...)
	h := newHarness(t, samples, 13.0, 800, 0)
	h.pub.PublishError = errors.New("broker down")
	h.out.ApplyError = errors.New("pwm busy")
	r := startLoop(h)
	r.ticks(40)
	r.stop(t, syscall.SIGTERM)

	if h.tracker.Snapshot().Controller.State != logic.StateOnBright {
		t.Error("controller should keep running despite collaborator errors")
	}
	if len(h.pub.Transitions) != 0 {
		t.Errorf("expected no recorded transitions, got %d", len(h.pub.Transitions))
	}
	if !strings.Contains(h.logs.String(), "broker down") {
		t.Error("expected publish error to be logged")
	}
}

func TestTelemetryWithoutPublisher(t *testing.T) {
	tel := startTelemetry(nil, discardLogger(), 1)
	tel.send(telemetryMsg{system: &mqtt.SystemEvent{Event: "STARTUP"}})
	tel.sendWait(telemetryMsg{system: &mqtt.SystemEvent{Event: "SHUTDOWN"}})
	tel.close()
}

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := signalName(tt.sig); got != tt.want {
			t.Errorf("signalName(%v): got %q, want %q", tt.sig, got, tt.want)
		}
	}
}

func TestCalibrationCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beam.yaml")
	if err := os.WriteFile(path, []byte("calibration:\n  voltage_upper: 25.2\n  voltage_lower: 23.4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"calibration", "--config", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if !strings.Contains(out.String(), "voltage_upper: 25.2") {
		t.Errorf("output missing file override:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "light_upper: 600") {
		t.Errorf("output missing defaults:\n%s", out.String())
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"calibration", "--tick", "0s"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for zero tick")
	}
}

func TestReadInitial(t *testing.T) {
	s, err := readInitial(gpio.NewFakeReader(true), &adc.FakeReader{Volts: 12.1, Counts: 420})
	if err != nil {
		t.Fatalf("readInitial: %v", err)
	}
	if s != (logic.InitialSample{Voltage: 12.1, Light: 420, Request: true}) {
		t.Errorf("got %+v", s)
	}

	_, err = readInitial(gpio.NewFakeReader(), &adc.FakeReader{LightError: errors.New("eio")})
	if err == nil || !strings.Contains(err.Error(), "light: eio") || !strings.Contains(err.Error(), "request:") {
		t.Errorf("expected joined light and request errors, got %v", err)
	}
}
