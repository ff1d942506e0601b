package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sweeney/beam-controller/internal/adc"
	"github.com/sweeney/beam-controller/internal/diag"
	"github.com/sweeney/beam-controller/internal/gpio"
	"github.com/sweeney/beam-controller/internal/logic"
	"github.com/sweeney/beam-controller/internal/mqtt"
	"github.com/sweeney/beam-controller/internal/status"
)

// Output receives ramp steps.
type Output interface {
	Apply(s logic.Step) error
}

type daemonConfig struct {
	ctrl      *logic.Controller
	request   gpio.Reader
	analog    adc.Reader
	out       Output
	publisher mqtt.Publisher        // nil disables telemetry
	conn      mqtt.ConnectionStatus // may be nil
	tracker   *status.Tracker       // may be nil
	logger    *slog.Logger
	heartbeat time.Duration
	console   io.Writer // diagnostic console replies
}

// daemon owns the controller. Every method runs on the loop goroutine.
type daemon struct {
	daemonConfig

	telemetry *telemetry
	diag      *diag.Console // non-nil while in diagnostics

	lastRaw    bool
	readFailed map[string]bool
}

func newDaemon(cfg daemonConfig) *daemon {
	if cfg.logger == nil {
		cfg.logger = discardLogger()
	}
	if cfg.console == nil {
		cfg.console = io.Discard
	}
	return &daemon{
		daemonConfig: cfg,
		telemetry:    startTelemetry(cfg.publisher, cfg.logger, telemetryDepth),
		lastRaw:      cfg.ctrl.Status().Request,
		readFailed:   make(map[string]bool),
	}
}

// startup applies the initial output, logs the startup report and queues
// the STARTUP event.
func (d *daemon) startup(initial logic.InitialSample, now time.Time) {
	cal := d.ctrl.Calibration()
	st := d.ctrl.Status()

	if err := d.out.Apply(logic.Step{Level: st.Level, Complement: cal.MaxLevel - st.Level}); err != nil {
		d.logger.Warn("initial output", "error", err)
	}

	d.logger.Info("started",
		"voltage", initial.Voltage,
		"light", initial.Light,
		"light_enabled", d.ctrl.LightEnabled(),
		"request", initial.Request,
		"voltage_span", cal.VoltageInterval*time.Duration(cal.VoltageWindow),
		"light_span", cal.LightInterval*time.Duration(cal.LightWindow),
		"heartbeat", d.heartbeat,
	)
	if !d.ctrl.LightEnabled() {
		d.logger.Warn("light sensor disabled, treating as dark", "reading", initial.Light, "ceiling", cal.LightCeiling)
	}

	d.systemEvent("STARTUP", "", now, false)
}

// loop runs until a signal arrives. tick drives the controller, lines carry
// console input and commands carry MQTT requests. The telemetry queue is
// drained before loop returns.
func (d *daemon) loop(now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, lines <-chan string, commands <-chan mqtt.Command) error {
	defer d.telemetry.close()

	for {
		select {
		case s := <-sig:
			name := signalName(s)
			d.logger.Info("shutting down", "signal", name)
			d.systemEvent("SHUTDOWN", name, now(), true)
			return nil

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			d.handleLine(line, now())

		case cmd := <-commands:
			d.handleCommand(cmd, now())

		case <-tick:
			d.tick(now())
		}
	}
}

func (d *daemon) tick(t time.Time) {
	raw, err := d.request.Read()
	if d.checkRead("request", err) {
		d.lastRaw = raw
	}

	if d.ctrl.State() != logic.StateDiagnostic {
		if d.ctrl.VoltageDue(t) {
			v, err := d.analog.Voltage()
			if d.checkRead("voltage", err) {
				d.ctrl.UpdateVoltage(v, t)
			}
		}
		if d.ctrl.LightDue(t) {
			l, err := d.analog.Light()
			if d.checkRead("light", err) {
				d.ctrl.UpdateLight(l, t)
			}
		}
	}

	res := d.ctrl.Tick(logic.Input{Request: d.lastRaw, Time: t})
	if res.Transition != nil {
		d.emit(res.Transition)
	}
	if res.Step != nil {
		if err := d.out.Apply(*res.Step); err != nil {
			d.logger.Warn("output error", "level", res.Step.Level, "error", err)
		} else {
			d.logger.Debug("step", "level", res.Step.Level, "complement", res.Step.Complement)
		}
	}

	if hb := d.ctrl.CheckHeartbeat(t, d.heartbeat); hb != nil {
		d.logger.Info("heartbeat",
			"uptime", hb.Uptime,
			"state", d.ctrl.State(),
			"off", hb.Counts.Off,
			"on_bright", hb.Counts.OnBright,
			"on_dim", hb.Counts.OnDim,
			"force_on", hb.Counts.ForceOn,
			"flash", hb.Counts.Flash,
		)
		d.systemEvent("HEARTBEAT", "", hb.Timestamp, false)
	}

	d.refreshStatus()
}

// checkRead reports whether err is nil, logging only when a collaborator
// starts or stops failing.
func (d *daemon) checkRead(what string, err error) bool {
	if err != nil {
		if !d.readFailed[what] {
			d.logger.Warn("read failed", "input", what, "error", err)
			d.readFailed[what] = true
		}
		return false
	}
	if d.readFailed[what] {
		d.logger.Info("read recovered", "input", what)
		d.readFailed[what] = false
	}
	return true
}

func (d *daemon) handleLine(line string, t time.Time) {
	if d.diag == nil {
		if strings.EqualFold(strings.TrimSpace(line), "d") {
			d.enterDiagnostics(t)
		}
		return
	}

	exit, err := d.diag.Exec(line)
	if err != nil {
		fmt.Fprintf(d.console, "error: %v\n", err)
	}
	if exit {
		d.resume(t)
	}
}

func (d *daemon) handleCommand(cmd mqtt.Command, t time.Time) {
	d.logger.Info("command received", "command", cmd)
	switch cmd {
	case mqtt.CommandDiag:
		d.enterDiagnostics(t)
	case mqtt.CommandResume:
		d.resume(t)
	}
}

func (d *daemon) enterDiagnostics(t time.Time) {
	tr, err := d.ctrl.EnterDiagnostics(t)
	if err != nil {
		d.logger.Warn("enter diagnostics", "error", err)
		return
	}
	d.diag = diag.New(d.analog, d.request, d.out, d.ctrl.Calibration().MaxLevel, d.ctrl.Status().Level, d.console)
	fmt.Fprintln(d.console, "diagnostics: type help for commands, exit to resume")
	d.emit(tr)
	d.refreshStatus()
}

func (d *daemon) resume(t time.Time) {
	if d.diag == nil {
		d.logger.Warn("resume ignored, not in diagnostics")
		return
	}
	tr, err := d.ctrl.Resume(t, d.diag.Level())
	if err != nil {
		d.logger.Warn("resume", "error", err)
		return
	}
	d.diag = nil
	fmt.Fprintln(d.console, "diagnostics: resumed")
	d.emit(tr)
	d.refreshStatus()
}

func (d *daemon) emit(tr *logic.Transition) {
	d.logger.Info("transition", "from", tr.From, "to", tr.To, "override", tr.Override)
	d.telemetry.send(telemetryMsg{transition: tr})
}

// systemEvent queues a lifecycle event carrying a full status snapshot.
// Blocking events wait for room in the queue.
func (d *daemon) systemEvent(name, reason string, t time.Time, block bool) {
	ev := mqtt.SystemEvent{
		Timestamp: t,
		Event:     name,
		Reason:    reason,
		Retained:  name != "HEARTBEAT",
	}
	if d.tracker != nil {
		d.refreshStatus()
		ev.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), name, reason)
	}

	msg := telemetryMsg{system: &ev}
	if block {
		d.telemetry.sendWait(msg)
	} else {
		d.telemetry.send(msg)
	}
}

func (d *daemon) refreshStatus() {
	if d.tracker == nil {
		return
	}
	d.tracker.Update(d.ctrl.Status())
	if d.conn != nil {
		d.tracker.SetMQTTConnected(d.conn.IsConnected())
	}
}
