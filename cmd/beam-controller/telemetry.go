package main

import (
	"log/slog"

	"github.com/sweeney/beam-controller/internal/logic"
	"github.com/sweeney/beam-controller/internal/mqtt"
)

const telemetryDepth = 64

type telemetryMsg struct {
	transition *logic.Transition
	system     *mqtt.SystemEvent
}

// telemetry publishes off the control loop so a slow broker never delays a
// tick.
type telemetry struct {
	pub    mqtt.Publisher
	logger *slog.Logger
	queue  chan telemetryMsg
	done   chan struct{}
}

func startTelemetry(pub mqtt.Publisher, logger *slog.Logger, depth int) *telemetry {
	t := &telemetry{
		pub:    pub,
		logger: logger,
		queue:  make(chan telemetryMsg, depth),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *telemetry) run() {
	defer close(t.done)
	for m := range t.queue {
		if t.pub == nil {
			continue
		}
		switch {
		case m.transition != nil:
			if err := t.pub.Publish(*m.transition); err != nil {
				t.logger.Warn("publish error", "to", m.transition.To, "error", err)
			}
		case m.system != nil:
			if err := t.pub.PublishSystem(*m.system); err != nil {
				t.logger.Warn("system publish error", "event", m.system.Event, "error", err)
			} else {
				t.logger.Debug("published system event", "event", m.system.Event)
			}
		}
	}
}

// send queues m, dropping it when the queue is full.
func (t *telemetry) send(m telemetryMsg) {
	select {
	case t.queue <- m:
	default:
		t.logger.Warn("telemetry queue full, dropping message")
	}
}

// sendWait queues m, waiting for room.
func (t *telemetry) sendWait(m telemetryMsg) {
	t.queue <- m
}

// close stops accepting messages and waits until the queue is drained.
func (t *telemetry) close() {
	close(t.queue)
	<-t.done
}
