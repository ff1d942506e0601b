package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/beam-controller/internal/logic"
)

const (
	bufferCapacity = 256
	publishTimeout = 5 * time.Second
	connectWait    = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker      string
	ClientID    string // a random suffix is appended
	Username    string
	Password    string
	TopicPrefix string
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect. Commands
// received on the command topic are delivered on Commands().
type RealPublisher struct {
	client   paho.Client
	topics   Topics
	logger   *slog.Logger
	commands chan Command

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher and starts connecting in the
// background. It does not fail when the broker is unreachable; the client
// keeps retrying and buffers in the meantime.
func NewRealPublisher(opts Options, logger *slog.Logger) *RealPublisher {
	p := &RealPublisher{
		topics:   TopicsFor(opts.TopicPrefix),
		logger:   logger,
		commands: make(chan Command, 4),
		buf:      newRingBuffer(bufferCapacity, logger),
	}

	lwt, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "connection lost"})

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(fmt.Sprintf("%s-%s", opts.ClientID, uuid.NewString()[:8])).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetMaxReconnectInterval(30*time.Second).
		SetWill(p.topics.System, string(lwt), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(connectWait) {
		logger.Warn("mqtt broker not reachable yet, buffering", "broker", opts.Broker)
	} else if err := token.Error(); err != nil {
		logger.Warn("mqtt connect failed, retrying", "broker", opts.Broker, "error", err)
	}

	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.logger.Info("mqtt connected")

	token := c.Subscribe(p.topics.Command, 1, p.onCommand)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		p.logger.Error("mqtt subscribe failed", "topic", p.topics.Command, "error", token.Error())
	}

	p.mu.Lock()
	pending := p.buf.drainAll()
	p.mu.Unlock()

	if len(pending) > 0 {
		p.logger.Info("mqtt replaying buffered messages", "count", len(pending))
	}
	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.logger.Warn("mqtt replay failed", "topic", m.topic, "error", err)
		}
	}
}

func (p *RealPublisher) onCommand(_ paho.Client, msg paho.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		p.logger.Warn("mqtt ignoring command", "error", err)
		return
	}
	select {
	case p.commands <- cmd:
	default:
		p.logger.Warn("mqtt command dropped, queue full", "command", cmd)
	}
}

// Commands delivers parsed commands from the command topic.
func (p *RealPublisher) Commands() <-chan Command {
	return p.commands
}

// Publish sends a state transition to the MQTT broker.
func (p *RealPublisher) Publish(tr logic.Transition) error {
	payload, err := FormatPayload(tr)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: p.topics.Events, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - lifecycle events should be delivered
	return p.publish(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the connection to the broker is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second grace period
	return nil
}
