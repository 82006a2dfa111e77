package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// DefaultClientID identifies the daemon to the broker.
const DefaultClientID = "whackamole"

// RealPublisher publishes to an actual MQTT broker and subscribes to the
// command topic. Messages published while disconnected are buffered and
// replayed on reconnect.
type RealPublisher struct {
	client    paho.Client
	topics    Topics
	onCommand CommandHandler
	log       logrus.FieldLogger

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher connects to broker. If the broker is unreachable the
// client keeps retrying in the background and NewRealPublisher still
// succeeds; publishes are buffered until the connection comes up.
func NewRealPublisher(broker, clientID string, topics Topics, onCommand CommandHandler, log logrus.FieldLogger) (*RealPublisher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if clientID == "" {
		clientID = DefaultClientID
	}
	p := &RealPublisher{
		topics:    topics,
		onCommand: onCommand,
		log:       log.WithField("broker", broker),
	}
	p.buf = newRingBuffer(defaultBufferSize, p.log)

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(topics.System, WillPayload(), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.WithError(err).Warn("mqtt connection lost")
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.log.Warn("mqtt broker not reachable yet, buffering until connected")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// onConnect runs on every (re)connect: subscribe, then replay the buffer.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.log.Info("mqtt connected")
	if p.onCommand != nil {
		token := c.Subscribe(p.topics.Command, 1, func(_ paho.Client, m paho.Message) {
			p.onCommand(m.Payload())
		})
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			p.log.WithError(token.Error()).Error("subscribe to command topic failed")
		}
	}

	p.mu.Lock()
	pending := p.buf.drainAll()
	p.mu.Unlock()
	for _, m := range pending {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	if len(pending) > 0 {
		p.log.WithField("messages", len(pending)).Info("replayed buffered messages")
	}
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishPress sends a button press (QoS 1, not retained).
func (p *RealPublisher) PublishPress(event PressEvent) error {
	payload, err := FormatPressPayload(event)
	if err != nil {
		return fmt.Errorf("format press payload: %w", err)
	}
	return p.publish(p.topics.Events, 1, false, payload)
}

// PublishState sends the indicator states (QoS 0, retained).
func (p *RealPublisher) PublishState(event StateEvent) error {
	payload, err := FormatStatePayload(event)
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}
	return p.publish(p.topics.State, 0, true, payload)
}

// PublishSystem sends a system lifecycle event (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(p.topics.System, 1, event.Retained, payload)
}

// IsConnected reports whether the client currently has a live connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}
