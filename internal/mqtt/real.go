package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/fridge-daemon/internal/capture"
	"github.com/sweeney/fridge-daemon/internal/door"
)

const publishTimeout = 5 * time.Second

// Config configures RealPublisher.
type Config struct {
	Broker     string
	ClientID   string
	Device     string
	BufferSize int
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while disconnected are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	device string

	mu        sync.Mutex
	outbox    *outbox
	connected bool
	connects  int
}

// NewRealPublisher creates a publisher and starts connecting in the
// background. It never blocks on the broker.
func NewRealPublisher(cfg Config) *RealPublisher {
	if cfg.ClientID == "" {
		cfg.ClientID = "fridge-daemon-" + cfg.Device
	}
	p := &RealPublisher{device: cfg.Device, outbox: newOutbox(cfg.BufferSize)}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(SystemTopic(cfg.Device), will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(err) })

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// newWithClient wires a publisher to an existing client. Used by tests.
func newWithClient(c paho.Client, device string, bufferSize int) *RealPublisher {
	return &RealPublisher{client: c, device: device, outbox: newOutbox(bufferSize)}
}

func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnect := p.connects > 1
	pending := p.outbox.drain()
	p.mu.Unlock()

	if reconnect {
		log.Printf("mqtt: reconnected")
	} else {
		log.Printf("mqtt: connected")
	}
	if len(pending) > 0 {
		log.Printf("mqtt: replaying %d buffered messages", len(pending))
	}
	for _, m := range pending {
		if err := p.send(m); err != nil {
			log.Printf("mqtt: replay to %s failed: %v", m.topic, err)
		}
	}
	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		p.publish(pendingMsg{topic: SystemTopic(p.device), payload: payload, qos: 1})
	}
}

func (p *RealPublisher) onConnectionLost(err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

// PublishDoor sends a door transition, retained so new subscribers see the
// current state.
func (p *RealPublisher) PublishDoor(event door.Event) error {
	payload, err := FormatDoorPayload(event)
	if err != nil {
		return fmt.Errorf("format door payload: %w", err)
	}
	return p.publish(pendingMsg{topic: DoorTopic(p.device), payload: payload, qos: 1, retained: true})
}

// PublishCapture sends a capture summary.
func (p *RealPublisher) PublishCapture(result capture.Result) error {
	payload, err := FormatCapturePayload(result)
	if err != nil {
		return fmt.Errorf("format capture payload: %w", err)
	}
	return p.publish(pendingMsg{topic: CaptureTopic(p.device), payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(pendingMsg{topic: SystemTopic(p.device), payload: payload, qos: 1, retained: event.Retained})
}

// publish sends m now, or buffers it when the connection is down.
func (p *RealPublisher) publish(m pendingMsg) error {
	p.mu.Lock()
	if !p.connected || !p.client.IsConnectionOpen() {
		p.outbox.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.send(m); err != nil {
		p.mu.Lock()
		p.outbox.push(m)
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *RealPublisher) send(m pendingMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected && p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
