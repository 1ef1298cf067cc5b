package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/garage-door/internal/door"
)

const (
	// bufferSize bounds messages held while disconnected.
	bufferSize = 100
	// commandQueue bounds commands waiting for the main loop.
	commandQueue = 16
)

// RealPublisher publishes to an actual MQTT broker and receives door
// commands. Messages published while disconnected are buffered and replayed
// on reconnect.
type RealPublisher struct {
	client   paho.Client
	commands chan Command

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	connects  int
}

// NewRealPublisher creates a publisher for the given broker. The connection
// is established in the background and retried until it succeeds.
func NewRealPublisher(broker string) *RealPublisher {
	p := &RealPublisher{
		commands: make(chan Command, commandQueue),
		buf:      newRingBuffer(bufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("garage-door").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	token := c.Subscribe(CommandSubscription, 1, p.onMessage)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("mqtt: subscribe %s: %v", CommandSubscription, token.Error())
	}

	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnect := p.connects > 1
	pending := p.buf.drainAll()
	p.mu.Unlock()

	if len(pending) > 0 {
		log.Printf("mqtt: connected, replaying %d buffered messages", len(pending))
	}
	for _, m := range pending {
		if err := p.send(m); err != nil {
			log.Printf("mqtt: replay to %s: %v", m.topic, err)
		}
	}

	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			log.Printf("mqtt: publish reconnected event: %v", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(c paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

func (p *RealPublisher) onMessage(c paho.Client, m paho.Message) {
	cmd, err := ParseCommand(m.Topic(), m.Payload())
	if err != nil {
		log.Printf("mqtt: ignoring message: %v", err)
		return
	}
	select {
	case p.commands <- cmd:
	default:
		log.Printf("mqtt: command queue full, dropping %s for %s", cmd.Action, cmd.Door)
	}
}

// PublishStatus sends a door's status, retained, at QoS 1.
func (p *RealPublisher) PublishStatus(u door.Update) error {
	payload, err := FormatPayload(u)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: StatusTopic(u.Door), payload: payload, qos: 1, retained: true})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - we want to ensure delivery
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Commands returns the channel of received door commands.
func (p *RealPublisher) Commands() <-chan Command {
	return p.commands
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
