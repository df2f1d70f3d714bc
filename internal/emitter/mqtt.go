package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt not connected")

// MQTTEmitter publishes repetition events to an MQTT broker
type MQTTEmitter struct {
	cfg    Config
	Client mqtt.Client

	events chan Event
	done   chan struct{}
	once   sync.Once

	mu        sync.RWMutex
	published uint64
	dropped   uint64
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates a new MQTT emitter. Call Connect, then Run.
func NewMQTTEmitter(cfg Config) *MQTTEmitter {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultConfig().QueueSize
	}
	return &MQTTEmitter{
		cfg:    cfg,
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
}

// Connect establishes connection to MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("emitter: mqtt connection established", "broker", e.cfg.Broker, "client_id", e.cfg.ClientID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect", "broker", e.cfg.Broker, "error", err)
	}

	e.Client = mqtt.NewClient(opts)

	slog.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.Client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Notify queues an event. When the queue is full the event is dropped.
func (e *MQTTEmitter) Notify(sessionID string, count int) {
	ev := Event{SessionID: sessionID, Count: count, Timestamp: time.Now().UTC()}
	select {
	case e.events <- ev:
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		slog.Warn("emitter: queue full, event dropped", "session_id", sessionID, "count", count)
	}
}

// Run publishes queued events until ctx is cancelled or Close is called.
func (e *MQTTEmitter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case ev := <-e.events:
			if err := e.Publish(ev); err != nil {
				slog.Warn("emitter: publish failed", "session_id", ev.SessionID, "error", err)
			}
		}
	}
}

// Publish sends one event and waits for the broker acknowledgement.
func (e *MQTTEmitter) Publish(ev Event) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := ev.ToJSON()
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := ev.Topic(e.cfg.TopicPrefix)
	token := e.Client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	slog.Debug("emitter: event published", "topic", topic, "count", ev.Count, "size", len(payload))
	return nil
}

// Close stops Run and disconnects from the broker.
func (e *MQTTEmitter) Close() error {
	e.once.Do(func() { close(e.done) })

	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		slog.Info("emitter: mqtt disconnected")
	}
	e.setConnected(false)
	return nil
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Connected: e.connected,
		Published: e.published,
		Dropped:   e.dropped,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// brokerURL adds the tcp scheme to bare host:port addresses.
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
