// Package emitter publishes repetition events to an MQTT broker so
// scoreboards and other displays can follow live sessions.
package emitter

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config holds MQTT settings. An empty Broker disables publishing.
type Config struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	// QueueSize bounds events waiting to be published.
	QueueSize int `yaml:"queue_size"`
}

// DefaultConfig returns the default MQTT settings.
func DefaultConfig() Config {
	return Config{
		ClientID:    "repcounter",
		TopicPrefix: "repcounter/sessions",
		QueueSize:   64,
	}
}

// Event is published once per completed repetition.
type Event struct {
	SessionID string    `json:"session_id"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Topic returns the topic for the event under prefix.
func (ev Event) Topic(prefix string) string {
	return fmt.Sprintf("%s/%s/reps", prefix, ev.SessionID)
}

// ToJSON encodes the event payload.
func (ev Event) ToJSON() ([]byte, error) {
	return json.Marshal(ev)
}

// Emitter receives repetition notifications. Notify must not block the
// frame loop.
type Emitter interface {
	Notify(sessionID string, count int)
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Notify(string, int) {}

func (Noop) Close() error { return nil }
