package config

import (
	"fmt"
)

// Validate checks the configuration for invalid values
func Validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if cfg.Server.ShutdownTimeoutS < 0 {
		return fmt.Errorf("server.shutdown_timeout_s must be >= 0, got %d", cfg.Server.ShutdownTimeoutS)
	}

	if err := cfg.Counter.Validate(); err != nil {
		return fmt.Errorf("counter: %w", err)
	}

	if err := validateConfidence("pose.min_detection_confidence", cfg.Pose.MinDetectionConfidence); err != nil {
		return err
	}
	if err := validateConfidence("pose.min_tracking_confidence", cfg.Pose.MinTrackingConfidence); err != nil {
		return err
	}

	if len(cfg.Video.Codecs) == 0 {
		return fmt.Errorf("video.codecs must list at least one codec")
	}
	for _, c := range cfg.Video.Codecs {
		if len(c) != 4 {
			return fmt.Errorf("video.codecs: %q is not a FourCC code", c)
		}
	}
	if cfg.Video.MaxConcurrentJobs < 1 {
		return fmt.Errorf("video.max_concurrent_jobs must be >= 1, got %d", cfg.Video.MaxConcurrentJobs)
	}

	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}
	if cfg.MQTT.Broker != "" && cfg.MQTT.TopicPrefix == "" {
		return fmt.Errorf("mqtt.topic_prefix is required when mqtt.broker is set")
	}

	if cfg.Kiosk.FPS <= 0 || cfg.Kiosk.FPS > 60 {
		return fmt.Errorf("kiosk.fps must be in 1..60, got %d", cfg.Kiosk.FPS)
	}
	if cfg.Kiosk.JPEGQuality < 1 || cfg.Kiosk.JPEGQuality > 100 {
		return fmt.Errorf("kiosk.jpeg_quality must be in 1..100, got %d", cfg.Kiosk.JPEGQuality)
	}

	return nil
}

func validateConfidence(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be in [0, 1], got %.2f", name, v)
	}
	return nil
}
