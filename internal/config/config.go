// Package config loads the daemon's JSON configuration. Every leaf field
// is a pointer so a partial config file is safe: nil means "use the
// default", and the Get accessors fold the defaults in. The schema groups
// settings by subsystem so a config file reads like the wiring it
// describes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root of the configuration file.
type Config struct {
	Camera   *CameraConfig   `json:"camera,omitempty"`
	Detector *DetectorConfig `json:"detector,omitempty"`
	Relay    *RelayConfig    `json:"relay,omitempty"`
	Pipeline *PipelineConfig `json:"pipeline,omitempty"`
	MQTT     *MQTTConfig     `json:"mqtt,omitempty"`

	RegionFile *string `json:"region_file,omitempty"`
	DBPath     *string `json:"db_path,omitempty"`
	Listen     *string `json:"listen,omitempty"`
}

// CameraConfig selects and parameterizes the frame source.
type CameraConfig struct {
	Backend *string `json:"backend,omitempty"` // "ffmpeg", "opencv", or "mock"
	Input   *string `json:"input,omitempty"`   // device path, RTSP URL, or file
	Width   *int    `json:"width,omitempty"`
	Height  *int    `json:"height,omitempty"`
}

// DetectorConfig selects and parameterizes the object detector.
type DetectorConfig struct {
	Backend     *string  `json:"backend,omitempty"` // "dnn", "remote", or "mock"
	Weights     *string  `json:"weights,omitempty"`
	ModelConfig *string  `json:"model_config,omitempty"`
	ClassNames  *string  `json:"class_names,omitempty"`
	InputSize   *int     `json:"input_size,omitempty"`
	Server      *string  `json:"server,omitempty"` // remote backend address
	Confidence  *float64 `json:"confidence,omitempty"`
	Classes     []string `json:"classes,omitempty"` // nil keeps the default filter
}

// RelayConfig selects and parameterizes the actuator output.
type RelayConfig struct {
	Backend    *string `json:"backend,omitempty"` // "gpio", "serial", or "mock"
	Pin        *int    `json:"pin,omitempty"`     // BCM pin number
	ActiveLow  *bool   `json:"active_low,omitempty"`
	PulseMs    *int    `json:"pulse_ms,omitempty"`
	SerialPort *string `json:"serial_port,omitempty"`
	Channel    *int    `json:"channel,omitempty"`
}

// PipelineConfig holds the detection loop tunables.
type PipelineConfig struct {
	IntervalMs        *int     `json:"interval_ms,omitempty"`
	DrawingIntervalMs *int     `json:"drawing_interval_ms,omitempty"`
	CooldownSeconds   *float64 `json:"cooldown_seconds,omitempty"`
	RetryMs           *int     `json:"retry_ms,omitempty"`
	StreamQuality     *int     `json:"stream_quality,omitempty"`
	SnapshotQuality   *int     `json:"snapshot_quality,omitempty"`
}

// MQTTConfig parameterizes event publication. An absent section or empty
// broker disables it.
type MQTTConfig struct {
	Broker      *string `json:"broker,omitempty"` // e.g. "tcp://10.0.0.5:1883"
	TopicPrefix *string `json:"topic_prefix,omitempty"`
	ClientID    *string `json:"client_id,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with every field nil, so the accessors
// answer with the shipped defaults.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file. The file must have a .json
// extension and be under the max file size. Fields omitted from the JSON
// keep their defaults, so partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks every set field. Nil fields are always valid since the
// accessor substitutes a known-good default.
func (c *Config) Validate() error {
	if c.Camera != nil {
		if c.Camera.Backend != nil {
			switch *c.Camera.Backend {
			case "ffmpeg", "opencv", "mock":
			default:
				return fmt.Errorf("camera backend must be ffmpeg, opencv, or mock, got %q", *c.Camera.Backend)
			}
		}
		if c.Camera.Width != nil && *c.Camera.Width <= 0 {
			return fmt.Errorf("camera width must be positive, got %d", *c.Camera.Width)
		}
		if c.Camera.Height != nil && *c.Camera.Height <= 0 {
			return fmt.Errorf("camera height must be positive, got %d", *c.Camera.Height)
		}
	}

	if c.Detector != nil {
		if c.Detector.Backend != nil {
			switch *c.Detector.Backend {
			case "dnn", "remote", "mock":
			default:
				return fmt.Errorf("detector backend must be dnn, remote, or mock, got %q", *c.Detector.Backend)
			}
		}
		if c.Detector.Confidence != nil && (*c.Detector.Confidence <= 0 || *c.Detector.Confidence > 1) {
			return fmt.Errorf("detector confidence must be in (0, 1], got %f", *c.Detector.Confidence)
		}
		if c.Detector.InputSize != nil && *c.Detector.InputSize <= 0 {
			return fmt.Errorf("detector input_size must be positive, got %d", *c.Detector.InputSize)
		}
	}

	if c.Relay != nil {
		if c.Relay.Backend != nil {
			switch *c.Relay.Backend {
			case "gpio", "serial", "mock":
			default:
				return fmt.Errorf("relay backend must be gpio, serial, or mock, got %q", *c.Relay.Backend)
			}
		}
		if c.Relay.Pin != nil && *c.Relay.Pin < 0 {
			return fmt.Errorf("relay pin must be non-negative, got %d", *c.Relay.Pin)
		}
		if c.Relay.PulseMs != nil && *c.Relay.PulseMs <= 0 {
			return fmt.Errorf("relay pulse_ms must be positive, got %d", *c.Relay.PulseMs)
		}
		if c.Relay.Channel != nil && *c.Relay.Channel < 1 {
			return fmt.Errorf("relay channel must be at least 1, got %d", *c.Relay.Channel)
		}
	}

	if c.Pipeline != nil {
		if c.Pipeline.IntervalMs != nil && *c.Pipeline.IntervalMs <= 0 {
			return fmt.Errorf("pipeline interval_ms must be positive, got %d", *c.Pipeline.IntervalMs)
		}
		if c.Pipeline.DrawingIntervalMs != nil && *c.Pipeline.DrawingIntervalMs <= 0 {
			return fmt.Errorf("pipeline drawing_interval_ms must be positive, got %d", *c.Pipeline.DrawingIntervalMs)
		}
		if c.Pipeline.CooldownSeconds != nil && *c.Pipeline.CooldownSeconds < 0 {
			return fmt.Errorf("pipeline cooldown_seconds must be non-negative, got %f", *c.Pipeline.CooldownSeconds)
		}
		if c.Pipeline.RetryMs != nil && *c.Pipeline.RetryMs <= 0 {
			return fmt.Errorf("pipeline retry_ms must be positive, got %d", *c.Pipeline.RetryMs)
		}
		if c.Pipeline.StreamQuality != nil && (*c.Pipeline.StreamQuality < 1 || *c.Pipeline.StreamQuality > 100) {
			return fmt.Errorf("pipeline stream_quality must be between 1 and 100, got %d", *c.Pipeline.StreamQuality)
		}
		if c.Pipeline.SnapshotQuality != nil && (*c.Pipeline.SnapshotQuality < 1 || *c.Pipeline.SnapshotQuality > 100) {
			return fmt.Errorf("pipeline snapshot_quality must be between 1 and 100, got %d", *c.Pipeline.SnapshotQuality)
		}
	}

	if c.Listen != nil && *c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}

	return nil
}

// GetCameraBackend returns the camera backend or the default.
func (c *Config) GetCameraBackend() string {
	if c.Camera == nil || c.Camera.Backend == nil {
		return "ffmpeg" // default
	}
	return *c.Camera.Backend
}

// GetCameraInput returns the camera input or the default.
func (c *Config) GetCameraInput() string {
	if c.Camera == nil || c.Camera.Input == nil {
		return "/dev/video0" // default
	}
	return *c.Camera.Input
}

// GetCameraWidth returns the frame width or the default.
func (c *Config) GetCameraWidth() int {
	if c.Camera == nil || c.Camera.Width == nil {
		return 640 // default
	}
	return *c.Camera.Width
}

// GetCameraHeight returns the frame height or the default.
func (c *Config) GetCameraHeight() int {
	if c.Camera == nil || c.Camera.Height == nil {
		return 480 // default
	}
	return *c.Camera.Height
}

// GetDetectorBackend returns the detector backend or the default.
func (c *Config) GetDetectorBackend() string {
	if c.Detector == nil || c.Detector.Backend == nil {
		return "dnn" // default
	}
	return *c.Detector.Backend
}

// GetDetectorWeights returns the model weights path or the default.
func (c *Config) GetDetectorWeights() string {
	if c.Detector == nil || c.Detector.Weights == nil {
		return "models/yolov4-tiny.weights" // default
	}
	return *c.Detector.Weights
}

// GetDetectorModelConfig returns the model config path or the default.
func (c *Config) GetDetectorModelConfig() string {
	if c.Detector == nil || c.Detector.ModelConfig == nil {
		return "models/yolov4-tiny.cfg" // default
	}
	return *c.Detector.ModelConfig
}

// GetDetectorClassNames returns the class names file path or the default.
func (c *Config) GetDetectorClassNames() string {
	if c.Detector == nil || c.Detector.ClassNames == nil {
		return "models/coco.names" // default
	}
	return *c.Detector.ClassNames
}

// GetDetectorInputSize returns the network input square or the default.
func (c *Config) GetDetectorInputSize() int {
	if c.Detector == nil || c.Detector.InputSize == nil {
		return 416 // default
	}
	return *c.Detector.InputSize
}

// GetDetectorServer returns the remote detector address or the default.
func (c *Config) GetDetectorServer() string {
	if c.Detector == nil || c.Detector.Server == nil {
		return "127.0.0.1:8555" // default
	}
	return *c.Detector.Server
}

// GetDetectorConfidence returns the confidence threshold or the default.
func (c *Config) GetDetectorConfidence() float64 {
	if c.Detector == nil || c.Detector.Confidence == nil {
		return 0.25 // default
	}
	return *c.Detector.Confidence
}

// GetDetectorClasses returns the class filter or the default.
func (c *Config) GetDetectorClasses() []string {
	if c.Detector == nil || c.Detector.Classes == nil {
		return []string{"cat"} // default
	}
	return c.Detector.Classes
}

// GetRelayBackend returns the relay backend or the default.
func (c *Config) GetRelayBackend() string {
	if c.Relay == nil || c.Relay.Backend == nil {
		return "gpio" // default
	}
	return *c.Relay.Backend
}

// GetRelayPin returns the BCM pin number or the default.
func (c *Config) GetRelayPin() int {
	if c.Relay == nil || c.Relay.Pin == nil {
		return 18 // default
	}
	return *c.Relay.Pin
}

// GetRelayActiveLow reports the wiring polarity or the default.
func (c *Config) GetRelayActiveLow() bool {
	if c.Relay == nil || c.Relay.ActiveLow == nil {
		return true // default: common relay boards energize on low
	}
	return *c.Relay.ActiveLow
}

// GetRelayPulse returns the pulse hold duration or the default.
func (c *Config) GetRelayPulse() time.Duration {
	if c.Relay == nil || c.Relay.PulseMs == nil {
		return 500 * time.Millisecond // default
	}
	return time.Duration(*c.Relay.PulseMs) * time.Millisecond
}

// GetRelaySerialPort returns the serial relay port or the default.
func (c *Config) GetRelaySerialPort() string {
	if c.Relay == nil || c.Relay.SerialPort == nil {
		return "/dev/ttyUSB0" // default
	}
	return *c.Relay.SerialPort
}

// GetRelayChannel returns the serial relay channel or the default.
func (c *Config) GetRelayChannel() int {
	if c.Relay == nil || c.Relay.Channel == nil {
		return 1 // default
	}
	return *c.Relay.Channel
}

// GetPipelineInterval returns the loop interval or the default.
func (c *Config) GetPipelineInterval() time.Duration {
	if c.Pipeline == nil || c.Pipeline.IntervalMs == nil {
		return 33 * time.Millisecond // default, about 30 Hz
	}
	return time.Duration(*c.Pipeline.IntervalMs) * time.Millisecond
}

// GetDrawingInterval returns the drawing-mode interval or the default.
func (c *Config) GetDrawingInterval() time.Duration {
	if c.Pipeline == nil || c.Pipeline.DrawingIntervalMs == nil {
		return 100 * time.Millisecond // default
	}
	return time.Duration(*c.Pipeline.DrawingIntervalMs) * time.Millisecond
}

// GetCooldown returns the trigger cooldown or the default.
func (c *Config) GetCooldown() time.Duration {
	if c.Pipeline == nil || c.Pipeline.CooldownSeconds == nil {
		return 2 * time.Second // default
	}
	return time.Duration(*c.Pipeline.CooldownSeconds * float64(time.Second))
}

// GetRetryDelay returns the capture retry delay or the default.
func (c *Config) GetRetryDelay() time.Duration {
	if c.Pipeline == nil || c.Pipeline.RetryMs == nil {
		return 100 * time.Millisecond // default
	}
	return time.Duration(*c.Pipeline.RetryMs) * time.Millisecond
}

// GetStreamQuality returns the stream JPEG quality or the default.
func (c *Config) GetStreamQuality() int {
	if c.Pipeline == nil || c.Pipeline.StreamQuality == nil {
		return 85 // default
	}
	return *c.Pipeline.StreamQuality
}

// GetSnapshotQuality returns the snapshot JPEG quality or the default.
func (c *Config) GetSnapshotQuality() int {
	if c.Pipeline == nil || c.Pipeline.SnapshotQuality == nil {
		return 90 // default
	}
	return *c.Pipeline.SnapshotQuality
}

// GetMQTTBroker returns the broker URL, or empty when notifications are
// disabled.
func (c *Config) GetMQTTBroker() string {
	if c.MQTT == nil || c.MQTT.Broker == nil {
		return "" // default: disabled
	}
	return *c.MQTT.Broker
}

// GetMQTTTopicPrefix returns the topic prefix or the default.
func (c *Config) GetMQTTTopicPrefix() string {
	if c.MQTT == nil || c.MQTT.TopicPrefix == nil {
		return "catsentry" // default
	}
	return *c.MQTT.TopicPrefix
}

// GetMQTTClientID returns the client ID or the default.
func (c *Config) GetMQTTClientID() string {
	if c.MQTT == nil || c.MQTT.ClientID == nil {
		return "catsentry" // default
	}
	return *c.MQTT.ClientID
}

// GetRegionFile returns the region persistence path or the default.
func (c *Config) GetRegionFile() string {
	if c.RegionFile == nil {
		return "polygon_coordinates.json" // default
	}
	return *c.RegionFile
}

// GetDBPath returns the event database path or the default.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return "catsentry.db" // default
	}
	return *c.DBPath
}

// GetListen returns the HTTP listen address or the default.
func (c *Config) GetListen() string {
	if c.Listen == nil {
		return ":5000" // default
	}
	return *c.Listen
}
