package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicVelocity string
	TopicSample   string
	TopicPose     string

	// Sample source
	// "mock", "serial" (bridge MCU streaming JSON samples), or "i2c" (BNO08x)
	SampleSource string

	SerialPort     string
	SerialBaudRate int

	I2CBus        string
	BNO08XI2CAddr uint16

	// Estimator
	Lambda    float64 // velocity leakage per sample, [0, 1)
	BiasAlpha float64 // bias EMA coefficient, (0, 1]
	ZeroVZ    bool    // ground-vehicle constraint

	// Drift calibration
	CalibrationDuration float64 // stationary window length, seconds
	CalibrationFile     string  // producer loads drift rate from here if present

	// Axis convention adapter for published vectors ("" = identity)
	AxisTransform string

	// Timing
	SampleInterval     int // milliseconds
	ConsoleLogInterval int // milliseconds

	// Web Server
	WebServerPort int

	// Display
	DisplayUpdateInterval int    // milliseconds
	DisplayContent        string // "speed" or "velocity"
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported (lowercase) so other packages cannot access it directly.
//     This enforces encapsulation and prevents external code from modifying config without proper locking.
//     Has package-level scope (visible to all functions in this package, persists for program lifetime).
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock (Lock) for initialization,
//     read lock (RLock) for Get() allows multiple concurrent readers without blocking each other.
//
// External code must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config prefilled with the recommended filter
// parameters so a minimal config file only has to name the broker and
// sample source.
func defaults() *Config {
	return &Config{
		Lambda:                0.005,
		BiasAlpha:             0.001,
		ZeroVZ:                false,
		CalibrationDuration:   5.0,
		SampleSource:          "mock",
		TopicVelocity:         "velocity/state",
		TopicSample:           "velocity/sample",
		TopicPose:             "velocity/pose",
		SampleInterval:        25,
		ConsoleLogInterval:    500,
		DisplayUpdateInterval: 200,
		DisplayContent:        "speed",
	}
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_VELOCITY":
		c.TopicVelocity = value
	case "TOPIC_SAMPLE":
		c.TopicSample = value
	case "TOPIC_POSE":
		c.TopicPose = value

	// Sample source
	case "SAMPLE_SOURCE":
		switch value {
		case "mock", "serial", "i2c":
			c.SampleSource = value
		default:
			return fmt.Errorf("SAMPLE_SOURCE must be mock, serial or i2c, got %q", value)
		}
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaudRate = rate
	case "I2C_BUS":
		c.I2CBus = value
	case "BNO08X_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid BNO08X_I2C_ADDR %q: %w", value, err)
		}
		c.BNO08XI2CAddr = uint16(addr)

	// Estimator
	case "LAMBDA":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid LAMBDA %q: %w", value, err)
		}
		if v < 0 || v >= 1 {
			return fmt.Errorf("LAMBDA must be in [0, 1), got %v", v)
		}
		c.Lambda = v
	case "BIAS_ALPHA":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid BIAS_ALPHA %q: %w", value, err)
		}
		if v <= 0 || v > 1 {
			return fmt.Errorf("BIAS_ALPHA must be in (0, 1], got %v", v)
		}
		c.BiasAlpha = v
	case "ZERO_VZ":
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			c.ZeroVZ = true
		case "false", "0", "no":
			c.ZeroVZ = false
		default:
			return fmt.Errorf("invalid ZERO_VZ %q: want true/false", value)
		}

	// Drift calibration
	case "CALIBRATION_DURATION":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_DURATION %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("CALIBRATION_DURATION must be positive, got %v", v)
		}
		c.CalibrationDuration = v
	case "CALIBRATION_FILE":
		c.CalibrationFile = value

	case "AXIS_TRANSFORM":
		c.AxisTransform = value

	// Timing
	case "SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.SampleInterval = interval
	case "CONSOLE_LOG_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONSOLE_LOG_INTERVAL %q: %w", value, err)
		}
		c.ConsoleLogInterval = interval

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval
	case "DISPLAY_CONTENT":
		switch value {
		case "speed", "velocity":
			c.DisplayContent = value
		default:
			return fmt.Errorf("DISPLAY_CONTENT must be speed or velocity, got %q", value)
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.SampleSource == "serial" {
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required when SAMPLE_SOURCE=serial")
		}
		if c.SerialBaudRate == 0 {
			return fmt.Errorf("SERIAL_BAUD_RATE is required when SAMPLE_SOURCE=serial")
		}
	}
	if c.SampleSource == "i2c" && c.BNO08XI2CAddr == 0 {
		return fmt.Errorf("BNO08X_I2C_ADDR is required when SAMPLE_SOURCE=i2c")
	}
	if c.SampleInterval == 0 {
		return fmt.Errorf("SAMPLE_INTERVAL is required")
	}
	if c.ConsoleLogInterval == 0 {
		return fmt.Errorf("CONSOLE_LOG_INTERVAL is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// Acquires write lock (configMu.Lock) during initialization to prevent concurrent access.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
// Uses read lock (configMu.RLock) to allow multiple concurrent readers without blocking.
// This is thread-safe and efficient for concurrent access across goroutines.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
