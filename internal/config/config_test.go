package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "velocity_config.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimal = `
# minimal working config
MQTT_BROKER=tcp://localhost:1883
SAMPLE_SOURCE=mock
`

func TestLoadMinimalWithDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Lambda != 0.005 {
		t.Errorf("Lambda default = %v, want 0.005", cfg.Lambda)
	}
	if cfg.BiasAlpha != 0.001 {
		t.Errorf("BiasAlpha default = %v, want 0.001", cfg.BiasAlpha)
	}
	if cfg.ZeroVZ {
		t.Error("ZeroVZ default should be false")
	}
	if cfg.CalibrationDuration != 5.0 {
		t.Errorf("CalibrationDuration default = %v, want 5.0", cfg.CalibrationDuration)
	}
	if cfg.TopicVelocity != "velocity/state" {
		t.Errorf("TopicVelocity default = %q", cfg.TopicVelocity)
	}
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
MQTT_BROKER=tcp://192.168.1.10:1883
MQTT_CLIENT_ID_PRODUCER=velocity-producer
SAMPLE_SOURCE=serial
SERIAL_PORT=/dev/ttyUSB0
SERIAL_BAUD_RATE=115200
LAMBDA=0.01
BIAS_ALPHA=0.0005
ZERO_VZ=true
CALIBRATION_DURATION=8.5
CALIBRATION_FILE=drift_calibration.json
AXIS_TRANSFORM=bno080_fix
SAMPLE_INTERVAL=25
CONSOLE_LOG_INTERVAL=1000
WEB_SERVER_PORT=8080
DISPLAY_UPDATE_INTERVAL=250
DISPLAY_CONTENT=velocity
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.SerialPort != "/dev/ttyUSB0" || cfg.SerialBaudRate != 115200 {
		t.Errorf("serial config = %q/%d", cfg.SerialPort, cfg.SerialBaudRate)
	}
	if cfg.Lambda != 0.01 || cfg.BiasAlpha != 0.0005 || !cfg.ZeroVZ {
		t.Errorf("estimator config = %v/%v/%v", cfg.Lambda, cfg.BiasAlpha, cfg.ZeroVZ)
	}
	if cfg.CalibrationDuration != 8.5 {
		t.Errorf("CalibrationDuration = %v", cfg.CalibrationDuration)
	}
	if cfg.DisplayUpdateInterval != 250 {
		t.Errorf("DisplayUpdateInterval = %d, want 250", cfg.DisplayUpdateInterval)
	}
	if cfg.DisplayContent != "velocity" {
		t.Errorf("DisplayContent = %q, want velocity", cfg.DisplayContent)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"lambda out of range", "LAMBDA=1.0"},
		{"negative lambda", "LAMBDA=-0.1"},
		{"zero bias alpha", "BIAS_ALPHA=0"},
		{"bias alpha above one", "BIAS_ALPHA=1.5"},
		{"bad zero_vz", "ZERO_VZ=maybe"},
		{"zero duration", "CALIBRATION_DURATION=0"},
		{"unknown source", "SAMPLE_SOURCE=bluetooth"},
		{"unknown key", "LEAKAGE=0.005"},
		{"bad display content", "DISPLAY_CONTENT=compass"},
	}

	for _, c := range cases {
		if _, err := Load(writeConfig(t, minimal+c.line+"\n")); err == nil {
			t.Errorf("%s: expected error for %q", c.name, c.line)
		}
	}
}

func TestLoadRequiresSerialPortForSerialSource(t *testing.T) {
	_, err := Load(writeConfig(t, `
MQTT_BROKER=tcp://localhost:1883
SAMPLE_SOURCE=serial
`))
	if err == nil {
		t.Error("expected error for serial source without port")
	}
}

func TestLoadRequiresBroker(t *testing.T) {
	if _, err := Load(writeConfig(t, "SAMPLE_SOURCE=mock\n")); err == nil {
		t.Error("expected error for missing MQTT_BROKER")
	}
}
