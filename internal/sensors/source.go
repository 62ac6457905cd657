package sensors

import (
	"fmt"
	"time"

	"github.com/relabs-tech/velocity_computer/internal/config"
	"github.com/relabs-tech/velocity_computer/internal/imu"
)

// Open builds the sample source the configuration asks for.
func Open(cfg *config.Config) (imu.Source, error) {
	interval := time.Duration(cfg.SampleInterval) * time.Millisecond

	switch cfg.SampleSource {
	case "mock":
		return NewMockSource(interval), nil
	case "serial":
		return NewSerialSource(cfg.SerialPort, cfg.SerialBaudRate)
	case "i2c":
		addr := cfg.BNO08XI2CAddr
		if addr == 0 {
			addr = DefaultBNO08XAddr
		}
		return NewBNO08XSource(cfg.I2CBus, addr, interval)
	default:
		return nil, fmt.Errorf("unknown sample source %q", cfg.SampleSource)
	}
}
