package sensors

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/velocity_computer/internal/imu"
)

// serialSource reads samples from a microcontroller bridge that owns the
// BNO08x and streams one JSON-encoded imu.Sample per line. The bridge may
// also print free-form debug text; anything that is not a JSON object line
// is skipped.
type serialSource struct {
	port   io.ReadCloser
	reader *bufio.Reader
}

// NewSerialSource opens the bridge serial port.
func NewSerialSource(portName string, baudRate int) (imu.Source, error) {
	opts := serial.OpenOptions{
		PortName:        portName,
		BaudRate:        uint(baudRate),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serial source: open %s: %w", portName, err)
	}

	return &serialSource{
		port:   port,
		reader: bufio.NewReader(port),
	}, nil
}

// Next blocks until the bridge delivers the next parseable sample line.
func (s *serialSource) Next() (imu.Sample, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return imu.Sample{}, fmt.Errorf("serial source: read: %w", err)
		}

		sample, ok := ParseSampleLine(line)
		if !ok {
			// bridge chatter or a torn line; keep going
			continue
		}
		return sample, nil
	}
}

// Close releases the serial port.
func (s *serialSource) Close() error {
	return s.port.Close()
}

// ParseSampleLine decodes one bridge line into a sample. Returns false for
// anything that is not a well-formed JSON sample record.
func ParseSampleLine(line string) (imu.Sample, bool) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "{") {
		return imu.Sample{}, false
	}

	var s imu.Sample
	if err := json.Unmarshal([]byte(line), &s); err != nil {
		return imu.Sample{}, false
	}
	return s, true
}
