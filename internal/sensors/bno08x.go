// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/velocity_computer/internal/imu"
)

// DefaultBNO08XAddr is the BNO08x I2C address with the SA0 pin high
// (SparkFun and Adafruit breakouts ship this way).
const DefaultBNO08XAddr = 0x4B

const (
	// maxCargoLen bounds a single SHTP transfer. The advertisement packet
	// after reset is the largest thing the hub ever sends (~300 bytes).
	maxCargoLen = 512

	resetSettle = 100 * time.Millisecond
)

// bno08xSource reads fused samples from a BNO08x sensor hub over I2C.
// The hub runs its own fusion; we only enable the reports we need and
// assemble them into imu.Samples.
type bno08xSource struct {
	dev   i2c.Dev
	bus   i2c.BusCloser
	start time.Time

	// sequence numbers per SHTP channel for outbound packets
	seq [6]byte

	// latest assembled on every Next; raw groups persist between calls,
	// freshness flags do not
	current imu.Sample
}

// NewBNO08XSource initializes the periph host, opens the I2C bus and
// brings up a BNO08x at addr: soft reset, product ID check, then report
// enablement at the given sample interval.
func NewBNO08XSource(busName string, addr uint16, sampleInterval time.Duration) (imu.Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("bno08x: periph host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("bno08x: open I2C bus %q: %w", busName, err)
	}

	s := &bno08xSource{
		dev:   i2c.Dev{Bus: bus, Addr: addr},
		bus:   bus,
		start: time.Now(),
	}

	if err := s.reset(); err != nil {
		bus.Close()
		return nil, err
	}

	if err := s.checkProductID(); err != nil {
		bus.Close()
		return nil, err
	}

	interval := uint32(sampleInterval.Microseconds())
	for _, reportID := range []byte{
		reportRotationVector,
		reportLinearAccel,
		reportAccelerometer,
		reportGyroscope,
		reportMagnetometer,
	} {
		if err := s.writePacket(shtpChannelControl, setFeatureCommand(reportID, interval)); err != nil {
			bus.Close()
			return nil, fmt.Errorf("bno08x: enable report 0x%02X: %w", reportID, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	log.Printf("bno08x: initialized at 0x%02X on bus %q, %v report interval", addr, busName, sampleInterval)
	return s, nil
}

// reset issues a soft reset on the executable channel and drains the
// advertisement and reset-complete packets the hub sends back.
func (s *bno08xSource) reset() error {
	if err := s.writePacket(shtpChannelExecutable, []byte{executableReset}); err != nil {
		return fmt.Errorf("bno08x: soft reset: %w", err)
	}
	time.Sleep(resetSettle)

	// The hub answers with its advertisement plus unsolicited
	// initialization responses; read until the pipe is quiet.
	for i := 0; i < 8; i++ {
		if _, _, err := s.readPacket(); err != nil {
			break
		}
	}
	return nil
}

// checkProductID asks the hub who it is. A wrong or absent answer usually
// means a bus wiring problem rather than a different sensor.
func (s *bno08xSource) checkProductID() error {
	if err := s.writePacket(shtpChannelControl, []byte{shtpReportProductIDRequest, 0}); err != nil {
		return fmt.Errorf("bno08x: product ID request: %w", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		channel, cargo, err := s.readPacket()
		if err != nil {
			return fmt.Errorf("bno08x: product ID read: %w", err)
		}
		if channel == shtpChannelControl && len(cargo) > 0 && cargo[0] == shtpReportProductIDResponse {
			if len(cargo) >= 5 {
				log.Printf("bno08x: SH-2 firmware %d.%d", cargo[2], cargo[3])
			}
			return nil
		}
	}
	return fmt.Errorf("bno08x: no product ID response (check wiring and address)")
}

// Next blocks until the hub delivers a packet that refreshes the rotation
// vector or linear acceleration, then returns the assembled sample.
// Freshness flags reflect only the groups updated by this packet: a
// sample with a fresh quaternion but a silent accelerometer says so
// rather than smuggling in zeros.
func (s *bno08xSource) Next() (imu.Sample, error) {
	for {
		channel, cargo, err := s.readPacket()
		if err != nil {
			return imu.Sample{}, fmt.Errorf("bno08x: read packet: %w", err)
		}
		if channel != shtpChannelReports || len(cargo) == 0 {
			continue
		}

		s.current.HasQuat = false
		s.current.HasLinearAccel = false
		gotQuat, gotLinAccel := parseInputReports(cargo, &s.current)
		if !gotQuat && !gotLinAccel {
			continue
		}

		s.current.Timestamp = time.Since(s.start).Seconds()
		return s.current, nil
	}
}

// Close releases the I2C bus.
func (s *bno08xSource) Close() error {
	return s.bus.Close()
}

// writePacket sends one SHTP packet: 4-byte header plus cargo.
func (s *bno08xSource) writePacket(channel byte, cargo []byte) error {
	packetLen := shtpHeaderLen + len(cargo)
	buf := make([]byte, packetLen)
	binary.LittleEndian.PutUint16(buf[0:], uint16(packetLen))
	buf[2] = channel
	buf[3] = s.seq[channel]
	s.seq[channel]++
	copy(buf[shtpHeaderLen:], cargo)

	return s.dev.Tx(buf, nil)
}

// readPacket reads one SHTP packet: the header first to learn the length,
// then the whole transfer again (the hub resends the header on the second
// read). Returns the channel and the cargo without the header.
func (s *bno08xSource) readPacket() (byte, []byte, error) {
	header := make([]byte, shtpHeaderLen)
	if err := s.dev.Tx(nil, header); err != nil {
		return 0, nil, err
	}

	// Bit 15 of the length is the continuation flag.
	packetLen := int(binary.LittleEndian.Uint16(header[0:]) & 0x7FFF)
	if packetLen < shtpHeaderLen {
		return 0, nil, fmt.Errorf("empty packet")
	}
	if packetLen > maxCargoLen {
		packetLen = maxCargoLen
	}

	buf := make([]byte, packetLen)
	if err := s.dev.Tx(nil, buf); err != nil {
		return 0, nil, err
	}

	return buf[2], buf[shtpHeaderLen:], nil
}
