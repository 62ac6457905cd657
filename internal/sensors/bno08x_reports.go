// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"

	"github.com/relabs-tech/velocity_computer/internal/imu"
)

// SHTP (Sensor Hub Transport Protocol) framing for the BNO08x family.
// Every transfer starts with a 4-byte header: length LSB, length MSB
// (bit 15 flags a continuation), channel, sequence number.
const (
	shtpHeaderLen = 4

	shtpChannelCommand     = 0
	shtpChannelExecutable  = 1
	shtpChannelControl     = 2
	shtpChannelReports     = 3
	shtpChannelWakeReports = 4
	shtpChannelGyroRV      = 5
)

// Executable channel commands.
const (
	executableReset = 0x01
)

// Control channel report IDs.
const (
	shtpReportSetFeature        = 0xFD
	shtpReportGetFeatureRequest = 0xFE
	shtpReportProductIDRequest  = 0xF9
	shtpReportProductIDResponse = 0xF8
)

// Input sensor report IDs (channel 3).
const (
	reportAccelerometer   = 0x01
	reportGyroscope       = 0x02
	reportMagnetometer    = 0x03
	reportLinearAccel     = 0x04
	reportRotationVector  = 0x05
	reportBaseTimestamp   = 0xFB
	reportTimestampRebase = 0xFA
)

// Fixed-point Q points per report, from the SH-2 reference manual.
const (
	qPointAccel          = 8  // m/s²
	qPointGyro           = 9  // rad/s
	qPointMag            = 4  // µT
	qPointRotationVector = 14 // unit quaternion components
)

// Payload sizes of the input report records we parse, including the
// 4-byte record header (report ID, sequence, status, delay).
var inputReportLen = map[byte]int{
	reportAccelerometer:   10,
	reportGyroscope:       10,
	reportMagnetometer:    10,
	reportLinearAccel:     10,
	reportRotationVector:  14,
	reportBaseTimestamp:   5,
	reportTimestampRebase: 5,
}

// qToFloat converts a raw fixed-point sensor value with the given Q point.
func qToFloat(raw int16, q uint) float64 {
	return float64(raw) / float64(int(1)<<q)
}

// vec3At decodes three consecutive little-endian int16 values at off with
// a shared Q point.
func vec3At(payload []byte, off int, q uint) imu.Vec3 {
	return imu.Vec3{
		X: qToFloat(int16(binary.LittleEndian.Uint16(payload[off:])), q),
		Y: qToFloat(int16(binary.LittleEndian.Uint16(payload[off+2:])), q),
		Z: qToFloat(int16(binary.LittleEndian.Uint16(payload[off+4:])), q),
	}
}

// parseInputReports walks the cargo of one channel-3 packet and folds every
// recognized record into s, returning which groups were refreshed. Unknown
// record IDs end the walk, since their length is unknown.
func parseInputReports(cargo []byte, s *imu.Sample) (gotQuat, gotLinAccel bool) {
	i := 0
	for i < len(cargo) {
		id := cargo[i]
		n, known := inputReportLen[id]
		if !known || i+n > len(cargo) {
			return
		}
		rec := cargo[i : i+n]

		switch id {
		case reportBaseTimestamp, reportTimestampRebase:
			// Delta against the hub's internal clock; we stamp samples
			// host-side instead.

		case reportAccelerometer:
			s.Accel = vec3At(rec, 4, qPointAccel)

		case reportGyroscope:
			s.Gyro = vec3At(rec, 4, qPointGyro)

		case reportMagnetometer:
			s.Mag = vec3At(rec, 4, qPointMag)

		case reportLinearAccel:
			s.LinearAccel = vec3At(rec, 4, qPointAccel)
			s.HasLinearAccel = true
			gotLinAccel = true

		case reportRotationVector:
			s.Quat = imu.Quaternion{
				X: qToFloat(int16(binary.LittleEndian.Uint16(rec[4:])), qPointRotationVector),
				Y: qToFloat(int16(binary.LittleEndian.Uint16(rec[6:])), qPointRotationVector),
				Z: qToFloat(int16(binary.LittleEndian.Uint16(rec[8:])), qPointRotationVector),
				W: qToFloat(int16(binary.LittleEndian.Uint16(rec[10:])), qPointRotationVector),
			}
			s.HasQuat = true
			gotQuat = true
		}

		i += n
	}
	return
}

// setFeatureCommand builds the 17-byte Set Feature frame that enables a
// sensor report at the given interval.
func setFeatureCommand(reportID byte, intervalMicros uint32) []byte {
	cmd := make([]byte, 17)
	cmd[0] = shtpReportSetFeature
	cmd[1] = reportID
	// flags, change sensitivity, batch interval and sensor-specific
	// config all zero: continuous reporting at the requested rate.
	binary.LittleEndian.PutUint32(cmd[5:], intervalMicros)
	return cmd
}
