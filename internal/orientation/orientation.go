package orientation

import (
	"math"

	"github.com/relabs-tech/velocity_computer/internal/imu"
)

// Pose is the Euler-angle representation of orientation, in degrees. It
// exists for consumers (console, displays, viewers)
// that want human-readable angles; the estimator itself only ever sees the
// quaternion.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// PoseFromQuaternion converts a scalar-last unit quaternion to roll, pitch
// and yaw in degrees.
//
// Standard Tait-Bryan extraction:
//
//	roll  = atan2(2(wx + yz), 1 − 2(x² + y²))
//	pitch = asin(2(wy − zx)), clamped at ±90° near gimbal lock
//	yaw   = atan2(2(wz + xy), 1 − 2(y² + z²))
func PoseFromQuaternion(q imu.Quaternion) Pose {
	sinrCosp := 2 * (q.W*q.X + q.Y*q.Z)
	cosrCosp := 1 - 2*(q.X*q.X+q.Y*q.Y)
	roll := math.Atan2(sinrCosp, cosrCosp)

	sinp := 2 * (q.W*q.Y - q.Z*q.X)
	var pitch float64
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}

	sinyCosp := 2 * (q.W*q.Z + q.X*q.Y)
	cosyCosp := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	yaw := math.Atan2(sinyCosp, cosyCosp)

	const deg = 180.0 / math.Pi
	return Pose{
		Roll:  roll * deg,
		Pitch: pitch * deg,
		Yaw:   yaw * deg,
	}
}
