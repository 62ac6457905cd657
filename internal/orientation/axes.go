package orientation

import (
	"fmt"

	"github.com/relabs-tech/velocity_computer/internal/imu"
)

// AxisMap remaps vectors from the sensor's axis convention into a
// consumer's. BNO08x breakout boards are routinely mounted so that the
// sensor's X runs along the vehicle's Z and so on; consumers that care
// (viewers, downstream controllers) declare a preset in the config instead
// of silently reinterpreting components.
type AxisMap struct {
	Name string
	M    [3][3]float64
}

// Presets found useful on real mountings. "bno080_fix" matches the
// SparkFun BNO080 breakout mounted component-side up, connector aft.
var presets = map[string][3][3]float64{
	"identity":      {{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	"swap_xy":       {{0, 1, 0}, {1, 0, 0}, {0, 0, 1}},
	"swap_xz":       {{0, 0, 1}, {0, 1, 0}, {1, 0, 0}},
	"swap_yz":       {{1, 0, 0}, {0, 0, 1}, {0, 1, 0}},
	"flip_z":        {{1, 0, 0}, {0, 1, 0}, {0, 0, -1}},
	"swap_xz_flipz": {{0, 0, -1}, {0, 1, 0}, {-1, 0, 0}},
	"bno080_fix":    {{0, 0, 1}, {0, -1, 0}, {-1, 0, 0}},
}

// NewAxisMap looks up a preset by name. The empty string means identity.
func NewAxisMap(name string) (AxisMap, error) {
	if name == "" {
		name = "identity"
	}
	m, ok := presets[name]
	if !ok {
		return AxisMap{}, fmt.Errorf("unknown axis transform preset %q", name)
	}
	return AxisMap{Name: name, M: m}, nil
}

// Apply remaps one vector: v' = M·v.
func (a AxisMap) Apply(v imu.Vec3) imu.Vec3 {
	return imu.Vec3{
		X: a.M[0][0]*v.X + a.M[0][1]*v.Y + a.M[0][2]*v.Z,
		Y: a.M[1][0]*v.X + a.M[1][1]*v.Y + a.M[1][2]*v.Z,
		Z: a.M[2][0]*v.X + a.M[2][1]*v.Y + a.M[2][2]*v.Z,
	}
}

// IsIdentity reports whether the map is a no-op, so hot loops can skip it.
func (a AxisMap) IsIdentity() bool {
	return a.Name == "identity" || a.Name == ""
}

// RemapQuaternion re-expresses a rotation in the remapped frame,
// R' = M·R·Mᵗ. For orthonormal M the quaternion transforms as w' = w,
// v' = det(M)·M·v; the det factor makes axis swaps and flips (which are
// improper) come out right.
func (a AxisMap) RemapQuaternion(q imu.Quaternion) imu.Quaternion {
	v := a.Apply(imu.Vec3{X: q.X, Y: q.Y, Z: q.Z})
	if a.det() < 0 {
		v = v.Scale(-1)
	}
	return imu.Quaternion{X: v.X, Y: v.Y, Z: v.Z, W: q.W}
}

func (a AxisMap) det() float64 {
	m := a.M
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}
