package orientation

import (
	"math"
	"testing"

	"github.com/relabs-tech/velocity_computer/internal/imu"
)

const angleTolerance = 1e-6 // degrees

func TestPoseFromIdentityQuaternion(t *testing.T) {
	p := PoseFromQuaternion(imu.Identity)
	if math.Abs(p.Roll) > angleTolerance || math.Abs(p.Pitch) > angleTolerance || math.Abs(p.Yaw) > angleTolerance {
		t.Errorf("identity quaternion → %+v, want all zero", p)
	}
}

func TestPoseFromYawQuaternion(t *testing.T) {
	// 90° about Z.
	s := math.Sqrt(2) / 2
	p := PoseFromQuaternion(imu.Quaternion{Z: s, W: s})
	if math.Abs(p.Yaw-90) > angleTolerance {
		t.Errorf("yaw = %v, want 90", p.Yaw)
	}
	if math.Abs(p.Roll) > angleTolerance || math.Abs(p.Pitch) > angleTolerance {
		t.Errorf("roll/pitch = %v/%v, want 0/0", p.Roll, p.Pitch)
	}
}

func TestPoseFromRollQuaternion(t *testing.T) {
	// 30° about X.
	half := 15.0 * math.Pi / 180
	p := PoseFromQuaternion(imu.Quaternion{X: math.Sin(half), W: math.Cos(half)})
	if math.Abs(p.Roll-30) > angleTolerance {
		t.Errorf("roll = %v, want 30", p.Roll)
	}
}

func TestPoseGimbalClamp(t *testing.T) {
	// Exactly 90° pitch; asin argument hits 1 and must clamp, not NaN.
	s := math.Sqrt(2) / 2
	p := PoseFromQuaternion(imu.Quaternion{Y: s, W: s})
	if math.IsNaN(p.Pitch) {
		t.Fatal("pitch is NaN at gimbal lock")
	}
	if math.Abs(p.Pitch-90) > angleTolerance {
		t.Errorf("pitch = %v, want 90", p.Pitch)
	}
}

func TestAxisMapPresets(t *testing.T) {
	v := imu.Vec3{X: 1, Y: 2, Z: 3}

	cases := []struct {
		preset string
		want   imu.Vec3
	}{
		{"identity", imu.Vec3{X: 1, Y: 2, Z: 3}},
		{"swap_xy", imu.Vec3{X: 2, Y: 1, Z: 3}},
		{"swap_xz", imu.Vec3{X: 3, Y: 2, Z: 1}},
		{"swap_yz", imu.Vec3{X: 1, Y: 3, Z: 2}},
		{"flip_z", imu.Vec3{X: 1, Y: 2, Z: -3}},
		{"bno080_fix", imu.Vec3{X: 3, Y: -2, Z: -1}},
	}

	for _, c := range cases {
		a, err := NewAxisMap(c.preset)
		if err != nil {
			t.Fatalf("%s: %v", c.preset, err)
		}
		if got := a.Apply(v); got != c.want {
			t.Errorf("%s: Apply(%+v) = %+v, want %+v", c.preset, v, got, c.want)
		}
	}
}

func TestRemapQuaternion(t *testing.T) {
	s := math.Sqrt(2) / 2
	yaw90 := imu.Quaternion{Z: s, W: s}

	// Conjugating by an axis swap reverses the sense of the rotation:
	// +90° yaw becomes −90° in the swapped frame.
	swap, err := NewAxisMap("swap_xy")
	if err != nil {
		t.Fatal(err)
	}
	got := swap.RemapQuaternion(yaw90)
	if math.Abs(got.Z+s) > angleTolerance || math.Abs(got.W-s) > angleTolerance {
		t.Errorf("swap_xy remap of +90° yaw = %+v, want z=%v w=%v", got, -s, s)
	}

	// Flipping Z commutes with a rotation about Z, so yaw is untouched.
	flip, _ := NewAxisMap("flip_z")
	got = flip.RemapQuaternion(yaw90)
	if math.Abs(got.Z-s) > angleTolerance || math.Abs(got.W-s) > angleTolerance {
		t.Errorf("flip_z remap of +90° yaw = %+v, want unchanged", got)
	}

	// Identity is a strict no-op.
	id, _ := NewAxisMap("")
	if got := id.RemapQuaternion(yaw90); got != yaw90 {
		t.Errorf("identity remap changed the quaternion: %+v", got)
	}
}

func TestAxisMapUnknownPreset(t *testing.T) {
	if _, err := NewAxisMap("sideways"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestAxisMapEmptyIsIdentity(t *testing.T) {
	a, err := NewAxisMap("")
	if err != nil {
		t.Fatalf("empty preset: %v", err)
	}
	if !a.IsIdentity() {
		t.Error("empty preset should be identity")
	}
}
