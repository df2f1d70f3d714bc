package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/ayusman/repcounter/internal/pose"
)

const tolerance = 1e-9

func kp(x, y int) pose.Keypoint { return pose.Keypoint{X: x, Y: y} }

func TestAngleAt(t *testing.T) {
	tests := []struct {
		name       string
		p1, p2, p3 pose.Keypoint
		want       float64
	}{
		{name: "right angle", p1: kp(10, 0), p2: kp(0, 0), p3: kp(0, 10), want: 90},
		{name: "straight arm", p1: kp(0, 0), p2: kp(5, 0), p3: kp(10, 0), want: 180},
		{name: "fully folded", p1: kp(10, 0), p2: kp(0, 0), p3: kp(10, 0), want: 0},
		{name: "vertex order is symmetric", p1: kp(0, 10), p2: kp(0, 0), p3: kp(10, 0), want: 90},
		{name: "45 degrees", p1: kp(10, 0), p2: kp(0, 0), p3: kp(10, 10), want: 45},
		{name: "135 degrees", p1: kp(10, 0), p2: kp(0, 0), p3: kp(-10, 10), want: 135},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AngleAt(tt.p1, tt.p2, tt.p3)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("AngleAt() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestAngleAt_Degenerate(t *testing.T) {
	cases := map[string][3]pose.Keypoint{
		"all coincident":          {kp(3, 3), kp(3, 3), kp(3, 3)},
		"vertex on proximal":      {kp(3, 3), kp(3, 3), kp(9, 1)},
		"vertex on distal":        {kp(0, 0), kp(7, 7), kp(7, 7)},
		"collinear far distal":    {kp(0, 0), kp(1000, 0), kp(2000, 1)},
		"collinear folded":        {kp(0, 0), kp(1000, 0), kp(1, 0)},
		"large pixel coordinates": {kp(100000, 100000), kp(100001, 100000), kp(100002, 100000)},
	}

	for name, pts := range cases {
		t.Run(name, func(t *testing.T) {
			got := AngleAt(pts[0], pts[1], pts[2])
			if math.IsNaN(got) || got < 0 || got > 180 {
				t.Errorf("AngleAt() = %f, want value in [0, 180]", got)
			}
		})
	}
}

func TestAngleAt_RangeProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 5000; i++ {
		p1 := kp(rng.Intn(1920), rng.Intn(1080))
		p2 := kp(rng.Intn(1920), rng.Intn(1080))
		p3 := kp(rng.Intn(1920), rng.Intn(1080))

		got := AngleAt(p1, p2, p3)
		if math.IsNaN(got) || got < 0 || got > 180 {
			t.Fatalf("AngleAt(%v, %v, %v) = %f outside [0, 180]", p1, p2, p3, got)
		}
	}
}

func TestArmAngles(t *testing.T) {
	arms := Arms{
		LeftShoulder:  kp(10, 0),
		LeftElbow:     kp(0, 0),
		LeftWrist:     kp(0, 10),
		RightShoulder: kp(0, 0),
		RightElbow:    kp(5, 0),
		RightWrist:    kp(10, 0),
	}

	got := ArmAngles(arms)

	if math.Abs(got.Left-90) > tolerance {
		t.Errorf("Left = %f, want 90", got.Left)
	}
	if math.Abs(got.Right-180) > tolerance {
		t.Errorf("Right = %f, want 180", got.Right)
	}
	if math.Abs(got.Mean-135) > tolerance {
		t.Errorf("Mean = %f, want 135", got.Mean)
	}
}

func TestArmsFrom_ArmPose(t *testing.T) {
	sizes := [][2]int{{640, 480}, {480, 480}, {1280, 720}, {720, 1280}}
	angles := []float64{40, 55, 90, 150, 160, 175}

	for _, size := range sizes {
		for _, deg := range angles {
			s := pose.ArmPose(deg, 180-deg/2, size[0], size[1])
			got := ArmAngles(ArmsFrom(&s, size[0], size[1]))

			if math.Abs(got.Left-deg) > 1.5 {
				t.Errorf("%dx%d left: got %.2f, want ~%.0f", size[0], size[1], got.Left, deg)
			}
			wantRight := 180 - deg/2
			if math.Abs(got.Right-wantRight) > 1.5 {
				t.Errorf("%dx%d right: got %.2f, want ~%.0f", size[0], size[1], got.Right, wantRight)
			}
		}
	}
}
