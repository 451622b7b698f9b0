package curriculum

import (
	"math"
	"testing"
)

func TestApertureScheduleMonotonicAndClamped(t *testing.T) {
	s := NewApertureSchedule(8, 0.4, 1.1, 1000)

	prev := 0.0
	for i := 0; i <= 1000; i += 10 {
		r := s.At(i)
		if r < prev {
			t.Fatalf("Aperture decreased at %d: %f < %f", i, r, prev)
		}
		if r > 8 {
			t.Fatalf("Aperture %f exceeds final at %d", r, i)
		}
		prev = r
	}

	if s.At(1000) != 8 {
		t.Errorf("Final aperture = %f, expected exactly 8", s.At(1000))
	}
}

func TestApertureScheduleStart(t *testing.T) {
	s := NewApertureSchedule(5, 0.4, 1.1, 200)

	if math.Abs(s.At(0)-2) > 1e-12 {
		t.Errorf("Start aperture = %f, expected 2", s.At(0))
	}
}

func TestApertureScheduleOvershootReachesFinalEarly(t *testing.T) {
	s := NewApertureSchedule(10, 0.4, 1.1, 1000)

	// Full aperture is reached at p = 1/1.1
	if s.At(900) >= 10 {
		t.Errorf("Aperture at 90%% = %f, expected below final", s.At(900))
	}
	if s.At(910) != 10 {
		t.Errorf("Aperture at 91%% = %f, expected final", s.At(910))
	}
}

func TestApertureScheduleZeroIterations(t *testing.T) {
	s := NewApertureSchedule(10, 0.4, 1.1, 0)

	r := s.At(0)
	if math.IsNaN(r) || math.Abs(r-4) > 1e-12 {
		t.Errorf("Aperture with zero budget = %f, expected 4", r)
	}
}
