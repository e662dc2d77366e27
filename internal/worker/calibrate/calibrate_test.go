package calibrate

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestETTDecreasesWithParallelism(t *testing.T) {
	for _, ic := range []int{1, 10, 55, 100} {
		prev := math.Inf(1)
		for pc := 1; pc <= 16; pc++ {
			v := ETT(ic, pc)
			if v >= prev {
				t.Fatalf("ETT(%d, %d)=%v not below ETT(%d, %d)=%v", ic, pc, v, ic, pc-1, prev)
			}
			prev = v
		}
	}
}

func TestETTAffineInInstructionCount(t *testing.T) {
	for _, pc := range []int{1, 4, 8} {
		step := ETT(11, pc) - ETT(10, pc)
		if step <= 0 {
			t.Fatalf("ETT must increase with IC, step=%v", step)
		}
		for ic := 20; ic <= 100; ic += 20 {
			got := ETT(ic+1, pc) - ETT(ic, pc)
			if math.Abs(got-step) > 1e-12 {
				t.Errorf("pc=%d: non-constant slope %v vs %v", pc, got, step)
			}
		}
	}
	if got, want := ETT(0, 1), ettIntercept; math.Abs(got-want) > 1e-12 {
		t.Errorf("ETT(0,1)=%v, want %v", got, want)
	}
}

func TestKAlphaMatchesClosedForm(t *testing.T) {
	x := []float64{0.004, 0.008, 0.35, 0.02, 0.0006}
	y := []float64{0.003, 0.011, 0.21, 0.012, 0.0009}

	got, err := KAlpha(x, y)
	if err != nil {
		t.Fatalf("KAlpha failed: %v", err)
	}

	n := float64(len(x))
	var sx, sy, sxy, sxx float64
	for i := range x {
		sx += x[i]
		sy += y[i]
		sxy += x[i] * y[i]
		sxx += x[i] * x[i]
	}
	want := (n*sxy - sx*sy) / (n*sxx - sx*sx)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("KAlpha=%v, closed form=%v", got, want)
	}
}

func TestKAlphaRejectsBadInput(t *testing.T) {
	if _, err := KAlpha([]float64{1, 2}, []float64{1}); err == nil {
		t.Error("expected length mismatch error")
	}
	if _, err := KAlpha([]float64{1}, []float64{1}); err == nil {
		t.Error("expected error for a single sample")
	}
	if _, err := KAlpha([]float64{2, 2, 2}, []float64{1, 2, 3}); err == nil {
		t.Error("expected error for zero variance references")
	}
}

func TestPheromone(t *testing.T) {
	p0, err := Pheromone(0.5, 4, []float64{0.1, 0.2, 0.2})
	if err != nil {
		t.Fatalf("Pheromone failed: %v", err)
	}
	if math.Abs(p0-4) > 1e-12 {
		t.Errorf("expected 0.5*4/0.5=4, got %v", p0)
	}

	if _, err := Pheromone(0.5, 0, []float64{1}); !errors.Is(err, ErrInvalidParallelism) {
		t.Errorf("expected ErrInvalidParallelism, got %v", err)
	}
	if _, err := Pheromone(-1, 2, []float64{1}); err == nil {
		t.Error("negative K_alpha must not yield a baseline pheromone")
	}
	if _, err := Pheromone(1, 2, []float64{0, 0}); err == nil {
		t.Error("zero total benchmark time must be rejected")
	}
}

func TestCalibrateWithFakeTimer(t *testing.T) {
	ran := 0
	c := &Calibrator{
		Suite: []Workload{
			{Name: "a", Reference: 1, Run: func() { ran++ }},
			{Name: "b", Reference: 2, Run: func() { ran++ }},
			{Name: "c", Reference: 3, Run: func() { ran++ }},
		},
	}
	// 实测耗时正好是参考值的两倍 -> K_alpha = 2
	i := 0
	c.Timer = func(fn func()) time.Duration {
		fn()
		i++
		return time.Duration(2*i) * time.Second
	}

	res, err := c.Calibrate(3)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	if ran != 3 {
		t.Errorf("expected every workload to run once, ran %d", ran)
	}
	if math.Abs(res.KAlpha-2) > 1e-9 {
		t.Errorf("expected K_alpha 2, got %v", res.KAlpha)
	}
	// P0 = 2 * 3 / (2+4+6)
	if math.Abs(res.P0-0.5) > 1e-9 {
		t.Errorf("expected P0 0.5, got %v", res.P0)
	}
}

func TestCalibrateRejectsZeroParallelism(t *testing.T) {
	c := NewCalibrator()
	c.Timer = func(fn func()) time.Duration { return time.Second }
	if _, err := c.Calibrate(0); !errors.Is(err, ErrInvalidParallelism) {
		t.Fatalf("expected ErrInvalidParallelism, got %v", err)
	}
}

func TestDefaultSuiteShape(t *testing.T) {
	suite := DefaultSuite()
	if len(suite) != 5 {
		t.Fatalf("expected 5 workloads, got %d", len(suite))
	}
	for _, w := range suite {
		if w.Reference <= 0 || w.Run == nil {
			t.Errorf("workload %s is incomplete", w.Name)
		}
	}
	if got := len(primesBelow(30)); got != 10 {
		t.Errorf("expected 10 primes below 30, got %d", got)
	}
	if fib(20) != 6765 {
		t.Errorf("fib(20)=%d", fib(20))
	}
	if r, c := RandomMatMul(8).Dims(); r != 8 || c != 8 {
		t.Errorf("unexpected product dims %dx%d", r, c)
	}
}
