package calibrate

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ETT 的离线拟合系数 (秒)，所有节点共用
const (
	ettSlope     = 0.005804
	ettIntercept = 0.095973
)

var ErrInvalidParallelism = errors.New("calibrate: parallelism must be >= 1")

// ETT 估算任务执行时间：(c1*IC + c2) / PC，只和任务大小和并行度有关
func ETT(ic, pc int) float64 {
	return (ettSlope*float64(ic) + ettIntercept) / float64(pc)
}

// KAlpha 最小二乘斜率
// (N*Σ(XY) - ΣX*ΣY) / (N*ΣX² - (ΣX)²)，和带截距的线性回归斜率是同一个估计量
func KAlpha(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("calibrate: %d references but %d timings", len(x), len(y))
	}
	if len(x) < 2 {
		return 0, fmt.Errorf("calibrate: need at least 2 samples, got %d", len(x))
	}
	if stat.Variance(x, nil) == 0 {
		return 0, errors.New("calibrate: reference costs have zero variance")
	}
	_, slope := stat.LinearRegression(x, y, nil, false)
	return slope, nil
}

// Pheromone 计算基准信息素 P0 = K_alpha * PC / ΣY
// 越快 (ΣY 越小)、并行度越高的节点，初始吸引力越大
func Pheromone(kAlpha float64, pc int, timings []float64) (float64, error) {
	if pc < 1 {
		return 0, ErrInvalidParallelism
	}
	total := floats.Sum(timings)
	if total <= 0 {
		return 0, fmt.Errorf("calibrate: total benchmark time must be positive, got %v", total)
	}
	p0 := kAlpha * float64(pc) / total
	if p0 <= 0 || math.IsNaN(p0) || math.IsInf(p0, 0) {
		return 0, fmt.Errorf("calibrate: non-positive baseline pheromone %v (K_alpha=%v)", p0, kAlpha)
	}
	return p0, nil
}

// Result 一次校准的结果
type Result struct {
	P0      float64
	KAlpha  float64
	Timings []float64 // 每个 benchmark 的实测耗时 Y_i (秒)
}

// Calibrator 跑一遍 benchmark 套件并计算 P0
type Calibrator struct {
	Suite []Workload
	// Timer 执行 fn 并返回耗时，测试里可以替换
	Timer func(fn func()) time.Duration
}

func NewCalibrator() *Calibrator {
	return &Calibrator{
		Suite: DefaultSuite(),
		Timer: wallClock,
	}
}

func wallClock(fn func()) time.Duration {
	start := time.Now()
	fn()
	return time.Since(start)
}

// Calibrate 每个 benchmark 跑一次，返回 P0
func (c *Calibrator) Calibrate(pc int) (*Result, error) {
	if pc < 1 {
		return nil, ErrInvalidParallelism
	}
	timer := c.Timer
	if timer == nil {
		timer = wallClock
	}

	x := make([]float64, len(c.Suite))
	y := make([]float64, len(c.Suite))
	for i, w := range c.Suite {
		x[i] = w.Reference
		y[i] = timer(w.Run).Seconds()
	}

	k, err := KAlpha(x, y)
	if err != nil {
		return nil, err
	}
	p0, err := Pheromone(k, pc, y)
	if err != nil {
		return nil, err
	}
	return &Result{P0: p0, KAlpha: k, Timings: y}, nil
}
