package executor

import (
	"context"
	"sync"
	"time"

	"offload/internal/worker/calibrate"
)

// Executor 真正执行任务的组件，返回实际墙钟耗时 R_a
type Executor interface {
	Run(ctx context.Context, ic, pc int) (time.Duration, error)
}

// SplitLanes 把 IC 个工作单元分给 PC 个通道，前 IC%PC 个通道各多分一个
func SplitLanes(ic, pc int) []int {
	if pc < 1 {
		pc = 1
	}
	base, rem := ic/pc, ic%pc
	lanes := make([]int, pc)
	for i := range lanes {
		lanes[i] = base
		if i < rem {
			lanes[i]++
		}
	}
	return lanes
}

// Local 在本进程里用 PC 个 goroutine 并行跑矩阵乘法
type Local struct {
	// MatrixSize 每个工作单元是一次 MatrixSize*MatrixSize 的矩阵乘
	MatrixSize int
}

func NewLocal(matrixSize int) *Local {
	if matrixSize <= 0 {
		matrixSize = 500
	}
	return &Local{MatrixSize: matrixSize}
}

func (e *Local) Run(ctx context.Context, ic, pc int) (time.Duration, error) {
	lanes := SplitLanes(ic, pc)

	start := time.Now()
	var wg sync.WaitGroup
	for _, units := range lanes {
		wg.Add(1)
		go func(units int) {
			defer wg.Done()
			for range units {
				if ctx.Err() != nil {
					return
				}
				calibrate.RandomMatMul(e.MatrixSize)
			}
		}(units)
	}
	wg.Wait()
	return time.Since(start), ctx.Err()
}
