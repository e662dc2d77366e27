package scheduler

import (
	"math/rand/v2"

	"offload/pkg/model"
)

// TaskSource 任务来源
type TaskSource interface {
	Next() model.Task
}

// RandomTasks 固定种子的均匀随机任务流，IC 在 [Min, Max] 之间
type RandomTasks struct {
	Min, Max int
	rng      *rand.Rand
}

func NewRandomTasks(seed uint64, min, max int) *RandomTasks {
	if max < min {
		min, max = max, min
	}
	return &RandomTasks{Min: min, Max: max, rng: rand.New(rand.NewPCG(seed, seed))}
}

func (r *RandomTasks) Next() model.Task {
	return model.Task{IC: r.Min + r.rng.IntN(r.Max-r.Min+1)}
}
