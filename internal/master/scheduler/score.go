package scheduler

import (
	"fmt"
	"math"
	"math/rand/v2"

	"offload/internal/protocol"
	"offload/pkg/model"
)

// Candidate 一轮选择中的候选节点 (每轮结束即丢弃)
type Candidate struct {
	Node        *model.NodeRecord
	Telemetry   protocol.Telemetry
	Weight      float64
	Probability float64
}

// Weight = pheromone^alpha * ETT^(-beta) * SoC^gamma
func Weight(t protocol.Telemetry, alpha, beta, gamma float64) float64 {
	return math.Pow(t.Pheromone, alpha) * math.Pow(t.ETT, -beta) * math.Pow(t.SoC, gamma)
}

// scoreCandidates 计算每个候选者的权重和被选中的概率
// 总权重必须为正，否则选择没有定义
func scoreCandidates(cands []Candidate, alpha, beta, gamma float64) error {
	var total float64
	for i := range cands {
		w := Weight(cands[i].Telemetry, alpha, beta, gamma)
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("%w: node %s weight %v", ErrNonPositiveWeight, cands[i].Node.Name, w)
		}
		cands[i].Weight = w
		total += w
	}
	if total <= 0 || math.IsInf(total, 0) || math.IsNaN(total) {
		return fmt.Errorf("%w: total %v", ErrNonPositiveWeight, total)
	}

	for i := range cands {
		cands[i].Probability = cands[i].Weight / total
	}
	return nil
}

// rouletteWheel 按概率随机选一个，返回下标
func rouletteWheel(cands []Candidate, rng *rand.Rand) int {
	r := rng.Float64()
	cum := 0.0
	last := 0
	for i, c := range cands {
		if c.Probability <= 0 {
			continue
		}
		cum += c.Probability
		last = i
		if r < cum {
			return i
		}
	}
	// 浮点累加误差落在最后一段
	return last
}
