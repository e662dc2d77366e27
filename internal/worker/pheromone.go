package worker

import "math"

// NextPheromone 信息素更新规则，只在 TA 之后调用
//
//	P_new = P0 / (w1*max(R_a-R_e, 0) + w2*(1-SoC) + 1)
//
// 比估计慢 (R_a > R_e) 或者电量低都会让信息素衰减，分母 >= 1 保证 P_new <= P0
func NextPheromone(p0, w1, w2, actual, estimated, soc float64) float64 {
	lag := math.Max(actual-estimated, 0)
	return p0 / (w1*lag + w2*(1-soc) + 1)
}
