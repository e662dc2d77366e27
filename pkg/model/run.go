package model

import "time"

// StopReason 模拟结束的原因
type StopReason string

const (
	StopMaxRounds     StopReason = "MAX_ROUNDS"
	StopNoCandidates  StopReason = "NO_CANDIDATES"
	StopFleetDrained  StopReason = "FLEET_EXHAUSTED"
	StopTooManyErrors StopReason = "CALL_FAILURES"
	StopCancelled     StopReason = "CANCELLED"
	StopFailed        StopReason = "FAILED"
)

// RunResult 是 Task Manager 的输出产物：每一轮的 turnaround time
type RunResult struct {
	ID    string  `json:"id"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`

	// 与原始实验输出保持同名字段
	Turnarounds []float64 `json:"response_time_record"`
	Tasks       int       `json:"tasks"`
	Failures    int       `json:"failures"`

	StopReason StopReason `json:"stop_reason"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
}

// Cumulative 返回累计响应时间
func (r *RunResult) Cumulative() float64 {
	var sum float64
	for _, t := range r.Turnarounds {
		sum += t
	}
	return sum
}
