package model

// Task 只有一个指令数 IC (工作单元数)，一次往返就完整描述了它
type Task struct {
	IC int `json:"IC"`
}
