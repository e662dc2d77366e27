package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType 请求类型
type MessageType string

const (
	TypeProbe     MessageType = "TTRC" // time-to-respond check，遥测
	TypeAssign    MessageType = "TA"   // 任务分配
	TypeSync      MessageType = "X"    // 空轮同步，只对齐历史长度
	TypeTerminate MessageType = "TERMINATE"
)

// Request 一次连接只有一个请求
type Request struct {
	Type MessageType `json:"type"`
	IC   *int        `json:"IC,omitempty"`
}

func ProbeRequest(ic int) Request  { return Request{Type: TypeProbe, IC: &ic} }
func AssignRequest(ic int) Request { return Request{Type: TypeAssign, IC: &ic} }

var (
	SyncRequest      = Request{Type: TypeSync}
	TerminateRequest = Request{Type: TypeTerminate}
)

// Validate 检查 TTRC / TA 必须带非负的 IC
func (r Request) Validate() error {
	switch r.Type {
	case TypeProbe, TypeAssign:
		if r.IC == nil {
			return fmt.Errorf("%s request without IC", r.Type)
		}
		if *r.IC < 0 {
			return fmt.Errorf("%s request with negative IC %d", r.Type, *r.IC)
		}
	case TypeSync, TypeTerminate:
	case "":
		return errors.New("request without type")
	default:
		return fmt.Errorf("unknown request type %q", r.Type)
	}
	return nil
}

// Telemetry TTRC 的回复
// 字段名 "P_i,t(j)" 含逗号，struct tag 表达不了，只能手写编解码
type Telemetry struct {
	Pheromone float64
	ETT       float64
	SoC       float64
}

const pheromoneField = "P_i,t(j)"

func (t Telemetry) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]float64{
		pheromoneField: t.Pheromone,
		"ETT":          t.ETT,
		"SoC":          t.SoC,
	})
}

func (t *Telemetry) UnmarshalJSON(data []byte) error {
	var raw map[string]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, name := range []string{pheromoneField, "ETT", "SoC"} {
		if raw[name] == nil {
			return fmt.Errorf("telemetry reply missing %q", name)
		}
	}
	t.Pheromone = *raw[pheromoneField]
	t.ETT = *raw["ETT"]
	t.SoC = *raw["SoC"]
	return nil
}

// AssignReply TA 的回复
type AssignReply struct {
	ExecTime float64 `json:"Exec Time"`
}

// SyncReply X 的回复
type SyncReply struct {
	X string `json:"X"`
}

// ErrorReply 节点处理失败时的回复
type ErrorReply struct {
	Error string `json:"error"`
}
