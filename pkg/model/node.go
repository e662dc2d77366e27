package model

import (
	"fmt"
	"net"
	"strconv"
)

// NodeStatus 节点生命周期状态 (只允许 Alive -> Dead)
type NodeStatus string

const (
	NodeAlive NodeStatus = "ALIVE"
	NodeDead  NodeStatus = "DEAD" // 电量耗尽或收到 TERMINATE
)

// NodeRecord 是目录中保存的节点记录，由节点自己写入，Task Manager 只读
type NodeRecord struct {
	ID   string `json:"id"`   // 进程实例 UUID，每次启动重新生成
	Name string `json:"name"` // 唯一名称，例如 "Galaxy S21"
	IP   string `json:"ip"`
	Port int    `json:"port"` // 绑定时分配，也是目录里的主键

	// 能力视图
	// PC: 并行度 (执行通道数)
	// P0: 基准信息素，启动时由 benchmark 校准得到，必须 > 0
	PC int     `json:"pc"`
	P0 float64 `json:"p0"`

	// 历史记录：每一轮协议追加一条 (包括 X 同步轮)，两者长度始终相等
	PRecord   []float64 `json:"p_record"`
	SoCRecord []float64 `json:"soc_record"`

	Status    NodeStatus `json:"status"`
	UpdatedAt int64      `json:"updated_at"` // Unix 时间戳
}

// Addr 返回 host:port
func (n *NodeRecord) Addr() string {
	return net.JoinHostPort(n.IP, strconv.Itoa(n.Port))
}

// LastPheromone 返回 P_record[-1]
func (n *NodeRecord) LastPheromone() float64 {
	if len(n.PRecord) == 0 {
		return n.P0
	}
	return n.PRecord[len(n.PRecord)-1]
}

// LastSoC 返回 SoC_record[-1]
func (n *NodeRecord) LastSoC() float64 {
	if len(n.SoCRecord) == 0 {
		return 0
	}
	return n.SoCRecord[len(n.SoCRecord)-1]
}

func (n *NodeRecord) Exhausted() bool {
	return n.LastSoC() <= 0
}

func (n *NodeRecord) Alive() bool {
	return n.Status != NodeDead && !n.Exhausted()
}

func (n *NodeRecord) String() string {
	return fmt.Sprintf("%s(%d)", n.Name, n.Port)
}

// Clone 深拷贝，避免调用方改到存储里的切片
func (n *NodeRecord) Clone() *NodeRecord {
	c := *n
	c.PRecord = append([]float64(nil), n.PRecord...)
	c.SoCRecord = append([]float64(nil), n.SoCRecord...)
	return &c
}
