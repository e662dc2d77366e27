package store

import (
	"context"
	"errors"

	"offload/pkg/model"
)

var ErrNotFound = errors.New("store: not found")

// NodeEventType 定义监听事件类型
type NodeEventType int

const (
	NodeUpdate NodeEventType = iota
	NodeDelete
)

// NodeEvent 包装了目录中发生的节点变化
type NodeEvent struct {
	Type NodeEventType
	Node *model.NodeRecord
}

// Store 接口定义了系统对共享目录的所有需求
// 节点和 Task Manager 都通过注入的 Store 访问目录，没有全局单例
type Store interface {
	// --- Node 相关 ---

	// PutNode 按端口 upsert：端口已存在则更新，否则插入 (节点每次处理完请求后调用)
	PutNode(ctx context.Context, node *model.NodeRecord) error

	// ListNodes 获取所有节点记录 (调度器每一轮开始时调用)
	ListNodes(ctx context.Context) ([]*model.NodeRecord, error)

	// WatchNodes 监听节点变化 (返回一个只读通道，ctx 结束时关闭)
	WatchNodes(ctx context.Context) <-chan NodeEvent

	// --- Run 相关 ---

	// SaveRun 保存一次模拟的 turnaround 记录
	SaveRun(ctx context.Context, run *model.RunResult) error
	GetRun(ctx context.Context, id string) (*model.RunResult, error)
}
