package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"offload/pkg/model"
)

// Memory 是进程内的目录实现，用于单进程模拟和测试
// 读写都做深拷贝，调用方拿到的记录和存储互不影响
type Memory struct {
	mu       sync.RWMutex
	nodes    map[int]*model.NodeRecord
	runs     map[string]*model.RunResult
	watchers map[chan NodeEvent]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		nodes:    make(map[int]*model.NodeRecord),
		runs:     make(map[string]*model.RunResult),
		watchers: make(map[chan NodeEvent]struct{}),
	}
}

func (m *Memory) PutNode(ctx context.Context, node *model.NodeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[node.Port] = node.Clone()

	for ch := range m.watchers {
		// 慢消费者直接丢事件，不能阻塞节点的请求处理
		select {
		case ch <- NodeEvent{Type: NodeUpdate, Node: node.Clone()}:
		default:
		}
	}
	return nil
}

func (m *Memory) ListNodes(ctx context.Context) ([]*model.NodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := make([]*model.NodeRecord, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n.Clone())
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Port < nodes[j].Port })
	return nodes, nil
}

func (m *Memory) WatchNodes(ctx context.Context) <-chan NodeEvent {
	ch := make(chan NodeEvent, 64)
	m.mu.Lock()
	m.watchers[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}

func (m *Memory) SaveRun(ctx context.Context, run *model.RunResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := *run
	c.Turnarounds = append([]float64(nil), run.Turnarounds...)
	m.mu.Lock()
	m.runs[run.ID] = &c
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (*model.RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	c := *run
	c.Turnarounds = append([]float64(nil), run.Turnarounds...)
	return &c, nil
}
