package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"offload/pkg/model"

	"github.com/hashicorp/go-hclog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// 定义 Key 的前缀 (Schema Design)
const (
	NodeKeyPrefix = "/offload/nodes/"
	RunKeyPrefix  = "/offload/runs/"
)

type EtcdManager struct {
	client *clientv3.Client
	logger hclog.Logger
}

// NewEtcdManager 初始化 Etcd 连接
func NewEtcdManager(endpoints []string, logger hclog.Logger) (*EtcdManager, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdManager{client: cli, logger: logger.Named("etcd")}, nil
}

func (e *EtcdManager) Close() error {
	return e.client.Close()
}

// ---------------------------------------------------------
// Node 相关实现
// ---------------------------------------------------------

func nodeKey(port int) string {
	return NodeKeyPrefix + strconv.Itoa(port)
}

// PutNode 端口即主键，Put 天然就是 upsert
func (e *EtcdManager) PutNode(ctx context.Context, node *model.NodeRecord) error {
	return e.putValue(ctx, nodeKey(node.Port), node)
}

func (e *EtcdManager) ListNodes(ctx context.Context) ([]*model.NodeRecord, error) {
	// 获取 /offload/nodes/ 下的所有 Key
	resp, err := e.client.Get(ctx, NodeKeyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	nodes := make([]*model.NodeRecord, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var node model.NodeRecord
		if err := json.Unmarshal(kv.Value, &node); err != nil {
			e.logger.Warn("skipping undecodable node record", "key", string(kv.Key), "error", err)
			continue
		}
		nodes = append(nodes, &node)
	}
	// etcd 按字典序返回，这里改成按端口排序
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Port < nodes[j].Port })
	return nodes, nil
}

// WatchNodes 将 Etcd 的 Watch 转换为业务 Channel
func (e *EtcdManager) WatchNodes(ctx context.Context) <-chan NodeEvent {
	eventChan := make(chan NodeEvent)

	go func() {
		defer close(eventChan)
		watchChan := e.client.Watch(ctx, NodeKeyPrefix, clientv3.WithPrefix(), clientv3.WithPrevKV())

		for watchResp := range watchChan {
			for _, ev := range watchResp.Events {
				var (
					eventType NodeEventType
					value     []byte
				)
				switch ev.Type {
				case clientv3.EventTypePut:
					eventType = NodeUpdate
					value = ev.Kv.Value
				case clientv3.EventTypeDelete:
					eventType = NodeDelete
					if ev.PrevKv == nil {
						continue
					}
					value = ev.PrevKv.Value
				}

				var node model.NodeRecord
				if err := json.Unmarshal(value, &node); err != nil {
					e.logger.Warn("failed to unmarshal node event", "error", err)
					continue
				}

				select {
				case eventChan <- NodeEvent{Type: eventType, Node: &node}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return eventChan
}

// ---------------------------------------------------------
// Run 相关实现
// ---------------------------------------------------------

func (e *EtcdManager) SaveRun(ctx context.Context, run *model.RunResult) error {
	return e.putValue(ctx, RunKeyPrefix+run.ID, run)
}

func (e *EtcdManager) GetRun(ctx context.Context, id string) (*model.RunResult, error) {
	resp, err := e.client.Get(ctx, RunKeyPrefix+id)
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}

	var run model.RunResult
	if err := json.Unmarshal(resp.Kvs[0].Value, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ---------------------------------------------------------
// 辅助方法 (Helpers)
// ---------------------------------------------------------

// putValue 封装通用的 JSON 序列化 + Put 操作
func (e *EtcdManager) putValue(ctx context.Context, key string, val interface{}) error {
	bytes, err := json.Marshal(val)
	if err != nil {
		return err
	}
	_, err = e.client.Put(ctx, key, string(bytes))
	return err
}
