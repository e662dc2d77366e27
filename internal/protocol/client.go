package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"offload/pkg/model"
)

var (
	// ErrRemote 节点返回了 {"error": ...}
	ErrRemote = errors.New("remote error")
	// ErrNoReply 节点没有回复就关闭了连接
	ErrNoReply = errors.New("connection closed without reply")
)

// CallError 一次请求失败，带上节点信息方便上报
type CallError struct {
	Node string
	Port int
	Op   MessageType
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s to %s (port %d): %v", e.Op, e.Node, e.Port, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Client 每次调用新建一个 TCP 连接，一问一答
type Client struct {
	// Timeout 限制 dial + 一次请求/回复，0 表示不限
	Timeout time.Duration
	// AssignTimeout 单独限制 TA，任务执行本来就可能很久，0 表示不限
	AssignTimeout time.Duration

	dialer net.Dialer
}

func NewClient(timeout, assignTimeout time.Duration) *Client {
	return &Client{Timeout: timeout, AssignTimeout: assignTimeout}
}

// Probe 发送 TTRC，返回 (信息素, ETT, SoC)
func (c *Client) Probe(ctx context.Context, node *model.NodeRecord, ic int) (Telemetry, error) {
	var t Telemetry
	err := c.call(ctx, node, ProbeRequest(ic), c.Timeout, &t)
	return t, err
}

// Assign 发送 TA，阻塞到节点执行完，返回实际执行时间 (秒)
func (c *Client) Assign(ctx context.Context, node *model.NodeRecord, ic int) (float64, error) {
	var r AssignReply
	err := c.call(ctx, node, AssignRequest(ic), c.AssignTimeout, &r)
	return r.ExecTime, err
}

// Sync 发送 X
func (c *Client) Sync(ctx context.Context, node *model.NodeRecord) error {
	var r SyncReply
	return c.call(ctx, node, SyncRequest, c.Timeout, &r)
}

// Terminate 发送 TERMINATE，不等回复
func (c *Client) Terminate(ctx context.Context, node *model.NodeRecord) error {
	return c.call(ctx, node, TerminateRequest, c.Timeout, nil)
}

func (c *Client) call(ctx context.Context, node *model.NodeRecord, req Request, timeout time.Duration, out any) error {
	wrap := func(err error) error {
		return &CallError{Node: node.Name, Port: node.Port, Op: req.Type, Err: err}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", node.Addr())
	if err != nil {
		return wrap(err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return wrap(err)
		}
	}
	// ctx 被取消时立刻打断阻塞的读写
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := writeJSON(conn, req); err != nil {
		return wrap(err)
	}
	if out == nil {
		return nil
	}
	if err := readReply(conn, out); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		return wrap(err)
	}
	return nil
}
