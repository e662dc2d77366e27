package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"offload/internal/protocol"
	"offload/internal/worker/battery"
	"offload/internal/worker/calibrate"
	"offload/internal/worker/executor"
	"offload/pkg/model"
	"offload/pkg/store"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Config 单个节点的启动参数
type Config struct {
	Name string
	IP   string
	PC   int
	P0   float64

	SoC0         float64 // 初始电量 [0,1]
	DrainRate    float64 // 基础放电速率 (SoC/小时)
	Acceleration float64 // 模拟加速因子

	W1 float64 // 响应时间权重
	W2 float64 // 能耗权重

	// IOTimeout 单个连接的读写超时，防止一个卡住的客户端拖死节点
	IOTimeout time.Duration
}

// State 节点状态机：Alive -> Dead，不可逆
type State int

const (
	StateAlive State = iota
	StateDead
)

func (s State) String() string {
	if s == StateDead {
		return "dead"
	}
	return "alive"
}

type Agent struct {
	ID       string
	cfg      Config
	store    store.Store
	executor executor.Executor
	logger   hclog.Logger

	// 以下状态只由 Run 的循环修改，锁只是为了 Snapshot 可以并发读
	mu        sync.Mutex
	battery   *battery.Linear
	pRecord   []float64
	socRecord []float64
	port      int
	state     State

	ready chan struct{}
}

func NewAgent(cfg Config, s store.Store, exec executor.Executor, logger hclog.Logger) *Agent {
	if cfg.IP == "" {
		cfg.IP = "127.0.0.1"
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = 30 * time.Second
	}
	return &Agent{
		ID:        uuid.NewString(),
		cfg:       cfg,
		store:     s,
		executor:  exec,
		logger:    logger.Named(cfg.Name),
		battery:   battery.NewLinear(cfg.SoC0, cfg.DrainRate, cfg.Acceleration),
		pRecord:   []float64{cfg.P0},
		socRecord: []float64{cfg.SoC0},
		ready:     make(chan struct{}),
	}
}

// Ready 在端口绑定并写入目录后关闭
func (a *Agent) Ready() <-chan struct{} {
	return a.ready
}

func (a *Agent) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return net.JoinHostPort(a.cfg.IP, strconv.Itoa(a.port))
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Snapshot 返回当前节点记录的副本
func (a *Agent) Snapshot() *model.NodeRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recordLocked()
}

func (a *Agent) recordLocked() *model.NodeRecord {
	status := model.NodeAlive
	if a.state == StateDead {
		status = model.NodeDead
	}
	return &model.NodeRecord{
		ID:        a.ID,
		Name:      a.cfg.Name,
		IP:        a.cfg.IP,
		Port:      a.port,
		PC:        a.cfg.PC,
		P0:        a.cfg.P0,
		PRecord:   append([]float64(nil), a.pRecord...),
		SoCRecord: append([]float64(nil), a.socRecord...),
		Status:    status,
		UpdatedAt: time.Now().Unix(),
	}
}

// Run 绑定端口、注册到目录，然后一次只处理一个连接，直到节点死亡或 ctx 结束
func (a *Agent) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(a.cfg.IP, "0"))
	if err != nil {
		return fmt.Errorf("bind %s: %w", a.cfg.Name, err)
	}
	defer ln.Close()

	a.mu.Lock()
	a.port = ln.Addr().(*net.TCPAddr).Port
	a.mu.Unlock()

	if err := a.persist(ctx); err != nil {
		return fmt.Errorf("register %s: %w", a.cfg.Name, err)
	}
	close(a.ready)
	a.logger.Info("listening", "addr", a.Addr(), "pc", a.cfg.PC, "p0", a.cfg.P0, "soc", a.cfg.SoC0)

	// ctx 结束时关掉 listener，让 Accept 返回
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-done:
		}
	}()

	defer a.shutdown(ctx)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				a.logger.Info("stopped")
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		terminate := a.handle(ctx, conn)
		conn.Close()

		if terminate {
			a.logger.Info("terminate received, shutting down")
			return nil
		}
		// 不管是哪种消息触发的，电量到 0 就退出
		if a.batteryEmpty() {
			a.logger.Warn("battery drained, shutting down")
			return nil
		}
	}
}

// shutdown 进入 Dead 状态并写回目录
func (a *Agent) shutdown(ctx context.Context) {
	a.mu.Lock()
	a.state = StateDead
	a.mu.Unlock()

	// ctx 可能已经取消，用独立的超时写最后一次
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.persist(pctx); err != nil {
		a.logger.Error("failed to persist final state", "error", err)
	}
}

// handle 处理一个连接上的一个请求，返回是否收到 TERMINATE
func (a *Agent) handle(ctx context.Context, conn net.Conn) bool {
	req, err := protocol.ReadRequest(conn, a.cfg.IOTimeout)
	if err != nil {
		// 坏请求只影响这一个连接，节点继续服务
		a.logger.Warn("rejecting request", "remote", conn.RemoteAddr().String(), "error", err)
		a.reply(conn, protocol.ErrorReply{Error: err.Error()})
		return false
	}

	switch req.Type {
	case protocol.TypeProbe:
		a.reply(conn, a.telemetry(*req.IC))

	case protocol.TypeAssign:
		execTime, err := a.executeTask(ctx, *req.IC)
		if err != nil {
			a.logger.Error("task failed", "ic", *req.IC, "error", err)
			a.reply(conn, protocol.ErrorReply{Error: err.Error()})
			return false
		}
		a.persistOrLog(ctx)
		a.reply(conn, protocol.AssignReply{ExecTime: execTime.Seconds()})

	case protocol.TypeSync:
		a.sync()
		a.persistOrLog(ctx)
		a.reply(conn, protocol.SyncReply{X: "X"})

	case protocol.TypeTerminate:
		return true
	}
	return false
}

func (a *Agent) reply(conn net.Conn, v any) {
	if err := protocol.WriteReply(conn, a.cfg.IOTimeout, v); err != nil {
		a.logger.Warn("failed to write reply", "error", err)
	}
}

// telemetry TTRC：只读，不修改状态
func (a *Agent) telemetry(ic int) protocol.Telemetry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return protocol.Telemetry{
		Pheromone: a.pRecord[len(a.pRecord)-1],
		ETT:       calibrate.ETT(ic, a.cfg.PC),
		SoC:       a.socRecord[len(a.socRecord)-1],
	}
}

// executeTask TA：执行 -> 扣电 -> 更新信息素
func (a *Agent) executeTask(ctx context.Context, ic int) (time.Duration, error) {
	estimated := calibrate.ETT(ic, a.cfg.PC)
	actual, err := a.executor.Run(ctx, ic, a.cfg.PC)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.battery.Drain(actual)
	soc := a.battery.SoC()
	a.socRecord = append(a.socRecord, soc)
	p := NextPheromone(a.cfg.P0, a.cfg.W1, a.cfg.W2, actual.Seconds(), estimated, soc)
	a.pRecord = append(a.pRecord, p)

	a.logger.Info("task executed", "ic", ic, "r_a", actual.Seconds(), "r_e", estimated, "soc", soc, "pheromone", p)
	return actual, nil
}

// sync X：复制最后一条记录，保证全网历史长度一致
func (a *Agent) sync() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.socRecord = append(a.socRecord, a.socRecord[len(a.socRecord)-1])
	a.pRecord = append(a.pRecord, a.pRecord[len(a.pRecord)-1])
}

func (a *Agent) batteryEmpty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.battery.Empty()
}

func (a *Agent) persist(ctx context.Context) error {
	if a.store == nil {
		return errors.New("no store configured")
	}
	return a.store.PutNode(ctx, a.Snapshot())
}

func (a *Agent) persistOrLog(ctx context.Context) {
	if err := a.persist(ctx); err != nil {
		a.logger.Error("failed to persist node record", "error", err)
	}
}
