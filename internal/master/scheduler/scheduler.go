package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"offload/internal/protocol"
	"offload/pkg/model"
	"offload/pkg/store"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

var (
	// ErrNoCandidates 没有可用节点 (全部耗尽或不可达)
	ErrNoCandidates = errors.New("no nodes available")
	// ErrFleetExhausted 有节点电量耗尽，整个网络已被关闭
	ErrFleetExhausted = errors.New("fleet exhausted")
	// ErrNonPositiveWeight 总权重 <= 0，轮盘赌没有定义
	ErrNonPositiveWeight = errors.New("total selection weight is not positive")
	// ErrSyncIncomplete 任务已执行，但有节点没收到 X
	ErrSyncIncomplete = errors.New("history sync incomplete")
)

// ShutdownPolicy 发现电量耗尽节点时的处理策略
type ShutdownPolicy string

const (
	// PolicyFleet 任何一个节点耗尽就关闭整个网络 (实验之间可比)
	PolicyFleet ShutdownPolicy = "fleet"
	// PolicyExclude 只把耗尽的节点排除，其余继续
	PolicyExclude ShutdownPolicy = "exclude"
)

// NodeClient 调度器对节点协议的需求
type NodeClient interface {
	Probe(ctx context.Context, node *model.NodeRecord, ic int) (protocol.Telemetry, error)
	Assign(ctx context.Context, node *model.NodeRecord, ic int) (float64, error)
	Sync(ctx context.Context, node *model.NodeRecord) error
	Terminate(ctx context.Context, node *model.NodeRecord) error
}

type Options struct {
	Alpha, Beta, Gamma float64
	Policy             ShutdownPolicy
	Rand               *rand.Rand

	// MaxConsecutiveFailures 连续多少轮通信失败后停止模拟
	MaxConsecutiveFailures int
}

// RoundResult 一轮调度的结果
type RoundResult struct {
	Task       model.Task
	Node       *model.NodeRecord
	Turnaround float64
	Candidates []Candidate
}

// Scheduler 即 Task Manager：遥测 -> 打分 -> 轮盘赌 -> 分配 -> 同步
type Scheduler struct {
	store  store.Store
	client NodeClient
	opts   Options
	sinks  []Sink
	logger hclog.Logger
}

// NewScheduler 构造函数
func NewScheduler(s store.Store, client NodeClient, opts Options, logger hclog.Logger, sinks ...Sink) *Scheduler {
	if opts.Policy == "" {
		opts.Policy = PolicyFleet
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = 3
	}
	return &Scheduler{
		store:  s,
		client: client,
		opts:   opts,
		sinks:  sinks,
		logger: logger.Named("scheduler"),
	}
}

// Run 主循环：每轮取一个任务调度，直到网络耗尽、没有节点、达到 maxRounds 或 ctx 结束
// maxRounds <= 0 表示不限轮数
func (s *Scheduler) Run(ctx context.Context, tasks TaskSource, maxRounds int) (*model.RunResult, error) {
	run := &model.RunResult{
		ID:          uuid.NewString(),
		Alpha:       s.opts.Alpha,
		Beta:        s.opts.Beta,
		Gamma:       s.opts.Gamma,
		Turnarounds: []float64{},
		StartTime:   time.Now(),
	}
	s.logger.Info("started", "run", run.ID, "alpha", s.opts.Alpha, "beta", s.opts.Beta, "gamma", s.opts.Gamma, "policy", s.opts.Policy)

	s.render(nil, 0)
	s.recordHistory(ctx)

	var (
		runErr   error
		failures int
	)
	run.StopReason = model.StopMaxRounds

loop:
	for maxRounds <= 0 || run.Tasks < maxRounds {
		if ctx.Err() != nil {
			run.StopReason = model.StopCancelled
			break
		}

		task := tasks.Next()
		res, err := s.ScheduleOne(ctx, task)
		if res != nil {
			run.Turnarounds = append(run.Turnarounds, res.Turnaround)
			run.Tasks++
			s.render(res.Node, run.Cumulative())
			s.observe(res)
		}
		s.recordHistory(ctx)
		if err != nil {
			s.observeFailure(err)
		}

		switch {
		case err == nil:
			failures = 0
		case errors.Is(err, ErrNoCandidates):
			s.logger.Warn("no available nodes")
			run.StopReason = model.StopNoCandidates
			break loop
		case errors.Is(err, ErrFleetExhausted):
			s.logger.Warn("network died")
			run.StopReason = model.StopFleetDrained
			break loop
		case ctx.Err() != nil:
			run.StopReason = model.StopCancelled
			break loop
		case errors.Is(err, ErrNonPositiveWeight):
			run.StopReason = model.StopFailed
			runErr = err
			break loop
		default:
			failures++
			run.Failures++
			s.reportFailure(task, err)
			if failures >= s.opts.MaxConsecutiveFailures {
				run.StopReason = model.StopTooManyErrors
				runErr = err
				break loop
			}
		}
	}

	run.EndTime = time.Now()
	s.logger.Info("finished", "run", run.ID, "tasks", run.Tasks, "reason", run.StopReason, "cumulative_response_time", run.Cumulative())

	// ctx 可能已经取消，结果仍然要落盘
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.SaveRun(sctx, run); err != nil {
		s.logger.Error("failed to save run", "run", run.ID, "error", err)
	}
	return run, runErr
}

// ScheduleOne 执行单轮调度逻辑
func (s *Scheduler) ScheduleOne(ctx context.Context, task model.Task) (*RoundResult, error) {
	// Step 1: 获取当前目录快照
	nodes, err := s.store.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	// Step 2: Filter - 分出候选者和耗尽的节点
	candidates, exhausted := s.filterNodes(nodes)
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if len(exhausted) > 0 {
		if s.opts.Policy == PolicyFleet {
			s.terminateAll(ctx, candidates, exhausted)
			return nil, ErrFleetExhausted
		}
		for _, n := range exhausted {
			s.logger.Debug("node excluded: battery drained", "node", n.Name, "port", n.Port)
		}
	}

	// Step 3: TTRC 广播 (顺序，一次一个连接)
	s.logger.Debug("TTRC broadcasting", "ic", task.IC, "candidates", len(candidates))
	scored := make([]Candidate, 0, len(candidates))
	for _, node := range candidates {
		tel, err := s.client.Probe(ctx, node, task.IC)
		if err != nil {
			return nil, err
		}
		scored = append(scored, Candidate{Node: node, Telemetry: tel})
	}

	// Step 4: Score - 权重归一化成概率
	if err := scoreCandidates(scored, s.opts.Alpha, s.opts.Beta, s.opts.Gamma); err != nil {
		return nil, err
	}

	// Step 5: 轮盘赌
	chosen := scored[rouletteWheel(scored, s.opts.Rand)]
	s.logger.Debug("roulette wheel selected", "node", chosen.Node.Name, "probabilities", probabilities(scored))

	// Step 6: TA - 阻塞到节点执行完
	turnaround, err := s.client.Assign(ctx, chosen.Node, task.IC)
	if err != nil {
		return nil, err
	}
	res := &RoundResult{Task: task, Node: chosen.Node, Turnaround: turnaround, Candidates: scored}
	s.logger.Info("task executed", "node", chosen.Node.Name, "port", chosen.Node.Port, "ic", task.IC, "turnaround", turnaround, "probability", chosen.Probability)

	// Step 7: X - 其他候选者只追加一条重复记录，保证历史长度一致
	var syncErrs []error
	for _, c := range scored {
		if c.Node.Port == chosen.Node.Port {
			continue
		}
		if err := s.client.Sync(ctx, c.Node); err != nil {
			syncErrs = append(syncErrs, err)
		}
	}
	if len(syncErrs) > 0 {
		return res, fmt.Errorf("%w: %w", ErrSyncIncomplete, errors.Join(syncErrs...))
	}
	return res, nil
}

// terminateAll 任何一个节点耗尽，就给所有还活着的候选者发 TERMINATE
func (s *Scheduler) terminateAll(ctx context.Context, candidates, exhausted []*model.NodeRecord) {
	for _, n := range exhausted {
		s.logger.Warn("battery drained, shutting down fleet", "node", n.Name, "port", n.Port)
	}
	for _, node := range candidates {
		if err := s.client.Terminate(ctx, node); err != nil {
			s.logger.Warn("terminate failed", "node", node.Name, "port", node.Port, "error", err)
		}
	}
}

func (s *Scheduler) reportFailure(task model.Task, err error) {
	var callErr *protocol.CallError
	if errors.As(err, &callErr) {
		s.logger.Error("round failed", "node", callErr.Node, "port", callErr.Port, "op", callErr.Op, "ic", task.IC, "error", callErr.Err)
		return
	}
	s.logger.Error("round failed", "ic", task.IC, "error", err)
}

func (s *Scheduler) render(selected *model.NodeRecord, cumulative float64) {
	for _, sink := range s.sinks {
		sink.Render(selected, cumulative)
	}
}

func (s *Scheduler) observe(res *RoundResult) {
	for _, sink := range s.sinks {
		if o, ok := sink.(RoundObserver); ok {
			o.ObserveRound(res)
		}
	}
}

func (s *Scheduler) observeFailure(err error) {
	for _, sink := range s.sinks {
		if o, ok := sink.(FailureObserver); ok {
			o.ObserveFailure(err)
		}
	}
}

// recordHistory 每轮结束后重新读一次目录交给 Sink
func (s *Scheduler) recordHistory(ctx context.Context) {
	if len(s.sinks) == 0 || ctx.Err() != nil {
		return
	}
	nodes, err := s.store.ListNodes(ctx)
	if err != nil {
		s.logger.Warn("failed to read battery history", "error", err)
		return
	}
	for _, sink := range s.sinks {
		sink.RecordBatteryHistory(nodes)
	}
}

func probabilities(cands []Candidate) []float64 {
	p := make([]float64, len(cands))
	for i, c := range cands {
		p[i] = c.Probability
	}
	return p
}
