package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"testing"
	"time"

	"offload/internal/protocol"
	"offload/internal/worker"
	"offload/pkg/model"
	"offload/pkg/store"

	"github.com/hashicorp/go-hclog"
)

type fixedExecutor struct {
	d time.Duration
}

func (e fixedExecutor) Run(ctx context.Context, ic, pc int) (time.Duration, error) {
	return e.d, nil
}

type testNode struct {
	agent *worker.Agent
	errCh chan error
}

// startNode 在本进程里起一个真正走 TCP 的节点
func startNode(t *testing.T, st store.Store, name string, drainRate float64, busy time.Duration) *testNode {
	t.Helper()
	a := worker.NewAgent(worker.Config{
		Name:         name,
		PC:           2,
		P0:           1.5,
		SoC0:         1,
		DrainRate:    drainRate,
		Acceleration: 1,
		W1:           1,
		W2:           1,
		IOTimeout:    time.Second,
	}, st, fixedExecutor{d: busy}, hclog.NewNullLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	n := &testNode{agent: a, errCh: make(chan error, 1)}
	go func() { n.errCh <- a.Run(ctx) }()

	select {
	case <-a.Ready():
	case err := <-n.errCh:
		t.Fatalf("node %s failed: %v", name, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("node %s not ready", name)
	}
	return n
}

func (n *testNode) waitExit(t *testing.T) {
	t.Helper()
	select {
	case <-n.errCh:
	case <-time.After(5 * time.Second):
		t.Fatalf("node %s did not exit", n.agent.Snapshot().Name)
	}
}

func newTestScheduler(st store.Store, policy ShutdownPolicy, sinks ...Sink) *Scheduler {
	return NewScheduler(st, protocol.NewClient(time.Second, 5*time.Second), Options{
		Alpha: 1, Beta: 1, Gamma: 1,
		Policy: policy,
		Rand:   rand.New(rand.NewPCG(42, 42)),
	}, hclog.NewNullLogger(), sinks...)
}

// recordingSink 记录收到的调用
type recordingSink struct {
	renders   []*model.NodeRecord
	cums      []float64
	histories int
	rounds    int
}

func (r *recordingSink) Render(selected *model.NodeRecord, cumulative float64) {
	r.renders = append(r.renders, selected)
	r.cums = append(r.cums, cumulative)
}
func (r *recordingSink) RecordBatteryHistory(nodes []*model.NodeRecord) { r.histories++ }
func (r *recordingSink) ObserveRound(res *RoundResult)                  { r.rounds++ }

func TestRunKeepsHistoriesAligned(t *testing.T) {
	st := store.NewMemory()
	for _, name := range []string{"n1", "n2", "n3"} {
		startNode(t, st, name, 0.01, 10*time.Millisecond)
	}
	sink := &recordingSink{}
	s := newTestScheduler(st, PolicyFleet, sink)

	run, err := s.Run(context.Background(), NewRandomTasks(42, 10, 100), 5)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Tasks != 5 || len(run.Turnarounds) != 5 || run.StopReason != model.StopMaxRounds {
		t.Fatalf("unexpected run %+v", run)
	}

	nodes, _ := st.ListNodes(context.Background())
	for _, n := range nodes {
		if len(n.PRecord) != 6 || len(n.SoCRecord) != 6 {
			t.Errorf("node %s has %d/%d entries, want 6", n.Name, len(n.PRecord), len(n.SoCRecord))
		}
	}

	if len(sink.renders) != 6 || sink.renders[0] != nil {
		t.Errorf("expected an initial render plus one per round, got %d", len(sink.renders))
	}
	if sink.rounds != 5 || sink.histories != 6 {
		t.Errorf("sink saw %d rounds and %d history snapshots", sink.rounds, sink.histories)
	}

	saved, err := st.GetRun(context.Background(), run.ID)
	if err != nil || saved.Tasks != 5 {
		t.Errorf("run not persisted: %+v (%v)", saved, err)
	}
}

func TestScheduleOneOnlyChosenNodeDrains(t *testing.T) {
	st := store.NewMemory()
	startNode(t, st, "n1", 0.5, 50*time.Millisecond)
	startNode(t, st, "n2", 0.5, 50*time.Millisecond)
	s := newTestScheduler(st, PolicyFleet)

	res, err := s.ScheduleOne(context.Background(), model.Task{IC: 20})
	if err != nil {
		t.Fatalf("ScheduleOne failed: %v", err)
	}
	if res.Turnaround <= 0 || len(res.Candidates) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	nodes, _ := st.ListNodes(context.Background())
	for _, n := range nodes {
		drained := n.LastSoC() < 1
		if chosen := n.Port == res.Node.Port; chosen != drained {
			t.Errorf("node %s: chosen=%v drained=%v", n.Name, chosen, drained)
		}
	}
}

func TestDrainedNodeIsExcludedNextRound(t *testing.T) {
	st := store.NewMemory()
	// 一次任务就把电量用光
	only := startNode(t, st, "solo", 1, 2*time.Hour)
	s := newTestScheduler(st, PolicyFleet)

	if _, err := s.ScheduleOne(context.Background(), model.Task{IC: 10}); err != nil {
		t.Fatalf("first round failed: %v", err)
	}
	only.waitExit(t)

	if _, err := s.ScheduleOne(context.Background(), model.Task{IC: 10}); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
}

func TestFleetShutdownOnExhaustedNode(t *testing.T) {
	st := store.NewMemory()
	a := startNode(t, st, "a", 0.1, time.Millisecond)
	b := startNode(t, st, "b", 0.1, time.Millisecond)

	// 目录里出现一个电量为 0 的节点
	st.PutNode(context.Background(), &model.NodeRecord{
		Name: "drained", IP: "127.0.0.1", Port: 1,
		P0: 1, PRecord: []float64{1, 0.5}, SoCRecord: []float64{1, 0},
		Status: model.NodeDead,
	})

	sink := &recordingSink{}
	s := newTestScheduler(st, PolicyFleet, sink)
	run, err := s.Run(context.Background(), NewRandomTasks(1, 10, 100), 10)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.StopReason != model.StopFleetDrained || run.Tasks != 0 {
		t.Fatalf("expected fleet shutdown before any task, got %+v", run)
	}

	a.waitExit(t)
	b.waitExit(t)
	if sink.rounds != 0 {
		t.Errorf("no task may be issued after shutdown, saw %d", sink.rounds)
	}
}

func TestExcludePolicyContinues(t *testing.T) {
	st := store.NewMemory()
	startNode(t, st, "a", 0.1, time.Millisecond)
	st.PutNode(context.Background(), &model.NodeRecord{
		Name: "drained", IP: "127.0.0.1", Port: 1,
		P0: 1, PRecord: []float64{1}, SoCRecord: []float64{0},
	})

	s := newTestScheduler(st, PolicyExclude)
	run, err := s.Run(context.Background(), NewRandomTasks(1, 10, 20), 3)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Tasks != 3 {
		t.Fatalf("expected 3 tasks with the drained node excluded, got %+v", run)
	}
}

func TestRunStopsAfterConsecutiveFailures(t *testing.T) {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	st := store.NewMemory()
	st.PutNode(context.Background(), &model.NodeRecord{
		Name: "ghost", IP: "127.0.0.1", Port: port,
		P0: 1, PRecord: []float64{1}, SoCRecord: []float64{1}, Status: model.NodeAlive,
	})

	s := newTestScheduler(st, PolicyFleet)
	run, err := s.Run(context.Background(), NewRandomTasks(1, 10, 20), 0)
	var callErr *protocol.CallError
	if !errors.As(err, &callErr) || callErr.Node != "ghost" || callErr.Op != protocol.TypeProbe {
		t.Fatalf("expected probe CallError for ghost, got %v", err)
	}
	if run.StopReason != model.StopTooManyErrors || run.Failures != 3 || run.Tasks != 0 {
		t.Errorf("unexpected run %+v", run)
	}
}

func TestFilterNodes(t *testing.T) {
	s := newTestScheduler(store.NewMemory(), PolicyFleet)
	nodes := []*model.NodeRecord{
		{Name: "ok", PRecord: []float64{1}, SoCRecord: []float64{0.4}, Status: model.NodeAlive},
		{Name: "empty", PRecord: []float64{1}, SoCRecord: []float64{0}, Status: model.NodeAlive},
		{Name: "dead", PRecord: []float64{1}, SoCRecord: []float64{0.9}, Status: model.NodeDead},
	}
	cands, exhausted := s.filterNodes(nodes)
	if len(cands) != 1 || cands[0].Name != "ok" {
		t.Errorf("unexpected candidates %v", cands)
	}
	if len(exhausted) != 1 || exhausted[0].Name != "empty" {
		t.Errorf("unexpected exhausted %v", exhausted)
	}
}
