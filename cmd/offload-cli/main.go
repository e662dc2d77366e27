package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"offload/internal/config"
	"offload/internal/master/scheduler"
	"offload/internal/protocol"
	"offload/internal/worker"
	"offload/internal/worker/calibrate"
	"offload/internal/worker/executor"
	"offload/pkg/model"
	"offload/pkg/store"

	"github.com/hashicorp/go-hclog"
)

func main() {
	// --- 1. 定义命令行参数 ---
	// 启动整组节点 (不指定文件就用五台参考设备)
	fleetPath := flag.String("fleet", "", "Fleet YAML file (default: the five reference devices)")
	startFleet := flag.Bool("start", false, "Start every node of the fleet in this process")
	// 单进程模拟：内存目录 + 节点 + Task Manager
	simulate := flag.Bool("simulate", false, "Run fleet and task manager in-process on an in-memory directory")
	show := flag.Bool("show", false, "Print the node directory")
	watch := flag.Bool("watch", false, "Stream directory changes")
	runID := flag.String("run", "", "Print a saved run")
	endpoints := flag.String("etcd", "localhost:2379", "Comma separated etcd endpoints")
	matrixSize := flag.Int("matrix-size", 500, "Matrix size of one work unit")
	logLevel := flag.String("log-level", "INFO", "Log level")
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "offload",
		Level: hclog.LevelFromString(*logLevel),
	})

	fleet := config.DefaultFleet()
	if *fleetPath != "" {
		f, err := config.LoadFleet(*fleetPath)
		if err != nil {
			logger.Error("invalid fleet file", "error", err)
			os.Exit(2)
		}
		fleet = *f
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	// --- 2. 分支 A: 单进程模拟，不需要 Etcd ---
	if *simulate {
		st := store.NewMemory()
		if err := simulateFleet(ctx, fleet, st, *matrixSize, logger); err != nil {
			logger.Error("simulation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// --- 3. 其他分支都连 Etcd ---
	etcdManager, err := store.NewEtcdManager(strings.Split(*endpoints, ","), logger)
	if err != nil {
		logger.Error("failed to connect to etcd", "error", err)
		os.Exit(1)
	}
	defer etcdManager.Close()

	switch {
	case *runID != "":
		qctx, qcancel := context.WithTimeout(ctx, 5*time.Second)
		defer qcancel()
		run, err := etcdManager.GetRun(qctx, *runID)
		if err != nil {
			logger.Error("failed to get run", "error", err)
			os.Exit(1)
		}
		printRun(run)

	case *show:
		qctx, qcancel := context.WithTimeout(ctx, 5*time.Second)
		defer qcancel()
		nodes, err := etcdManager.ListNodes(qctx)
		if err != nil {
			logger.Error("failed to list nodes", "error", err)
			os.Exit(1)
		}
		printNodes(nodes)

	case *watch:
		for ev := range etcdManager.WatchNodes(ctx) {
			n := ev.Node
			fmt.Printf("%-16s port=%-6d soc=%6.2f%% pheromone=%.4f rounds=%d status=%s\n",
				n.Name, n.Port, n.LastSoC()*100, n.LastPheromone(), len(n.SoCRecord), n.Status)
		}

	case *startFleet:
		agents, err := buildAgents(fleet, etcdManager, *matrixSize, logger)
		if err != nil {
			logger.Error("invalid fleet", "error", err)
			os.Exit(2)
		}
		runAgents(ctx, agents, logger).Wait()

	default:
		flag.Usage()
		os.Exit(2)
	}
}

// buildAgents 每个节点独立校准，各自持有自己的状态
func buildAgents(fleet config.FleetConfig, st store.Store, matrixSize int, logger hclog.Logger) ([]*worker.Agent, error) {
	agents := make([]*worker.Agent, 0, len(fleet.Nodes))
	for _, nc := range fleet.Nodes {
		a, err := worker.FromConfig(nc, "127.0.0.1", st, executor.NewLocal(matrixSize), calibrate.NewCalibrator(), logger)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// runAgents 每个节点一个 goroutine，只通过 TCP 和目录交互
func runAgents(ctx context.Context, agents []*worker.Agent, logger hclog.Logger) *sync.WaitGroup {
	var wg sync.WaitGroup
	for _, a := range agents {
		wg.Add(1)
		go func(a *worker.Agent) {
			defer wg.Done()
			if err := a.Run(ctx); err != nil {
				logger.Error("node stopped", "error", err)
			}
		}(a)
		select {
		case <-a.Ready():
		case <-ctx.Done():
		}
	}
	return &wg
}

func simulateFleet(ctx context.Context, fleet config.FleetConfig, st store.Store, matrixSize int, logger hclog.Logger) error {
	agents, err := buildAgents(fleet, st, matrixSize, logger)
	if err != nil {
		return err
	}

	nodeCtx, stopNodes := context.WithCancel(ctx)
	defer stopNodes()
	wg := runAgents(nodeCtx, agents, logger)

	m := fleet.Manager
	sched := scheduler.NewScheduler(st, protocol.NewClient(m.Timeout, m.AssignTimeout), scheduler.Options{
		Alpha:  m.Alpha,
		Beta:   m.Beta,
		Gamma:  m.Gamma,
		Policy: scheduler.ShutdownPolicy(m.Policy),
		Rand:   rand.New(rand.NewPCG(m.Seed, m.Seed+1)),
	}, logger, scheduler.LogSink{Logger: logger.Named("render")})

	run, runErr := sched.Run(ctx, scheduler.NewRandomTasks(m.Seed, m.ICMin, m.ICMax), m.MaxRounds)

	// 不管怎么结束的，都把剩下的节点停掉
	stopNodes()
	wg.Wait()

	nodes, err := st.ListNodes(context.Background())
	if err != nil {
		return err
	}
	printNodes(nodes)
	printRun(run)
	return runErr
}

func printNodes(nodes []*model.NodeRecord) {
	fmt.Println("\nRemaining Batteries and Pheromone:")
	for _, n := range nodes {
		fmt.Printf("\t%s (port %d): (%.2f%%, %.4f) rounds=%d status=%s\n",
			n.Name, n.Port, n.LastSoC()*100, n.LastPheromone(), len(n.SoCRecord), n.Status)
	}
	fmt.Println()
}

func printRun(run *model.RunResult) {
	fmt.Printf("Run %s (alpha=%v beta=%v gamma=%v)\n", run.ID, run.Alpha, run.Beta, run.Gamma)
	fmt.Printf("# Tasks executed: %d\n", run.Tasks)
	fmt.Printf("Stop reason: %s, failed rounds: %d\n", run.StopReason, run.Failures)
	fmt.Printf("Cumulative response time (s): %.2f\n", run.Cumulative())
}
