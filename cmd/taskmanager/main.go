package main

import (
	"context"
	"encoding/json"
	"flag"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"offload/internal/config"
	"offload/internal/master/metrics"
	"offload/internal/master/monitor"
	"offload/internal/master/scheduler"
	"offload/internal/master/server"
	"offload/internal/protocol"
	"offload/pkg/store"

	"github.com/hashicorp/go-hclog"
)

func main() {
	cfg := config.DefaultManager()

	alpha := flag.Float64("alpha", -1, "Pheromone weight (required)")
	beta := flag.Float64("beta", -1, "ETT weight (required)")
	gamma := flag.Float64("gamma", -1, "SoC weight (required)")
	flag.IntVar(&cfg.MaxRounds, "max-rounds", 0, "Stop after this many tasks (<= 0: until the fleet dies)")
	flag.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Seed of the task stream")
	flag.IntVar(&cfg.ICMin, "ic-min", cfg.ICMin, "Smallest task size")
	flag.IntVar(&cfg.ICMax, "ic-max", cfg.ICMax, "Largest task size")
	flag.StringVar(&cfg.Policy, "policy", cfg.Policy, "What to do when a node drains: fleet | exclude")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Timeout of TTRC / X / TERMINATE calls")
	flag.DurationVar(&cfg.AssignTimeout, "assign-timeout", 0, "Timeout of TA calls (0: none)")
	endpoints := flag.String("etcd", "localhost:2379", "Comma separated etcd endpoints")
	httpAddr := flag.String("http", ":8080", "Status server address (empty to disable)")
	report := flag.String("report", "@every 5s", "Cron spec of the fleet report (empty to disable)")
	out := flag.String("out", "data/turnaround_time/ctt.json", "Where to write the response time record")
	logLevel := flag.String("log-level", "INFO", "Log level")
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "task-manager",
		Level: hclog.LevelFromString(*logLevel),
	})

	if *alpha < 0 || *beta < 0 || *gamma < 0 {
		logger.Error("-alpha, -beta and -gamma are required")
		os.Exit(2)
	}
	cfg.Alpha, cfg.Beta, cfg.Gamma = *alpha, *beta, *gamma
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	// 1. 初始化 Etcd 连接
	etcdManager, err := store.NewEtcdManager(strings.Split(*endpoints, ","), logger)
	if err != nil {
		logger.Error("failed to connect to etcd", "error", err)
		os.Exit(1)
	}
	defer etcdManager.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down task manager...")
		cancel()
	}()

	// 2. 指标、定时报告、状态接口
	recorder := metrics.NewRecorder()
	if *report != "" {
		mon := monitor.New(etcdManager, logger, recorder)
		if err := mon.Start(*report); err != nil {
			logger.Error("invalid report schedule", "error", err)
			os.Exit(2)
		}
		defer mon.Stop()
	}
	if *httpAddr != "" {
		router := server.NewRouter(etcdManager, recorder.Registry, logger)
		go func() {
			if err := server.Serve(ctx, *httpAddr, router, logger); err != nil {
				logger.Error("status server stopped", "error", err)
			}
		}()
	}

	// 3. 初始化调度器 (依赖注入)
	sched := scheduler.NewScheduler(etcdManager, protocol.NewClient(cfg.Timeout, cfg.AssignTimeout), scheduler.Options{
		Alpha:  cfg.Alpha,
		Beta:   cfg.Beta,
		Gamma:  cfg.Gamma,
		Policy: scheduler.ShutdownPolicy(cfg.Policy),
		Rand:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1)),
	}, logger, recorder, scheduler.LogSink{Logger: logger.Named("render")})

	// 4. 跑到网络耗尽为止
	run, err := sched.Run(ctx, scheduler.NewRandomTasks(cfg.Seed, cfg.ICMin, cfg.ICMax), cfg.MaxRounds)
	logger.Info("tasks executed", "count", run.Tasks, "run", run.ID, "reason", run.StopReason)

	if *out != "" {
		if werr := writeRecord(*out, run.Turnarounds); werr != nil {
			logger.Error("failed to write response time record", "path", *out, "error", werr)
		}
	}
	if err != nil {
		logger.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

// writeRecord 输出 {"response_time_record": [...]}
func writeRecord(path string, record []float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(map[string][]float64{"response_time_record": record}, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
