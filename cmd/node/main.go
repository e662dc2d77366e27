package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"offload/internal/config"
	"offload/internal/worker"
	"offload/internal/worker/calibrate"
	"offload/internal/worker/executor"
	"offload/pkg/store"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v3/cpu"
)

func main() {
	// --- 1. 定义命令行参数 ---
	name := flag.String("name", "", "Unique node name")
	pc := flag.Int("pc", 0, "Parallelism degree (default: logical CPUs of this host)")
	drain := flag.Float64("drain", 0.45, "Battery drain rate (SoC per hour)")
	soc := flag.Float64("soc", 1.0, "Initial state of charge in (0, 1]")
	w1 := flag.Float64("w1", 1.0, "Real-time weight")
	w2 := flag.Float64("w2", 1.0, "Energy-efficiency weight")
	acceleration := flag.Float64("acceleration", 100.0, "Simulation speed")
	ip := flag.String("ip", "127.0.0.1", "Address to bind")
	endpoints := flag.String("etcd", "localhost:2379", "Comma separated etcd endpoints")
	execKind := flag.String("executor", "local", "Task executor: local | docker")
	matrixSize := flag.Int("matrix-size", 500, "Matrix size of one work unit (local executor)")
	logLevel := flag.String("log-level", "INFO", "Log level")
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "node",
		Level: hclog.LevelFromString(*logLevel),
	})

	// 没指定 PC 就用本机逻辑核数
	isSet := false
	flag.Visit(func(f *flag.Flag) { isSet = isSet || f.Name == "pc" })
	if !isSet {
		n, err := cpu.Counts(true)
		if err != nil || n < 1 {
			logger.Error("failed to detect CPU count, pass -pc", "error", err)
			os.Exit(1)
		}
		*pc = n
	}

	nc := config.NodeConfig{
		Name:         *name,
		PC:           *pc,
		DrainRate:    *drain,
		SoC:          *soc,
		W1:           *w1,
		W2:           *w2,
		Acceleration: *acceleration,
	}
	if nc.Name == "" {
		nc.Name, _ = os.Hostname()
	}

	// --- 2. 连接 Etcd ---
	etcdManager, err := store.NewEtcdManager(strings.Split(*endpoints, ","), logger)
	if err != nil {
		logger.Error("failed to connect to etcd", "error", err)
		os.Exit(1)
	}
	defer etcdManager.Close()

	// --- 3. 初始化执行器 ---
	var exec executor.Executor
	switch *execKind {
	case "local":
		exec = executor.NewLocal(*matrixSize)
	case "docker":
		exec, err = executor.NewDocker(logger)
		if err != nil {
			logger.Error("failed to init docker executor", "error", err)
			os.Exit(1)
		}
	default:
		logger.Error("unknown executor", "executor", *execKind)
		os.Exit(1)
	}

	// --- 4. 校准并创建 Agent ---
	logger.Info("running calibration benchmarks", "node", nc.Name, "pc", nc.PC)
	agent, err := worker.FromConfig(nc, *ip, etcdManager, exec, calibrate.NewCalibrator(), logger)
	if err != nil {
		logger.Error("invalid node configuration", "error", err)
		os.Exit(1)
	}

	// --- 5. 启动，Ctrl+C 时优雅退出 ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down node...")
		cancel()
	}()

	if err := agent.Run(ctx); err != nil {
		logger.Error("node stopped", "error", err)
		os.Exit(1)
	}
}
