package monitor

import (
	"context"
	"time"

	"offload/internal/master/scheduler"
	"offload/pkg/store"

	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
)

// Monitor 定时读取目录，打印剩余电量和信息素，并刷新 Sink
type Monitor struct {
	store  store.Store
	sinks  []scheduler.Sink
	logger hclog.Logger

	cronScheduler *cron.Cron
}

func New(st store.Store, logger hclog.Logger, sinks ...scheduler.Sink) *Monitor {
	return &Monitor{
		store:         st,
		sinks:         sinks,
		logger:        logger.Named("monitor"),
		cronScheduler: cron.New(cron.WithSeconds()),
	}
}

// Start 按 cron 表达式 (支持秒，例如 "@every 5s") 启动定时任务
func (m *Monitor) Start(spec string) error {
	if _, err := m.cronScheduler.AddFunc(spec, m.Snapshot); err != nil {
		return err
	}
	m.cronScheduler.Start()
	return nil
}

// Stop 停止定时任务并等待正在执行的一次结束
func (m *Monitor) Stop() {
	<-m.cronScheduler.Stop().Done()
}

// Snapshot 读一次目录
func (m *Monitor) Snapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	nodes, err := m.store.ListNodes(ctx)
	if err != nil {
		m.logger.Warn("failed to list nodes", "error", err)
		return
	}

	alive := 0
	for _, n := range nodes {
		if n.Alive() {
			alive++
		}
		m.logger.Info("remaining battery and pheromone", "node", n.Name, "port", n.Port,
			"soc_pct", n.LastSoC()*100, "pheromone", n.LastPheromone(), "status", n.Status)
	}
	m.logger.Debug("fleet snapshot", "nodes", len(nodes), "alive", alive)

	for _, sink := range m.sinks {
		sink.RecordBatteryHistory(nodes)
	}
}
