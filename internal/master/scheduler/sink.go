package scheduler

import (
	"offload/pkg/model"

	"github.com/hashicorp/go-hclog"
)

// Sink 可视化 / 记录的出口，只消费数据，调度器不依赖它的结果
type Sink interface {
	// Render selected 为 nil 表示初始状态 (还没有分配任务)
	Render(selected *model.NodeRecord, cumulative float64)
	RecordBatteryHistory(nodes []*model.NodeRecord)
}

// RoundObserver 可选接口，想看到每轮候选者概率的 Sink 实现它
type RoundObserver interface {
	ObserveRound(res *RoundResult)
}

// FailureObserver 可选接口，接收失败轮次的错误
type FailureObserver interface {
	ObserveFailure(err error)
}

// LogSink 把每轮结果写进日志
type LogSink struct {
	Logger hclog.Logger
}

func (l LogSink) Render(selected *model.NodeRecord, cumulative float64) {
	if selected == nil {
		l.Logger.Info("initial network", "cumulative_response_time", cumulative)
		return
	}
	l.Logger.Info("task assigned", "node", selected.Name, "port", selected.Port, "cumulative_response_time", cumulative)
}

func (l LogSink) RecordBatteryHistory(nodes []*model.NodeRecord) {
	for _, n := range nodes {
		l.Logger.Debug("battery", "node", n.Name, "soc", n.LastSoC(), "pheromone", n.LastPheromone(), "rounds", len(n.SoCRecord))
	}
}
