package metrics

import (
	"errors"

	"offload/internal/master/scheduler"
	"offload/pkg/model"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder 把调度结果导出成 Prometheus 指标，实现 scheduler.Sink
type Recorder struct {
	Registry *prometheus.Registry

	rounds      *prometheus.CounterVec
	turnaround  prometheus.Histogram
	cumulative  prometheus.Gauge
	soc         *prometheus.GaugeVec
	pheromone   *prometheus.GaugeVec
	historyLen  *prometheus.GaugeVec
	selected    *prometheus.CounterVec
	probability *prometheus.GaugeVec
}

var (
	_ scheduler.Sink            = (*Recorder)(nil)
	_ scheduler.RoundObserver   = (*Recorder)(nil)
	_ scheduler.FailureObserver = (*Recorder)(nil)
)

func NewRecorder() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offload_rounds_total",
			Help: "Scheduling rounds by outcome.",
		}, []string{"outcome"}),
		turnaround: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "offload_turnaround_seconds",
			Help:    "Actual execution time reported by the selected node.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		cumulative: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "offload_cumulative_turnaround_seconds",
			Help: "Sum of turnaround times in the current run.",
		}),
		soc: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "offload_node_soc",
			Help: "Last recorded state of charge per node.",
		}, []string{"node"}),
		pheromone: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "offload_node_pheromone",
			Help: "Last recorded pheromone per node.",
		}, []string{"node"}),
		historyLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "offload_node_history_length",
			Help: "Number of entries in the node's SoC history.",
		}, []string{"node"}),
		selected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offload_node_selected_total",
			Help: "Tasks assigned per node.",
		}, []string{"node"}),
		probability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "offload_selection_probability",
			Help: "Selection probability of each candidate in the last round.",
		}, []string{"node"}),
	}
	r.Registry.MustRegister(r.rounds, r.turnaround, r.cumulative, r.soc, r.pheromone,
		r.historyLen, r.selected, r.probability)
	return r
}

func (r *Recorder) Render(selected *model.NodeRecord, cumulative float64) {
	r.cumulative.Set(cumulative)
	if selected == nil {
		return
	}
	r.selected.WithLabelValues(selected.Name).Inc()
}

func (r *Recorder) RecordBatteryHistory(nodes []*model.NodeRecord) {
	for _, n := range nodes {
		r.soc.WithLabelValues(n.Name).Set(n.LastSoC())
		r.pheromone.WithLabelValues(n.Name).Set(n.LastPheromone())
		r.historyLen.WithLabelValues(n.Name).Set(float64(len(n.SoCRecord)))
	}
}

func (r *Recorder) ObserveRound(res *scheduler.RoundResult) {
	r.rounds.WithLabelValues("ok").Inc()
	r.turnaround.Observe(res.Turnaround)
	r.probability.Reset()
	for _, c := range res.Candidates {
		r.probability.WithLabelValues(c.Node.Name).Set(c.Probability)
	}
}

// ObserveFailure 按错误类型给失败的轮次分类
func (r *Recorder) ObserveFailure(err error) {
	outcome := "error"
	switch {
	case errors.Is(err, scheduler.ErrNoCandidates):
		outcome = "no_candidates"
	case errors.Is(err, scheduler.ErrFleetExhausted):
		outcome = "fleet_exhausted"
	case errors.Is(err, scheduler.ErrSyncIncomplete):
		outcome = "sync_incomplete"
	case errors.Is(err, scheduler.ErrNonPositiveWeight):
		outcome = "invalid_weights"
	}
	r.rounds.WithLabelValues(outcome).Inc()
}
