package worker

import (
	"fmt"

	"offload/internal/config"
	"offload/internal/worker/calibrate"
	"offload/internal/worker/executor"
	"offload/pkg/store"

	"github.com/hashicorp/go-hclog"
)

// FromConfig 校验配置、跑 benchmark 得到 P0，然后创建 Agent
func FromConfig(nc config.NodeConfig, ip string, st store.Store, exec executor.Executor, cal *calibrate.Calibrator, logger hclog.Logger) (*Agent, error) {
	if err := nc.Validate(); err != nil {
		return nil, err
	}

	res, err := cal.Calibrate(nc.PC)
	if err != nil {
		return nil, fmt.Errorf("calibrate %s: %w", nc.Name, err)
	}
	logger.Debug("calibrated", "node", nc.Name, "pc", nc.PC, "k_alpha", res.KAlpha, "p0", res.P0, "timings", res.Timings)

	return NewAgent(Config{
		Name:         nc.Name,
		IP:           ip,
		PC:           nc.PC,
		P0:           res.P0,
		SoC0:         nc.SoC,
		DrainRate:    nc.DrainRate,
		Acceleration: nc.Acceleration,
		W1:           nc.W1,
		W2:           nc.W2,
	}, st, exec, logger), nil
}
