package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeConfig 单个节点的启动参数 (name, PC, 放电速率, 初始电量, w1, w2, 加速因子)
type NodeConfig struct {
	Name         string  `yaml:"name"`
	PC           int     `yaml:"pc"`
	DrainRate    float64 `yaml:"drain_rate"`
	SoC          float64 `yaml:"soc"`
	W1           float64 `yaml:"w1"`
	W2           float64 `yaml:"w2"`
	Acceleration float64 `yaml:"acceleration"`
}

// Validate 配置错误在启动时直接失败
func (c NodeConfig) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("node name is required"))
	}
	if c.PC < 1 {
		errs = append(errs, fmt.Errorf("node %q: pc must be >= 1, got %d", c.Name, c.PC))
	}
	if c.DrainRate < 0 {
		errs = append(errs, fmt.Errorf("node %q: drain_rate must be >= 0, got %v", c.Name, c.DrainRate))
	}
	if c.SoC <= 0 || c.SoC > 1 {
		errs = append(errs, fmt.Errorf("node %q: soc must be in (0, 1], got %v", c.Name, c.SoC))
	}
	if c.W1 < 0 || c.W2 < 0 {
		errs = append(errs, fmt.Errorf("node %q: weights must be non-negative, got w1=%v w2=%v", c.Name, c.W1, c.W2))
	}
	if c.Acceleration <= 0 {
		errs = append(errs, fmt.Errorf("node %q: acceleration must be positive, got %v", c.Name, c.Acceleration))
	}
	return errors.Join(errs...)
}

// ManagerConfig Task Manager 的启动参数
type ManagerConfig struct {
	Alpha     float64 `yaml:"alpha"`
	Beta      float64 `yaml:"beta"`
	Gamma     float64 `yaml:"gamma"`
	MaxRounds int     `yaml:"max_rounds"` // <= 0 表示不限

	Seed   uint64 `yaml:"seed"`
	ICMin  int    `yaml:"ic_min"`
	ICMax  int    `yaml:"ic_max"`
	Policy string `yaml:"policy"` // fleet | exclude

	Timeout       time.Duration `yaml:"timeout"`        // TTRC / X / TERMINATE
	AssignTimeout time.Duration `yaml:"assign_timeout"` // TA，0 表示不限
}

func DefaultManager() ManagerConfig {
	return ManagerConfig{
		Alpha:   1,
		Beta:    1,
		Gamma:   1,
		Seed:    42,
		ICMin:   10,
		ICMax:   100,
		Policy:  "fleet",
		Timeout: 10 * time.Second,
	}
}

func (c ManagerConfig) Validate() error {
	var errs []error
	if c.Alpha < 0 || c.Beta < 0 || c.Gamma < 0 {
		errs = append(errs, fmt.Errorf("alpha, beta, gamma must be non-negative, got %v, %v, %v", c.Alpha, c.Beta, c.Gamma))
	}
	if c.ICMin < 0 || c.ICMax < c.ICMin {
		errs = append(errs, fmt.Errorf("invalid IC range [%d, %d]", c.ICMin, c.ICMax))
	}
	if c.Policy != "fleet" && c.Policy != "exclude" {
		errs = append(errs, fmt.Errorf("unknown shutdown policy %q", c.Policy))
	}
	if c.Timeout < 0 || c.AssignTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	return errors.Join(errs...)
}

// FleetConfig 一次实验的整组节点，w1/w2/acceleration 作为节点默认值
type FleetConfig struct {
	W1           float64      `yaml:"w1"`
	W2           float64      `yaml:"w2"`
	Acceleration float64      `yaml:"acceleration"`
	Nodes        []NodeConfig `yaml:"nodes"`

	Manager ManagerConfig `yaml:"manager"`
}

// DefaultFleet 五台参考设备
func DefaultFleet() FleetConfig {
	f := FleetConfig{
		W1:           1,
		W2:           1,
		Acceleration: 100,
		Nodes: []NodeConfig{
			{Name: "iPhone 13 Pro", PC: 6, DrainRate: 0.469, SoC: 1},
			{Name: "Galaxy S21", PC: 8, DrainRate: 0.45, SoC: 1},
			{Name: "Realme GT", PC: 8, DrainRate: 0.444, SoC: 1},
			{Name: "Rock Pi", PC: 6, DrainRate: 0.48, SoC: 1},
			{Name: "Echo Dot", PC: 4, DrainRate: 0.278, SoC: 1},
		},
		Manager: DefaultManager(),
	}
	f.applyDefaults()
	return f
}

// LoadFleet 读取 YAML，未填写的字段用默认值
func LoadFleet(path string) (*FleetConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := FleetConfig{W1: 1, W2: 1, Acceleration: 1, Manager: DefaultManager()}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 节点没写的 w1/w2/acceleration 继承 fleet 级别的值
func (f *FleetConfig) applyDefaults() {
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.W1 == 0 {
			n.W1 = f.W1
		}
		if n.W2 == 0 {
			n.W2 = f.W2
		}
		if n.Acceleration == 0 {
			n.Acceleration = f.Acceleration
		}
		if n.SoC == 0 {
			n.SoC = 1
		}
	}
}

func (f *FleetConfig) Validate() error {
	if len(f.Nodes) == 0 {
		return errors.New("fleet has no nodes")
	}
	errs := []error{f.Manager.Validate()}
	seen := make(map[string]bool, len(f.Nodes))
	for _, n := range f.Nodes {
		if seen[n.Name] {
			errs = append(errs, fmt.Errorf("duplicate node name %q", n.Name))
		}
		seen[n.Name] = true
		errs = append(errs, n.Validate())
	}
	return errors.Join(errs...)
}
