package battery

import "time"

// Linear 线性放电模型：SoC 按忙碌时间匀速下降
// acceleration 用来把真实的秒压缩成模拟的小时
type Linear struct {
	soc  float64
	rate float64 // 实际放电速率 = 基础速率 (SoC/小时) * 加速因子
}

func NewLinear(soc0, rate, acceleration float64) *Linear {
	return &Linear{
		soc:  soc0,
		rate: rate * acceleration,
	}
}

// Drain 按忙碌时长扣电，最低到 0，永远不会回升
func (b *Linear) Drain(busy time.Duration) {
	if busy <= 0 {
		return
	}
	b.soc -= b.rate * (busy.Seconds() / 3600.0)
	if b.soc < 0 {
		b.soc = 0
	}
}

func (b *Linear) SoC() float64 {
	return b.soc
}

func (b *Linear) EffectiveRate() float64 {
	return b.rate
}

func (b *Linear) Empty() bool {
	return b.soc <= 0
}
