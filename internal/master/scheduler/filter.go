package scheduler

import "offload/pkg/model"

// filterNodes 把目录里的节点分成候选者 (SoC > 0 且存活) 和电量耗尽的节点
func (s *Scheduler) filterNodes(nodes []*model.NodeRecord) (candidates, exhausted []*model.NodeRecord) {
	candidates = make([]*model.NodeRecord, 0, len(nodes))

	for _, node := range nodes {
		switch {
		case node.Exhausted():
			exhausted = append(exhausted, node)
		case node.Status == model.NodeDead:
			// 收到过 TERMINATE 或已退出的节点，电量还在但不再服务
			s.logger.Debug("node filtered: dead", "node", node.Name, "port", node.Port)
		case len(node.PRecord) == 0:
			s.logger.Warn("node filtered: empty pheromone history", "node", node.Name, "port", node.Port)
		default:
			candidates = append(candidates, node)
		}
	}
	return candidates, exhausted
}
