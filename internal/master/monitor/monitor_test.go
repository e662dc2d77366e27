package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"offload/pkg/model"
	"offload/pkg/store"

	"github.com/hashicorp/go-hclog"
)

type countingSink struct {
	mu    sync.Mutex
	calls int
	last  int
}

func (c *countingSink) Render(*model.NodeRecord, float64) {}
func (c *countingSink) RecordBatteryHistory(nodes []*model.NodeRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.last = len(nodes)
}

func (c *countingSink) count() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls, c.last
}

func TestSnapshotFeedsSinks(t *testing.T) {
	st := store.NewMemory()
	st.PutNode(context.Background(), &model.NodeRecord{Name: "a", Port: 1, PRecord: []float64{1}, SoCRecord: []float64{1}})
	st.PutNode(context.Background(), &model.NodeRecord{Name: "b", Port: 2, PRecord: []float64{1}, SoCRecord: []float64{0}})

	sink := &countingSink{}
	New(st, hclog.NewNullLogger(), sink).Snapshot()

	if calls, last := sink.count(); calls != 1 || last != 2 {
		t.Fatalf("expected one snapshot of 2 nodes, got %d calls / %d nodes", calls, last)
	}
}

func TestStartRunsOnSchedule(t *testing.T) {
	sink := &countingSink{}
	m := New(store.NewMemory(), hclog.NewNullLogger(), sink)
	if err := m.Start("@every 1s"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if calls, _ := sink.count(); calls > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("monitor never ran")
}

func TestStartRejectsBadSpec(t *testing.T) {
	m := New(store.NewMemory(), hclog.NewNullLogger())
	if err := m.Start("not a schedule"); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}
