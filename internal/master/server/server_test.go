package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"offload/pkg/model"
	"offload/pkg/store"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestRouter(t *testing.T) (*store.Memory, http.Handler) {
	t.Helper()
	st := store.NewMemory()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "offload_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()
	return st, NewRouter(st, reg, hclog.NewNullLogger())
}

func TestListNodes(t *testing.T) {
	st, router := newTestRouter(t)
	st.PutNode(context.Background(), &model.NodeRecord{Name: "a", Port: 4000, PRecord: []float64{1}, SoCRecord: []float64{1}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodes", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var nodes []model.NodeRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &nodes); err != nil || len(nodes) != 1 || nodes[0].Port != 4000 {
		t.Fatalf("unexpected body %s (%v)", rec.Body.String(), err)
	}
}

func TestGetRun(t *testing.T) {
	st, router := newTestRouter(t)
	st.SaveRun(context.Background(), &model.RunResult{ID: "r1", Tasks: 2, Turnarounds: []float64{0.1, 0.2}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/r1", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"response_time_record":[0.1,0.2]`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "offload_test_total 1") {
		t.Fatalf("unexpected metrics output %d %s", rec.Code, rec.Body.String())
	}
}
