package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"offload/pkg/store"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler 只读的状态接口
type Handler struct {
	store  store.Store
	logger hclog.Logger
}

func NewHandler(st store.Store, logger hclog.Logger) *Handler {
	return &Handler{store: st, logger: logger}
}

// NewRouter 注册 /metrics、/nodes、/runs/{id}
func NewRouter(st store.Store, registry *prometheus.Registry, logger hclog.Logger) *mux.Router {
	h := NewHandler(st, logger)

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/nodes", h.ListNodes).Methods(http.MethodGet)
	router.HandleFunc("/runs/{id}", h.GetRun).Methods(http.MethodGet)
	return router
}

func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.store.ListNodes(r.Context())
	if err != nil {
		h.logger.Error("list nodes", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, nodes)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("get run", "run", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, run)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Serve 启动 HTTP 服务，ctx 结束时优雅关闭
func Serve(ctx context.Context, addr string, handler http.Handler, logger hclog.Logger) error {
	srv := &http.Server{
		Addr:     addr,
		Handler:  handler,
		ErrorLog: logger.StandardLogger(&hclog.StandardLoggerOptions{}),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting status server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// 最多等 5 秒让正在处理的请求结束
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
