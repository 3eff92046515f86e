package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"DexAI-Chain/internal/adapter"
	"DexAI-Chain/internal/bridge"
	"DexAI-Chain/internal/observability/metrics"
	"DexAI-Chain/internal/web3"
)

// OrderHistory 是订单历史查询的抽象，由 MySQL 仓库实现，未配置时为 nil。
type OrderHistory interface {
	ListLatest(ctx context.Context, limit int) ([]bridge.OrderRecord, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]bridge.OrderRecord, error)
}

// Server 负责暴露 REST 接口，供外部的 LLM 运行时调用工具。
type Server struct {
	addr     string
	registry *adapter.Registry
	account  web3.Account
	orders   OrderHistory
}

// NewServer 构造 API 服务实例。orders 可以为 nil，此时订单查询接口不可用。
func NewServer(addr string, registry *adapter.Registry, account web3.Account, orders OrderHistory) *Server {
	return &Server{addr: addr, registry: registry, account: account, orders: orders}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tools", instrument("tools", s.handleTools))
	mux.HandleFunc("/api/v1/tools/invoke", instrument("tools_invoke", s.handleInvoke))
	mux.HandleFunc("/api/v1/orders", instrument("orders", s.handleOrders))
	mux.Handle("/metrics", metrics.Handler())

	// 配置 HTTP 服务器。
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 启动服务器并监听关闭信号。
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// handleTools 返回所有已注册工具的元数据。
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.registry == nil {
		http.Error(w, "工具注册表未初始化", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.registry.Descriptors())
}

// invokeRequest 是工具调用接口的请求体。
type invokeRequest struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// handleInvoke 执行一次工具调用。
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.registry == nil {
		http.Error(w, "工具注册表未初始化", http.StatusServiceUnavailable)
		return
	}

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "工具名称不能为空", http.StatusBadRequest)
		return
	}
	if len(req.Args) == 0 {
		req.Args = json.RawMessage("{}")
	}

	started := time.Now()
	result := s.registry.Invoke(r.Context(), req.Name, s.account, req.Args)
	metrics.ObserveToolInvocation(req.Name, result.Success, time.Since(started))

	writeJSON(w, result)
}

// handleOrders 查询订单历史，支持 session_id 与 limit 过滤。
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.orders == nil {
		http.Error(w, "订单历史存储未配置", http.StatusServiceUnavailable)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	ctx := r.Context()
	var (
		records []bridge.OrderRecord
		err     error
	)
	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		records, err = s.orders.ListBySession(ctx, sessionID, limit)
	} else {
		records, err = s.orders.ListLatest(ctx, limit)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []bridge.OrderRecord{}
	}
	writeJSON(w, records)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// instrument 记录每个接口的请求量与时延。
func instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(started))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	// 包装处理器以检查上下文状态。
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
