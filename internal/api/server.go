package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"AgentPay-Chain/internal/backend"
	"AgentPay-Chain/internal/chain"
	"AgentPay-Chain/internal/creation"
	xerrors "AgentPay-Chain/internal/errors"
	"AgentPay-Chain/internal/monitor"
	"AgentPay-Chain/internal/observability/metrics"
	"AgentPay-Chain/internal/session"
	"AgentPay-Chain/internal/storage/mysql"
)

// AgentDirectory 提供智能体列表查询能力。
type AgentDirectory interface {
	ListAgents(ctx context.Context) ([]backend.Agent, error)
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr      string
	sessions  *session.Controller
	creations *creation.Controller
	directory AgentDirectory
	monitor   *monitor.BalanceMonitor
	ledger    mysql.PaymentRepository

	mu   sync.Mutex
	open map[string]*session.Session
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, sessions *session.Controller, creations *creation.Controller,
	directory AgentDirectory, balances *monitor.BalanceMonitor, ledger mysql.PaymentRepository) *Server {
	return &Server{
		addr:      addr,
		sessions:  sessions,
		creations: creations,
		directory: directory,
		monitor:   balances,
		ledger:    ledger,
		open:      make(map[string]*session.Session),
	}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat", s.instrument("chat", s.handleChat))
	mux.HandleFunc("/api/v1/chat/retry", s.instrument("chat_retry", s.handleRetryDelivery))
	mux.HandleFunc("/api/v1/agents", s.instrument("agents", s.handleAgents))
	mux.HandleFunc("/api/v1/balances", s.instrument("balances", s.handleBalances))
	mux.HandleFunc("/api/v1/payments", s.instrument("payments", s.handlePayments))
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

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
		s.closeSessions()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// handleChat 驱动一个会话回合：没有 session_id 时先按智能体钱包
// 打开新会话，然后发送付费消息。
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.sessions == nil {
		http.Error(w, "会话控制器未初始化", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		SessionID   string `json:"session_id"`
		AgentWallet string `json:"agent_wallet"`
		Message     string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	sess, err := s.resolveSession(ctx, req.SessionID, req.AgentWallet)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.sessions.SendMessage(ctx, sess, req.Message)
	if err != nil {
		writeChatError(w, sess, err)
		return
	}
	writeChatResult(w, sess, result)
}

// handleRetryDelivery 在付款已确认但回复失败后补发消息。
func (s *Server) handleRetryDelivery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	sess := s.open[req.SessionID]
	s.mu.Unlock()
	if sess == nil {
		http.Error(w, "会话不存在", http.StatusNotFound)
		return
	}

	result, err := s.sessions.RetryDelivery(r.Context(), sess)
	if err != nil {
		writeChatError(w, sess, err)
		return
	}
	writeChatResult(w, sess, result)
}

// handleAgents GET 列出后端全部智能体，POST 执行完整创建流程。
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListAgents(w, r)
	case http.MethodPost:
		s.handleCreateAgent(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		http.Error(w, "后端客户端未初始化", http.StatusServiceUnavailable)
		return
	}
	agents, err := s.directory.ListAgents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"agents": agents})
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	if s.creations == nil {
		http.Error(w, "创建控制器未初始化", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Name          string         `json:"name"`
		Personality   map[string]any `json:"personality"`
		Lore          map[string]any `json:"lore"`
		Behavior      map[string]any `json:"behavior"`
		SecretTask    map[string]any `json:"secret_task"`
		ExpiresAt     string         `json:"expires_at"`
		ImageURL      string         `json:"image_url"`
		CostPerPrompt float64        `json:"cost_per_prompt"`
		PrizePool     float64        `json:"prize_pool"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	prize, err := chain.FromSOL(req.PrizePool)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.creations.Create(r.Context(), creation.Request{
		Name:          req.Name,
		Personality:   req.Personality,
		Lore:          req.Lore,
		Behavior:      req.Behavior,
		SecretTask:    req.SecretTask,
		ExpiresAt:     req.ExpiresAt,
		ImageURL:      req.ImageURL,
		CostPerPrompt: req.CostPerPrompt,
		PrizePool:     prize,
	})
	if err != nil {
		status := statusOf(err)
		payload := map[string]any{"error": err.Error(), "code": string(xerrors.CodeOf(err))}
		if result != nil {
			payload["state"] = string(result.State())
			if agent := result.Agent(); agent != nil {
				payload["agent"] = agent
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
		return
	}

	writeJSON(w, map[string]any{
		"state": string(result.State()),
		"agent": result.Agent(),
	})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.monitor == nil {
		http.Error(w, "余额监视器未初始化", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{"balances": s.monitor.Snapshots()})
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.ledger == nil {
		http.Error(w, "支付台账未初始化", http.StatusServiceUnavailable)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.ledger.ListLatest(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"payments": records})
}

// resolveSession 查找既有会话，或按智能体钱包打开一个新会话。
func (s *Server) resolveSession(ctx context.Context, sessionID, agentWallet string) (*session.Session, error) {
	if sessionID != "" {
		s.mu.Lock()
		sess := s.open[sessionID]
		s.mu.Unlock()
		if sess == nil {
			return nil, xerrors.New(xerrors.CodeNotFound, "会话不存在")
		}
		return sess, nil
	}

	if agentWallet == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少 agent_wallet")
	}
	if s.directory == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "后端客户端未初始化")
	}
	agents, err := s.directory.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	for _, agent := range agents {
		if agent.WalletAddress == agentWallet {
			sess, err := s.sessions.Open(ctx, agent)
			if err != nil {
				return nil, err
			}
			s.mu.Lock()
			s.open[sess.ID] = sess
			s.mu.Unlock()
			return sess, nil
		}
	}
	return nil, xerrors.New(xerrors.CodeNotFound, "指定的智能体不存在")
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.open {
		s.sessions.Close(sess)
		delete(s.open, id)
	}
}

// instrument 包装处理器，记录请求量与时延指标。
func (s *Server) instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
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

func writeChatResult(w http.ResponseWriter, sess *session.Session, result *backend.ChatResult) {
	writeJSON(w, map[string]any{
		"session_id":            sess.ID,
		"state":                 string(sess.State()),
		"reply":                 result.Response,
		"secret_task_completed": result.SecretTaskCompleted,
		"agent_balance":         result.AgentBalance,
		"user_balance":          result.UserBalance,
	})
}

func writeChatError(w http.ResponseWriter, sess *session.Session, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOf(err))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": sess.ID,
		"state":      string(sess.State()),
		"error":      err.Error(),
		"code":       string(xerrors.CodeOf(err)),
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOf(err))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": err.Error(),
		"code":  string(xerrors.CodeOf(err)),
	})
}

// statusOf 把错误码映射到 HTTP 状态码。
func statusOf(err error) int {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument, chain.CodeInvalidAmount:
		return http.StatusBadRequest
	case xerrors.CodeNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict:
		return http.StatusConflict
	case backend.CodeBackendUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
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
