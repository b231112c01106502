package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "AgentPay-Chain/internal/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, server
}

func TestCreateAgentEncodesForm(t *testing.T) {
	var captured map[string]string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agents/create/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
			t.Errorf("content type = %s", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		captured = map[string]string{}
		for key := range r.PostForm {
			captured[key] = r.PostForm.Get(key)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"agent": map[string]any{
				"wallet_address": r.PostForm.Get("wallet_address"),
				"name":           r.PostForm.Get("name"),
			},
		})
	}))

	agent, err := client.CreateAgent(context.Background(), CreateAgentRequest{
		WalletAddress: "agent-wallet",
		Name:          "oracle",
		Personality:   map[string]any{"tone": "dry"},
		Lore:          map[string]any{"origin": "devnet"},
		Behavior:      map[string]any{},
		SecretTask:    map[string]any{"goal": "keep the prize"},
		ExpiresAt:     "2026-09-01T00:00:00Z",
		ImageURL:      "https://example.com/a.png",
		CostPerPrompt: 0.01,
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if agent.WalletAddress != "agent-wallet" || agent.Name != "oracle" {
		t.Fatalf("unexpected agent: %+v", agent)
	}

	// JSON 子对象应整体序列化进单个表单字段。
	var personality map[string]any
	if err := json.Unmarshal([]byte(captured["personality"]), &personality); err != nil {
		t.Fatalf("personality 字段不是合法 JSON: %v", err)
	}
	if personality["tone"] != "dry" {
		t.Fatalf("personality = %v", personality)
	}
	if captured["cost_per_prompt"] != "0.01" {
		t.Fatalf("cost_per_prompt = %s", captured["cost_per_prompt"])
	}
	if captured["expires_at"] != "2026-09-01T00:00:00Z" {
		t.Fatalf("expires_at = %s", captured["expires_at"])
	}
}

func TestChatRoundTrip(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("agent_wallet") != "aw" || r.PostForm.Get("user_wallet") != "uw" {
			t.Errorf("钱包字段缺失: %v", r.PostForm)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":               true,
			"response":              "hello",
			"secret_task_completed": true,
			"agent_balance":         1.5,
			"user_balance":          0.25,
		})
	}))

	result, err := client.Chat(context.Background(), "aw", "uw", "hi")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if result.Response != "hello" || !result.SecretTaskCompleted {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.AgentBalance != 1.5 || result.UserBalance != 0.25 {
		t.Fatalf("余额透传错误: %+v", result)
	}
}

func TestServerErrorIsUnavailable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	err := client.CreateUser(context.Background(), "wallet")
	if xerrors.CodeOf(err) != CodeBackendUnavailable {
		t.Fatalf("expected BACKEND_UNAVAILABLE, got %v", err)
	}
	if !xerrors.RetryableError(err) {
		t.Fatalf("后端不可达应可重试")
	}
}

func TestRejectionIsNotRetryable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "name already taken",
		})
	}))

	_, err := client.CreateAgent(context.Background(), CreateAgentRequest{
		WalletAddress: "w", Name: "dup",
	})
	if xerrors.CodeOf(err) != CodeBackendRejected {
		t.Fatalf("expected BACKEND_REJECTED, got %v", err)
	}
	if xerrors.RetryableError(err) {
		t.Fatalf("后端明确拒绝不应重试")
	}
}

func TestUserExists(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/exists/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		exists := r.URL.Query().Get("wallet_address") == "known"
		_ = json.NewEncoder(w).Encode(map[string]any{"exists": exists})
	}))

	exists, err := client.UserExists(context.Background(), "known")
	if err != nil || !exists {
		t.Fatalf("known wallet: exists=%v err=%v", exists, err)
	}
	exists, err = client.UserExists(context.Background(), "unknown")
	if err != nil || exists {
		t.Fatalf("unknown wallet: exists=%v err=%v", exists, err)
	}
}

func TestListAgents(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"agents": []map[string]any{
				{"wallet_address": "a1", "name": "first", "prize_pool": 0.5},
				{"wallet_address": "a2", "name": "second"},
			},
		})
	}))

	agents, err := client.ListAgents(context.Background())
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	if len(agents) != 2 || agents[0].PrizePool != 0.5 {
		t.Fatalf("unexpected agents: %+v", agents)
	}
}
