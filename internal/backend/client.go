package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	xerrors "AgentPay-Chain/internal/errors"
)

const defaultTimeout = 30 * time.Second

// Config 描述后端客户端的连接参数。
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client 通过 HTTP 访问智能体后端。所有写操作按后端约定使用
// application/x-www-form-urlencoded 编码。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 根据配置创建后端客户端。
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未提供后端地址")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// CreateUser 在后端注册一个钱包用户。
func (c *Client) CreateUser(ctx context.Context, walletAddress string) error {
	form := url.Values{}
	form.Set("wallet_address", walletAddress)

	var decoded struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.postForm(ctx, "/users/create/", form, &decoded); err != nil {
		return err
	}
	if !decoded.Success {
		return xerrors.New(CodeBackendRejected, backendMessage(decoded.Message, "创建用户被后端拒绝"))
	}
	return nil
}

// UserExists 查询某个钱包用户是否已经注册。
func (c *Client) UserExists(ctx context.Context, walletAddress string) (bool, error) {
	endpoint := c.baseURL + "/users/exists/?wallet_address=" + url.QueryEscape(walletAddress)
	var decoded struct {
		Exists bool `json:"exists"`
	}
	if err := c.getJSON(ctx, endpoint, &decoded); err != nil {
		return false, err
	}
	return decoded.Exists, nil
}

// ListAgents 拉取后端当前的全部智能体。
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var decoded struct {
		Agents []Agent `json:"agents"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/agents/list/", &decoded); err != nil {
		return nil, err
	}
	return decoded.Agents, nil
}

// CreateAgent 在后端注册一个新智能体，返回后端分配的档案。
// JSON 子对象按原样序列化后作为表单字段透传。
func (c *Client) CreateAgent(ctx context.Context, req CreateAgentRequest) (*Agent, error) {
	form := url.Values{}
	form.Set("wallet_address", req.WalletAddress)
	form.Set("name", req.Name)
	for field, blob := range map[string]map[string]any{
		"personality": req.Personality,
		"lore":        req.Lore,
		"behavior":    req.Behavior,
		"secret_task": req.SecretTask,
	} {
		encoded, err := json.Marshal(blob)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err,
				fmt.Sprintf("序列化 %s 字段失败", field))
		}
		form.Set(field, string(encoded))
	}
	form.Set("expires_at", req.ExpiresAt)
	form.Set("image_url", req.ImageURL)
	form.Set("cost_per_prompt", strconv.FormatFloat(req.CostPerPrompt, 'f', -1, 64))

	var decoded struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Agent   *Agent `json:"agent"`
	}
	if err := c.postForm(ctx, "/agents/create/", form, &decoded); err != nil {
		return nil, err
	}
	if !decoded.Success {
		return nil, xerrors.New(CodeBackendRejected, backendMessage(decoded.Message, "创建智能体被后端拒绝"))
	}
	if decoded.Agent == nil {
		return nil, xerrors.New(CodeBackendRejected, "后端未返回智能体档案")
	}
	return decoded.Agent, nil
}

// Chat 向智能体发送一条消息，返回智能体的回复。
func (c *Client) Chat(ctx context.Context, agentWallet, userWallet, message string) (*ChatResult, error) {
	form := url.Values{}
	form.Set("agent_wallet", agentWallet)
	form.Set("user_wallet", userWallet)
	form.Set("message", message)

	var decoded struct {
		Success             bool    `json:"success"`
		Message             string  `json:"message"`
		Response            string  `json:"response"`
		SecretTaskCompleted bool    `json:"secret_task_completed"`
		AgentBalance        float64 `json:"agent_balance"`
		UserBalance         float64 `json:"user_balance"`
	}
	if err := c.postForm(ctx, "/agents/chat/", form, &decoded); err != nil {
		return nil, err
	}
	if !decoded.Success {
		return nil, xerrors.New(CodeBackendRejected, backendMessage(decoded.Message, "对话请求被后端拒绝"))
	}
	return &ChatResult{
		Response:            decoded.Response,
		SecretTaskCompleted: decoded.SecretTaskCompleted,
		AgentBalance:        decoded.AgentBalance,
		UserBalance:         decoded.UserBalance,
	}, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return xerrors.Wrap(CodeBackendUnavailable, err, "构建后端请求失败")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return xerrors.Wrap(CodeBackendUnavailable, err, "构建后端请求失败")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return xerrors.Wrap(CodeBackendUnavailable, err, "请求后端失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		message := fmt.Sprintf("后端返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= http.StatusInternalServerError {
			return xerrors.New(CodeBackendUnavailable, message)
		}
		return xerrors.New(CodeBackendRejected, message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return xerrors.Wrap(CodeBackendUnavailable, err, "解析后端响应失败")
	}
	return nil
}

func backendMessage(message, fallback string) string {
	if strings.TrimSpace(message) != "" {
		return message
	}
	return fallback
}
