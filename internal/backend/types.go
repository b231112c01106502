package backend

import (
	xerrors "AgentPay-Chain/internal/errors"
)

// Agent 是后端返回的智能体档案。personality 等 JSON 子对象对本系统
// 是不透明的键值映射，只负责透传，不做校验或解释。
type Agent struct {
	WalletAddress string         `json:"wallet_address"`
	Name          string         `json:"name"`
	Personality   map[string]any `json:"personality,omitempty"`
	Lore          map[string]any `json:"lore,omitempty"`
	Behavior      map[string]any `json:"behavior,omitempty"`
	SecretTask    map[string]any `json:"secret_task,omitempty"`
	CreatedAt     string         `json:"created_at,omitempty"`
	ExpiresAt     string         `json:"expires_at,omitempty"`
	PrizePool     float64        `json:"prize_pool,omitempty"`
	ImageURL      string         `json:"image_url,omitempty"`
	CostPerPrompt float64        `json:"cost_per_prompt,omitempty"`
}

// CreateAgentRequest 描述注册一个新智能体所需的全部字段。
type CreateAgentRequest struct {
	WalletAddress string
	Name          string
	Personality   map[string]any
	Lore          map[string]any
	Behavior      map[string]any
	SecretTask    map[string]any
	ExpiresAt     string
	ImageURL      string
	CostPerPrompt float64
}

// ChatResult 是一次对话调用的后端回复。
type ChatResult struct {
	Response            string  `json:"response"`
	SecretTaskCompleted bool    `json:"secret_task_completed"`
	AgentBalance        float64 `json:"agent_balance"`
	UserBalance         float64 `json:"user_balance"`
}

// 后端域的错误码。
const (
	// CodeBackendUnavailable 表示后端不可达或内部错误，可以稍后重试。
	CodeBackendUnavailable xerrors.Code = "BACKEND_UNAVAILABLE"
	// CodeBackendRejected 表示后端明确拒绝了请求，重试同样的请求没有意义。
	CodeBackendRejected xerrors.Code = "BACKEND_REJECTED"
)

func init() {
	xerrors.Register(CodeBackendUnavailable, xerrors.Attributes{
		Message:   "agent backend unavailable",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
	xerrors.Register(CodeBackendRejected, xerrors.Attributes{
		Message:   "agent backend rejected the request",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
}
