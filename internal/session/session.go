package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"AgentPay-Chain/internal/backend"
	"AgentPay-Chain/internal/chain"
	"AgentPay-Chain/internal/payment"
)

// Role 标识对话中发言的一方。
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn 是会话转录中的一条发言。转录只追加，不修改。
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// State 表示会话当前所处的状态。
type State string

const (
	StateIdle          State = "idle"
	StatePaying        State = "paying"
	StateConfirming    State = "confirming"
	StateAwaitingReply State = "awaiting_reply"
	StateCompleted     State = "completed"
	StatePaymentFailed State = "payment_failed"
	StateReplyFailed   State = "reply_failed"
)

// Session 是一个 (用户, 智能体) 组合的会话实例。同一时刻最多只有
// 一条消息在途；并发的第二次发送会被拒绝且没有任何副作用。
type Session struct {
	ID          string
	UserWallet  chain.Address
	AgentWallet chain.Address
	Agent       backend.Agent

	mu         sync.Mutex
	state      State
	transcript []Turn
	// 已确认但尚未成功送达后端的付款记录，供补发使用。
	paidRecord  *payment.Record
	paidMessage string
	stopMonitor func()
}

func newSession(userWallet chain.Address, agent backend.Agent, agentWallet chain.Address) *Session {
	return &Session{
		ID:          uuid.NewString(),
		UserWallet:  userWallet,
		AgentWallet: agentWallet,
		Agent:       agent,
		state:       StateIdle,
	}
}

// State 返回会话当前状态。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript 返回会话转录的副本。
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]Turn, len(s.transcript))
	copy(results, s.transcript)
	return results
}

// appendExchange 在一次成功的往返后追加一条用户发言和一条智能体回复。
func (s *Session) appendExchange(message, reply string) {
	now := time.Now()
	s.transcript = append(s.transcript,
		Turn{Role: RoleUser, Content: message, CreatedAt: now},
		Turn{Role: RoleAgent, Content: reply, CreatedAt: now},
	)
}
