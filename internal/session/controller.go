package session

import (
	"context"
	"log/slog"

	"AgentPay-Chain/internal/backend"
	"AgentPay-Chain/internal/chain"
	xerrors "AgentPay-Chain/internal/errors"
	"AgentPay-Chain/internal/monitor"
	"AgentPay-Chain/internal/payment"
	"AgentPay-Chain/internal/wallet"
	"AgentPay-Chain/pkg/logger"
)

// defaultMessageCost 是单条消息的默认费用（0.01 原生单位）。
// 智能体档案中带有 cost_per_prompt 时以档案为准。
const defaultMessageCost = chain.Lamports(10_000_000)

// ChatBackend 定义会话控制器需要的后端能力。
type ChatBackend interface {
	UserExists(ctx context.Context, walletAddress string) (bool, error)
	CreateUser(ctx context.Context, walletAddress string) error
	Chat(ctx context.Context, agentWallet, userWallet, message string) (*backend.ChatResult, error)
}

// PaymentExecutor 定义会话控制器需要的支付能力。
type PaymentExecutor interface {
	Execute(ctx context.Context, signer wallet.Signer, intents ...payment.Intent) (*payment.Receipt, error)
}

// Controller 驱动付费对话：先付款并等待链上确认，再请求后端回复。
type Controller struct {
	backend     ChatBackend
	payments    PaymentExecutor
	signer      wallet.Signer
	monitor     *monitor.BalanceMonitor
	messageCost chain.Lamports
	logger      *slog.Logger
}

// ControllerOption 定义可选配置。
type ControllerOption func(*Controller)

// WithMonitor 指定余额监视器，会话打开时自动开始轮询双方地址。
func WithMonitor(m *monitor.BalanceMonitor) ControllerOption {
	return func(c *Controller) {
		c.monitor = m
	}
}

// WithMessageCost 覆盖默认的单条消息费用。
func WithMessageCost(cost chain.Lamports) ControllerOption {
	return func(c *Controller) {
		if cost > 0 {
			c.messageCost = cost
		}
	}
}

// WithControllerLogger 指定日志输出。
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController 构造会话控制器。
func NewController(chatBackend ChatBackend, payments PaymentExecutor, signer wallet.Signer, opts ...ControllerOption) (*Controller, error) {
	if chatBackend == nil || payments == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "会话控制器缺少必要依赖")
	}
	c := &Controller{
		backend:     chatBackend,
		payments:    payments,
		signer:      signer,
		messageCost: defaultMessageCost,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.logger == nil {
		c.logger = logger.Named("session")
	}
	return c, nil
}

// Open 打开一个与指定智能体的会话。首次见到的用户会被顺手注册到
// 后端；注册失败只记日志，不阻塞会话。
func (c *Controller) Open(ctx context.Context, agent backend.Agent) (*Session, error) {
	if c.signer == nil {
		return nil, wallet.ErrWalletUnavailable
	}
	agentWallet, err := chain.ParseAddress(agent.WalletAddress)
	if err != nil {
		return nil, err
	}
	userWallet := c.signer.Address()

	c.bootstrapUser(ctx, string(userWallet))

	sess := newSession(userWallet, agent, agentWallet)
	if c.monitor != nil {
		sess.stopMonitor = c.monitor.Start(ctx, []chain.Address{userWallet, agentWallet})
	}
	c.logger.Info("会话已打开",
		slog.String("session_id", sess.ID),
		slog.String("agent", agent.Name),
		slog.String("agent_wallet", string(agentWallet)))
	return sess, nil
}

// bootstrapUser 确保钱包用户在后端存在。尽力而为。
func (c *Controller) bootstrapUser(ctx context.Context, walletAddress string) {
	exists, err := c.backend.UserExists(ctx, walletAddress)
	if err != nil {
		c.logger.Warn("查询用户是否存在失败", slog.Any("error", err))
		return
	}
	if exists {
		return
	}
	if err := c.backend.CreateUser(ctx, walletAddress); err != nil {
		c.logger.Warn("注册用户失败", slog.Any("error", err))
	}
}

// SendMessage 发送一条付费消息。付款确认严格先于后端调用；转录仅在
// 后端明确成功后追加。会话正忙或等待补发时，新消息被直接拒绝且没有
// 任何副作用。
func (c *Controller) SendMessage(ctx context.Context, sess *Session, message string) (*backend.ChatResult, error) {
	if sess == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "会话不存在")
	}
	if message == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "消息内容不能为空")
	}

	sess.mu.Lock()
	switch sess.state {
	case StateIdle, StateCompleted, StatePaymentFailed:
	case StateReplyFailed:
		sess.mu.Unlock()
		return nil, xerrors.New(xerrors.CodeConflict, "上一条消息已付款但未送达，请先补发")
	default:
		sess.mu.Unlock()
		return nil, xerrors.New(xerrors.CodeConflict, "会话中已有消息在途")
	}
	sess.state = StatePaying
	sess.mu.Unlock()

	intent, err := c.buildMessageIntent(sess)
	if err != nil {
		sess.setState(StateIdle)
		return nil, err
	}

	sess.setState(StateConfirming)
	receipt, err := c.payments.Execute(ctx, c.signer, intent)
	if err != nil {
		sess.setState(StatePaymentFailed)
		return nil, err
	}
	record := receipt.Records[len(receipt.Records)-1]

	sess.mu.Lock()
	sess.state = StateAwaitingReply
	sess.paidRecord = record
	sess.paidMessage = message
	sess.mu.Unlock()

	return c.deliver(ctx, sess)
}

// RetryDelivery 在付款已确认但后端调用失败后补发同一条消息。
// 只重复后端调用，绝不产生新的付款。
func (c *Controller) RetryDelivery(ctx context.Context, sess *Session) (*backend.ChatResult, error) {
	if sess == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "会话不存在")
	}
	sess.mu.Lock()
	if sess.state != StateReplyFailed || sess.paidRecord == nil {
		sess.mu.Unlock()
		return nil, xerrors.New(xerrors.CodeConflict, "没有待补发的消息")
	}
	sess.state = StateAwaitingReply
	sess.mu.Unlock()

	return c.deliver(ctx, sess)
}

// Close 结束会话并停止余额监视。对已提交的链上交易不做任何处理，
// 只是不再观察。
func (c *Controller) Close(sess *Session) {
	if sess == nil {
		return
	}
	if sess.stopMonitor != nil {
		sess.stopMonitor()
	}
	c.logger.Info("会话已关闭", slog.String("session_id", sess.ID))
}

// deliver 把已付款的消息交给后端并追加转录。
func (c *Controller) deliver(ctx context.Context, sess *Session) (*backend.ChatResult, error) {
	sess.mu.Lock()
	message := sess.paidMessage
	record := sess.paidRecord
	sess.mu.Unlock()

	result, err := c.backend.Chat(ctx, string(sess.AgentWallet), string(sess.UserWallet), message)
	if err != nil {
		sess.setState(StateReplyFailed)
		return nil, xerrors.Wrap(payment.CodePartialFailure, err, "付款已确认但后端回复失败",
			xerrors.WithMetadata("intent_id", record.Intent.ID),
			xerrors.WithMetadata("signature", string(record.Signature)))
	}

	sess.mu.Lock()
	sess.appendExchange(message, result.Response)
	sess.paidRecord = nil
	sess.paidMessage = ""
	sess.state = StateCompleted
	sess.mu.Unlock()

	logger.Audit().Info("对话完成",
		slog.String("session_id", sess.ID),
		slog.String("intent_id", record.Intent.ID),
		slog.Bool("secret_task_completed", result.SecretTaskCompleted),
	)
	return result, nil
}

// buildMessageIntent 根据智能体档案计算消息费用并生成转账意图。
func (c *Controller) buildMessageIntent(sess *Session) (payment.Intent, error) {
	amount := c.messageCost
	if sess.Agent.CostPerPrompt > 0 {
		converted, err := chain.FromSOL(sess.Agent.CostPerPrompt)
		if err != nil {
			return payment.Intent{}, err
		}
		amount = converted
	}
	return payment.NewIntent(sess.UserWallet, sess.AgentWallet, amount, payment.PurposeMessageFee)
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}
