package creation

import (
	"context"
	"log/slog"
	"sync"

	"AgentPay-Chain/internal/backend"
	"AgentPay-Chain/internal/chain"
	xerrors "AgentPay-Chain/internal/errors"
	"AgentPay-Chain/internal/payment"
	"AgentPay-Chain/internal/wallet"
	"AgentPay-Chain/pkg/logger"
)

const (
	// DefaultPlatformFee 是创建智能体的固定平台费（0.01 原生单位）。
	DefaultPlatformFee = chain.Lamports(10_000_000)
	// MinPrizePool 是奖池注资的最低额度（0.1 原生单位）。
	MinPrizePool = chain.Lamports(100_000_000)
)

// State 表示一次创建流程所处的状态。
type State string

const (
	StateDraft              State = "draft"
	StateBackendRegistering State = "backend_registering"
	StateFundingFee         State = "funding_fee"
	StateFundingPrize       State = "funding_prize"
	StateDone               State = "done"
	StateRegistrationFailed State = "registration_failed"
	StateFundingFailed      State = "funding_failed"
)

// Request 描述一次创建智能体的输入。
type Request struct {
	Name          string
	Personality   map[string]any
	Lore          map[string]any
	Behavior      map[string]any
	SecretTask    map[string]any
	ExpiresAt     string
	ImageURL      string
	CostPerPrompt float64
	// PrizePool 是注入智能体钱包的奖池金额，不得低于 MinPrizePool。
	PrizePool chain.Lamports
}

// Creation 跟踪一次创建流程的状态与产物。
type Creation struct {
	ID string

	mu      sync.Mutex
	state   State
	agent   *backend.Agent
	receipt *payment.Receipt
}

// State 返回流程当前状态。
func (c *Creation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Agent 返回后端分配的智能体档案；注册完成前为 nil。
func (c *Creation) Agent() *backend.Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agent
}

// Receipt 返回注资转账的回执；注资开始前为 nil。
func (c *Creation) Receipt() *payment.Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receipt
}

func (c *Creation) setState(next State) {
	c.mu.Lock()
	c.state = next
	c.mu.Unlock()
}

// AgentBackend 定义创建流程需要的后端能力。
type AgentBackend interface {
	CreateAgent(ctx context.Context, req backend.CreateAgentRequest) (*backend.Agent, error)
}

// Controller 执行完整的创建流程。注册严格先于注资：奖池的收款方
// 是后端确认分配的智能体钱包。
type Controller struct {
	backend     AgentBackend
	payments    *payment.Orchestrator
	signer      wallet.Signer
	bankWallet  chain.Address
	platformFee chain.Lamports
	minPrize    chain.Lamports
	logger      *slog.Logger

	mu       sync.Mutex
	inflight map[string]*Creation
}

// ControllerOption 定义可选配置。
type ControllerOption func(*Controller)

// WithPlatformFee 覆盖默认平台费。
func WithPlatformFee(fee chain.Lamports) ControllerOption {
	return func(c *Controller) {
		if fee > 0 {
			c.platformFee = fee
		}
	}
}

// WithMinPrizePool 覆盖默认的奖池最低额度。
func WithMinPrizePool(min chain.Lamports) ControllerOption {
	return func(c *Controller) {
		if min > 0 {
			c.minPrize = min
		}
	}
}

// WithControllerLogger 指定日志输出。
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController 构造创建控制器。编排器由控制器自行组装，以便挂上
// 逐笔转账的进度回调；orchOpts 用于接入台账、对账队列与告警。
func NewController(client chain.Client, submitter *payment.Submitter, agentBackend AgentBackend,
	signer wallet.Signer, bankWallet chain.Address, orchOpts []payment.OrchestratorOption,
	opts ...ControllerOption) (*Controller, error) {
	if client == nil || submitter == nil || agentBackend == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "创建控制器缺少必要依赖")
	}
	if _, err := chain.ParseAddress(string(bankWallet)); err != nil {
		return nil, err
	}

	c := &Controller{
		backend:     agentBackend,
		signer:      signer,
		bankWallet:  bankWallet,
		platformFee: DefaultPlatformFee,
		minPrize:    MinPrizePool,
		inflight:    make(map[string]*Creation),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.logger == nil {
		c.logger = logger.Named("creation")
	}

	orchOpts = append(orchOpts, payment.WithLegObserver(c.observeLeg))
	c.payments = payment.NewOrchestrator(client, submitter, orchOpts...)
	return c, nil
}

// Create 执行一次完整的创建流程。平台费与奖池额度在任何网络调用
// 之前校验；两笔注资共享同一个 blockhash 顺序执行。平台费已确认但
// 奖池失败时流程停在 FundingFailed，智能体保持已注册状态，留待
// 人工对账，绝不回滚注册。
func (c *Controller) Create(ctx context.Context, req Request) (*Creation, error) {
	if c.signer == nil {
		return nil, wallet.ErrWalletUnavailable
	}
	if req.Name == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "智能体名称不能为空")
	}
	if req.PrizePool < c.minPrize {
		return nil, xerrors.New(chain.CodeInvalidAmount, "奖池金额低于最低额度")
	}

	// 为新智能体生成钱包。私钥只在注册请求中出现一次，本系统不保管。
	agentKeypair, err := wallet.GenerateKeypair()
	if err != nil {
		return nil, err
	}

	creation := &Creation{state: StateDraft}
	creation.setState(StateBackendRegistering)
	agent, err := c.backend.CreateAgent(ctx, backend.CreateAgentRequest{
		WalletAddress: string(agentKeypair.Address()),
		Name:          req.Name,
		Personality:   req.Personality,
		Lore:          req.Lore,
		Behavior:      req.Behavior,
		SecretTask:    req.SecretTask,
		ExpiresAt:     req.ExpiresAt,
		ImageURL:      req.ImageURL,
		CostPerPrompt: req.CostPerPrompt,
	})
	if err != nil {
		creation.setState(StateRegistrationFailed)
		return creation, err
	}
	creation.mu.Lock()
	creation.agent = agent
	creation.mu.Unlock()

	// 奖池的收款方以后端返回的地址为准。
	agentWallet, err := chain.ParseAddress(agent.WalletAddress)
	if err != nil {
		creation.setState(StateRegistrationFailed)
		return creation, err
	}

	userWallet := c.signer.Address()
	feeIntent, err := payment.NewIntent(userWallet, c.bankWallet, c.platformFee, payment.PurposePlatformFee)
	if err != nil {
		creation.setState(StateFundingFailed)
		return creation, err
	}
	prizeIntent, err := payment.NewIntent(userWallet, agentWallet, req.PrizePool, payment.PurposePrizeFunding)
	if err != nil {
		creation.setState(StateFundingFailed)
		return creation, err
	}

	creation.ID = feeIntent.ID
	c.track(creation, feeIntent.ID, prizeIntent.ID)
	defer c.untrack(feeIntent.ID, prizeIntent.ID)

	creation.setState(StateFundingFee)
	receipt, execErr := c.payments.Execute(ctx, c.signer, feeIntent, prizeIntent)
	creation.mu.Lock()
	creation.receipt = receipt
	creation.mu.Unlock()

	if execErr != nil {
		creation.setState(StateFundingFailed)
		if feeConfirmed(receipt) {
			logger.Audit().Warn("平台费已确认但奖池注资失败，智能体保持已注册状态",
				slog.String("agent_wallet", agent.WalletAddress),
				slog.String("fee_intent", feeIntent.ID),
				slog.String("prize_intent", prizeIntent.ID),
			)
		}
		return creation, execErr
	}

	creation.setState(StateDone)
	logger.Audit().Info("智能体创建完成",
		slog.String("agent", agent.Name),
		slog.String("agent_wallet", agent.WalletAddress),
		slog.Uint64("prize_lamports", uint64(req.PrizePool)),
	)
	return creation, nil
}

// observeLeg 把编排器的逐笔进度映射回创建流程状态。
func (c *Controller) observeLeg(_ int, intent payment.Intent) {
	if intent.Purpose != payment.PurposePrizeFunding {
		return
	}
	c.mu.Lock()
	creation := c.inflight[intent.ID]
	c.mu.Unlock()
	if creation != nil {
		creation.setState(StateFundingPrize)
	}
}

func (c *Controller) track(creation *Creation, intentIDs ...string) {
	c.mu.Lock()
	for _, id := range intentIDs {
		c.inflight[id] = creation
	}
	c.mu.Unlock()
}

func (c *Controller) untrack(intentIDs ...string) {
	c.mu.Lock()
	for _, id := range intentIDs {
		delete(c.inflight, id)
	}
	c.mu.Unlock()
}

// feeConfirmed 判断回执中的平台费转账是否已确认。
func feeConfirmed(receipt *payment.Receipt) bool {
	if receipt == nil || len(receipt.Records) == 0 {
		return false
	}
	first := receipt.Records[0]
	return first.Intent.Purpose == payment.PurposePlatformFee && first.Status == payment.StatusConfirmed
}
