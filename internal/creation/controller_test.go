package creation

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"AgentPay-Chain/internal/backend"
	"AgentPay-Chain/internal/chain"
	xerrors "AgentPay-Chain/internal/errors"
	"AgentPay-Chain/internal/payment"
	"AgentPay-Chain/internal/storage/mysql"
	"AgentPay-Chain/internal/wallet"
)

// stubChain 是可编排的链客户端替身。
type stubChain struct {
	mu          sync.Mutex
	balance     chain.Lamports
	blockhashes int
	submitted   int
	statuses    []chain.ConfirmationStatus
	statusIdx   int
}

func (s *stubChain) GetBalance(context.Context, chain.Address) (chain.Lamports, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

func (s *stubChain) GetLatestBlockhash(context.Context) (chain.Blockhash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockhashes++
	raw := make([]byte, 32)
	_, _ = rand.Read(raw)
	return chain.Blockhash(base58.Encode(raw)), nil
}

func (s *stubChain) SubmitTransaction(_ context.Context, signed []byte) (chain.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted++
	return chain.Signature("sig-" + base58.Encode(signed[1:5])), nil
}

func (s *stubChain) GetConfirmationStatus(context.Context, chain.Signature) (chain.ConfirmationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return chain.StatusConfirmed, nil
	}
	status := s.statuses[s.statusIdx]
	if s.statusIdx < len(s.statuses)-1 {
		s.statusIdx++
	}
	return status, nil
}

func (s *stubChain) Close() {}

// stubLedger 记录落库的支付流水，测试用它观察逐笔转账的细节。
type stubLedger struct {
	mu    sync.Mutex
	saved []mysql.PaymentRecord
}

func (s *stubLedger) Save(_ context.Context, record mysql.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, record)
	return nil
}

func (s *stubLedger) ListLatest(context.Context, int) ([]mysql.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mysql.PaymentRecord(nil), s.saved...), nil
}

func (s *stubLedger) UpdateStatus(context.Context, string, string) error { return nil }

// stubBackend 记录注册调用；注册发生时链上还不应有任何提交。
type stubBackend struct {
	chain       *stubChain
	err         error
	wallet      string
	requests    []backend.CreateAgentRequest
	submitsSeen []int
}

func (s *stubBackend) CreateAgent(_ context.Context, req backend.CreateAgentRequest) (*backend.Agent, error) {
	s.chain.mu.Lock()
	s.submitsSeen = append(s.submitsSeen, s.chain.submitted)
	s.chain.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	walletAddress := req.WalletAddress
	if s.wallet != "" {
		walletAddress = s.wallet
	}
	return &backend.Agent{
		WalletAddress: walletAddress,
		Name:          req.Name,
		CostPerPrompt: req.CostPerPrompt,
	}, nil
}

func creationFixture(t *testing.T, chainStub *stubChain, agentBackend *stubBackend, ledger *stubLedger) (*Controller, *wallet.KeypairSigner, chain.Address) {
	t.Helper()
	signer, err := wallet.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	bankKeypair, err := wallet.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	bank := bankKeypair.Address()

	submitter := payment.NewSubmitter(chainStub,
		payment.WithPollInterval(5*time.Millisecond),
		payment.WithConfirmTimeout(time.Second),
	)
	var orchOpts []payment.OrchestratorOption
	if ledger != nil {
		orchOpts = append(orchOpts, payment.WithLedger(ledger))
	}
	controller, err := NewController(chainStub, submitter, agentBackend, signer, bank, orchOpts)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return controller, signer, bank
}

func TestCreateValidatesBeforeAnyCall(t *testing.T) {
	chainStub := &stubChain{balance: chain.Lamports(1_000_000_000)}
	agentBackend := &stubBackend{chain: chainStub}
	controller, _, _ := creationFixture(t, chainStub, agentBackend, nil)

	if _, err := controller.Create(context.Background(), Request{PrizePool: MinPrizePool}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("空名称应被拒绝: %v", err)
	}
	if _, err := controller.Create(context.Background(), Request{Name: "oracle", PrizePool: MinPrizePool - 1}); xerrors.CodeOf(err) != chain.CodeInvalidAmount {
		t.Fatalf("奖池低于下限应被拒绝: %v", err)
	}

	if len(agentBackend.requests) != 0 {
		t.Fatalf("校验失败不应触发后端注册")
	}
	if chainStub.submitted != 0 || chainStub.blockhashes != 0 {
		t.Fatalf("校验失败不应触碰链上接口")
	}
}

func TestCreateRegistersBeforeFunding(t *testing.T) {
	chainStub := &stubChain{balance: chain.Lamports(1_000_000_000)}
	agentBackend := &stubBackend{chain: chainStub}
	ledger := &stubLedger{}
	controller, signer, bank := creationFixture(t, chainStub, agentBackend, ledger)

	creation, err := controller.Create(context.Background(), Request{
		Name:          "oracle",
		Personality:   map[string]any{"tone": "dry"},
		PrizePool:     MinPrizePool,
		CostPerPrompt: 0.01,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if creation.State() != StateDone {
		t.Fatalf("state = %s, want done", creation.State())
	}
	if creation.Agent() == nil {
		t.Fatalf("完成后的流程应携带智能体档案")
	}

	// 注册发生时链上还没有任何提交。
	if len(agentBackend.submitsSeen) != 1 || agentBackend.submitsSeen[0] != 0 {
		t.Fatalf("注册必须严格先于注资: %v", agentBackend.submitsSeen)
	}

	// 两笔注资：固定平台费进平台金库，奖池进智能体钱包，共享 blockhash。
	if len(ledger.saved) != 2 {
		t.Fatalf("台账应记录 2 笔，实际 %d", len(ledger.saved))
	}
	fee, prize := ledger.saved[0], ledger.saved[1]
	if fee.Purpose != string(payment.PurposePlatformFee) || fee.To != string(bank) {
		t.Fatalf("第一笔应为平台费: %+v", fee)
	}
	if fee.Lamports != uint64(DefaultPlatformFee) {
		t.Fatalf("平台费金额 = %d, want %d", fee.Lamports, DefaultPlatformFee)
	}
	if prize.Purpose != string(payment.PurposePrizeFunding) || prize.To != creation.Agent().WalletAddress {
		t.Fatalf("第二笔应为奖池注资: %+v", prize)
	}
	if prize.From != string(signer.Address()) {
		t.Fatalf("奖池应由创建者付款: %+v", prize)
	}
	if fee.Blockhash != prize.Blockhash {
		t.Fatalf("同批注资应共享 blockhash")
	}
	if chainStub.blockhashes != 1 {
		t.Fatalf("应当只取一次 blockhash，实际 %d 次", chainStub.blockhashes)
	}
}

func TestCreatePrizeGoesToBackendWallet(t *testing.T) {
	chainStub := &stubChain{balance: chain.Lamports(1_000_000_000)}
	// 后端返回的钱包与请求中生成的不同，奖池必须以后端为准。
	assigned, err := wallet.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	agentBackend := &stubBackend{chain: chainStub, wallet: string(assigned.Address())}
	ledger := &stubLedger{}
	controller, _, _ := creationFixture(t, chainStub, agentBackend, ledger)

	creation, err := controller.Create(context.Background(), Request{Name: "oracle", PrizePool: MinPrizePool})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if creation.Agent().WalletAddress != string(assigned.Address()) {
		t.Fatalf("档案钱包应为后端分配的地址")
	}
	if ledger.saved[1].To != string(assigned.Address()) {
		t.Fatalf("奖池收款方 = %s, want %s", ledger.saved[1].To, assigned.Address())
	}
}

func TestCreateRegistrationFailure(t *testing.T) {
	chainStub := &stubChain{balance: chain.Lamports(1_000_000_000)}
	agentBackend := &stubBackend{
		chain: chainStub,
		err:   xerrors.New(backend.CodeBackendRejected, "name already taken"),
	}
	controller, _, _ := creationFixture(t, chainStub, agentBackend, nil)

	creation, err := controller.Create(context.Background(), Request{Name: "dup", PrizePool: MinPrizePool})
	if xerrors.CodeOf(err) != backend.CodeBackendRejected {
		t.Fatalf("expected BACKEND_REJECTED, got %v", err)
	}
	if creation.State() != StateRegistrationFailed {
		t.Fatalf("state = %s, want registration_failed", creation.State())
	}
	if chainStub.submitted != 0 {
		t.Fatalf("注册失败不应产生任何转账")
	}
}

func TestCreateFundingFailedKeepsRegistration(t *testing.T) {
	chainStub := &stubChain{
		balance: chain.Lamports(1_000_000_000),
		// 平台费确认，奖池在链上失败。
		statuses: []chain.ConfirmationStatus{chain.StatusConfirmed, chain.StatusFailed},
	}
	agentBackend := &stubBackend{chain: chainStub}
	ledger := &stubLedger{}
	controller, _, _ := creationFixture(t, chainStub, agentBackend, ledger)

	creation, err := controller.Create(context.Background(), Request{Name: "oracle", PrizePool: MinPrizePool})
	if xerrors.CodeOf(err) != payment.CodeTransferFailed {
		t.Fatalf("expected TRANSFER_FAILED, got %v", err)
	}
	if creation.State() != StateFundingFailed {
		t.Fatalf("state = %s, want funding_failed", creation.State())
	}
	// 注册不回滚：档案保留，留待人工对账。
	if creation.Agent() == nil {
		t.Fatalf("注资失败后智能体应保持已注册状态")
	}
	if len(agentBackend.requests) != 1 {
		t.Fatalf("不应有第二次注册调用")
	}
	receipt := creation.Receipt()
	if receipt == nil || len(receipt.Records) != 2 {
		t.Fatalf("回执应包含两笔记录: %+v", receipt)
	}
	if receipt.Records[0].Status != payment.StatusConfirmed {
		t.Fatalf("平台费应保持已确认")
	}
	if receipt.Records[1].Status != payment.StatusFailed {
		t.Fatalf("奖池应为失败状态")
	}
}

func TestCreateInsufficientBalance(t *testing.T) {
	chainStub := &stubChain{balance: chain.Lamports(5)}
	agentBackend := &stubBackend{chain: chainStub}
	controller, _, _ := creationFixture(t, chainStub, agentBackend, nil)

	creation, err := controller.Create(context.Background(), Request{Name: "oracle", PrizePool: MinPrizePool})
	if xerrors.CodeOf(err) != payment.CodeInsufficientBalance {
		t.Fatalf("expected INSUFFICIENT_BALANCE, got %v", err)
	}
	if creation.State() != StateFundingFailed {
		t.Fatalf("state = %s, want funding_failed", creation.State())
	}
	if chainStub.submitted != 0 {
		t.Fatalf("余额不足时不应提交任何交易")
	}
}
