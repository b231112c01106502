package payment

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strconv"
	"time"

	"AgentPay-Chain/internal/chain"
	xerrors "AgentPay-Chain/internal/errors"
	"AgentPay-Chain/internal/observability/alerting"
	"AgentPay-Chain/internal/observability/metrics"
	"AgentPay-Chain/internal/storage/mysql"
	"AgentPay-Chain/internal/wallet"
	"AgentPay-Chain/pkg/logger"
)

// Receipt 汇总一次编排中实际尝试过的所有转账记录。
// 前序失败会中止后续转账，未尝试的意图不会出现在这里。
type Receipt struct {
	Records []*Record
}

// Confirmed 判断回执中的所有转账是否都已确认。
func (r *Receipt) Confirmed() bool {
	if r == nil || len(r.Records) == 0 {
		return false
	}
	for _, record := range r.Records {
		if record.Status != StatusConfirmed {
			return false
		}
	}
	return true
}

// Orchestrator 负责把一组转账意图按顺序执行完：统一取号、逐笔
// 提交、落台账、超时签名入对账队列、必要时告警。
type Orchestrator struct {
	client    chain.Client
	submitter *Submitter
	ledger    mysql.PaymentRepository
	pending   Producer
	alerts    alerting.Dispatcher
	onLeg     func(index int, intent Intent)
	logger    *slog.Logger
}

// OrchestratorOption 定义可选配置。
type OrchestratorOption func(*Orchestrator)

// WithLedger 指定支付台账。
func WithLedger(ledger mysql.PaymentRepository) OrchestratorOption {
	return func(o *Orchestrator) {
		o.ledger = ledger
	}
}

// WithPendingQueue 指定超时签名的对账队列。
func WithPendingQueue(producer Producer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.pending = producer
	}
}

// WithAlertDispatcher 指定告警分发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) OrchestratorOption {
	return func(o *Orchestrator) {
		o.alerts = dispatcher
	}
}

// WithOrchestratorLogger 指定日志输出。
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithLegObserver 注册回调，在每笔转账开始执行前触发。调用方可以
// 据此跟踪多笔编排推进到了哪一笔。
func WithLegObserver(fn func(index int, intent Intent)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.onLeg = fn
	}
}

// NewOrchestrator 构造编排器。
func NewOrchestrator(client chain.Client, submitter *Submitter, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:    client,
		submitter: submitter,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = logger.Named("orchestrator")
	}
	return o
}

// Execute 按给定顺序执行全部转账意图。所有转账共享同一个 blockhash，
// 任意一笔未达到 Confirmed 即中止剩余转账并返回错误；已尝试的记录
// 全部保留在回执中。余额预检只做提示，不能替代链上结论。
func (o *Orchestrator) Execute(ctx context.Context, signer wallet.Signer, intents ...Intent) (*Receipt, error) {
	if o == nil || o.client == nil || o.submitter == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "编排器未初始化")
	}
	if len(intents) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "至少需要一笔转账意图")
	}
	if signer == nil {
		return nil, wallet.ErrWalletUnavailable
	}

	if err := o.precheckBalance(ctx, signer.Address(), intents); err != nil {
		return nil, err
	}

	blockhash, err := o.client.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeRPCFailure, err, "获取最新 blockhash 失败")
	}

	receipt := &Receipt{}
	for i, intent := range intents {
		if o.onLeg != nil {
			o.onLeg(i, intent)
		}
		unsigned, err := BuildTransfer(intent, blockhash)
		if err != nil {
			return receipt, err
		}

		record, err := o.submitter.Submit(ctx, unsigned, signer)
		if record != nil {
			receipt.Records = append(receipt.Records, record)
			o.persist(ctx, record)
		}
		if err != nil {
			o.handleFailure(ctx, record, err)
			return receipt, err
		}
	}
	return receipt, nil
}

// precheckBalance 在提交前核对付款方余额是否足以覆盖全部意图。
// 查询失败只记日志，不阻断流程。
func (o *Orchestrator) precheckBalance(ctx context.Context, from chain.Address, intents []Intent) error {
	var total chain.Lamports
	for _, intent := range intents {
		if intent.From != from {
			return xerrors.New(xerrors.CodeInvalidArgument, "转账付款方与签名方不一致")
		}
		total += intent.Amount
	}

	balance, err := o.client.GetBalance(ctx, from)
	if err != nil {
		o.logger.Warn("余额预检查询失败，跳过预检",
			slog.Any("error", err),
			slog.String("address", string(from)))
		return nil
	}
	if balance < total {
		return xerrors.New(CodeInsufficientBalance, "余额不足以覆盖全部转账",
			xerrors.WithMetadata("balance_lamports", strconv.FormatUint(uint64(balance), 10)),
			xerrors.WithMetadata("required_lamports", strconv.FormatUint(uint64(total), 10)))
	}
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, record *Record) {
	if record == nil {
		return
	}
	metrics.ObservePayment(string(record.Intent.Purpose), string(record.Status))
	if o.ledger == nil {
		return
	}
	if err := o.ledger.Save(ctx, toLedgerRecord(record)); err != nil {
		o.logger.Error("写入支付台账失败",
			slog.Any("error", err),
			slog.String("intent_id", record.Intent.ID))
	}
}

// handleFailure 对失败的转账做善后：超时签名进入对账队列等待后续
// 重查；需要告警的错误分发告警事件。绝不重提交易本身。
func (o *Orchestrator) handleFailure(ctx context.Context, record *Record, cause error) {
	if record == nil {
		return
	}
	if stdErrors.Is(cause, ErrConfirmationTimedOut) && record.Signature != "" && o.pending != nil {
		if err := o.pending.Publish(ctx, string(record.Signature)); err != nil {
			o.logger.Error("超时签名入队失败",
				slog.Any("error", err),
				slog.String("signature", string(record.Signature)))
		}
	}
	if o.alerts != nil && xerrors.AlertRequired(cause) {
		event := alerting.Event{
			Code:       xerrors.CodeOf(cause),
			Message:    cause.Error(),
			IntentID:   record.Intent.ID,
			Signature:  string(record.Signature),
			Purpose:    string(record.Intent.Purpose),
			OccurredAt: time.Now(),
		}
		if e, ok := xerrors.From(cause); ok {
			event.Severity = e.Severity()
			event.Metadata = e.Metadata()
		}
		if err := o.alerts.Notify(ctx, event); err != nil {
			o.logger.Error("分发支付告警失败", slog.Any("error", err))
		}
	}
}

// toLedgerRecord 把运行时记录转换为台账落库结构。
func toLedgerRecord(record *Record) mysql.PaymentRecord {
	return mysql.PaymentRecord{
		IntentID:  record.Intent.ID,
		Purpose:   string(record.Intent.Purpose),
		From:      string(record.Intent.From),
		To:        string(record.Intent.To),
		Lamports:  uint64(record.Intent.Amount),
		Blockhash: string(record.Blockhash),
		Signature: string(record.Signature),
		Status:    string(record.Status),
		CreatedAt: record.UpdatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}
