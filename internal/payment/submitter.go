package payment

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"AgentPay-Chain/internal/chain"
	xerrors "AgentPay-Chain/internal/errors"
	"AgentPay-Chain/internal/wallet"
	"AgentPay-Chain/pkg/logger"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultConfirmTimeout = 30 * time.Second
)

// Submitter 负责单笔交易的签名、提交与确认等待。一次 Submit 只做一次
// 提交尝试；是否换新 blockhash 重试由编排器决定，不在这里发生。
type Submitter struct {
	client         chain.Client
	pollInterval   time.Duration
	confirmTimeout time.Duration
	logger         *slog.Logger
}

// SubmitterOption 定义可选配置。
type SubmitterOption func(*Submitter)

// WithPollInterval 设置确认状态的轮询间隔。
func WithPollInterval(interval time.Duration) SubmitterOption {
	return func(s *Submitter) {
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

// WithConfirmTimeout 设置确认等待的截止时长。
func WithConfirmTimeout(timeout time.Duration) SubmitterOption {
	return func(s *Submitter) {
		if timeout > 0 {
			s.confirmTimeout = timeout
		}
	}
}

// WithSubmitterLogger 指定日志输出。
func WithSubmitterLogger(logger *slog.Logger) SubmitterOption {
	return func(s *Submitter) {
		s.logger = logger
	}
}

// NewSubmitter 构造 Submitter。
func NewSubmitter(client chain.Client, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		client:         client,
		pollInterval:   defaultPollInterval,
		confirmTimeout: defaultConfirmTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = logger.Named("submitter")
	}
	return s
}

// Submit 执行 签名 -> 提交 -> 轮询确认 的完整流程，返回记录了最终
// 状态的 Record。出错时 Record 停留在出错前的最后一个状态：
//   - 签名被拒或钱包不可用: Built
//   - 节点拒绝提交: Signed
//   - 链上明确失败: Failed
//   - 截止前未见结论: TimedOut（结果未知，调用方只能重查，不能重提）
func (s *Submitter) Submit(ctx context.Context, unsigned *UnsignedTransaction, signer wallet.Signer) (*Record, error) {
	if s == nil || s.client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "提交器未初始化")
	}
	if unsigned == nil || len(unsigned.Message) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少待提交的交易")
	}

	record := newRecord(unsigned.Intent, unsigned.Blockhash)
	if signer == nil {
		return record, wallet.ErrWalletUnavailable
	}

	signature, err := signer.Sign(ctx, unsigned.Message)
	if err != nil {
		if stdErrors.Is(err, wallet.ErrWalletUnavailable) {
			return record, err
		}
		return record, xerrors.Wrap(wallet.CodeSignerRejected, err, "签名方拒绝了交易")
	}
	if err := record.Advance(StatusSigned); err != nil {
		return record, err
	}

	signed, err := chain.EncodeSignedTransaction(signature, unsigned.Message)
	if err != nil {
		return record, err
	}

	txSignature, err := s.client.SubmitTransaction(ctx, signed)
	if err != nil {
		return record, xerrors.Wrap(CodeSubmissionRejected, err, "节点拒绝了交易",
			xerrors.WithMetadata("intent_id", record.Intent.ID))
	}
	record.Signature = txSignature
	if err := record.Advance(StatusSubmitted); err != nil {
		return record, err
	}
	logger.Audit().Info("交易已提交",
		slog.String("intent_id", record.Intent.ID),
		slog.String("purpose", string(record.Intent.Purpose)),
		slog.String("signature", string(txSignature)),
		slog.Uint64("lamports", uint64(record.Intent.Amount)),
	)

	return s.awaitConfirmation(ctx, record)
}

// awaitConfirmation 以固定间隔轮询确认状态，直到确认、失败或超时。
func (s *Submitter) awaitConfirmation(ctx context.Context, record *Record) (*Record, error) {
	deadline := time.NewTimer(s.confirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		status, err := s.client.GetConfirmationStatus(ctx, record.Signature)
		if err != nil {
			// 单次查询失败不终结等待，留给下一个轮询周期。
			s.logger.Warn("查询确认状态失败",
				slog.Any("error", err),
				slog.String("signature", string(record.Signature)))
		} else {
			switch status {
			case chain.StatusConfirmed:
				if err := record.Advance(StatusConfirmed); err != nil {
					return record, err
				}
				logger.Audit().Info("交易已确认",
					slog.String("intent_id", record.Intent.ID),
					slog.String("signature", string(record.Signature)))
				return record, nil
			case chain.StatusFailed:
				if err := record.Advance(StatusFailed); err != nil {
					return record, err
				}
				return record, xerrors.New(CodeTransferFailed, "交易在链上执行失败",
					xerrors.WithMetadata("signature", string(record.Signature)))
			}
		}

		select {
		case <-ctx.Done():
			// 会话被放弃时不撤销已提交的交易，仅停止观察。
			return record, ctx.Err()
		case <-deadline.C:
			if err := record.Advance(StatusTimedOut); err != nil {
				return record, err
			}
			return record, ErrConfirmationTimedOut
		case <-ticker.C:
		}
	}
}
