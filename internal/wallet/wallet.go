package wallet

import (
	"context"

	"AgentPay-Chain/internal/chain"
	xerrors "AgentPay-Chain/internal/errors"
)

// Signer 是外部钱包能力的抽象。实现方对交易消息产生签名，
// 核心从不检查签名内容。签名可能等待任意长的用户交互。
type Signer interface {
	// Address 返回签名方的账户地址。
	Address() chain.Address
	// Sign 对消息字节产生 64 字节签名。用户拒绝时返回 ErrSignerRejected。
	Sign(ctx context.Context, message []byte) ([]byte, error)
}

const (
	CodeWalletUnavailable xerrors.Code = "WALLET_UNAVAILABLE"
	CodeSignerRejected    xerrors.Code = "SIGNER_REJECTED"
)

var (
	// ErrWalletUnavailable 表示当前没有可用的签名能力（钱包未连接）。
	ErrWalletUnavailable = xerrors.New(CodeWalletUnavailable, "钱包不可用")
	// ErrSignerRejected 表示签名方拒绝了本次签名请求。
	ErrSignerRejected = xerrors.New(CodeSignerRejected, "签名请求被拒绝")
)

func init() {
	xerrors.Register(CodeWalletUnavailable, xerrors.Attributes{
		Message:   "wallet unavailable",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
	xerrors.Register(CodeSignerRejected, xerrors.Attributes{
		Message:   "signer rejected the request",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}
