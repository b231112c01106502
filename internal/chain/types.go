package chain

import (
	"fmt"
	"math"
	"time"

	"github.com/mr-tron/base58"

	xerrors "AgentPay-Chain/internal/errors"
)

// LamportsPerSOL 是链上最小单位与原生单位之间的固定换算比例。
const LamportsPerSOL = 1_000_000_000

// Address 是链上账户的 base58 标识。创建后不可变。
type Address string

// ParseAddress 校验并返回一个账户地址。合法地址必须能解码为 32 字节。
func ParseAddress(raw string) (Address, error) {
	decoded, err := base58.Decode(raw)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "地址不是合法的 base58 编码")
	}
	if len(decoded) != 32 {
		return "", xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("地址长度应为 32 字节，实际 %d 字节", len(decoded)))
	}
	return Address(raw), nil
}

// Bytes 返回地址的原始 32 字节。调用方需保证地址已通过 ParseAddress 校验。
func (a Address) Bytes() ([]byte, error) {
	decoded, err := base58.Decode(string(a))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "地址解码失败")
	}
	return decoded, nil
}

// Lamports 是以链上最小单位计数的非负金额。
type Lamports uint64

// FromSOL 将原生单位金额换算为最小单位。换算结果必须是精确的整数，
// 出现小数 lamport 视为非法金额。
func FromSOL(sol float64) (Lamports, error) {
	if sol < 0 || math.IsNaN(sol) || math.IsInf(sol, 0) {
		return 0, xerrors.New(CodeInvalidAmount, fmt.Sprintf("非法的金额: %v", sol))
	}
	scaled := sol * LamportsPerSOL
	rounded := math.Round(scaled)
	if math.Abs(scaled-rounded) > 1e-6 {
		return 0, xerrors.New(CodeInvalidAmount,
			fmt.Sprintf("金额 %v 无法精确换算为最小单位", sol))
	}
	return Lamports(rounded), nil
}

// SOL 返回金额对应的原生单位数值，仅用于展示。
func (l Lamports) SOL() float64 {
	return float64(l) / LamportsPerSOL
}

// Blockhash 是授权交易所需的短时有效链状态引用，对核心而言是不透明值。
type Blockhash string

// Signature 是一笔已提交交易的 base58 标识。
type Signature string

// ConfirmationStatus 表示链对一笔交易的确认结论。
type ConfirmationStatus string

const (
	StatusPending   ConfirmationStatus = "pending"
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusFailed    ConfirmationStatus = "failed"
)

// BalanceSnapshot 记录某一时刻观测到的账户余额。每次轮询整体替换，不做合并。
type BalanceSnapshot struct {
	Address    Address   `json:"address"`
	Lamports   Lamports  `json:"lamports"`
	ObservedAt time.Time `json:"observed_at"`
}

// CodeInvalidAmount 表示金额非正或无法精确换算为最小单位。
const CodeInvalidAmount xerrors.Code = "INVALID_AMOUNT"

func init() {
	xerrors.Register(CodeInvalidAmount, xerrors.Attributes{
		Message:   "invalid amount",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}
