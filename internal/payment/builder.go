package payment

import (
	"AgentPay-Chain/internal/chain"
	xerrors "AgentPay-Chain/internal/errors"
)

// UnsignedTransaction 是转账构造器的输出：一条未签名的单指令转账消息。
type UnsignedTransaction struct {
	Intent    Intent
	Blockhash chain.Blockhash
	Message   []byte
}

// BuildTransfer 根据转账意图与外部提供的 blockhash 构造未签名交易。
// 无副作用；不自行获取 blockhash，同一次编排中的多笔交易由调用方
// 统一取号，共享同一个 blockhash 窗口。手续费支付方恒为 intent.From。
func BuildTransfer(intent Intent, blockhash chain.Blockhash) (*UnsignedTransaction, error) {
	if blockhash == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "blockhash 不能为空")
	}
	if intent.Amount == 0 {
		return nil, xerrors.New(chain.CodeInvalidAmount, "转账金额必须大于零")
	}

	message, err := chain.BuildTransferMessage(chain.TransferParams{
		From:      intent.From,
		To:        intent.To,
		Amount:    intent.Amount,
		Blockhash: blockhash,
	})
	if err != nil {
		return nil, err
	}

	return &UnsignedTransaction{
		Intent:    intent,
		Blockhash: blockhash,
		Message:   message,
	}, nil
}
