package payment

import (
	"github.com/google/uuid"

	"AgentPay-Chain/internal/chain"
	xerrors "AgentPay-Chain/internal/errors"
)

// Purpose 标识一笔转账在业务上的用途。
type Purpose string

const (
	// PurposePlatformFee 是创建智能体时支付给平台金库的固定费用。
	PurposePlatformFee Purpose = "platform_fee"
	// PurposePrizeFunding 是注入新智能体钱包的奖池资金。
	PurposePrizeFunding Purpose = "prize_funding"
	// PurposeMessageFee 是与智能体对话的按条付费。
	PurposeMessageFee Purpose = "message_fee"
)

// Intent 描述一笔待执行的转账。由控制器创建，交给编排器消费一次，
// 提交之后不再修改。
type Intent struct {
	ID      string         `json:"id"`
	From    chain.Address  `json:"from"`
	To      chain.Address  `json:"to"`
	Amount  chain.Lamports `json:"amount"`
	Purpose Purpose        `json:"purpose"`
}

// NewIntent 校验并创建一笔转账意图。
func NewIntent(from, to chain.Address, amount chain.Lamports, purpose Purpose) (Intent, error) {
	if from == "" || to == "" {
		return Intent{}, xerrors.New(xerrors.CodeInvalidArgument, "转账双方地址不能为空")
	}
	if amount == 0 {
		return Intent{}, xerrors.New(chain.CodeInvalidAmount, "转账金额必须大于零")
	}
	switch purpose {
	case PurposePlatformFee, PurposePrizeFunding, PurposeMessageFee:
	default:
		return Intent{}, xerrors.New(xerrors.CodeInvalidArgument, "未知的转账用途")
	}
	return Intent{
		ID:      uuid.NewString(),
		From:    from,
		To:      to,
		Amount:  amount,
		Purpose: purpose,
	}, nil
}

// 支付域的错误码。
const (
	CodeInsufficientBalance  xerrors.Code = "INSUFFICIENT_BALANCE"
	CodeSubmissionRejected   xerrors.Code = "SUBMISSION_REJECTED"
	CodeTransferFailed       xerrors.Code = "TRANSFER_FAILED"
	CodeConfirmationTimedOut xerrors.Code = "CONFIRMATION_TIMEOUT"
	CodePartialFailure       xerrors.Code = "PARTIAL_FAILURE"
)

var (
	// ErrConfirmationTimedOut 表示确认等待超时，交易结果未知。
	// 不可自动重提同一笔意图，只能稍后重新查询状态。
	ErrConfirmationTimedOut = xerrors.New(CodeConfirmationTimedOut, "确认等待超时，交易结果未知")
)

func init() {
	xerrors.Register(CodeInsufficientBalance, xerrors.Attributes{
		Message:   "insufficient balance",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeSubmissionRejected, xerrors.Attributes{
		Message:   "transaction rejected by node",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTransferFailed, xerrors.Attributes{
		Message:   "transfer failed on chain",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeConfirmationTimedOut, xerrors.Attributes{
		Message:   "confirmation timed out, outcome unknown",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodePartialFailure, xerrors.Attributes{
		Message:   "payment confirmed but paired call failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}
