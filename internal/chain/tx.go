package chain

import (
	"encoding/binary"

	"github.com/mr-tron/base58"

	xerrors "AgentPay-Chain/internal/errors"
)

// systemProgramID 是系统转账程序的固定地址（32 个零字节）。
var systemProgramID = make([]byte, 32)

// transferInstructionIndex 是系统程序中转账指令的编号。
const transferInstructionIndex uint32 = 2

// TransferParams 描述一笔单指令转账交易的全部要素。手续费支付方恒为 From。
type TransferParams struct {
	From      Address
	To        Address
	Amount    Lamports
	Blockhash Blockhash
}

// BuildTransferMessage 按照链的 legacy 报文格式构造未签名的转账消息。
// 纯函数，不发起任何网络请求；blockhash 由调用方统一获取，
// 以便同一批交易共享一个 blockhash 窗口。
func BuildTransferMessage(p TransferParams) ([]byte, error) {
	if p.Amount == 0 {
		return nil, xerrors.New(CodeInvalidAmount, "转账金额必须大于零")
	}

	from, err := p.From.Bytes()
	if err != nil {
		return nil, err
	}
	to, err := p.To.Bytes()
	if err != nil {
		return nil, err
	}
	blockhash, err := base58.Decode(string(p.Blockhash))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "blockhash 不是合法的 base58 编码")
	}
	if len(blockhash) != 32 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "blockhash 长度应为 32 字节")
	}

	// 报文头：1 个签名账户（发送方），0 个只读签名账户，
	// 1 个只读非签名账户（系统程序）。
	msg := make([]byte, 0, 3+1+3*32+32+1+1+1+2+1+12)
	msg = append(msg, 1, 0, 1)

	// 账户表：发送方、接收方、系统程序。
	msg = appendShortVecLen(msg, 3)
	msg = append(msg, from...)
	msg = append(msg, to...)
	msg = append(msg, systemProgramID...)

	msg = append(msg, blockhash...)

	// 单条转账指令：程序索引指向系统程序，账户索引为发送方和接收方。
	msg = appendShortVecLen(msg, 1)
	msg = append(msg, 2)
	msg = appendShortVecLen(msg, 2)
	msg = append(msg, 0, 1)

	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], transferInstructionIndex)
	binary.LittleEndian.PutUint64(data[4:12], uint64(p.Amount))
	msg = appendShortVecLen(msg, len(data))
	msg = append(msg, data...)

	return msg, nil
}

// EncodeSignedTransaction 将签名与消息拼装成可提交的完整交易字节。
func EncodeSignedTransaction(signature, message []byte) ([]byte, error) {
	if len(signature) != 64 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "签名长度应为 64 字节")
	}
	tx := make([]byte, 0, 1+64+len(message))
	tx = appendShortVecLen(tx, 1)
	tx = append(tx, signature...)
	tx = append(tx, message...)
	return tx, nil
}

// appendShortVecLen 以 compact-u16 变长编码追加一个长度值。
func appendShortVecLen(dst []byte, n int) []byte {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}
