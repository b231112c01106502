package chain

import "context"

// Client 定义了上层业务依赖的窄 RPC 契约。任何链的具体实现都必须提供
// 这四个能力：查余额、取最新 blockhash、提交已签名交易、查询确认状态。
type Client interface {
	GetBalance(ctx context.Context, address Address) (Lamports, error)
	GetLatestBlockhash(ctx context.Context) (Blockhash, error)
	SubmitTransaction(ctx context.Context, signed []byte) (Signature, error)
	GetConfirmationStatus(ctx context.Context, signature Signature) (ConfirmationStatus, error)
	Close()
}
