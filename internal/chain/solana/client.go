package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"AgentPay-Chain/internal/chain"
	xerrors "AgentPay-Chain/internal/errors"
)

const defaultCommitment = "confirmed"

// Config 描述如何连接一个 Solana 风格的 JSON-RPC 节点。
type Config struct {
	Name       string
	RPCURL     string
	Commitment string
	Notes      string
}

// Client 基于通用 JSON-RPC 客户端实现 chain.Client 接口。节点的 RPC
// 协议是标准 JSON-RPC 2.0，因此直接复用 go-ethereum 的 rpc 传输层。
type Client struct {
	name       string
	notes      string
	commitment string
	rpc        rpcCaller
	closer     func()
}

// rpcCaller 抽象出客户端依赖的最小调用能力，便于测试替换。
type rpcCaller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// NewClient 连接配置的 RPC 端点并返回可用的客户端。
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置节点 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接节点失败: %w", err)
	}

	commitment := strings.TrimSpace(cfg.Commitment)
	if commitment == "" {
		commitment = defaultCommitment
	}

	return &Client{
		name:       cfg.Name,
		notes:      cfg.Notes,
		commitment: commitment,
		rpc:        rpcClient,
		closer:     rpcClient.Close,
	}, nil
}

// newClientWithCaller 供测试注入假的 RPC 调用器。
func newClientWithCaller(caller rpcCaller, commitment string) *Client {
	if commitment == "" {
		commitment = defaultCommitment
	}
	return &Client{name: "test", commitment: commitment, rpc: caller}
}

// Close 释放底层连接。
func (c *Client) Close() {
	if c == nil || c.closer == nil {
		return
	}
	c.closer()
	c.closer = nil
}

// GetBalance 查询账户余额，单位为 lamport。
func (c *Client) GetBalance(ctx context.Context, address chain.Address) (chain.Lamports, error) {
	if c == nil || c.rpc == nil {
		return 0, xerrors.New(xerrors.CodeInitializationFailure, "未初始化的链客户端")
	}
	var out struct {
		Value uint64 `json:"value"`
	}
	err := c.rpc.CallContext(ctx, &out, "getBalance", string(address), c.commitmentParam())
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeRPCFailure, err, "查询余额失败")
	}
	return chain.Lamports(out.Value), nil
}

// GetLatestBlockhash 获取最新的 blockhash。
func (c *Client) GetLatestBlockhash(ctx context.Context) (chain.Blockhash, error) {
	if c == nil || c.rpc == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未初始化的链客户端")
	}
	var out struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	err := c.rpc.CallContext(ctx, &out, "getLatestBlockhash", c.commitmentParam())
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeRPCFailure, err, "获取 blockhash 失败")
	}
	if out.Value.Blockhash == "" {
		return "", xerrors.New(xerrors.CodeRPCFailure, "节点返回了空的 blockhash")
	}
	return chain.Blockhash(out.Value.Blockhash), nil
}

// SubmitTransaction 提交已签名的交易字节。节点直接拒绝时返回错误，
// 由上层映射为提交被拒。
func (c *Client) SubmitTransaction(ctx context.Context, signed []byte) (chain.Signature, error) {
	if c == nil || c.rpc == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未初始化的链客户端")
	}
	if len(signed) == 0 {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "交易字节不能为空")
	}
	encoded := base64.StdEncoding.EncodeToString(signed)
	var signature string
	err := c.rpc.CallContext(ctx, &signature, "sendTransaction", encoded, map[string]any{
		"encoding":            "base64",
		"preflightCommitment": c.commitment,
	})
	if err != nil {
		return "", err
	}
	return chain.Signature(signature), nil
}

// GetConfirmationStatus 查询某个签名的确认状态。链上尚无结论时返回 Pending。
func (c *Client) GetConfirmationStatus(ctx context.Context, signature chain.Signature) (chain.ConfirmationStatus, error) {
	if c == nil || c.rpc == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未初始化的链客户端")
	}
	var out struct {
		Value []*struct {
			ConfirmationStatus string `json:"confirmationStatus"`
			Err                any    `json:"err"`
		} `json:"value"`
	}
	err := c.rpc.CallContext(ctx, &out, "getSignatureStatuses",
		[]string{string(signature)}, map[string]any{"searchTransactionHistory": true})
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeRPCFailure, err, "查询确认状态失败")
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return chain.StatusPending, nil
	}
	status := out.Value[0]
	if status.Err != nil {
		return chain.StatusFailed, nil
	}
	switch status.ConfirmationStatus {
	case "confirmed", "finalized":
		return chain.StatusConfirmed, nil
	default:
		return chain.StatusPending, nil
	}
}

func (c *Client) commitmentParam() map[string]string {
	return map[string]string{"commitment": c.commitment}
}
