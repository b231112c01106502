package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"

	"AgentPay-Chain/internal/chain"
	xerrors "AgentPay-Chain/internal/errors"
)

// KeypairSigner 持有一对本地 ed25519 密钥，用于守护进程自持钱包与测试。
// 浏览器钱包等外部签名方通过实现 Signer 接口接入，不走这里。
type KeypairSigner struct {
	address chain.Address
	private ed25519.PrivateKey
}

// NewKeypairSigner 从 base58 编码的 64 字节私钥构造签名器。
func NewKeypairSigner(secret string) (*KeypairSigner, error) {
	decoded, err := base58.Decode(secret)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "私钥不是合法的 base58 编码")
	}
	if len(decoded) != ed25519.PrivateKeySize {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("私钥长度应为 %d 字节，实际 %d 字节", ed25519.PrivateKeySize, len(decoded)))
	}
	private := ed25519.PrivateKey(decoded)
	public := private.Public().(ed25519.PublicKey)
	return &KeypairSigner{
		address: chain.Address(base58.Encode(public)),
		private: private,
	}, nil
}

// GenerateKeypair 生成一个随机签名器，用于派生新智能体的钱包以及测试。
func GenerateKeypair() (*KeypairSigner, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("生成密钥失败: %w", err)
	}
	return &KeypairSigner{
		address: chain.Address(base58.Encode(public)),
		private: private,
	}, nil
}

// Address 返回密钥对应的账户地址。
func (k *KeypairSigner) Address() chain.Address {
	if k == nil {
		return ""
	}
	return k.address
}

// Sign 对消息做 ed25519 签名。
func (k *KeypairSigner) Sign(_ context.Context, message []byte) ([]byte, error) {
	if k == nil || len(k.private) == 0 {
		return nil, ErrWalletUnavailable
	}
	return ed25519.Sign(k.private, message), nil
}
