package wallet

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
)

func TestKeypairSignerRoundTrip(t *testing.T) {
	signer, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if signer.Address() == "" {
		t.Fatalf("地址不能为空")
	}

	message := []byte("transfer message")
	signature, err := signer.Sign(context.Background(), message)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(signature) != ed25519.SignatureSize {
		t.Fatalf("signature len = %d", len(signature))
	}

	public, err := base58.Decode(string(signer.Address()))
	if err != nil {
		t.Fatalf("地址应为 base58 编码的公钥: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(public), message, signature) {
		t.Fatalf("签名验证失败")
	}
}

func TestNewKeypairSignerFromSecret(t *testing.T) {
	original, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	secret := base58.Encode(original.private)

	restored, err := NewKeypairSigner(secret)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Address() != original.Address() {
		t.Fatalf("恢复的地址不一致: %s != %s", restored.Address(), original.Address())
	}
}

func TestNewKeypairSignerRejectsBadSecret(t *testing.T) {
	if _, err := NewKeypairSigner("0OIl"); err == nil {
		t.Fatalf("非法 base58 应被拒绝")
	}
	if _, err := NewKeypairSigner(base58.Encode([]byte("short"))); err == nil {
		t.Fatalf("长度错误的私钥应被拒绝")
	}
}

func TestNilSignerUnavailable(t *testing.T) {
	var signer *KeypairSigner
	if signer.Address() != "" {
		t.Fatalf("nil 签名器地址应为空")
	}
	if _, err := signer.Sign(context.Background(), []byte("m")); !errors.Is(err, ErrWalletUnavailable) {
		t.Fatalf("expected WALLET_UNAVAILABLE, got %v", err)
	}
}
