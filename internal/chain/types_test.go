package chain

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/mr-tron/base58"

	xerrors "AgentPay-Chain/internal/errors"
)

func randomAddress(t *testing.T) Address {
	t.Helper()
	public, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return Address(base58.Encode(public))
}

func TestFromSOLExactAmounts(t *testing.T) {
	cases := []struct {
		sol  float64
		want Lamports
	}{
		{0.01, 10_000_000},
		{0.1, 100_000_000},
		{1, LamportsPerSOL},
		{2.5, 2_500_000_000},
	}
	for _, tc := range cases {
		got, err := FromSOL(tc.sol)
		if err != nil {
			t.Fatalf("FromSOL(%v): %v", tc.sol, err)
		}
		if got != tc.want {
			t.Fatalf("FromSOL(%v) = %d, want %d", tc.sol, got, tc.want)
		}
	}
}

func TestFromSOLRejectsFractionalLamports(t *testing.T) {
	for _, sol := range []float64{0.0000000005, 1e-10, -0.01} {
		if _, err := FromSOL(sol); err == nil {
			t.Fatalf("FromSOL(%v) 应当失败", sol)
		} else if xerrors.CodeOf(err) != CodeInvalidAmount {
			t.Fatalf("unexpected code: %v", xerrors.CodeOf(err))
		}
	}
}

func TestParseAddress(t *testing.T) {
	addr := randomAddress(t)
	parsed, err := ParseAddress(string(addr))
	if err != nil {
		t.Fatalf("parse address: %v", err)
	}
	if parsed != addr {
		t.Fatalf("parsed = %s, want %s", parsed, addr)
	}

	if _, err := ParseAddress("not-base58-!!"); err == nil {
		t.Fatalf("非法编码应当被拒绝")
	}
	if _, err := ParseAddress(base58.Encode([]byte("short"))); err == nil {
		t.Fatalf("长度不足 32 字节应当被拒绝")
	}
}

func TestInvalidAmountIsRegistered(t *testing.T) {
	err := xerrors.New(CodeInvalidAmount, "")
	var typed *xerrors.Error
	if !errors.As(err, &typed) {
		t.Fatalf("expected typed error")
	}
	if typed.Retryable() {
		t.Fatalf("INVALID_AMOUNT 不应可重试")
	}
}
