package chain

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
)

func testBlockhash(t *testing.T) Blockhash {
	t.Helper()
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return Blockhash(base58.Encode(raw))
}

func TestBuildTransferMessageLayout(t *testing.T) {
	from := randomAddress(t)
	to := randomAddress(t)
	blockhash := testBlockhash(t)

	msg, err := BuildTransferMessage(TransferParams{
		From:      from,
		To:        to,
		Amount:    10_000_000,
		Blockhash: blockhash,
	})
	if err != nil {
		t.Fatalf("build message: %v", err)
	}

	// 报文头。
	if msg[0] != 1 || msg[1] != 0 || msg[2] != 1 {
		t.Fatalf("unexpected header: %v", msg[:3])
	}
	// 账户表长度。
	if msg[3] != 3 {
		t.Fatalf("expected 3 accounts, got %d", msg[3])
	}

	fromBytes, _ := from.Bytes()
	toBytes, _ := to.Bytes()
	if !bytes.Equal(msg[4:36], fromBytes) {
		t.Fatalf("发送方地址不在账户表第一位")
	}
	if !bytes.Equal(msg[36:68], toBytes) {
		t.Fatalf("接收方地址不在账户表第二位")
	}
	if !bytes.Equal(msg[68:100], make([]byte, 32)) {
		t.Fatalf("系统程序地址应为 32 个零字节")
	}

	blockhashBytes, _ := base58.Decode(string(blockhash))
	if !bytes.Equal(msg[100:132], blockhashBytes) {
		t.Fatalf("blockhash 不在预期位置")
	}

	// 指令区：1 条指令，程序索引 2，账户索引 [0,1]。
	if msg[132] != 1 || msg[133] != 2 || msg[134] != 2 || msg[135] != 0 || msg[136] != 1 {
		t.Fatalf("unexpected instruction prefix: %v", msg[132:137])
	}
	// 指令数据：u32 转账编号 + u64 金额，小端。
	if msg[137] != 12 {
		t.Fatalf("expected 12-byte data, got %d", msg[137])
	}
	data := msg[138:150]
	if binary.LittleEndian.Uint32(data[0:4]) != 2 {
		t.Fatalf("unexpected instruction index")
	}
	if binary.LittleEndian.Uint64(data[4:12]) != 10_000_000 {
		t.Fatalf("unexpected lamports")
	}
	if len(msg) != 150 {
		t.Fatalf("unexpected message length %d", len(msg))
	}
}

func TestBuildTransferMessageRejectsZeroAmount(t *testing.T) {
	_, err := BuildTransferMessage(TransferParams{
		From:      randomAddress(t),
		To:        randomAddress(t),
		Amount:    0,
		Blockhash: testBlockhash(t),
	})
	if err == nil {
		t.Fatalf("零金额应当被拒绝")
	}
}

func TestEncodeSignedTransaction(t *testing.T) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	msg, err := BuildTransferMessage(TransferParams{
		From:      Address(base58.Encode(public)),
		To:        randomAddress(t),
		Amount:    1,
		Blockhash: testBlockhash(t),
	})
	if err != nil {
		t.Fatalf("build message: %v", err)
	}

	signature := ed25519.Sign(private, msg)
	tx, err := EncodeSignedTransaction(signature, msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if tx[0] != 1 {
		t.Fatalf("expected one signature, got %d", tx[0])
	}
	if !bytes.Equal(tx[1:65], signature) {
		t.Fatalf("签名未按原样写入")
	}
	if !bytes.Equal(tx[65:], msg) {
		t.Fatalf("消息未按原样写入")
	}
	if !ed25519.Verify(public, tx[65:], tx[1:65]) {
		t.Fatalf("签名验证失败")
	}

	if _, err := EncodeSignedTransaction(signature[:10], msg); err == nil {
		t.Fatalf("签名长度非法应当被拒绝")
	}
}

func TestAppendShortVecLen(t *testing.T) {
	cases := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0}},
		{1, []byte{1}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xac, 0x02}},
	}
	for _, tc := range cases {
		got := appendShortVecLen(nil, tc.n)
		if !bytes.Equal(got, tc.want) {
			t.Fatalf("shortvec(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
}
