package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"AgentPay-Chain/internal/chain"
)

// fakeCaller 按方法名返回预置的 JSON 响应。
type fakeCaller struct {
	responses map[string]string
	errs      map[string]error
	calls     []capturedCall
}

type capturedCall struct {
	method string
	args   []any
}

func (f *fakeCaller) CallContext(_ context.Context, result any, method string, args ...any) error {
	f.calls = append(f.calls, capturedCall{method: method, args: args})
	if err := f.errs[method]; err != nil {
		return err
	}
	raw, ok := f.responses[method]
	if !ok {
		return errors.New("unexpected method: " + method)
	}
	return json.Unmarshal([]byte(raw), result)
}

func TestGetBalance(t *testing.T) {
	caller := &fakeCaller{responses: map[string]string{
		"getBalance": `{"value": 123456789}`,
	}}
	client := newClientWithCaller(caller, "")

	balance, err := client.GetBalance(context.Background(), "someaddress")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 123456789 {
		t.Fatalf("balance = %d, want 123456789", balance)
	}

	call := caller.calls[0]
	if call.args[0] != "someaddress" {
		t.Fatalf("地址未传给节点: %v", call.args)
	}
	commitment, ok := call.args[1].(map[string]string)
	if !ok || commitment["commitment"] != "confirmed" {
		t.Fatalf("默认 commitment 应为 confirmed: %v", call.args[1])
	}
}

func TestGetLatestBlockhash(t *testing.T) {
	caller := &fakeCaller{responses: map[string]string{
		"getLatestBlockhash": `{"value": {"blockhash": "abc123", "lastValidBlockHeight": 99}}`,
	}}
	client := newClientWithCaller(caller, "finalized")

	blockhash, err := client.GetLatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("get blockhash: %v", err)
	}
	if blockhash != "abc123" {
		t.Fatalf("blockhash = %s", blockhash)
	}
}

func TestGetLatestBlockhashEmpty(t *testing.T) {
	caller := &fakeCaller{responses: map[string]string{
		"getLatestBlockhash": `{"value": {"blockhash": ""}}`,
	}}
	client := newClientWithCaller(caller, "")
	if _, err := client.GetLatestBlockhash(context.Background()); err == nil {
		t.Fatalf("空 blockhash 应当报错")
	}
}

func TestSubmitTransactionEncodesBase64(t *testing.T) {
	caller := &fakeCaller{responses: map[string]string{
		"sendTransaction": `"sig123"`,
	}}
	client := newClientWithCaller(caller, "")

	signed := []byte{1, 2, 3, 4}
	signature, err := client.SubmitTransaction(context.Background(), signed)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if signature != "sig123" {
		t.Fatalf("signature = %s", signature)
	}

	call := caller.calls[0]
	if call.args[0] != base64.StdEncoding.EncodeToString(signed) {
		t.Fatalf("交易字节未按 base64 编码: %v", call.args[0])
	}
	opts, ok := call.args[1].(map[string]any)
	if !ok || opts["encoding"] != "base64" {
		t.Fatalf("unexpected options: %v", call.args[1])
	}
}

func TestSubmitTransactionRejection(t *testing.T) {
	caller := &fakeCaller{
		responses: map[string]string{},
		errs:      map[string]error{"sendTransaction": errors.New("Transaction simulation failed")},
	}
	client := newClientWithCaller(caller, "")
	if _, err := client.SubmitTransaction(context.Background(), []byte{1}); err == nil {
		t.Fatalf("节点拒绝时应当返回错误")
	}
}

func TestGetConfirmationStatus(t *testing.T) {
	cases := []struct {
		name     string
		response string
		want     chain.ConfirmationStatus
	}{
		{"null entry means pending", `{"value": [null]}`, chain.StatusPending},
		{"processed is still pending", `{"value": [{"confirmationStatus": "processed"}]}`, chain.StatusPending},
		{"confirmed", `{"value": [{"confirmationStatus": "confirmed"}]}`, chain.StatusConfirmed},
		{"finalized", `{"value": [{"confirmationStatus": "finalized"}]}`, chain.StatusConfirmed},
		{"chain error means failed", `{"value": [{"confirmationStatus": "confirmed", "err": {"InstructionError": []}}]}`, chain.StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			caller := &fakeCaller{responses: map[string]string{
				"getSignatureStatuses": tc.response,
			}}
			client := newClientWithCaller(caller, "")
			status, err := client.GetConfirmationStatus(context.Background(), "sig")
			if err != nil {
				t.Fatalf("get status: %v", err)
			}
			if status != tc.want {
				t.Fatalf("status = %s, want %s", status, tc.want)
			}
		})
	}
}
