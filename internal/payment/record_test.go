package payment

import (
	"testing"
)

func testIntent(t *testing.T) Intent {
	t.Helper()
	intent, err := NewIntent("from-address", "to-address", 10_000_000, PurposeMessageFee)
	if err != nil {
		t.Fatalf("new intent: %v", err)
	}
	return intent
}

func TestNewIntentValidation(t *testing.T) {
	if _, err := NewIntent("", "to", 1, PurposeMessageFee); err == nil {
		t.Fatalf("空地址应当被拒绝")
	}
	if _, err := NewIntent("from", "to", 0, PurposeMessageFee); err == nil {
		t.Fatalf("零金额应当被拒绝")
	}
	if _, err := NewIntent("from", "to", 1, Purpose("tip")); err == nil {
		t.Fatalf("未知用途应当被拒绝")
	}

	first, err := NewIntent("from", "to", 1, PurposePlatformFee)
	if err != nil {
		t.Fatalf("new intent: %v", err)
	}
	second, _ := NewIntent("from", "to", 1, PurposePlatformFee)
	if first.ID == second.ID {
		t.Fatalf("意图 ID 应当唯一")
	}
}

func TestRecordAdvanceForwardOnly(t *testing.T) {
	record := newRecord(testIntent(t), "blockhash")
	if record.Status != StatusBuilt {
		t.Fatalf("初始状态应为 built")
	}

	steps := []Status{StatusSigned, StatusSubmitted, StatusConfirmed}
	for _, next := range steps {
		if err := record.Advance(next); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}

	if err := record.Advance(StatusSubmitted); err == nil {
		t.Fatalf("状态不允许回退")
	}
	if err := record.Advance(StatusConfirmed); err == nil {
		t.Fatalf("状态不允许原地踏步")
	}
}

func TestRecordTimedOutCanSettle(t *testing.T) {
	record := newRecord(testIntent(t), "blockhash")
	for _, next := range []Status{StatusSigned, StatusSubmitted, StatusTimedOut} {
		if err := record.Advance(next); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}

	// 超时是结果未知的中间态，允许对账流程推进到终态。
	if err := record.Advance(StatusConfirmed); err != nil {
		t.Fatalf("timed_out -> confirmed: %v", err)
	}
	if !record.Status.Terminal() {
		t.Fatalf("confirmed 应为终态")
	}

	failed := newRecord(testIntent(t), "blockhash")
	for _, next := range []Status{StatusSigned, StatusSubmitted, StatusTimedOut, StatusFailed} {
		if err := failed.Advance(next); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
}
