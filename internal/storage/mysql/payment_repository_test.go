package mysql

import (
	"context"
	"strconv"
	"testing"
)

func testRecord(i int) PaymentRecord {
	return PaymentRecord{
		IntentID:  "intent-" + strconv.Itoa(i),
		Purpose:   "message_fee",
		From:      "user-wallet",
		To:        "agent-wallet",
		Lamports:  10_000_000,
		Blockhash: "blockhash",
		Signature: "sig-" + strconv.Itoa(i),
		Status:    "confirmed",
		CreatedAt: int64(1_700_000_000 + i),
		UpdatedAt: int64(1_700_000_000 + i),
	}
}

func TestMemoryRepositorySaveAndList(t *testing.T) {
	repo, err := NewMemoryPaymentRepository(t.TempDir())
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := repo.Save(ctx, testRecord(i)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	records, err := repo.ListLatest(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	// 最近写入的排在最前。
	if records[0].IntentID != "intent-4" || records[2].IntentID != "intent-2" {
		t.Fatalf("排序错误: %v", records)
	}

	all, err := repo.ListLatest(ctx, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len = %d, want 5", len(all))
	}
}

func TestMemoryRepositoryUpdateStatus(t *testing.T) {
	repo, err := NewMemoryPaymentRepository(t.TempDir())
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}

	ctx := context.Background()
	record := testRecord(1)
	record.Status = "timed_out"
	if err := repo.Save(ctx, record); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := repo.UpdateStatus(ctx, "sig-1", "confirmed"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	records, _ := repo.ListLatest(ctx, 1)
	if records[0].Status != "confirmed" {
		t.Fatalf("status = %s, want confirmed", records[0].Status)
	}

	if err := repo.UpdateStatus(ctx, "", "confirmed"); err == nil {
		t.Fatalf("空签名应报错")
	}
	if err := repo.UpdateStatus(ctx, "sig-missing", "confirmed"); err == nil {
		t.Fatalf("不存在的签名应报错")
	}
}

func TestMemoryRepositoryReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo, err := NewMemoryPaymentRepository(dir)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	record := testRecord(7)
	record.Status = "timed_out"
	if err := repo.Save(ctx, record); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.UpdateStatus(ctx, "sig-7", "failed"); err != nil {
		t.Fatalf("update status: %v", err)
	}

	// 重新打开同一目录，状态回填应已持久化。
	reopened, err := NewMemoryPaymentRepository(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	records, err := reopened.ListLatest(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].Status != "failed" {
		t.Fatalf("重载后的台账不完整: %v", records)
	}
}
