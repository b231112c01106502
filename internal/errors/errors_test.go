package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewFallsBackToRegisteredMessage(t *testing.T) {
	err := New(CodeNotFound, "")
	if err.Message() != "resource not found" {
		t.Fatalf("message = %q", err.Message())
	}
	if !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Fatalf("错误文本应包含错误码: %s", err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeRPCFailure, cause, "查询余额失败")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("errors.Is 应能找到底层错误")
	}
	if CodeOf(err) != CodeRPCFailure {
		t.Fatalf("code = %s", CodeOf(err))
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("错误文本应包含底层原因: %s", err.Error())
	}
}

func TestCodeOfSeesThroughWrapping(t *testing.T) {
	inner := New(CodeConflict, "会话正忙")
	outer := fmt.Errorf("handle request: %w", inner)
	if CodeOf(outer) != CodeConflict {
		t.Fatalf("code = %s", CodeOf(outer))
	}
	if CodeOf(stdErrors.New("plain")) != CodeUnknown {
		t.Fatalf("非统一错误应映射为 UNKNOWN")
	}
}

func TestIsComparesByCode(t *testing.T) {
	a := New(CodeTimeout, "等待超时")
	b := New(CodeTimeout, "另一处超时")
	if !stdErrors.Is(a, b) {
		t.Fatalf("同码错误应视为相等")
	}
	if stdErrors.Is(a, New(CodeConflict, "")) {
		t.Fatalf("不同码错误不应相等")
	}
}

func TestRegisteredAttributesDriveBehavior(t *testing.T) {
	const code Code = "TEST_FLAKY"
	Register(code, Attributes{
		Message:   "flaky test failure",
		Severity:  SeverityWarning,
		Retryable: true,
		Alert:     true,
	})

	err := New(code, "")
	if !RetryableError(err) || !AlertRequired(err) {
		t.Fatalf("注册属性未生效")
	}
	if err.Severity() != SeverityWarning {
		t.Fatalf("severity = %s", err.Severity())
	}

	// 逐实例覆盖优先于注册默认值。
	overridden := New(code, "", WithRetryable(false), WithAlert(false), WithSeverity(SeverityInfo))
	if RetryableError(overridden) || AlertRequired(overridden) || overridden.Severity() != SeverityInfo {
		t.Fatalf("覆盖属性未生效")
	}
}

func TestMetadataCopy(t *testing.T) {
	err := New(CodeInvalidArgument, "bad amount", WithMetadata("lamports", "0"))
	meta := err.Metadata()
	if meta["lamports"] != "0" {
		t.Fatalf("metadata = %v", meta)
	}
	meta["lamports"] = "mutated"
	if err.Metadata()["lamports"] != "0" {
		t.Fatalf("Metadata 应返回副本")
	}
}

func TestUnregisteredCodeFallsBackToUnknown(t *testing.T) {
	attr := AttributesOf(Code("NEVER_REGISTERED"))
	if attr.Message != "unknown error" {
		t.Fatalf("attr = %+v", attr)
	}
}
