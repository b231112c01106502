package payment

import (
	"time"

	"AgentPay-Chain/internal/chain"
	xerrors "AgentPay-Chain/internal/errors"
)

// Status 表示一笔转账在生命周期中的状态。只允许前向迁移。
type Status string

const (
	StatusBuilt     Status = "built"
	StatusSigned    Status = "signed"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// statusRank 定义状态的先后次序。TimedOut 是结果未知的中间态，
// 允许被稍后的对账流程推进到 Confirmed 或 Failed。
var statusRank = map[Status]int{
	StatusBuilt:     0,
	StatusSigned:    1,
	StatusSubmitted: 2,
	StatusTimedOut:  3,
	StatusConfirmed: 4,
	StatusFailed:    4,
}

// Terminal 判断状态是否为确定的终态。
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Record 跟踪一笔转账从构造到终态的全过程。
type Record struct {
	Intent    Intent          `json:"intent"`
	Blockhash chain.Blockhash `json:"blockhash"`
	Signature chain.Signature `json:"signature,omitempty"`
	Status    Status          `json:"status"`
	UpdatedAt int64           `json:"updated_at"`
}

// newRecord 创建处于 Built 状态的记录。
func newRecord(intent Intent, blockhash chain.Blockhash) *Record {
	return &Record{
		Intent:    intent,
		Blockhash: blockhash,
		Status:    StatusBuilt,
		UpdatedAt: time.Now().Unix(),
	}
}

// Advance 将记录推进到下一个状态。禁止回退与原地踏步。
func (r *Record) Advance(next Status) error {
	from, ok := statusRank[r.Status]
	if !ok {
		return xerrors.New(xerrors.CodeConflict, "记录当前状态非法: "+string(r.Status))
	}
	to, ok := statusRank[next]
	if !ok {
		return xerrors.New(xerrors.CodeConflict, "目标状态非法: "+string(next))
	}
	if to <= from {
		return xerrors.New(xerrors.CodeConflict,
			"状态只能前向迁移: "+string(r.Status)+" -> "+string(next))
	}
	r.Status = next
	r.UpdatedAt = time.Now().Unix()
	return nil
}
