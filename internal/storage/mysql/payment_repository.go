package mysql

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PaymentRecord 表示一笔转账在台账中的落库结构。
type PaymentRecord struct {
	IntentID  string `json:"intent_id"`
	Purpose   string `json:"purpose"`
	From      string `json:"from"`
	To        string `json:"to"`
	Lamports  uint64 `json:"lamports"`
	Blockhash string `json:"blockhash"`
	Signature string `json:"signature,omitempty"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// PaymentRepository 抽象支付台账的持久化接口。台账是追加为主的
// 支付流水，对账流程会回填超时交易的最终状态。
type PaymentRepository interface {
	Save(ctx context.Context, record PaymentRecord) error
	ListLatest(ctx context.Context, limit int) ([]PaymentRecord, error)
	UpdateStatus(ctx context.Context, signature, status string) error
}

// ErrUnsupportedDriver 表示配置了未知的存储驱动。
var ErrUnsupportedDriver = errors.New("暂不支持的存储驱动")

// MemoryPaymentRepository 使用本地 JSON 行文件模拟 MySQL 的效果，方便迭代开发。
type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []PaymentRecord
}

const memoryRetention = 512

// NewMemoryPaymentRepository 创建一个内存支付台账。
func NewMemoryPaymentRepository(dataDir string) (*MemoryPaymentRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &MemoryPaymentRepository{dataFile: filepath.Join(dataDir, "payments.log")}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录一笔转账。
func (m *MemoryPaymentRepository) Save(_ context.Context, record PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.appendToDisk(record); err != nil {
		return err
	}

	m.records = append([]PaymentRecord{record}, m.records...)
	if len(m.records) > memoryRetention {
		m.records = m.records[:memoryRetention]
	}
	return nil
}

// ListLatest 返回最近的支付记录，按时间倒序排列。
func (m *MemoryPaymentRepository) ListLatest(_ context.Context, limit int) ([]PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]PaymentRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

// UpdateStatus 按签名回填一笔转账的最终状态。
func (m *MemoryPaymentRepository) UpdateStatus(_ context.Context, signature, status string) error {
	if signature == "" {
		return errors.New("签名不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	updated := false
	for i := range m.records {
		if m.records[i].Signature == signature {
			m.records[i].Status = status
			updated = true
			break
		}
	}
	if !updated {
		return fmt.Errorf("签名 %s 不在台账中", signature)
	}
	return m.rewriteDisk()
}

func (m *MemoryPaymentRepository) appendToDisk(record PaymentRecord) error {
	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开支付台账失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化支付记录失败: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入支付台账失败: %w", err)
	}
	return nil
}

func (m *MemoryPaymentRepository) rewriteDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("重写支付台账失败: %w", err)
	}
	defer file.Close()

	for i := len(m.records) - 1; i >= 0; i-- {
		encoded, err := json.Marshal(m.records[i])
		if err != nil {
			return fmt.Errorf("序列化支付记录失败: %w", err)
		}
		if _, err := file.Write(append(encoded, '\n')); err != nil {
			return fmt.Errorf("写入支付台账失败: %w", err)
		}
	}
	return nil
}

func (m *MemoryPaymentRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取支付台账失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []PaymentRecord
	for scanner.Scan() {
		var record PaymentRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]PaymentRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析支付台账失败: %w", err)
	}

	if len(restored) > memoryRetention {
		restored = restored[:memoryRetention]
	}
	if len(restored) > 0 {
		m.records = restored
	}
	return nil
}
