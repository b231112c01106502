package mysql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// SQLPaymentRepository 使用真实的 MySQL 数据库存储支付台账。
type SQLPaymentRepository struct {
	db *sql.DB
}

// NewSQLPaymentRepository 创建连接池并应用数据库迁移。
func NewSQLPaymentRepository(ctx context.Context, cfg Config) (*SQLPaymentRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	repo := &SQLPaymentRepository{db: db}
	if err := repo.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Save 将支付记录写入 MySQL。
func (s *SQLPaymentRepository) Save(ctx context.Context, record PaymentRecord) error {
	const stmt = `INSERT INTO payments
        (intent_id, purpose, from_address, to_address, lamports, blockhash, signature, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.IntentID,
		record.Purpose,
		record.From,
		record.To,
		record.Lamports,
		record.Blockhash,
		record.Signature,
		record.Status,
		record.CreatedAt,
		record.UpdatedAt,
	); err != nil {
		return fmt.Errorf("写入支付台账失败: %w", err)
	}
	return nil
}

// ListLatest 查询最近的若干条支付记录。
func (s *SQLPaymentRepository) ListLatest(ctx context.Context, limit int) ([]PaymentRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT intent_id, purpose, from_address, to_address, lamports, blockhash, signature, status, created_at, updated_at
        FROM payments ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询支付记录失败: %w", err)
	}
	defer rows.Close()

	var records []PaymentRecord
	for rows.Next() {
		var record PaymentRecord
		if err := rows.Scan(&record.IntentID, &record.Purpose, &record.From, &record.To, &record.Lamports,
			&record.Blockhash, &record.Signature, &record.Status, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("解析支付记录失败: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历支付记录失败: %w", err)
	}
	return records, nil
}

// UpdateStatus 按签名回填一笔转账的最终状态。
func (s *SQLPaymentRepository) UpdateStatus(ctx context.Context, signature, status string) error {
	if signature == "" {
		return fmt.Errorf("签名不能为空")
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, updated_at = UNIX_TIMESTAMP() WHERE signature = ?`,
		status, signature)
	if err != nil {
		return fmt.Errorf("更新支付状态失败: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("签名 %s 不在台账中", signature)
	}
	return nil
}

// Close 关闭底层数据库连接。
func (s *SQLPaymentRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
