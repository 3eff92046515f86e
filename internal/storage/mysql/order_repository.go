package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"DexAI-Chain/internal/bridge"
)

// OrderRepository 抽象桥接订单历史的持久化接口。
type OrderRepository interface {
	RecordOrder(ctx context.Context, order *bridge.OrderRecord) error
	ListLatest(ctx context.Context, limit int) ([]bridge.OrderRecord, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]bridge.OrderRecord, error)
}

// SQLOrderRepository 使用 MySQL 存储桥接订单历史。
type SQLOrderRepository struct {
	db *sql.DB
}

// NewSQLOrderRepository 创建连接池并执行数据库迁移。
func NewSQLOrderRepository(ctx context.Context, cfg Config) (*SQLOrderRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLOrderRepository{db: db}, nil
}

// RecordOrder 将一条已提交的订单写入 MySQL。
func (s *SQLOrderRepository) RecordOrder(ctx context.Context, order *bridge.OrderRecord) error {
	const stmt = `INSERT INTO bridge_orders
        (id, session_id, source_chain, destination_chain, give_token, take_token,
         give_amount, take_amount, amount_usd, sender, recipient, tx_hash, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		order.ID,
		order.SessionID,
		order.SourceChain,
		order.DestinationChain,
		order.GiveToken,
		order.TakeToken,
		order.GiveAmount,
		order.TakeAmount,
		order.AmountUSD,
		order.Sender,
		order.Recipient,
		order.TxHash,
		order.CreatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("写入订单记录失败: %w", err)
	}
	return nil
}

// ListLatest 查询最近的若干条订单记录。
func (s *SQLOrderRepository) ListLatest(ctx context.Context, limit int) ([]bridge.OrderRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, `SELECT id, session_id, source_chain, destination_chain, give_token, take_token,
        give_amount, take_amount, amount_usd, sender, recipient, tx_hash, created_at
        FROM bridge_orders ORDER BY created_at DESC LIMIT ?`, limit)
}

// ListBySession 查询某个会话提交过的订单。
func (s *SQLOrderRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]bridge.OrderRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, `SELECT id, session_id, source_chain, destination_chain, give_token, take_token,
        give_amount, take_amount, amount_usd, sender, recipient, tx_hash, created_at
        FROM bridge_orders WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`, sessionID, limit)
}

func (s *SQLOrderRepository) query(ctx context.Context, stmt string, args ...any) ([]bridge.OrderRecord, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("查询订单记录失败: %w", err)
	}
	defer rows.Close()

	var records []bridge.OrderRecord
	for rows.Next() {
		var record bridge.OrderRecord
		var createdAt int64
		if err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.SourceChain,
			&record.DestinationChain,
			&record.GiveToken,
			&record.TakeToken,
			&record.GiveAmount,
			&record.TakeAmount,
			&record.AmountUSD,
			&record.Sender,
			&record.Recipient,
			&record.TxHash,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("解析订单记录失败: %w", err)
		}
		record.CreatedAt = time.Unix(createdAt, 0).UTC()
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历订单记录失败: %w", err)
	}

	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLOrderRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
