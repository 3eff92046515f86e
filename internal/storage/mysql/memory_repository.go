package mysql

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"DexAI-Chain/internal/bridge"
)

// MemoryOrderRepository 使用本地 JSON 文件模拟 MySQL 的效果，方便迭代开发。
type MemoryOrderRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []bridge.OrderRecord
}

// NewMemoryOrderRepository 创建一个内存订单仓库。
func NewMemoryOrderRepository(dataDir string) (*MemoryOrderRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	path := filepath.Join(dataDir, "orders.log")
	repo := &MemoryOrderRepository{dataFile: path}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// RecordOrder 以追加写的方式记录订单。
func (m *MemoryOrderRepository) RecordOrder(_ context.Context, order *bridge.OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开订单日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("序列化订单记录失败: %w", err)
	}

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入订单日志失败: %w", err)
	}

	m.records = append([]bridge.OrderRecord{*order}, m.records...)
	if len(m.records) > 512 {
		m.records = m.records[:512]
	}
	return nil
}

// ListLatest 返回最近的订单记录，按时间倒序排列。
func (m *MemoryOrderRepository) ListLatest(_ context.Context, limit int) ([]bridge.OrderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}

	results := make([]bridge.OrderRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

// ListBySession 返回某个会话的订单记录。
func (m *MemoryOrderRepository) ListBySession(_ context.Context, sessionID string, limit int) ([]bridge.OrderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = len(m.records)
	}
	var results []bridge.OrderRecord
	for _, record := range m.records {
		if record.SessionID != sessionID {
			continue
		}
		results = append(results, record)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (m *MemoryOrderRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取订单日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []bridge.OrderRecord
	for scanner.Scan() {
		var record bridge.OrderRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]bridge.OrderRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析订单日志失败: %w", err)
	}

	if len(restored) > 512 {
		restored = restored[:512]
	}
	if len(restored) > 0 {
		m.records = restored
	}
	return nil
}
