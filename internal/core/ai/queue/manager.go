// Package queue 限制同時進行的 AI 生成數量
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"ai-chef/internal/infrastructure/config"
	"ai-chef/internal/pkg/common"

	"go.uber.org/zap"
)

// ErrClosed 隊列已關閉
var ErrClosed = errors.New("queue manager is closed")

// Status 隊列狀態
type Status struct {
	QueueLength    int   `json:"queue_length"`
	Active         int   `json:"active"`
	ProcessedCount int64 `json:"processed_count"`
	MaxQueueSize   int   `json:"max_queue_size"`
	Workers        int   `json:"workers"`
}

// Manager 隊列管理器：最多 Workers 個生成同時執行，最多 MaxSize 個請求等待
type Manager struct {
	workers   int
	maxSize   int
	slots     chan struct{}
	waiting   atomic.Int64
	processed atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager 創建新的隊列管理器
func NewManager(cfg config.QueueConfig) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		workers: workers,
		maxSize: cfg.MaxSize,
		slots:   make(chan struct{}, workers),
		done:    make(chan struct{}),
	}
}

// Acquire 取得一個執行名額，回傳的 release 必須呼叫一次
// 等待人數已達 MaxSize 時回傳 common.ErrQueueFull
func (m *Manager) Acquire(ctx context.Context) (func(), error) {
	select {
	case <-m.done:
		return nil, ErrClosed
	default:
	}

	select {
	case m.slots <- struct{}{}:
		return m.releaseFunc(), nil
	default:
	}

	if n := m.waiting.Add(1); m.maxSize >= 0 && n > int64(m.maxSize) {
		m.waiting.Add(-1)
		common.LogWarn("生成佇列已滿",
			zap.Int("max_queue_size", m.maxSize),
			zap.Int("workers", m.workers),
		)
		return nil, common.ErrQueueFull
	}
	defer m.waiting.Add(-1)

	common.LogDebug("Request enqueued",
		zap.Int64("queue_length", m.waiting.Load()),
		zap.Int("max_queue_size", m.maxSize),
	)

	select {
	case m.slots <- struct{}{}:
		return m.releaseFunc(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		return nil, ErrClosed
	}
}

func (m *Manager) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-m.slots
			m.processed.Add(1)
		})
	}
}

// GetQueueStatus 獲取隊列狀態
func (m *Manager) GetQueueStatus() *Status {
	return &Status{
		QueueLength:    int(m.waiting.Load()),
		Active:         len(m.slots),
		ProcessedCount: m.processed.Load(),
		MaxQueueSize:   m.maxSize,
		Workers:        m.workers,
	}
}

// Close 關閉隊列管理器，等待中的請求會收到 ErrClosed
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}
