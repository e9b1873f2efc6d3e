// Package queue 以固定數量的 worker 限制同時進行的 AI 呼叫
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"gut-health-kb/internal/core/ai/provider"
	"gut-health-kb/internal/pkg/common"

	"go.uber.org/zap"
)

// Request 隊列請求
type Request struct {
	Context context.Context
	Request *provider.Request
	Result  chan Result
}

// Result 處理結果
type Result struct {
	Response *provider.Response
	Error    error
}

// Status 隊列狀態
type Status struct {
	QueueLength    int   `json:"queue_length"`
	ProcessedCount int64 `json:"processed_count"`
	RejectedCount  int64 `json:"rejected_count"`
	MaxQueueSize   int   `json:"max_queue_size"`
	Workers        int   `json:"workers"`
}

// Manager 隊列管理器
type Manager struct {
	provider  provider.Provider
	queue     chan *Request
	workers   int
	processed int64
	rejected  int64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewManager 創建隊列管理器並啟動 worker
func NewManager(p provider.Provider, maxQueueSize, workers int) *Manager {
	if maxQueueSize <= 0 {
		maxQueueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}

	m := &Manager{
		provider: p,
		queue:    make(chan *Request, maxQueueSize),
		workers:  workers,
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.work()
	}
	return m
}

func (m *Manager) work() {
	defer m.wg.Done()
	for req := range m.queue {
		// 呼叫者已放棄的請求不再送出
		if err := req.Context.Err(); err != nil {
			req.Result <- Result{Error: err}
			continue
		}
		resp, err := m.provider.Generate(req.Context, req.Request)
		atomic.AddInt64(&m.processed, 1)
		req.Result <- Result{Response: resp, Error: err}
	}
}

// Enqueue 將請求加入隊列，隊列已滿時立即拒絕
func (m *Manager) Enqueue(ctx context.Context, req *provider.Request) (<-chan Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, common.ErrServiceUnavailable.WithMessage("queue manager is closed")
	}

	queueReq := &Request{
		Context: ctx,
		Request: req,
		Result:  make(chan Result, 1),
	}

	select {
	case m.queue <- queueReq:
		return queueReq.Result, nil
	default:
		atomic.AddInt64(&m.rejected, 1)
		common.LogWarn("AI 請求隊列已滿",
			zap.Int("queue_length", len(m.queue)),
			zap.Int("max_queue_size", cap(m.queue)),
		)
		return nil, common.ErrTooManyRequests.WithMessage("AI request queue is full")
	}
}

// Submit 加入隊列並等待結果
func (m *Manager) Submit(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	result, err := m.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}

	select {
	case r := <-result:
		return r.Response, r.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetQueueStatus 獲取隊列狀態
func (m *Manager) GetQueueStatus() Status {
	return Status{
		QueueLength:    len(m.queue),
		ProcessedCount: atomic.LoadInt64(&m.processed),
		RejectedCount:  atomic.LoadInt64(&m.rejected),
		MaxQueueSize:   cap(m.queue),
		Workers:        m.workers,
	}
}

// Close 停止接受請求，處理完已排隊的請求後返回
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	m.wg.Wait()
}
