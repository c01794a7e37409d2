package telemetry

import (
	"sync"
)

// Buffer 按字节数限界的日志队列
// 超出容量时丢弃最旧的条目，保证内存有上限
type Buffer struct {
	mu        sync.Mutex
	entries   []LogEntry
	totalSize int
	maxSize   int
	dropped   uint64
}

// NewBuffer maxSize 小于等于 0 时使用 1MB
func NewBuffer(maxSize int) *Buffer {
	if maxSize <= 0 {
		maxSize = 1 << 20
	}
	return &Buffer{maxSize: maxSize}
}

// Push 追加一条日志，超长的单条会被截断
func (b *Buffer) Push(e LogEntry) {
	if len(e.Line) > b.maxSize {
		e.Line = e.Line[:b.maxSize]
	}
	size := len(e.Line)

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.totalSize+size > b.maxSize && len(b.entries) > 0 {
		b.totalSize -= len(b.entries[0].Line)
		b.entries[0] = LogEntry{}
		b.entries = b.entries[1:]
		b.dropped++
	}
	b.entries = append(b.entries, e)
	b.totalSize += size
}

// Peek 最多返回 n 条最旧的日志，不移除
func (b *Buffer) Peek(n int) []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	n = min(n, len(b.entries))
	out := make([]LogEntry, n)
	copy(out, b.entries[:n])
	return out
}

// Pop 移除最旧的 n 条
func (b *Buffer) Pop(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n = min(n, len(b.entries))
	for i := range n {
		b.totalSize -= len(b.entries[i].Line)
		b.entries[i] = LogEntry{}
	}
	b.entries = b.entries[n:]
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Buffer) SizeBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalSize
}

// Dropped 因容量不足丢弃的条数
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
