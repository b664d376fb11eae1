package logger

import (
	"bytes"
	"sync"
)

// DefaultRingLines 环形缓冲区默认容量
const DefaultRingLines = 50

// RingBuffer 保存最近若干条日志行，供管理面板读取和实时推送。
// 实现 zapcore.WriteSyncer，可直接作为日志输出目标。
type RingBuffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool

	subs map[chan string]struct{}
}

// NewRingBuffer 创建环形日志缓冲区
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultRingLines
	}
	return &RingBuffer{
		lines: make([]string, capacity),
		subs:  make(map[chan string]struct{}),
	}
}

// Write 实现io.Writer，按行写入缓冲区
func (r *RingBuffer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, raw := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(raw) == 0 {
			continue
		}
		line := string(raw)
		r.lines[r.next] = line
		r.next = (r.next + 1) % len(r.lines)
		if r.next == 0 {
			r.full = true
		}

		// 推送给订阅者，订阅者阻塞时丢弃该行
		for ch := range r.subs {
			select {
			case ch <- line:
			default:
			}
		}
	}
	return len(p), nil
}

// Sync 实现zapcore.WriteSyncer
func (r *RingBuffer) Sync() error { return nil }

// Lines 按时间顺序返回缓冲区内容
func (r *RingBuffer) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	if r.full {
		out = append(out, r.lines[r.next:]...)
	}
	out = append(out, r.lines[:r.next]...)
	return out
}

// Subscribe 订阅后续日志行
func (r *RingBuffer) Subscribe() chan string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan string, 64)
	r.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe 取消订阅
func (r *RingBuffer) Unsubscribe(ch chan string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[ch]; ok {
		delete(r.subs, ch)
		close(ch)
	}
}
