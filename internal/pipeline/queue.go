package pipeline

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO of transfer blocks between one producer and one
// consumer. An empty block is the end-of-stream sentinel.
type Queue struct {
	mu        sync.Mutex
	blocks    [][]byte
	bytes     int64
	highWater int64
	notify    chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends a block without blocking. Pass nil or an empty slice to
// signal end of stream.
func (q *Queue) Push(block []byte) {
	q.mu.Lock()
	q.blocks = append(q.blocks, block)
	q.bytes += int64(len(block))
	if q.bytes > q.highWater {
		q.highWater = q.bytes
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the oldest block, waiting while the queue is empty.
func (q *Queue) Pop(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.blocks) > 0 {
			block := q.blocks[0]
			q.blocks[0] = nil
			q.blocks = q.blocks[1:]
			if len(q.blocks) == 0 {
				q.blocks = nil
			}
			q.bytes -= int64(len(block))
			q.mu.Unlock()
			return block, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len reports queued blocks, sentinel included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.blocks)
}

// Bytes reports queued payload bytes.
func (q *Queue) Bytes() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

// HighWater reports the largest queued byte count seen.
func (q *Queue) HighWater() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.highWater
}

// IsSentinel reports whether block marks end of stream.
func IsSentinel(block []byte) bool {
	return len(block) == 0
}
