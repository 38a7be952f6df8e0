package sync

import (
	gosync "sync"
	"time"
)

// queueItem is one enqueued upload. The persistent Upload row is the
// source of truth; the in-memory queue holds only ordering state.
type queueItem struct {
	uploadID    string
	localPath   string
	contentHash string
	fileSize    int64
	priority    int
	createdAt   time.Time
}

// uploadQueue is the in-memory ordering structure for a mapping's uploads.
// The worker drains it one item at a time, highest priority first, oldest
// first within a priority. Failed items are not requeued.
type uploadQueue struct {
	mu    gosync.Mutex
	items []queueItem
	wake  chan struct{}
}

func newUploadQueue() *uploadQueue {
	return &uploadQueue{wake: make(chan struct{}, 1)}
}

// push adds an item and nudges the worker.
func (q *uploadQueue) push(item queueItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop removes and returns the next item by (priority desc, createdAt asc).
func (q *uploadQueue) pop() (queueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return queueItem{}, false
	}

	best := 0
	for i := 1; i < len(q.items); i++ {
		cur, b := q.items[i], q.items[best]
		if cur.priority > b.priority ||
			(cur.priority == b.priority && cur.createdAt.Before(b.createdAt)) {
			best = i
		}
	}

	item := q.items[best]
	q.items = append(q.items[:best], q.items[best+1:]...)
	return item, true
}

// clear drops all in-memory items. Persisted Upload rows are untouched.
func (q *uploadQueue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// size returns the number of queued items.
func (q *uploadQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
