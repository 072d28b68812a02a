package delivery

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/mr-karan/slawatch/pkg/models"
)

// retryItem is a delivery waiting for its next attempt.
type retryItem struct {
	delivery models.Delivery
	message  Message
	index    int
}

type retryHeap []*retryItem

func (h retryHeap) Len() int { return len(h) }
func (h retryHeap) Less(i, j int) bool {
	return h[i].delivery.NextAttempt.Before(*h[j].delivery.NextAttempt)
}
func (h retryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *retryHeap) Push(x any) {
	item := x.(*retryItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// RetryQueue orders pending retries by next attempt time.
type RetryQueue struct {
	mu    sync.Mutex
	items retryHeap
}

// NewRetryQueue returns an empty queue.
func NewRetryQueue() *RetryQueue {
	return &RetryQueue{}
}

// Push enqueues d. d.NextAttempt must be set.
func (q *RetryQueue) Push(d models.Delivery, msg Message) {
	if d.NextAttempt == nil {
		return
	}
	q.mu.Lock()
	heap.Push(&q.items, &retryItem{delivery: d, message: msg})
	q.mu.Unlock()
}

// PopDue removes and returns every entry whose next attempt is at or before now.
func (q *RetryQueue) PopDue(now time.Time) []retryItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []retryItem
	for q.items.Len() > 0 && !q.items[0].delivery.NextAttempt.After(now) {
		item := heap.Pop(&q.items).(*retryItem)
		due = append(due, *item)
	}
	return due
}

// Len returns the number of queued retries.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Contains reports whether a delivery with id is queued.
func (q *RetryQueue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.delivery.ID == id {
			return true
		}
	}
	return false
}

// Snapshot returns the queued deliveries ordered by next attempt.
func (q *RetryQueue) Snapshot() []models.Delivery {
	q.mu.Lock()
	out := make([]models.Delivery, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, item.delivery)
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].NextAttempt.Before(*out[j].NextAttempt)
	})
	return out
}
