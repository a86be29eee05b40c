package event

import (
	"container/heap"
	"sync"
)

// Queue 是线程安全的优先级队列，多个 goroutine 可同时入队，
// 出队只发生在 Engine 的调度 goroutine 上。
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  eventHeap
	seq    uint64
	closed bool
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push 入队并分配 Sequence，返回是否被接收。队列关闭后拒绝入队。
func (q *Queue) Push(ev *Event) bool {
	if ev == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.seq++
	ev.Sequence = q.seq
	heap.Push(&q.items, ev)
	q.cond.Signal()
	return true
}

// Pop 阻塞直到有事件可取或队列被关闭。
func (q *Queue) Pop() (*Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	ev := heap.Pop(&q.items).(*Event)
	return ev, true
}

// TryPop 非阻塞出队。
func (q *Queue) TryPop() (*Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	ev := heap.Pop(&q.items).(*Event)
	return ev, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close 唤醒所有等待者并拒绝后续入队。
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

type eventHeap []*Event

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return Less(h[i], h[j]) }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(*Event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}
