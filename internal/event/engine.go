package event

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"kelpie/internal/logger"
)

// ErrStopStream 由 handler 返回以终止本次派发链的剩余部分，
// 不影响后续事件的处理。
var ErrStopStream = errors.New("stop event stream")

// 单次派发超过该耗时就告警，回测里通常意味着策略在 OnBar 里做了重活。
const slowDispatchWarn = 100 * time.Millisecond

// HandlerFunc 处理一个事件。ev 对链上所有 handler 可见，
// sc 是本次派发的共享草稿区。
type HandlerFunc func(ev *Event, sc *Scratch) error

// Handler 描述一条订阅。Name 是幂等注册的标识：
// 同 (Name, Type, Topic) 的二次注册是空操作。
type Handler struct {
	Name     string
	Priority int
	Fn       HandlerFunc
}

type regRequest struct {
	add      bool
	typ      Type
	topic    string
	name     string
	priority int
	fn       HandlerFunc
}

// Engine 拥有事件队列与订阅表，在单独的 goroutine 上
// 顺序派发事件。生产者可以在任意 goroutine 入队，
// 订阅表只在调度 goroutine 上修改。
type Engine struct {
	queue   *Queue
	streams *streamManager

	running atomic.Bool
	done    chan struct{}

	mu      sync.Mutex
	cond    *sync.Cond
	pending int64
}

func NewEngine() *Engine {
	e := &Engine{
		queue:   NewQueue(),
		streams: newStreamManager(),
		done:    make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Register 订阅 (Type, Topic)。引擎启动后注册请求经由队列
// 转到调度 goroutine 执行，启动前直接写入订阅表。
func (e *Engine) Register(t Type, topic string, h Handler) {
	if h.Fn == nil {
		return
	}
	if h.Name == "" {
		h.Name = fmt.Sprintf("handler-%p", h.Fn)
	}
	if !e.running.Load() {
		e.streams.subscribe(t, topic, h.Name, h.Priority, h.Fn)
		return
	}
	e.Put(&Event{
		Type:     TypeInit,
		Priority: 0,
		Payload:  regRequest{add: true, typ: t, topic: topic, name: h.Name, priority: h.Priority, fn: h.Fn},
	})
}

// Unregister 删除指定订阅，空桶会被回收。
func (e *Engine) Unregister(t Type, topic, name string) {
	if !e.running.Load() {
		e.streams.unsubscribe(t, topic, name)
		return
	}
	e.Put(&Event{
		Type:     TypeInit,
		Priority: 0,
		Payload:  regRequest{add: false, typ: t, topic: topic, name: name},
	})
}

// Put 入队一个事件。队列已关闭时事件被丢弃且不计入 pending。
func (e *Engine) Put(ev *Event) {
	if ev == nil {
		return
	}
	e.mu.Lock()
	e.pending++
	e.mu.Unlock()
	if e.queue.Push(ev) {
		return
	}
	e.mu.Lock()
	e.pending--
	if e.pending == 0 {
		e.cond.Broadcast()
	}
	e.mu.Unlock()
}

// Run 启动调度 goroutine。重复调用是空操作。
func (e *Engine) Run() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	go e.loop()
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		ev, ok := e.queue.Pop()
		if !ok {
			return
		}
		e.dispatch(ev)
		e.mu.Lock()
		e.pending--
		if e.pending == 0 {
			e.cond.Broadcast()
		}
		e.mu.Unlock()
		if ev.Type == TypeExit {
			return
		}
	}
}

func (e *Engine) dispatch(ev *Event) {
	if ev.Type == TypeInit {
		if req, ok := ev.Payload.(regRequest); ok {
			if req.add {
				e.streams.subscribe(req.typ, req.topic, req.name, req.priority, req.fn)
			} else {
				e.streams.unsubscribe(req.typ, req.topic, req.name)
			}
			return
		}
	}
	chain := e.streams.resolve(ev.Type, ev.Topic)
	if len(chain) == 0 {
		return
	}
	sc := newScratch()
	sc.Set(ScratchStartTime, time.Now())
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[event] handler panic: type=%s topic=%q: %v", ev.Type, ev.Topic, r)
		}
		if start, ok := sc.Time(ScratchStartTime); ok {
			if cost := time.Since(start); cost > slowDispatchWarn {
				logger.Warnf("[event] %s/%q 派发耗时 %s", ev.Type, ev.Topic, cost)
			}
		}
	}()
	for _, h := range chain {
		if err := h.fn(ev, sc); err != nil {
			if errors.Is(err, ErrStopStream) {
				return
			}
			logger.Warnf("[event] handler %s 处理 %s/%q 失败: %v", h.name, ev.Type, ev.Topic, err)
		}
	}
}

// WaitIdle 阻塞直到所有已入队事件处理完毕。
// 回测主循环用它保证一根 K 线引发的级联事件全部落账后再推进。
func (e *Engine) WaitIdle() {
	e.mu.Lock()
	for e.pending > 0 {
		e.cond.Wait()
	}
	e.mu.Unlock()
}

// Stop 投递 Exit 事件请求调度循环退出。
func (e *Engine) Stop() {
	e.Put(&Event{Type: TypeExit, Priority: PriorityExit, Timestamp: time.Now()})
}

// Join 阻塞直到调度 goroutine 退出。
func (e *Engine) Join() {
	if !e.running.Load() {
		return
	}
	<-e.done
	e.queue.Close()
}
