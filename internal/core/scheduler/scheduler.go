// Package scheduler 实现带 owner 标签的任务调度器
//
// 延迟任务由 clock 定时器触发后进入就绪队列；立即任务直接入队。
// 就绪队列分高低两级，分发循环在拿到工作槽位后才出队，因此排队中的
// 高优先级任务总是先于普通任务执行。并发执行数由信号量限制。
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/semaphore"

	"github.com/dep2p/go-peerview/internal/util/logger"
	"github.com/dep2p/go-peerview/pkg/interfaces"
)

var log = logger.Logger("scheduler")

// 确保实现了接口
var _ interfaces.Scheduler = (*Scheduler)(nil)

// DefaultWorkers 默认并发数
const DefaultWorkers = 4

// 任务状态
const (
	statePending int32 = iota
	stateRunning
	stateDone
	stateCancelled
)

// task 一个已提交的任务
type task struct {
	s     *Scheduler
	owner any
	fn    interfaces.Task
	state atomic.Int32
	timer *clock.Timer
}

// Cancel 实现 interfaces.Handle
func (t *task) Cancel() bool {
	if !t.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	t.s.forget(t)
	return true
}

// Scheduler 任务调度器
type Scheduler struct {
	clock clock.Clock
	sem   *semaphore.Weighted

	mu     sync.Mutex
	high   []*task
	normal []*task
	owners map[any]map[*task]struct{}
	closed bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建调度器并启动分发循环
//
// workers <= 0 时使用 DefaultWorkers；clk 为 nil 时使用系统时钟。
func New(workers int, clk clock.Clock) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		clock:  clk,
		sem:    semaphore.NewWeighted(int64(workers)),
		owners: make(map[any]map[*task]struct{}),
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// Schedule 实现 interfaces.Scheduler
func (s *Scheduler) Schedule(owner any, delay time.Duration, fn interfaces.Task) interfaces.Handle {
	if delay <= 0 {
		return s.Push(owner, interfaces.PriorityNormal, fn)
	}
	t := s.track(owner, fn)
	if t.state.Load() != statePending {
		return t
	}
	timer := s.clock.AfterFunc(delay, func() { s.enqueue(t, interfaces.PriorityNormal) })
	s.mu.Lock()
	t.timer = timer
	s.mu.Unlock()
	return t
}

// Push 实现 interfaces.Scheduler
func (s *Scheduler) Push(owner any, prio interfaces.Priority, fn interfaces.Task) interfaces.Handle {
	t := s.track(owner, fn)
	s.enqueue(t, prio)
	return t
}

// CancelAll 实现 interfaces.Scheduler
func (s *Scheduler) CancelAll(owner any) {
	s.mu.Lock()
	tasks := s.owners[owner]
	delete(s.owners, owner)
	s.mu.Unlock()

	for t := range tasks {
		if t.state.CompareAndSwap(statePending, stateCancelled) {
			s.stopTimer(t)
		}
	}
}

// Close 实现 interfaces.Scheduler
//
// 取消全部待执行任务并等待执行中的任务结束。
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var all []*task
	for _, tasks := range s.owners {
		for t := range tasks {
			all = append(all, t)
		}
	}
	s.owners = make(map[any]map[*task]struct{})
	s.high, s.normal = nil, nil
	s.mu.Unlock()

	for _, t := range all {
		if t.state.CompareAndSwap(statePending, stateCancelled) {
			s.stopTimer(t)
		}
	}
	s.cancel()
	s.wg.Wait()
	return nil
}

// Pending 返回尚未执行的任务数
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tasks := range s.owners {
		n += len(tasks)
	}
	return n
}

// ============================================================================
//                              内部实现
// ============================================================================

func (s *Scheduler) track(owner any, fn interfaces.Task) *task {
	t := &task{s: s, owner: owner, fn: fn}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		t.state.Store(stateCancelled)
		return t
	}
	set, ok := s.owners[owner]
	if !ok {
		set = make(map[*task]struct{})
		s.owners[owner] = set
	}
	set[t] = struct{}{}
	return t
}

func (s *Scheduler) forget(t *task) {
	s.stopTimer(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.owners[t.owner]; ok {
		delete(set, t)
		if len(set) == 0 {
			delete(s.owners, t.owner)
		}
	}
}

func (s *Scheduler) stopTimer(t *task) {
	s.mu.Lock()
	timer := t.timer
	s.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func (s *Scheduler) enqueue(t *task, prio interfaces.Priority) {
	if t.state.Load() != statePending {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if prio == interfaces.PriorityHigh {
		s.high = append(s.high, t)
	} else {
		s.normal = append(s.normal, t)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pop 取出下一个仍待执行的任务
func (s *Scheduler) pop() *task {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range []*[]*task{&s.high, &s.normal} {
		for len(*q) > 0 {
			t := (*q)[0]
			(*q)[0] = nil
			*q = (*q)[1:]
			if t.state.Load() == statePending {
				return t
			}
		}
	}
	return nil
}

func (s *Scheduler) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.high)+len(s.normal) > 0
}

// loop 分发循环
func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}

		for s.ready() {
			if err := s.sem.Acquire(s.ctx, 1); err != nil {
				return
			}
			t := s.pop()
			if t == nil {
				s.sem.Release(1)
				break
			}
			s.wg.Add(1)
			go s.run(t)
		}
	}
}

func (s *Scheduler) run(t *task) {
	defer s.wg.Done()
	defer s.sem.Release(1)

	if !t.state.CompareAndSwap(statePending, stateRunning) {
		return
	}
	defer func() {
		t.state.Store(stateDone)
		s.forget(t)
		if r := recover(); r != nil {
			log.Error("任务执行 panic", "recover", r)
		}
	}()
	t.fn()
}
