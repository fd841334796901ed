// Package interfaces 定义 go-peerview 公共接口
//
// 本文件定义 Scheduler 接口，对应 internal/core/scheduler/ 实现。
package interfaces

import "time"

// Task 调度任务
type Task func()

// Priority 立即任务的优先级
type Priority int

const (
	// PriorityNormal 普通优先级
	PriorityNormal Priority = iota
	// PriorityHigh 高优先级，先于排队中的普通任务执行
	PriorityHigh
)

// Scheduler 定义任务调度接口
//
// 每个任务带 owner 标签，CancelAll(owner) 取消该 owner 尚未执行的任务。
// 已开始执行的任务不会被中断。
type Scheduler interface {
	// Schedule 在 delay 之后执行任务
	Schedule(owner any, delay time.Duration, task Task) Handle

	// Push 立即排队执行任务
	Push(owner any, prio Priority, task Task) Handle

	// CancelAll 取消 owner 的全部待执行任务
	CancelAll(owner any)

	// Close 停止调度器，等待执行中的任务结束
	Close() error
}

// Handle 已提交任务的句柄
type Handle interface {
	// Cancel 取消任务，任务已执行或已取消时返回 false
	Cancel() bool
}
