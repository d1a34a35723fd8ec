// Package spl 模拟执行单元的中断优先级 (set priority level)
//
// 每个执行单元持有一个 Level。内核入口要求处于屏蔽状态 (High)，
// 阻塞等待前可以临时降到 Low，返回用户态前必须通过 Splx 恢复。
package spl

import "sync/atomic"

// 中断优先级
const (
	Low  int32 = 0 // 中断打开，用户态运行时的级别
	High int32 = 1 // 中断屏蔽，内核处理系统调用时的级别
)

// Level 是单个执行单元的中断优先级
type Level struct {
	v atomic.Int32
}

// Raise 屏蔽中断并返回之前的级别 (splhigh)
func (l *Level) Raise() int32 {
	return l.v.Swap(High)
}

// Lower 打开中断并返回之前的级别 (spl0)
func (l *Level) Lower() int32 {
	return l.v.Swap(Low)
}

// Splx 恢复到之前保存的级别
func (l *Level) Splx(prev int32) {
	l.v.Store(prev)
}

// Masked 报告当前是否处于屏蔽状态
func (l *Level) Masked() bool {
	return l.v.Load() != Low
}
