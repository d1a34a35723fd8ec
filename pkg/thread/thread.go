// Package thread 提供执行单元的创建与终止
//
// 每个执行单元对应一个 goroutine。调度 (把 goroutine 复用到硬件线程上) 交给 Go 运行时。
package thread

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Scheduler 创建执行单元并记录仍在运行的单元数
type Scheduler struct {
	// MaxUnits 限制同时存活的执行单元数，0 表示不限制
	MaxUnits int64

	live atomic.Int64
	wg   sync.WaitGroup
}

// Spawn 创建一个新的执行单元并在其中运行 entry
// 超过 MaxUnits 时返回 ENOMEM，entry 不会被执行
func (s *Scheduler) Spawn(name string, entry func()) error {
	n := s.live.Add(1)
	if s.MaxUnits > 0 && n > s.MaxUnits {
		s.live.Add(-1)
		return unix.ENOMEM
	}
	s.wg.Add(1)
	go func() {
		// Exit 通过 runtime.Goexit 结束单元，defer 依然会执行
		defer s.wg.Done()
		defer s.live.Add(-1)
		entry()
	}()
	return nil
}

// Exit 永久结束当前执行单元，不会返回
func (s *Scheduler) Exit() {
	runtime.Goexit()
}

// Live 返回仍在运行的执行单元数
func (s *Scheduler) Live() int64 {
	return s.live.Load()
}

// Wait 等待所有由 Spawn 创建的执行单元结束
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
