// Package sem 提供内核使用的计数信号量
//
// 语义与经典的 P/V 一致：Post 使计数加一并唤醒一个等待者，Wait 阻塞直到计数大于零后减一。
// Post 可以累积，先 Post 后 Wait 不会阻塞。
package sem

import (
	"fmt"
	"sync"
)

// Semaphore 是一个从指定初值开始的计数信号量
type Semaphore struct {
	name  string
	mu    sync.Mutex
	cond  *sync.Cond
	count uint
}

// New 创建一个名为 name、初始计数为 initial 的信号量
func New(name string, initial uint) *Semaphore {
	s := &Semaphore{name: name, count: initial}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Post 计数加一并唤醒一个等待者 (V 操作)
// Post 之前的所有写入对从对应 Wait 返回的一方可见
func (s *Semaphore) Post() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Signal()
}

// Wait 阻塞直到计数大于零，然后计数减一 (P 操作)
// 没有超时也不可取消
func (s *Semaphore) Wait() {
	s.mu.Lock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
	s.mu.Unlock()
}

// TryWait 在计数大于零时减一并返回 true，否则立即返回 false
func (s *Semaphore) TryWait() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return false
	}
	s.count--
	return true
}

// Count 返回当前计数，仅用于调试输出
func (s *Semaphore) Count() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// String 实现 Stringer 接口
func (s *Semaphore) String() string {
	return fmt.Sprintf("Semaphore[%s:%d]", s.name, s.Count())
}
