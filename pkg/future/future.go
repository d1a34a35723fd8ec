// Package future 提供建立在计数信号量之上的单次赋值 future
//
// Set 只生效一次：写入值，标记完成，再 Post 一次。每个从 Wait 返回的等待者都会把信号量重新 Post 一次，
// 因此任意数量的等待者 (包括迟到的) 都能观察到同一个值而不会死锁。
// Done 和 TryGet 只读取完成标记，不会拿走信号量。
package future

import (
	"sync/atomic"

	"github.com/zqzqsb/kernel/pkg/sem"
)

// Future 保存一个只能被赋值一次的 T
type Future[T any] struct {
	set   atomic.Bool // Set 已被调用
	done  atomic.Bool // value 已写入
	value T
	sig   *sem.Semaphore
}

// New 创建一个尚未赋值的 Future
func New[T any](name string) *Future[T] {
	return &Future[T]{sig: sem.New(name, 0)}
}

// Set 写入值并唤醒等待者
// 返回 false 表示值已经被设置过，本次调用不产生任何效果
func (f *Future[T]) Set(v T) bool {
	if !f.set.CompareAndSwap(false, true) {
		return false
	}
	f.value = v
	f.done.Store(true)
	f.sig.Post()
	return true
}

// Wait 阻塞直到值被设置，然后返回该值
func (f *Future[T]) Wait() T {
	f.sig.Wait()
	// 把信号交还给下一个等待者
	f.sig.Post()
	return f.value
}

// TryGet 不阻塞地读取，值尚未设置时 ok 为 false
func (f *Future[T]) TryGet() (v T, ok bool) {
	if !f.done.Load() {
		return v, false
	}
	return f.value, true
}

// Done 报告值是否已经可以读取
func (f *Future[T]) Done() bool {
	return f.done.Load()
}
