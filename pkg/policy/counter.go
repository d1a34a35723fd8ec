package policy

import "sync"

/*
SyscallCounter 为每个系统调用定义倒计数
用来限制一次运行中某些调用的总次数，比如 fork 的次数。
所有进程共享同一个计数器，因此需要加锁。
*/
type SyscallCounter struct {
	mu sync.Mutex
	m  map[string]int
}

// NewSyscallCounter 创建新的 SyscallCounter
func NewSyscallCounter() *SyscallCounter {
	return &SyscallCounter{m: make(map[string]int)}
}

// Add 向 SyscallCounter 添加单个计数器
func (s *SyscallCounter) Add(name string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[name] = count
}

// AddRange 向 SyscallCounter 添加多个计数器
func (s *SyscallCounter) AddRange(m map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range m {
		s.m[k] = v
	}
}

// Check 返回 inside, allow
// inside: 表示系统调用是否在计数器中
// allow: 表示计数是否还有剩余，有剩余时消耗一次
func (s *SyscallCounter) Check(syscallName string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, o := s.m[syscallName]
	if !o {
		return false, true
	}
	if n <= 0 {
		return true, false
	}
	s.m[syscallName] = n - 1
	return true, true
}

// Remaining 返回剩余次数，不在计数器中时 ok 为 false
func (s *SyscallCounter) Remaining(syscallName string) (n int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok = s.m[syscallName]
	return
}
