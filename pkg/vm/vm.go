// Package vm 提供按页管理的平坦用户地址空间
//
// 地址空间由若干已映射的页组成，访问未映射的页 (包括 0 页) 返回 EFAULT。
// 所有地址空间从同一个 Manager 申请页，超过上限时返回 ENOMEM。
package vm

import (
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/proc"
)

// 地址空间布局
const (
	PageSize = 4096
	// UserStack 是用户栈顶，栈向低地址增长
	UserStack = 0x80000000
	// StackPages 是默认栈大小 (页)
	StackPages = 12
)

// Manager 统计所有地址空间占用的页
type Manager struct {
	// MaxPages 为 0 时不限制
	MaxPages   int64
	StackPages int

	used        atomic.Int64
	peak        atomic.Int64
	denied      atomic.Int64
	spaces      atomic.Int64
	activations atomic.Int64
}

// NewManager 创建页数上限为 maxPages 的 Manager
func NewManager(maxPages int64) *Manager {
	return &Manager{MaxPages: maxPages, StackPages: StackPages}
}

// Create 创建一个空的地址空间
func (m *Manager) Create() (proc.AddressSpace, error) {
	return m.New(), nil
}

// New 与 Create 相同，但返回具体类型
func (m *Manager) New() *AddressSpace {
	m.spaces.Add(1)
	return &AddressSpace{
		m:     m,
		pages: make(map[uint32][]byte),
	}
}

// UsedPages 返回当前占用的页数
func (m *Manager) UsedPages() int64 {
	return m.used.Load()
}

// PeakPages 返回同时占用页数的最大值
func (m *Manager) PeakPages() int64 {
	return m.peak.Load()
}

// Denied 返回因为超过 MaxPages 而失败的申请次数
func (m *Manager) Denied() int64 {
	return m.denied.Load()
}

// Spaces 返回尚未销毁的地址空间数
func (m *Manager) Spaces() int64 {
	return m.spaces.Load()
}

// Activations 返回 Activate 的累计次数
func (m *Manager) Activations() int64 {
	return m.activations.Load()
}

func (m *Manager) reserve(n int) error {
	for {
		used := m.used.Load()
		if m.MaxPages > 0 && used+int64(n) > m.MaxPages {
			m.denied.Add(1)
			return unix.ENOMEM
		}
		if m.used.CompareAndSwap(used, used+int64(n)) {
			m.notePeak(used + int64(n))
			return nil
		}
	}
}

func (m *Manager) notePeak(v int64) {
	for {
		p := m.peak.Load()
		if v <= p || m.peak.CompareAndSwap(p, v) {
			return
		}
	}
}

func (m *Manager) release(n int) {
	m.used.Add(-int64(n))
}

func (m *Manager) stackPages() int {
	if m.StackPages > 0 {
		return m.StackPages
	}
	return StackPages
}
