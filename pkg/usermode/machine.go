package usermode

import (
	"fmt"
	"sync/atomic"

	"github.com/zqzqsb/kernel/pkg/vm"
	"github.com/zqzqsb/kernel/proc"
	"github.com/zqzqsb/kernel/trap"
)

// Machine 实现进入用户态
type Machine struct {
	K Trapper
	// MaxSteps 限制每次进入用户态后执行的指令数，0 表示不限制
	MaxSteps int64

	stopped atomic.Bool
}

// Enter 打开中断并在当前执行单元上运行 p 的程序，不会返回
func (m *Machine) Enter(p *proc.Process, tf *trap.Frame) {
	prog := imageOf(p)
	p.Spl().Lower()
	c := &CPU{K: m.K, P: p, TF: tf, prog: prog, stop: &m.stopped}
	c.run(m.MaxSteps)
}

// Stop 让所有在用户态运行的进程在下一条指令前以 128+SIGKILL 退出
// 之后进入用户态的进程也会立即退出
func (m *Machine) Stop() {
	m.stopped.Store(true)
}

// Stopped 报告 Stop 是否已被调用
func (m *Machine) Stopped() bool {
	return m.stopped.Load()
}

func imageOf(p *proc.Process) *Program {
	as, ok := p.AddressSpace().(*vm.AddressSpace)
	if !ok {
		panic(fmt.Sprintf("usermode: %v has no vm address space", p))
	}
	prog, ok := as.Image().(*Program)
	if !ok {
		panic(fmt.Sprintf("usermode: %v has no program image", p))
	}
	return prog
}
