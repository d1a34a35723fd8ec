// Package usermode 模拟用户态：CPU 逐条执行程序，遇到 syscall 时陷入内核
//
// 程序由 Insn 组成，第 i 条指令位于 TextBase + 4*i。寄存器保存在 trap.Frame 中，
// 因此 fork 复制上下文时 S0-S7 一起被复制。
package usermode

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/kernel"
	"github.com/zqzqsb/kernel/pkg/vm"
	"github.com/zqzqsb/kernel/proc"
	"github.com/zqzqsb/kernel/trap"
)

// Trapper 处理陷入，由内核实现
type Trapper interface {
	Syscall(p *proc.Process, tf *trap.Frame)
	// Exit 不经过系统调用结束进程，不会返回
	Exit(p *proc.Process, code int)
}

// Reg 是寄存器编号
type Reg int

// 寄存器
const (
	V0 Reg = iota
	A0
	A1
	A2
	A3
	SP
	S0
	S1
	S2
	S3
	S4
	S5
	S6
	S7
)

var regString = []string{"v0", "a0", "a1", "a2", "a3", "sp", "s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7"}

func (r Reg) String() string {
	if r >= 0 && int(r) < len(regString) {
		return regString[r]
	}
	return fmt.Sprintf("r%d", int(r))
}

// CPU 是运行一个进程的执行上下文
type CPU struct {
	K  Trapper
	P  *proc.Process
	TF *trap.Frame

	prog     *Program
	stop     *atomic.Bool
	branched bool
	steps    int64
}

// Reg 返回寄存器的指针
func (c *CPU) Reg(r Reg) *uint32 {
	switch r {
	case V0:
		return &c.TF.V0
	case A0:
		return &c.TF.A0
	case A1:
		return &c.TF.A1
	case A2:
		return &c.TF.A2
	case A3:
		return &c.TF.A3
	case SP:
		return &c.TF.SP
	}
	if r >= S0 && r <= S7 {
		return &c.TF.S[r-S0]
	}
	panic(fmt.Sprintf("usermode: bad register %d", int(r)))
}

// Jump 把下一条指令设为 pc
func (c *CPU) Jump(pc uint32) {
	c.TF.EPC = pc
	c.branched = true
}

// Syscall 以 no 为调用号陷入内核
// 陷入期间中断屏蔽，返回后恢复；内核已经把 EPC 前移
func (c *CPU) Syscall(no uint32) {
	c.TF.V0 = no
	prev := c.P.Spl().Raise()
	c.K.Syscall(c.P, c.TF)
	c.P.Spl().Splx(prev)
	c.branched = true
}

// Mem 返回当前进程的地址空间
func (c *CPU) Mem() proc.AddressSpace {
	return c.P.AddressSpace()
}

// ReadString 读取用户内存中的字符串
func (c *CPU) ReadString(addr uint32) (string, error) {
	return c.Mem().CopyInStr(addr, vm.PageSize)
}

// ReadWord 读取用户内存中的一个字
func (c *CPU) ReadWord(addr uint32) (uint32, error) {
	var b [4]byte
	if err := c.Mem().CopyIn(addr, b[:]); err != nil {
		return 0, err
	}
	return kernel.ByteOrder.Uint32(b[:]), nil
}

// WriteWord 写入用户内存中的一个字
func (c *CPU) WriteWord(addr, v uint32) error {
	var b [4]byte
	kernel.ByteOrder.PutUint32(b[:], v)
	return c.Mem().CopyOut(addr, b[:])
}

// Steps 返回已经执行的指令数
func (c *CPU) Steps() int64 {
	return c.steps
}

// run 执行指令直到进程退出，不会返回
func (c *CPU) run(maxSteps int64) {
	for {
		pc := c.TF.EPC
		end := TextBase + uint32(len(c.prog.Text))*InsnWidth
		switch {
		case pc == end:
			// 执行到程序末尾相当于 _exit(0)
			c.exit(0)
		case pc < TextBase || pc > end || (pc-TextBase)%InsnWidth != 0:
			c.fault(unix.SIGSEGV)
		case maxSteps > 0 && c.steps >= maxSteps:
			c.fault(unix.SIGXCPU)
		case c.stop != nil && c.stop.Load():
			c.fault(unix.SIGKILL)
		}
		c.branched = false
		c.steps++
		c.prog.Text[(pc-TextBase)/InsnWidth](c)
		if !c.branched {
			c.TF.EPC += InsnWidth
		}
	}
}

// exit 通过 _exit 陷入结束进程，_exit 被过滤器拒绝时由内核直接结束
func (c *CPU) exit(code int) {
	c.TF.A0 = uint32(int32(code))
	c.Syscall(kernel.SysExit)
	c.K.Exit(c.P, code)
	panic("usermode: exit returned")
}

// fault 以 128+sig 结束进程
func (c *CPU) fault(sig unix.Signal) {
	c.K.Exit(c.P, 128+int(sig))
	panic("usermode: exit returned")
}
