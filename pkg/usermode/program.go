package usermode

import (
	"fmt"

	"github.com/zqzqsb/kernel/kernel"
)

// 用户程序布局
const (
	TextBase  = 0x00400000
	DataBase  = 0x10000000
	BSSBase   = 0x10100000
	InsnWidth = 4
)

// Insn 是一条用户态指令
type Insn func(c *CPU)

// Program 是可执行文件的内容
type Program struct {
	Name string
	Text []Insn
	// Data 是装入到 DataBase 的初始数据，BSS 是从 BSSBase 开始的 0 字节数
	Data []byte
	BSS  uint32
}

func (p *Program) String() string {
	return fmt.Sprintf("Program[%s text=%d data=%d bss=%d]", p.Name, len(p.Text), len(p.Data), p.BSS)
}

/*
Asm 用于拼装 Program

	a := usermode.NewAsm("hello")
	msg := a.String("hello\n")
	a.Li(A0, 1).Li(A1, msg).Li(A2, 6).Syscall(kernel.SysWrite)
	a.Exit(0)
	prog := a.Program()
*/
type Asm struct {
	name   string
	text   []Insn
	data   []byte
	bss    uint32
	labels map[string]uint32
	fixups []fixup
}

type fixup struct {
	idx   int
	label string
	build func(target uint32) Insn
}

// NewAsm 创建空程序
func NewAsm(name string) *Asm {
	return &Asm{name: name, labels: make(map[string]uint32)}
}

// PC 返回下一条指令的地址
func (a *Asm) PC() uint32 {
	return TextBase + uint32(len(a.text))*InsnWidth
}

// Emit 追加一条指令
func (a *Asm) Emit(i Insn) *Asm {
	a.text = append(a.text, i)
	return a
}

// Do 追加一条执行 fn 的指令
func (a *Asm) Do(fn func(c *CPU)) *Asm {
	return a.Emit(fn)
}

// Li 把立即数装入寄存器
func (a *Asm) Li(r Reg, v uint32) *Asm {
	return a.Emit(func(c *CPU) { *c.Reg(r) = v })
}

// Move 把 src 复制到 dst
func (a *Asm) Move(dst, src Reg) *Asm {
	return a.Emit(func(c *CPU) { *c.Reg(dst) = *c.Reg(src) })
}

// Addi 给寄存器加上立即数
func (a *Asm) Addi(r Reg, v int32) *Asm {
	return a.Emit(func(c *CPU) { *c.Reg(r) += uint32(v) })
}

// Syscall 以 no 为调用号陷入内核
func (a *Asm) Syscall(no uint32) *Asm {
	return a.Emit(func(c *CPU) { c.Syscall(no) })
}

// Exit 以 code 调用 _exit
func (a *Asm) Exit(code int32) *Asm {
	return a.Li(A0, uint32(code)).Syscall(kernel.SysExit)
}

// Label 把 name 绑定到下一条指令
func (a *Asm) Label(name string) *Asm {
	if _, ok := a.labels[name]; ok {
		panic(fmt.Sprintf("usermode: duplicate label %q", name))
	}
	a.labels[name] = a.PC()
	return a
}

func (a *Asm) branch(label string, build func(target uint32) Insn) *Asm {
	a.fixups = append(a.fixups, fixup{idx: len(a.text), label: label, build: build})
	return a.Emit(nil)
}

// J 无条件跳转
func (a *Asm) J(label string) *Asm {
	return a.branch(label, func(target uint32) Insn {
		return func(c *CPU) { c.Jump(target) }
	})
}

// Beqz 在寄存器为 0 时跳转
func (a *Asm) Beqz(r Reg, label string) *Asm {
	return a.branch(label, func(target uint32) Insn {
		return func(c *CPU) {
			if *c.Reg(r) == 0 {
				c.Jump(target)
			}
		}
	})
}

// Bnez 在寄存器不为 0 时跳转
func (a *Asm) Bnez(r Reg, label string) *Asm {
	return a.branch(label, func(target uint32) Insn {
		return func(c *CPU) {
			if *c.Reg(r) != 0 {
				c.Jump(target)
			}
		}
	})
}

// String 把以 0 结尾的字符串放入数据段并返回地址
func (a *Asm) String(s string) uint32 {
	addr := DataBase + uint32(len(a.data))
	a.data = append(a.data, s...)
	a.data = append(a.data, 0)
	a.pad()
	return addr
}

// Words 把字数组放入数据段并返回地址
func (a *Asm) Words(ws ...uint32) uint32 {
	a.pad()
	addr := DataBase + uint32(len(a.data))
	for _, w := range ws {
		a.data = kernel.ByteOrder.AppendUint32(a.data, w)
	}
	return addr
}

// Argv 放入字符串以及以空指针结尾的指针数组，返回数组地址
func (a *Asm) Argv(args ...string) uint32 {
	ptrs := make([]uint32, 0, len(args)+1)
	for _, s := range args {
		ptrs = append(ptrs, a.String(s))
	}
	return a.Words(append(ptrs, 0)...)
}

// Buffer 在 BSS 中保留 n 字节并返回地址
func (a *Asm) Buffer(n uint32) uint32 {
	addr := BSSBase + a.bss
	a.bss += (n + 3) &^ 3
	return addr
}

// Print 输出固定的字符串
func (a *Asm) Print(s string) *Asm {
	addr := a.String(s)
	return a.Li(A0, 1).Li(A1, addr).Li(A2, uint32(len(s))).Syscall(kernel.SysWrite)
}

// Printf 输出运行时生成的字符串，超过 PrintfMax 的部分被截断
func (a *Asm) Printf(f func(c *CPU) string) *Asm {
	buf := a.Buffer(PrintfMax)
	a.Do(func(c *CPU) {
		s := f(c)
		if len(s) > PrintfMax {
			s = s[:PrintfMax]
		}
		if err := c.Mem().CopyOut(buf, []byte(s)); err != nil {
			s = ""
		}
		c.TF.A0, c.TF.A1, c.TF.A2 = 1, buf, uint32(len(s))
	})
	return a.Syscall(kernel.SysWrite)
}

// PrintfMax 是 Printf 每次输出的上限
const PrintfMax = 256

func (a *Asm) pad() {
	for len(a.data)%4 != 0 {
		a.data = append(a.data, 0)
	}
}

// Program 解析跳转目标并返回程序，未定义的标签会 panic
func (a *Asm) Program() *Program {
	for _, f := range a.fixups {
		target, ok := a.labels[f.label]
		if !ok {
			panic(fmt.Sprintf("usermode: undefined label %q in %s", f.label, a.name))
		}
		a.text[f.idx] = f.build(target)
	}
	return &Program{Name: a.name, Text: a.text, Data: a.data, BSS: a.bss}
}
