// Package trap 定义用户态陷入内核时保存的寄存器上下文
package trap

import "fmt"

/*
	MIPS 系统调用约定
	syscall_number -> v0    ; 系统调用号
	arg0 -> a0              ; 第1个参数
	arg1 -> a1              ; 第2个参数
	arg2 -> a2              ; 第3个参数
	arg3 -> a3              ; 第4个参数
	返回值 -> v0            ; 成功时为返回值，失败时为错误码
	状态   -> a3            ; 0 表示成功，1 表示失败
	epc                     ; 陷入时的指令地址，返回前需要前进一条指令
*/

// InstructionWidth 是一条指令的字节宽度，系统调用返回前 EPC 前进这么多
const InstructionWidth = 4

// NumSaved 是随上下文一起保存的通用寄存器数量 (s0-s7)
const NumSaved = 8

// Frame 是陷入时保存的寄存器快照
// Frame 是值类型，直接赋值即得到一份独立的副本
type Frame struct {
	V0, A0, A1, A2, A3 uint32
	SP                 uint32
	EPC                uint32
	S                  [NumSaved]uint32
}

// SyscallNo 获取当前系统调用号
func (f *Frame) SyscallNo() uint32 {
	return f.V0
}

// Arg0 获取当前系统调用的 arg0
func (f *Frame) Arg0() uint32 {
	return f.A0
}

// Arg1 获取当前系统调用的 arg1
func (f *Frame) Arg1() uint32 {
	return f.A1
}

// Arg2 获取当前系统调用的 arg2
func (f *Frame) Arg2() uint32 {
	return f.A2
}

// Arg3 获取当前系统调用的 arg3
func (f *Frame) Arg3() uint32 {
	return f.A3
}

// SetReturnValue 写入成功的返回值并清除状态寄存器
func (f *Frame) SetReturnValue(v uint32) {
	f.V0 = v
	f.A3 = 0
}

// SetError 写入正数错误码并设置状态寄存器
func (f *Frame) SetError(errno uint32) {
	f.V0 = errno
	f.A3 = 1
}

// Failed 报告上一次系统调用是否失败
func (f *Frame) Failed() bool {
	return f.A3 != 0
}

// Advance 把恢复点前移一条指令，否则返回用户态后会重新执行 syscall 指令
func (f *Frame) Advance() {
	f.EPC += InstructionWidth
}

// String 实现 Stringer 接口，用于调试输出
func (f *Frame) String() string {
	return fmt.Sprintf("Frame[v0=%#x a0=%#x a1=%#x a2=%#x a3=%#x sp=%#x epc=%#x]",
		f.V0, f.A0, f.A1, f.A2, f.A3, f.SP, f.EPC)
}
