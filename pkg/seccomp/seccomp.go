// Package seccomp 提供进程级系统调用过滤器。
// 过滤器是一段 BPF 程序，输入是描述本次系统调用的 seccomp_data，
// 输出是 seccomp 格式的返回值 (高 16 位为动作，低 16 位为附加数据)。
// 过滤器在 fork 时被子进程继承，在 execv 之后依然有效。
package seccomp

import (
	"encoding/binary"

	"golang.org/x/net/bpf"
)

// seccomp_data 的布局
//
//	struct seccomp_data {
//	    int   nr;                    // 0
//	    __u32 arch;                  // 4
//	    __u64 instruction_pointer;   // 8
//	    __u64 args[6];               // 16
//	};
const (
	OffsetNr   = 0
	OffsetArch = 4
	OffsetIP   = 8
	OffsetArgs = 16
	DataSize   = 64
)

// Filter 是编译好的 BPF 过滤器，nil 表示不过滤
// 虚拟机在创建时编译一次，Run 不修改其状态，可以被 fork 出的进程共享
type Filter struct {
	prog []bpf.Instruction
	vm   *bpf.VM
}

// NewFilter 校验并编译过滤器程序
func NewFilter(prog []bpf.Instruction) (*Filter, error) {
	vm, err := bpf.NewVM(prog)
	if err != nil {
		return nil, err
	}
	return &Filter{prog: prog, vm: vm}, nil
}

// Instructions 返回过滤器的指令
func (f *Filter) Instructions() []bpf.Instruction {
	return f.prog
}

// Data 描述一次系统调用
type Data struct {
	Nr   uint32
	Arch uint32
	IP   uint32
	Args [4]uint32
}

// Marshal 按 seccomp_data 的布局编码
// bpf.VM 以网络字节序 (大端) 读取输入，因此这里统一使用大端
func (d Data) Marshal() []byte {
	b := make([]byte, DataSize)
	binary.BigEndian.PutUint32(b[OffsetNr:], d.Nr)
	binary.BigEndian.PutUint32(b[OffsetArch:], d.Arch)
	binary.BigEndian.PutUint64(b[OffsetIP:], uint64(d.IP))
	for i, a := range d.Args {
		binary.BigEndian.PutUint64(b[OffsetArgs+8*i:], uint64(a))
	}
	return b
}

// Run 对 d 执行过滤器并返回原始的 seccomp 返回值
func (f *Filter) Run(d Data) (uint32, error) {
	ret, err := f.vm.Run(d.Marshal())
	if err != nil {
		return 0, err
	}
	return uint32(ret), nil
}
