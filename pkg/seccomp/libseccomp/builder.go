package libseccomp

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/pkg/seccomp"
)

// Arch 是过滤器要求的 seccomp_data.arch，其他架构的调用直接 kill
const Arch = unix.AUDIT_ARCH_MIPS

// Builder 用于构建 seccomp 过滤器
// 采用 Builder 模式，提供简单的接口来创建复杂的过滤规则
type Builder struct {
	Allow   []string       // 允许执行的系统调用列表
	Trace   []string       // 允许并记录的系统调用列表
	Deny    []string       // 返回 Errno 的系统调用列表
	Errno   uint16         // Deny 使用的错误码，0 表示 EPERM
	Default seccomp.Action // 默认动作（当系统调用不在上述列表中时）
}

// Build 把配置编译为 BPF 过滤器
// names 给出系统调用名到调用号的映射，出现未知名字时返回错误
//
// 生成的程序：
//  1. 检查 arch，不匹配时 kill
//  2. 加载调用号，逐个比较，命中时返回对应动作
//  3. 都没有命中时返回默认动作
func (b *Builder) Build(names map[string]uint32) (*seccomp.Filter, error) {
	errno := b.Errno
	if errno == 0 {
		errno = uint16(unix.EPERM)
	}
	groups := []struct {
		names  []string
		action seccomp.Action
	}{
		{b.Allow, seccomp.ActionAllow},
		{b.Trace, seccomp.ActionTrace},
		{b.Deny, seccomp.ActionErrno.WithReturnCode(errno)},
	}

	prog := []bpf.Instruction{
		bpf.LoadAbsolute{Off: seccomp.OffsetArch, Size: 4},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: Arch, SkipTrue: 1},
		bpf.RetConstant{Val: uint32(ToSeccompAction(seccomp.ActionKill))},
		bpf.LoadAbsolute{Off: seccomp.OffsetNr, Size: 4},
	}
	seen := make(map[uint32]bool)
	for _, g := range groups {
		ret := uint32(ToSeccompAction(g.action))
		for _, n := range g.names {
			nr, ok := names[n]
			if !ok {
				return nil, errors.Errorf("unknown syscall %q", n)
			}
			// 同一个调用号只有第一次出现生效
			if seen[nr] {
				continue
			}
			seen[nr] = true
			prog = append(prog,
				bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: nr, SkipTrue: 1},
				bpf.RetConstant{Val: ret},
			)
		}
	}
	prog = append(prog, bpf.RetConstant{Val: uint32(ToSeccompAction(b.Default))})

	// 确认程序可以被汇编
	if _, err := bpf.Assemble(prog); err != nil {
		return nil, errors.Wrap(err, "assemble filter")
	}
	f, err := seccomp.NewFilter(prog)
	if err != nil {
		return nil, errors.Wrap(err, "compile filter")
	}
	return f, nil
}

// Names 返回 names 中所有系统调用名，按调用号排序
func Names(names map[string]uint32) []string {
	ret := make([]string, 0, len(names))
	for n := range names {
		ret = append(ret, n)
	}
	sort.Slice(ret, func(i, j int) bool {
		return names[ret[i]] < names[ret[j]]
	})
	return ret
}
