package kernel

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/pkg/policy"
	"github.com/zqzqsb/kernel/pkg/seccomp"
	"github.com/zqzqsb/kernel/pkg/seccomp/libseccomp"
	"github.com/zqzqsb/kernel/proc"
	"github.com/zqzqsb/kernel/trap"
)

// 系统调用号
const (
	SysExit    = 0
	SysExecv   = 1
	SysFork    = 2
	SysWaitpid = 3
	SysRead    = 5
	SysWrite   = 6
	SysReboot  = 8
	SysGetpid  = 11
	SysChdir   = 22
)

// sysent 是系统调用表的一项
// impl 成功时返回 V0 的值，失败时返回错误，由 Syscall 统一写回寄存器
type sysent struct {
	name  string
	nargs int
	impl  func(k *Kernel, p *proc.Process, tf *trap.Frame) (uint32, error)
}

var sysents = map[uint32]sysent{
	SysExit:    {"_exit", 1, sysExit},
	SysExecv:   {"execv", 2, sysExecv},
	SysFork:    {"fork", 0, sysFork},
	SysWaitpid: {"waitpid", 3, sysWaitpid},
	SysRead:    {"read", 3, sysRead},
	SysWrite:   {"write", 3, sysWrite},
	SysReboot:  {"reboot", 1, sysReboot},
	SysGetpid:  {"getpid", 0, sysGetpid},
	SysChdir:   {"chdir", 1, sysChdir},
}

// SyscallNames 返回系统调用名到调用号的映射，用于构建过滤器
func SyscallNames() map[string]uint32 {
	ret := make(map[string]uint32, len(sysents))
	for nr, ent := range sysents {
		ret[ent.name] = nr
	}
	return ret
}

// SyscallName 返回调用号对应的名字
func SyscallName(nr uint32) (string, bool) {
	ent, ok := sysents[nr]
	return ent.name, ok
}

/*
Syscall 处理一次系统调用陷入

	1. 进入时中断必须是屏蔽的，否则 panic
	2. 按调用号查表，未知调用号返回 ENOSYS，不做其他任何事
	3. 执行进程的过滤器和调用计数检查
	4. 执行具体的调用，结果写回 V0 / A3，EPC 前进一条指令
	5. 返回用户态之前再次检查中断级别

_exit 和成功的 execv 不会返回到这里。
*/
func (k *Kernel) Syscall(p *proc.Process, tf *trap.Frame) {
	if !p.Spl().Masked() {
		panic(fmt.Sprintf("syscall: %v entered with interrupts enabled", p))
	}
	p.SetContext(tf)

	callno := tf.SyscallNo()
	ent, ok := sysents[callno]
	if !ok {
		k.debugp(p, "syscall: unknown", callno)
		k.metrics.syscalls.WithLabelValues("unknown", resultError).Inc()
		tf.SetError(uint32(unix.ENOSYS))
		tf.Advance()
		k.checkReturn(p)
		return
	}

	result := resultNoReturn
	defer func() {
		k.metrics.syscalls.WithLabelValues(ent.name, result).Inc()
	}()

	ret, err := k.route(p, tf, ent, &result)
	if err != nil {
		errno := errnoOf(err)
		k.debugp(p, "syscall:", ent.name, "->", err)
		tf.SetError(uint32(errno))
		result = resultError
	} else {
		k.debugp(p, "syscall:", ent.name, "->", ret)
		tf.SetReturnValue(ret)
		result = resultOK
	}
	tf.Advance()
	k.checkReturn(p)
}

// checkReturn 确认返回用户态之前中断依然是屏蔽的
func (k *Kernel) checkReturn(p *proc.Process) {
	if !p.Spl().Masked() {
		panic(fmt.Sprintf("syscall: %v leaving with interrupts enabled", p))
	}
}

// route 执行过滤器和计数检查后调用 ent.impl
func (k *Kernel) route(p *proc.Process, tf *trap.Frame, ent sysent, result *string) (uint32, error) {
	args := [4]uint32{tf.Arg0(), tf.Arg1(), tf.Arg2(), tf.Arg3()}
	k.debugp(p, "syscall:", ent.name, args[:ent.nargs])

	if f := p.Filter(); f != nil {
		act := libseccomp.Evaluate(f, seccomp.Data{
			Nr:   tf.SyscallNo(),
			Arch: libseccomp.Arch,
			IP:   tf.EPC,
			Args: args,
		})
		switch act.Action() {
		case seccomp.ActionAllow:
		case seccomp.ActionTrace:
			k.debugp(p, "trace:", ent.name, args[:ent.nargs])
		case seccomp.ActionErrno:
			if code := act.ReturnCode(); code != 0 {
				return 0, unix.Errno(code)
			}
			return 0, unix.EPERM
		default:
			*result = resultKilled
			k.debugp(p, "filter: killed by", ent.name)
			k.kill(p)
		}
	}

	if k.policy.CheckSyscall(ent.name) != policy.Allow {
		k.debugp(p, "<soft ban syscall>", ent.name)
		return 0, unix.EAGAIN
	}
	return ent.impl(k, p, tf)
}

// kill 以 128+SIGSYS 终止进程，不会返回
func (k *Kernel) kill(p *proc.Process) {
	k.exit(p, 128+int(unix.SIGSYS))
}
