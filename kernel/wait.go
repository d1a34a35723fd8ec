package kernel

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/pkg/rlimit"
	"github.com/zqzqsb/kernel/proc"
	"github.com/zqzqsb/kernel/trap"
)

// ByteOrder 是用户内存中字 (指针、状态码) 的字节序
var ByteOrder = binary.LittleEndian

func sysExit(k *Kernel, p *proc.Process, tf *trap.Frame) (uint32, error) {
	k.exit(p, int(int32(tf.Arg0())))
	return 0, nil
}

// Exit 由内核直接结束进程 (例如用户态故障)，不经过过滤器，不会返回
func (k *Kernel) Exit(p *proc.Process, code int) {
	p.Spl().Raise()
	k.debugp(p, "fault exit:", code)
	k.exit(p, code)
}

// exit 销毁地址空间，发布退出码，然后结束当前执行单元，不会返回
// 子进程在 Table.Exit 中成为孤儿
func (k *Kernel) exit(p *proc.Process, code int) {
	if as := p.SwapAddressSpace(nil); as != nil {
		as.Destroy()
	}
	if k.procs.Exit(p, code) {
		k.metrics.processes.Dec()
	}
	k.debugp(p, "exit:", code)
	k.spawner.Exit()
}

/*
sysWaitpid 等待子进程退出并把退出码写入 status

	status 为空              EFAULT
	pid 不在 [0, PidMax)     EINVAL
	options 非 0             ECHILD
	不是调用者的子进程       ECHILD
	status 不可写            EFAULT，子进程不会被回收

成功后子进程被回收，再次等待同一个 pid 返回 ECHILD。
*/
func sysWaitpid(k *Kernel, p *proc.Process, tf *trap.Frame) (uint32, error) {
	pid := int32(tf.Arg0())
	status := tf.Arg1()
	options := tf.Arg2()

	if status == 0 {
		return 0, unix.EFAULT
	}
	if !rlimit.ValidPid(pid) {
		return 0, unix.EINVAL
	}
	if options != 0 {
		return 0, unix.ECHILD
	}
	child, err := k.procs.Child(p, int(pid))
	if err != nil {
		return 0, err
	}

	code, ok := child.ExitCode()
	if !ok {
		prev := p.Spl().Lower()
		code = child.WaitExit()
		p.Spl().Splx(prev)
	}

	var buf [4]byte
	ByteOrder.PutUint32(buf[:], uint32(int32(code)))
	if err := p.AddressSpace().CopyOut(status, buf[:]); err != nil {
		return 0, errors.Wrap(err, "waitpid: status")
	}
	k.procs.Reap(child)
	k.debugp(p, "waitpid:", pid, "exited with", code)
	return uint32(pid), nil
}
