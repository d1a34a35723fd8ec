package kernel

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/pkg/future"
	"github.com/zqzqsb/kernel/proc"
	"github.com/zqzqsb/kernel/trap"
)

// forkResult 是子执行单元交回给父进程的结果
type forkResult struct {
	pid int
	err error
}

// handoff 在父进程与新执行单元之间传递 fork 所需的全部状态
// 创建之后只有子执行单元写入 done，父进程只等待 done
type handoff struct {
	done   *future.Future[forkResult]
	parent *proc.Process
	tf     trap.Frame
	as     proc.AddressSpace
}

func sysFork(k *Kernel, p *proc.Process, tf *trap.Frame) (uint32, error) {
	pid, err := k.fork(p, tf)
	if err != nil {
		return 0, err
	}
	return uint32(pid), nil
}

/*
fork 的握手过程：

	父进程                                  子执行单元
	  占用一个 fork 名额
	  复制寄存器和地址空间
	  Spawn(forkEntry) ───────────────────▶ v0=0, a3=0, epc+=4
	  打开中断，等待 done                    分配 pid (parent = 父进程)
	                   ◀─────────────────── 发布 pid
	  恢复中断级别，返回 pid                 激活地址空间，进入用户态

Spawn 失败时父进程不会等待，复制出的地址空间被销毁，也不会有子进程记录。
*/
func (k *Kernel) fork(parent *proc.Process, tf *trap.Frame) (int, error) {
	if !k.forks.TryAcquire(1) {
		return 0, &ForkError{Err: unix.ENOMEM, Location: LocQuota}
	}
	defer k.forks.Release(1)

	src := parent.AddressSpace()
	if src == nil {
		return 0, &ForkError{Err: unix.EFAULT, Location: LocAddrSpace}
	}
	as, err := src.Copy()
	if err != nil {
		return 0, &ForkError{Err: errnoOrNoMem(err), Location: LocAddrSpace}
	}

	h := &handoff{
		done:   future.New[forkResult](fmt.Sprintf("fork:%d", parent.Pid())),
		parent: parent,
		tf:     *tf,
		as:     as,
	}
	if err := k.spawner.Spawn(parent.Name(), func() { k.forkEntry(h) }); err != nil {
		as.Destroy()
		return 0, &ForkError{Err: errnoOrNoMem(err), Location: LocSpawn}
	}

	prev := parent.Spl().Lower()
	r := h.done.Wait()
	parent.Spl().Splx(prev)

	if r.err != nil {
		return 0, r.err
	}
	k.metrics.forks.Inc()
	k.debugp(parent, "fork: child", r.pid)
	return r.pid, nil
}

// forkEntry 在新的执行单元中运行
// 只有在 pid 发布之后才激活地址空间并进入用户态
func (k *Kernel) forkEntry(h *handoff) {
	tf := h.tf
	tf.SetReturnValue(0)
	tf.Advance()

	child, err := k.procs.Fork(h.parent, h.as)
	if err != nil {
		h.as.Destroy()
		h.done.Set(forkResult{err: &ForkError{Err: errnoOrNoMem(err), Location: LocPidAlloc}})
		return
	}
	k.metrics.processes.Inc()
	h.done.Set(forkResult{pid: child.Pid()})

	child.AddressSpace().Activate()
	k.user.Enter(child, &tf)
}

// errnoOrNoMem 取出错误码，协作者没有给出错误码时按资源耗尽处理
func errnoOrNoMem(err error) unix.Errno {
	if errno := errnoOf(err); errno != unix.EIO {
		return errno
	}
	return unix.ENOMEM
}
