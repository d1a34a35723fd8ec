package kernel

import (
	"path"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/pkg/policy"
	"github.com/zqzqsb/kernel/pkg/rlimit"
	"github.com/zqzqsb/kernel/proc"
	"github.com/zqzqsb/kernel/trap"
)

// wordSize 是用户指针的字节数，参数字符串按它对齐
const wordSize = 4

func sysExecv(k *Kernel, p *proc.Process, tf *trap.Frame) (uint32, error) {
	as := p.AddressSpace()
	if tf.Arg0() == 0 {
		return 0, unix.EFAULT
	}
	prog, err := as.CopyInStr(tf.Arg0(), rlimit.PathMax)
	if err != nil {
		return 0, err
	}
	argv, err := copyInArgs(as, tf.Arg1())
	if err != nil {
		return 0, err
	}
	// 只有失败时才会返回
	return 0, k.execv(p, prog, argv)
}

// copyInArgs 读取以空指针结尾的参数数组
// 所有字符串 (含结尾的 0) 总长超过 ArgMax 时返回 E2BIG
func copyInArgs(as proc.AddressSpace, uargv uint32) ([]string, error) {
	if uargv == 0 {
		return nil, unix.EFAULT
	}
	var (
		args  []string
		total int
		word  [wordSize]byte
	)
	for i := uint32(0); ; i++ {
		if err := as.CopyIn(uargv+i*wordSize, word[:]); err != nil {
			return nil, err
		}
		ptr := ByteOrder.Uint32(word[:])
		if ptr == 0 {
			return args, nil
		}
		s, err := as.CopyInStr(ptr, rlimit.ArgMax-total)
		if err == unix.ENAMETOOLONG {
			return nil, unix.E2BIG
		}
		if err != nil {
			return nil, err
		}
		total += len(s) + 1
		args = append(args, s)
	}
}

// execv 把进程替换为 prog，成功时不会返回
// 新映像全部准备好之前出现的任何错误都不会影响原来的地址空间
func (k *Kernel) execv(p *proc.Process, prog string, argv []string) error {
	full := prog
	if !path.IsAbs(full) {
		full = path.Join(p.Cwd(), full)
	}
	switch k.policy.CheckRead(full) {
	case policy.Allow:
	case policy.Ban:
		k.debugp(p, "execv: soft ban", full)
		return unix.EACCES
	default:
		k.debugp(p, "execv: killed by", full)
		k.kill(p)
	}

	as, tf, err := k.load(p.Cwd(), prog, argv)
	if err != nil {
		return err
	}

	old := p.SwapAddressSpace(as)
	as.Activate()
	if old != nil {
		old.Destroy()
	}
	p.SetName(path.Base(prog))
	k.debugp(p, "execv:", prog, argv)

	k.user.Enter(p, tf)
	panic("execv: returned from user mode")
}

// load 在新的地址空间中装入程序并准备好参数
// 返回的寄存器状态：EPC 为入口，A0 = argc，A1 = SP = argv
func (k *Kernel) load(cwd, prog string, argv []string) (proc.AddressSpace, *trap.Frame, error) {
	v, err := k.fs.Open(cwd, prog)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", prog)
	}
	defer v.Close()

	as, err := k.vm.Create()
	if err != nil {
		return nil, nil, errors.Wrap(errnoOrNoMem(err), "create address space")
	}
	entry, err := k.loader.Load(as, v)
	if err != nil {
		as.Destroy()
		return nil, nil, errors.Wrapf(err, "load %s", prog)
	}
	sp, err := as.DefineStack()
	if err != nil {
		as.Destroy()
		return nil, nil, errors.Wrap(err, "define stack")
	}
	uargv, err := pushArgs(as, sp, argv)
	if err != nil {
		as.Destroy()
		return nil, nil, err
	}
	return as, &trap.Frame{
		EPC: entry,
		SP:  uargv,
		A0:  uint32(len(argv)),
		A1:  uargv,
	}, nil
}

/*
pushArgs 把参数放到栈顶，返回 argv 的地址

	高地址  sp ──▶ +--------------------+
	               | "arg1\0" 补齐到 4  |
	               | "arg0\0" 补齐到 4  |
	               +--------------------+
	               | NULL               |
	               | &arg1              |
	低地址  argv ─▶ | &arg0              |
*/
func pushArgs(as proc.AddressSpace, sp uint32, argv []string) (uint32, error) {
	size := 0
	for _, a := range argv {
		size += align(len(a) + 1)
	}
	size += (len(argv) + 1) * wordSize
	if uint32(size) > sp {
		return 0, unix.E2BIG
	}
	base := sp - uint32(size)
	ptrs := make([]byte, (len(argv)+1)*wordSize)
	strs := make([]byte, 0, size-len(ptrs))
	addr := base + uint32(len(ptrs))
	for i, a := range argv {
		ByteOrder.PutUint32(ptrs[i*wordSize:], addr+uint32(len(strs)))
		strs = append(strs, a...)
		strs = append(strs, make([]byte, align(len(a)+1)-len(a))...)
	}
	if err := as.CopyOut(base, append(ptrs, strs...)); err != nil {
		return 0, unix.E2BIG
	}
	return base, nil
}

func align(n int) int {
	return (n + wordSize - 1) &^ (wordSize - 1)
}

// Spawn 创建根进程并在新的执行单元中运行 prog
// 根进程的 parent pid 是 proc.NoParent，由调用者负责等待和回收
func (k *Kernel) Spawn(prog string, argv []string) (*proc.Process, error) {
	as, tf, err := k.load("/", prog, argv)
	if err != nil {
		return nil, err
	}
	p, err := k.procs.Bootstrap(path.Base(prog), as)
	if err != nil {
		as.Destroy()
		return nil, err
	}
	p.SetFilter(k.filter)
	k.metrics.processes.Inc()

	if err := k.spawner.Spawn(p.Name(), func() {
		as.Activate()
		k.user.Enter(p, tf)
	}); err != nil {
		p.SwapAddressSpace(nil).Destroy()
		k.procs.Exit(p, 1)
		k.procs.Reap(p)
		k.metrics.processes.Dec()
		return nil, errors.Wrap(err, "spawn")
	}
	k.Debug("spawn:", p)
	return p, nil
}
