package kernel

import (
	"io"
	"path"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/pkg/policy"
	"github.com/zqzqsb/kernel/pkg/rlimit"
	"github.com/zqzqsb/kernel/proc"
	"github.com/zqzqsb/kernel/trap"
)

// reboot 的参数
const (
	RBReboot   = 0
	RBHalt     = 1
	RBPoweroff = 2
)

func sysGetpid(k *Kernel, p *proc.Process, tf *trap.Frame) (uint32, error) {
	return uint32(p.Pid()), nil
}

// sysRead 从控制台读取一个字节，'\r' 转换为 '\n'
// fd 被忽略；输入结束时返回 0
func sysRead(k *Kernel, p *proc.Process, tf *trap.Frame) (uint32, error) {
	buf, n := tf.Arg1(), tf.Arg2()
	if n == 0 {
		return 0, nil
	}
	ch, err := k.console.Getch()
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read: console")
	}
	if ch == '\r' {
		ch = '\n'
	}
	if err := p.AddressSpace().CopyOut(buf, []byte{ch}); err != nil {
		return 0, err
	}
	return 1, nil
}

// writeChunk 是 write 每次从用户空间复制的字节数
const writeChunk = 512

// sysWrite 把用户缓冲区逐字节输出到控制台，返回实际输出的字节数
// 缓冲区按块复制，输出上限只由控制台决定。控制台拒绝输出或后面的块不可读时，
// 已经输出了一部分就返回这部分的字节数，否则返回错误 (EFBIG / EFAULT)
func sysWrite(k *Kernel, p *proc.Process, tf *trap.Frame) (uint32, error) {
	buf, n := tf.Arg1(), tf.Arg2()
	chunk := make([]byte, min(n, writeChunk))
	var done uint32
	for done < n {
		data := chunk[:min(n-done, writeChunk)]
		if err := p.AddressSpace().CopyIn(buf+done, data); err != nil {
			if done > 0 {
				return done, nil
			}
			return 0, err
		}
		for _, ch := range data {
			if err := k.console.Putch(ch); err != nil {
				if done > 0 {
					return done, nil
				}
				return 0, errors.Wrap(err, "write: console")
			}
			done++
		}
	}
	return done, nil
}

// sysChdir 修改当前工作目录
// 空指针直接返回 EFAULT，不会访问文件系统
func sysChdir(k *Kernel, p *proc.Process, tf *trap.Frame) (uint32, error) {
	if tf.Arg0() == 0 {
		return 0, unix.EFAULT
	}
	dir, err := p.AddressSpace().CopyInStr(tf.Arg0(), rlimit.PathMax)
	if err != nil {
		return 0, err
	}
	full := dir
	if !path.IsAbs(full) {
		full = path.Join(p.Cwd(), full)
	}
	switch k.policy.CheckStat(full) {
	case policy.Allow:
	case policy.Ban:
		return 0, unix.EACCES
	default:
		k.debugp(p, "chdir: killed by", full)
		k.kill(p)
	}
	cwd, err := k.fs.Chdir(p.Cwd(), dir)
	if err != nil {
		return 0, errors.Wrapf(err, "chdir %s", dir)
	}
	p.SetCwd(cwd)
	return 0, nil
}

func sysReboot(k *Kernel, p *proc.Process, tf *trap.Frame) (uint32, error) {
	code := int(tf.Arg0())
	switch code {
	case RBReboot, RBHalt, RBPoweroff:
	default:
		return 0, unix.EINVAL
	}
	if k.machine == nil {
		return 0, unix.ENOSYS
	}
	k.debugp(p, "reboot:", code)
	k.machine.Reboot(code)
	return 0, nil
}
