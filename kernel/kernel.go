// Package kernel 处理陷入内核的系统调用，并实现进程生命周期：
// fork / _exit / waitpid / execv 以及 getpid、read、write、chdir、reboot。
//
// 虚拟内存、文件系统、程序装载、控制台、执行单元和用户态切换都是外部协作者，
// 内核只通过本文件定义的接口使用它们。
package kernel

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/zqzqsb/kernel/pkg/policy"
	"github.com/zqzqsb/kernel/pkg/rlimit"
	"github.com/zqzqsb/kernel/pkg/seccomp"
	"github.com/zqzqsb/kernel/pkg/vfs"
	"github.com/zqzqsb/kernel/proc"
	"github.com/zqzqsb/kernel/trap"
)

// VM 创建新的地址空间
type VM interface {
	Create() (proc.AddressSpace, error)
}

// FS 解析路径，路径都相对于调用者的工作目录
type FS interface {
	Open(cwd, path string) (vfs.Vnode, error)
	// Chdir 检查目标是目录并返回新的工作目录
	Chdir(cwd, path string) (string, error)
}

// Loader 把可执行文件装入地址空间并返回入口地址
type Loader interface {
	Load(as proc.AddressSpace, v vfs.Vnode) (entry uint32, err error)
}

// Console 是单字节控制台
type Console interface {
	Getch() (byte, error)
	Putch(c byte) error
}

// Spawner 创建和结束执行单元
type Spawner interface {
	// Spawn 在新的执行单元中运行 entry，失败时 entry 不会被执行
	Spawn(name string, entry func()) error
	// Exit 结束当前执行单元，不会返回
	Exit()
}

// UserMode 以 tf 描述的寄存器状态进入用户态，不会返回
// 进入前由它把中断级别降为打开
type UserMode interface {
	Enter(p *proc.Process, tf *trap.Frame)
}

// Machine 处理 reboot
type Machine interface {
	Reboot(code int)
}

// Config 定义内核实例的协作者与限制
type Config struct {
	VM       VM
	FS       FS
	Loader   Loader
	Console  Console
	Spawner  Spawner
	UserMode UserMode
	Machine  Machine // 为 nil 时 reboot 返回 ENOSYS

	// Policy 为 nil 时不做路径和次数检查
	Policy *policy.Handler
	// Filter 安装到根进程，由所有后代继承
	Filter  *seccomp.Filter
	RLimits rlimit.RLimits

	ShowDetails bool
	Logger      *logrus.Logger
}

// Kernel 是一个内核实例
type Kernel struct {
	vm      VM
	fs      FS
	loader  Loader
	console Console
	spawner Spawner
	user    UserMode
	machine Machine

	policy *policy.Handler
	filter *seccomp.Filter

	showDetails bool
	log         *logrus.Logger

	procs   *proc.Table
	forks   *semaphore.Weighted
	metrics *metrics
}

// New 检查协作者并创建内核实例
func New(c Config) (*Kernel, error) {
	switch {
	case c.VM == nil:
		return nil, errors.New("kernel: VM is required")
	case c.FS == nil:
		return nil, errors.New("kernel: FS is required")
	case c.Loader == nil:
		return nil, errors.New("kernel: Loader is required")
	case c.Console == nil:
		return nil, errors.New("kernel: Console is required")
	case c.Spawner == nil:
		return nil, errors.New("kernel: Spawner is required")
	case c.UserMode == nil:
		return nil, errors.New("kernel: UserMode is required")
	}
	log := c.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := c.RLimits.PrepareRLimit()
	return &Kernel{
		vm:          c.VM,
		fs:          c.FS,
		loader:      c.Loader,
		console:     c.Console,
		spawner:     c.Spawner,
		user:        c.UserMode,
		machine:     c.Machine,
		policy:      c.Policy,
		filter:      c.Filter,
		showDetails: c.ShowDetails,
		log:         log,
		procs:       proc.NewTable(),
		forks:       semaphore.NewWeighted(r.PendingForks),
		metrics:     newMetrics(),
	}, nil
}

// Procs 返回进程表
func (k *Kernel) Procs() *proc.Table {
	return k.procs
}

// Registry 返回该内核实例的指标
func (k *Kernel) Registry() *prometheus.Registry {
	return k.metrics.registry
}

// Debug 输出调试信息，只有在 ShowDetails 为 true 时才会输出
func (k *Kernel) Debug(v ...interface{}) {
	if k.showDetails {
		k.log.Debug(sprint(v...))
	}
}

// debugp 带上进程字段输出调试信息
func (k *Kernel) debugp(p *proc.Process, v ...interface{}) {
	if k.showDetails {
		k.log.WithFields(logrus.Fields{
			"pid":  p.Pid(),
			"name": p.Name(),
		}).Debug(sprint(v...))
	}
}

// sprint 与 fmt.Println 一样在参数之间加空格
func sprint(v ...interface{}) string {
	return strings.TrimSuffix(fmt.Sprintln(v...), "\n")
}
