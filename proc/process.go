// Package proc 维护进程记录以及 pid 的分配与回收
package proc

import (
	"fmt"

	"github.com/zqzqsb/kernel/pkg/future"
	"github.com/zqzqsb/kernel/pkg/seccomp"
	"github.com/zqzqsb/kernel/pkg/spl"
	"github.com/zqzqsb/kernel/trap"
)

// NoParent 是根进程的 parent pid，pid 0 永远不会被分配
const NoParent = 0

// AddressSpace 是进程独占的地址空间句柄
// 具体实现由虚拟内存模块提供，内核只通过这组方法使用它
type AddressSpace interface {
	// Copy 返回一个内容完全相同但互相独立的副本
	Copy() (AddressSpace, error)
	// Activate 让该地址空间在当前执行单元上生效
	Activate()
	// Destroy 释放地址空间，之后不可再使用
	Destroy()
	// DefineStack 定义用户栈并返回初始栈指针
	DefineStack() (uint32, error)
	// CopyIn 从用户地址 uaddr 读取 len(dst) 字节
	CopyIn(uaddr uint32, dst []byte) error
	// CopyOut 把 src 写入用户地址 uaddr
	CopyOut(uaddr uint32, src []byte) error
	// CopyInStr 从 uaddr 读取以 null 结尾的字符串，最多 max 字节 (含 null)
	CopyInStr(uaddr uint32, max int) (string, error)
}

// State 是进程状态
type State int

// 进程状态
const (
	StateRunning State = iota
	StateExited
)

var stateString = []string{"running", "exited"}

func (s State) String() string {
	if int(s) < len(stateString) {
		return stateString[s]
	}
	return "unknown"
}

// Process 是一个进程的内核记录
//
// pid 和 ppid 创建后不再改变。as、ctx、cwd 只由进程自己的执行单元修改；
// fork 期间协调器只读取它们。orphan 和 reaped 由 Table 的锁保护。
// 退出码通过 exit 发布，读者必须先等待它。
type Process struct {
	pid  int
	ppid int
	name string

	spl    spl.Level
	exit   *future.Future[int]
	as     AddressSpace
	ctx    *trap.Frame
	cwd    string
	filter *seccomp.Filter

	// 以下字段由 Table.mu 保护
	exited bool
	orphan bool
	reaped bool
}

// Pid 返回进程的 pid
func (p *Process) Pid() int {
	return p.pid
}

// ParentPid 返回创建该进程的父进程 pid
func (p *Process) ParentPid() int {
	return p.ppid
}

// Name 返回进程名，仅用于调试
func (p *Process) Name() string {
	return p.name
}

// SetName 修改进程名 (execv 之后)
func (p *Process) SetName(name string) {
	p.name = name
}

// Spl 返回该进程执行单元的中断优先级
func (p *Process) Spl() *spl.Level {
	return &p.spl
}

// State 返回进程状态，只有退出码已经发布时才会是 StateExited
func (p *Process) State() State {
	if p.exit.Done() {
		return StateExited
	}
	return StateRunning
}

// ExitCode 不阻塞地读取退出码，进程尚未退出时 ok 为 false
func (p *Process) ExitCode() (code int, ok bool) {
	return p.exit.TryGet()
}

// WaitExit 阻塞直到进程退出并返回退出码
func (p *Process) WaitExit() int {
	return p.exit.Wait()
}

// AddressSpace 返回当前地址空间
func (p *Process) AddressSpace() AddressSpace {
	return p.as
}

// SwapAddressSpace 安装新的地址空间并返回旧的
func (p *Process) SwapAddressSpace(as AddressSpace) AddressSpace {
	old := p.as
	p.as = as
	return old
}

// Context 返回最近一次陷入时保存的寄存器上下文
func (p *Process) Context() *trap.Frame {
	return p.ctx
}

// SetContext 记录当前陷入的寄存器上下文
func (p *Process) SetContext(tf *trap.Frame) {
	p.ctx = tf
}

// Cwd 返回当前工作目录
func (p *Process) Cwd() string {
	return p.cwd
}

// SetCwd 修改当前工作目录
func (p *Process) SetCwd(cwd string) {
	p.cwd = cwd
}

// Filter 返回进程的系统调用过滤器，nil 表示不过滤
func (p *Process) Filter() *seccomp.Filter {
	return p.filter
}

// SetFilter 安装系统调用过滤器，子进程在 fork 时继承
func (p *Process) SetFilter(f *seccomp.Filter) {
	p.filter = f
}

func (p *Process) String() string {
	return fmt.Sprintf("Process[%d<-%d %s %v]", p.pid, p.ppid, p.name, p.State())
}
