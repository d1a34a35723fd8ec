// Package boot 启动一个内核实例，在其中运行内置程序并汇总运行结果
package boot

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/kernel"
	"github.com/zqzqsb/kernel/pkg/console"
	"github.com/zqzqsb/kernel/pkg/policy"
	"github.com/zqzqsb/kernel/pkg/rlimit"
	"github.com/zqzqsb/kernel/pkg/thread"
	"github.com/zqzqsb/kernel/pkg/usermode"
	"github.com/zqzqsb/kernel/pkg/usermode/bin"
	"github.com/zqzqsb/kernel/pkg/vfs"
	"github.com/zqzqsb/kernel/pkg/vm"
	"github.com/zqzqsb/kernel/runner"
)

// DrainTimeout 是机器停止后等待所有执行单元结束的时间
// 阻塞在控制台读取上的单元可能永远不会结束
const DrainTimeout = time.Second

// Runner 定义了一次启动的全部参数
type Runner struct {
	// Program 是根进程的程序路径，不含 "/" 时在 /bin 下查找
	Program string
	// Args 是根进程的参数，为空时使用程序名
	Args []string

	// Input 为 nil 时读取立即得到 EOF，Output 为 nil 时丢弃输出
	Input  io.Reader
	Output io.Writer

	RLimits rlimit.RLimits
	Limit   runner.Limit
	// MaxSteps 限制每次进入用户态后执行的指令数
	MaxSteps int64

	// Policy 中的相对路径基于 WorkDir 展开
	Policy  *policy.Config
	WorkDir string
	Filter  *FilterConfig

	// FS 为 nil 时使用只装有内置程序的文件系统
	FS *vfs.FS

	ShowDetails bool
	Logger      *logrus.Logger
}

var _ runner.Runner = (*Runner)(nil)

// halter 记录第一次 reboot 的参数
type halter chan int

func (h halter) Reboot(code int) {
	select {
	case h <- code:
	default:
	}
}

// Run 启动内核，运行根进程直到它退出、机器关闭或超时
func (r *Runner) Run(c context.Context) (result runner.Result) {
	sTime := time.Now()
	log := r.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	fail := func(err error) runner.Result {
		result.Status = runner.StatusRunnerError
		result.Error = err.Error()
		result.SetUpTime = time.Since(sTime)
		return result
	}

	fs := r.FS
	if fs == nil {
		fs = vfs.New()
		if err := bin.Install(fs); err != nil {
			return fail(errors.Wrap(err, "install programs"))
		}
	}
	filter, err := r.Filter.Build()
	if err != nil {
		return fail(errors.Wrap(err, "build filter"))
	}

	rl := r.RLimits.PrepareRLimit()
	mgr := vm.NewManager(int64(r.Limit.MemoryLimit.Byte() / vm.PageSize))
	if rl.Stack > 0 {
		mgr.StackPages = int(rl.Stack)
	}
	con := console.New(r.Input, r.Output, rl.Output)
	sched := &thread.Scheduler{MaxUnits: rl.Units}
	m := &usermode.Machine{MaxSteps: r.MaxSteps}
	h := make(halter, 1)

	k, err := kernel.New(kernel.Config{
		VM:          mgr,
		FS:          fs,
		Loader:      usermode.Loader{},
		Console:     con,
		Spawner:     sched,
		UserMode:    m,
		Machine:     h,
		Policy:      r.Policy.Handler(r.WorkDir),
		Filter:      filter,
		RLimits:     rl,
		ShowDetails: r.ShowDetails,
		Logger:      log,
	})
	if err != nil {
		return fail(err)
	}
	m.K = k

	prog, args := r.argv()
	root, err := k.Spawn(prog, args)
	if err != nil {
		if errors.Is(err, unix.ENOMEM) && mgr.Denied() > 0 {
			result.Status = runner.StatusMemoryLimitExceeded
			result.Error = err.Error()
			result.SetUpTime = time.Since(sTime)
			return result
		}
		return fail(errors.Wrapf(err, "spawn %s", prog))
	}
	k.Debug("boot:", root, rl.String(), r.Limit)

	exited := make(chan int, 1)
	go func() {
		exited <- root.WaitExit()
	}()

	var timeout <-chan time.Time
	if r.Limit.TimeLimit > 0 {
		timer := time.NewTimer(r.Limit.TimeLimit)
		defer timer.Stop()
		timeout = timer.C
	}

	result.SetUpTime = time.Since(sTime)
	rTime := time.Now()

	select {
	case code := <-exited:
		// reboot 之后退出的根进程仍然按关机处理
		select {
		case hc := <-h:
			result.Status, result.ExitStatus = runner.StatusHalted, hc
		default:
			result.Status, result.ExitStatus = exitStatus(code, mgr, con), code
		}

	case hc := <-h:
		result.Status, result.ExitStatus = runner.StatusHalted, hc

	case <-timeout:
		result.Status = runner.StatusTimeLimitExceeded

	case <-c.Done():
		if errors.Is(c.Err(), context.DeadlineExceeded) {
			result.Status = runner.StatusTimeLimitExceeded
		} else {
			result.Status = runner.StatusRunnerError
			result.Error = c.Err().Error()
		}
	}
	result.RunningTime = time.Since(rTime)

	m.Stop()
	if !drain(sched, DrainTimeout) {
		log.WithField("units", sched.Live()).Warn("boot: units still running after stop")
	}
	k.Procs().Reap(root)

	result.Memory = runner.Size(mgr.PeakPages() * vm.PageSize)
	result.Output = runner.Size(con.Written())
	result.Processes = forks(k)
	k.Debug("boot: finished", result)
	return result
}

// argv 补全程序路径和参数
func (r *Runner) argv() (string, []string) {
	prog := r.Program
	if !strings.Contains(prog, "/") {
		prog = bin.Dir + "/" + prog
	}
	args := r.Args
	if len(args) == 0 {
		args = []string{path.Base(prog)}
	}
	return prog, args
}

// exitStatus 根据根进程的退出码和资源使用情况判断结果
func exitStatus(code int, mgr *vm.Manager, con *console.Console) runner.Status {
	switch {
	case con.Exceeded():
		return runner.StatusOutputLimitExceeded
	case code == 0:
		return runner.StatusNormal
	case mgr.Denied() > 0:
		return runner.StatusMemoryLimitExceeded
	case code == 128+int(unix.SIGSYS):
		return runner.StatusDisallowedSyscall
	case code == 128+int(unix.SIGXCPU):
		return runner.StatusTimeLimitExceeded
	case code > 128:
		return runner.StatusSignalled
	default:
		return runner.StatusNonzeroExitStatus
	}
}

// drain 等待所有执行单元结束，超时返回 false
func drain(sched *thread.Scheduler, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		sched.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// forks 从内核的指标中读取成功 fork 的次数
func forks(k *kernel.Kernel) int64 {
	mfs, err := k.Registry().Gather()
	if err != nil {
		return 0
	}
	for _, mf := range mfs {
		if mf.GetName() != "kernel_forks_total" {
			continue
		}
		var n float64
		for _, m := range mf.GetMetric() {
			n += m.GetCounter().GetValue()
		}
		return int64(n)
	}
	return 0
}
