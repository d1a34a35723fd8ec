package runner

import (
	"fmt"
	"time"
)

// Result 是一次启动运行的结果
type Result struct {
	Status            // 结果状态
	ExitStatus int    // 根进程的退出码，关机时为 reboot 的参数
	Error      string // 潜在的详细错误信息（用于运行器错误）

	Memory    Size  // 地址空间同时占用的最大字节数
	Processes int64 // 成功 fork 的次数
	Output    Size  // 控制台输出的字节数

	// 运行器的度量指标
	SetUpTime   time.Duration // 创建内核和根进程的时间
	RunningTime time.Duration // 根进程开始运行到结束的时间
}

func (r Result) String() string {
	switch r.Status {
	case StatusNormal:
		return fmt.Sprintf("Result[%v forks=%d out=%v][%v %v]", r.Memory, r.Processes, r.Output, r.SetUpTime, r.RunningTime)

	case StatusSignalled, StatusDisallowedSyscall:
		return fmt.Sprintf("Result[%v(%d)][%v forks=%d out=%v][%v %v]", r.Status, r.ExitStatus, r.Memory, r.Processes, r.Output, r.SetUpTime, r.RunningTime)

	case StatusRunnerError:
		return fmt.Sprintf("Result[RunnerFailed(%s)][%v %v]", r.Error, r.SetUpTime, r.RunningTime)

	default:
		return fmt.Sprintf("Result[%v(%s %d)][%v forks=%d out=%v][%v %v]", r.Status, r.Error, r.ExitStatus, r.Memory, r.Processes, r.Output, r.SetUpTime, r.RunningTime)
	}
}
