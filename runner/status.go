package runner

// Status 是结果状态
type Status int

// 运行结果状态
const (
	StatusInvalid Status = iota // 0 未初始化
	// 正常
	StatusNormal // 1 根进程以 0 退出

	// 资源限制超出
	StatusTimeLimitExceeded   // 2 时间限制超出
	StatusMemoryLimitExceeded // 3 内存限制超出
	StatusOutputLimitExceeded // 4 输出限制超出

	// 未授权访问
	StatusDisallowedSyscall // 5 被过滤器或策略终止

	// 运行时错误
	StatusSignalled         // 6 退出码大于 128，被内核终止
	StatusNonzeroExitStatus // 7 非零退出状态

	// 机器关闭
	StatusHalted // 8 reboot 被调用

	// 运行器错误
	StatusRunnerError // 9 运行器错误
)

var (
	statusString = []string{
		"无效",
		"",
		"超出时间限制",
		"超出内存限制",
		"超出输出限制",
		"禁止的系统调用",
		"被信号终止",
		"非零退出状态",
		"关机",
		"运行器错误",
	}
)

func (t Status) String() string {
	i := int(t)
	if i >= 0 && i < len(statusString) {
		return statusString[i]
	}
	return statusString[0]
}

func (t Status) Error() string {
	return t.String()
}
