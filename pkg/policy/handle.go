// Package policy 提供路径访问控制和系统调用计数限制
package policy

// Action 是策略检查的结果
type Action int

// Action 常量
const (
	Allow Action = iota + 1 // 允许
	Ban                     // 软禁止：调用失败，进程继续运行
	Kill                    // 终止进程
)

var actionString = []string{"", "allow", "ban", "kill"}

func (a Action) String() string {
	if a > 0 && int(a) < len(actionString) {
		return actionString[a]
	}
	return "unknown"
}

// Handler 组合了路径权限和系统调用计数
// FileSet 为 nil 时不限制路径，SyscallCounter 为 nil 时不限制次数
type Handler struct {
	FileSet        *FileSets
	SyscallCounter *SyscallCounter
}

// CheckRead 检查文件是否有读取权限 (execv 打开可执行文件)
func (h *Handler) CheckRead(fn string) Action {
	if h == nil || h.FileSet == nil || h.FileSet.IsReadableFile(fn) {
		return Allow
	}
	return h.onDgsFileDetect(fn)
}

// CheckStat 检查路径是否有状态查看权限 (chdir)
func (h *Handler) CheckStat(fn string) Action {
	if h == nil || h.FileSet == nil || h.FileSet.IsStatableFile(fn) {
		return Allow
	}
	return h.onDgsFileDetect(fn)
}

// CheckSyscall 检查系统调用的计数，超过限制时软禁止
func (h *Handler) CheckSyscall(syscallName string) Action {
	if h == nil || h.SyscallCounter == nil {
		return Allow
	}
	if inside, allow := h.SyscallCounter.Check(syscallName); inside && !allow {
		return Ban
	}
	return Allow
}

// onDgsFileDetect 处理文件访问违规情况
// 文件在软禁止列表中时跳过操作，否则终止进程
func (h *Handler) onDgsFileDetect(fn string) Action {
	if h.FileSet.IsSoftBanFile(fn) {
		return Ban
	}
	return Kill
}
