package libseccomp

import (
	seccompbpf "github.com/elastic/go-seccomp-bpf"

	"github.com/zqzqsb/kernel/pkg/seccomp"
)

// seccomp 返回值中动作和附加数据的掩码
const (
	retActionMask = 0xffff0000
	retDataMask   = 0x0000ffff
)

// ToSeccompAction 把内部的动作定义转换为 seccomp 的返回值编码
// ActionErrno 携带的返回码放在低 16 位，无法识别的动作一律按 kill 处理
func ToSeccompAction(a seccomp.Action) seccompbpf.Action {
	var action seccompbpf.Action
	switch a.Action() {
	case seccomp.ActionAllow:
		action = seccompbpf.ActionAllow
	case seccomp.ActionErrno:
		action = seccompbpf.ActionErrno
	case seccomp.ActionTrace:
		action = seccompbpf.ActionTrace
	default:
		action = seccompbpf.ActionKillProcess
	}
	// SECCOMP_RET_DATA 放在低 16 位
	return seccompbpf.Action(uint32(action)&retActionMask | uint32(a.ReturnCode()))
}

// FromSeccompRet 把过滤器运行的原始返回值还原成内部动作
// 未知的返回值按 kill 处理
func FromSeccompRet(ret uint32) seccomp.Action {
	data := uint16(ret & retDataMask)
	switch seccompbpf.Action(ret & retActionMask) {
	case seccompbpf.ActionAllow & retActionMask:
		return seccomp.ActionAllow
	case seccompbpf.ActionErrno & retActionMask:
		return seccomp.ActionErrno.WithReturnCode(data)
	case seccompbpf.ActionTrace & retActionMask:
		return seccomp.ActionTrace
	default:
		return seccomp.ActionKill
	}
}

// Evaluate 执行过滤器并返回动作，nil 过滤器总是允许
// 过滤器本身无法运行时按 kill 处理
func Evaluate(f *seccomp.Filter, d seccomp.Data) seccomp.Action {
	if f == nil {
		return seccomp.ActionAllow
	}
	ret, err := f.Run(d)
	if err != nil {
		return seccomp.ActionKill
	}
	return FromSeccompRet(ret)
}
