// Package rlimit 定义内核的固定上限以及单个内核实例可配置的资源限制
package rlimit

import (
	"fmt"
	"strings"
)

// 固定上限
const (
	// NameMax 是不含目录的最长文件名，不含结尾的 null
	NameMax = 255
	// PathMax 是最长的完整路径，包含结尾的 null
	PathMax = 1024
	// PidMax 是 pid 空间的大小，合法 pid 为 [0, PidMax)
	PidMax = 512
	// ArgMax 是 execv 参数向量 (所有字符串及其结尾 null) 的总字节上限
	ArgMax = 64 << 10
)

// 默认限制
const (
	DefaultPendingForks = 64
	DefaultOutput       = 1 << 20
)

// RLimits 定义一个内核实例的资源限制，0 表示使用默认值或不限制
type RLimits struct {
	PendingForks int64  `yaml:"pending_forks"` // 同时处于握手阶段的 fork 数量
	Units        int64  `yaml:"units"`         // 同时存活的执行单元数量，0 表示不限制
	Output       int64  `yaml:"output"`        // 控制台输出字节上限，由控制台执行
	Stack        uint32 `yaml:"stack"`         // 用户栈页数，0 使用 vm 的默认值
}

// PrepareRLimit 用默认值补全未设置的字段
func (r RLimits) PrepareRLimit() RLimits {
	if r.PendingForks <= 0 {
		r.PendingForks = DefaultPendingForks
	}
	if r.Output <= 0 {
		r.Output = DefaultOutput
	}
	return r
}

// String 返回 RLimits 的字符串表示
func (r *RLimits) String() string {
	var s []string
	if r.PendingForks > 0 {
		s = append(s, fmt.Sprintf("PendingForks=%d", r.PendingForks))
	}
	if r.Units > 0 {
		s = append(s, fmt.Sprintf("Units=%d", r.Units))
	}
	if r.Output > 0 {
		s = append(s, fmt.Sprintf("Output=%d", r.Output))
	}
	if r.Stack > 0 {
		s = append(s, fmt.Sprintf("Stack=%d", r.Stack))
	}
	return fmt.Sprintf("RLimits{%s}", strings.Join(s, ", "))
}

// ValidPid 报告 pid 是否落在 [0, PidMax) 之内
func ValidPid(pid int32) bool {
	return pid >= 0 && pid < PidMax
}
