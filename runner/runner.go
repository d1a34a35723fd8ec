// Package runner 定义启动一个内核实例并运行程序的通用接口和结果
package runner

import (
	"context"
)

// Runner 接口定义了启动运行的方法
type Runner interface {
	Run(context.Context) Result
}
