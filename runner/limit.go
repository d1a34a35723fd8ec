package runner

import (
	"fmt"
	"time"
)

// Limit 定义运行器强制执行的资源限制
type Limit struct {
	TimeLimit   time.Duration // 墙钟时间限制，0 表示不限制
	MemoryLimit Size          // 所有地址空间合计的字节上限，0 表示不限制
}

func (l Limit) String() string {
	return fmt.Sprintf("Limit[Time=%v, Memory=%v]", l.TimeLimit, l.MemoryLimit)
}
