package kernel

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrorLocation 定义了 fork 失败的具体步骤
type ErrorLocation int

// ForkError 定义了 fork 失败的详细信息
type ForkError struct {
	Err      unix.Errno    // 返回给调用者的错误码
	Location ErrorLocation // 错误发生的位置
}

// Location 常量按照 fork 的执行顺序排列
const (
	LocQuota     ErrorLocation = iota + 1 // 同时进行的 fork 太多
	LocAddrSpace                          // 复制地址空间失败
	LocSpawn                              // 创建执行单元失败
	LocPidAlloc                           // 分配 pid 失败
)

var locToString = []string{
	"unknown",
	"quota",
	"as_copy",
	"spawn",
	"pid_alloc",
}

func (e ErrorLocation) String() string {
	if e >= LocQuota && e <= LocPidAlloc {
		return locToString[e]
	}
	return "unknown"
}

func (e *ForkError) Error() string {
	return fmt.Sprintf("fork: %s: %s", e.Location.String(), e.Err.Error())
}

// Unwrap 让 errors.As 可以取出错误码
func (e *ForkError) Unwrap() error {
	return e.Err
}

// errnoOf 取出错误链上的错误码，没有错误码时返回 EIO
func errnoOf(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) && errno != 0 {
		return errno
	}
	return unix.EIO
}
