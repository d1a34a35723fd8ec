// Package bin 提供内置的用户程序，安装在 /bin 下
package bin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zqzqsb/kernel/kernel"
	"github.com/zqzqsb/kernel/pkg/usermode"
	"github.com/zqzqsb/kernel/pkg/vfs"
)

// Dir 是内置程序的安装目录
const Dir = "/bin"

var programs = map[string]func() *usermode.Program{
	"hello":    Hello,
	"argtest":  ArgTest,
	"forktest": ForkTest,
	"exectest": ExecTest,
	"badcall":  BadCall,
	"cat":      Cat,
	"halt":     Halt,
}

// Names 返回所有内置程序名，按字典序排序
func Names() []string {
	ret := make([]string, 0, len(programs))
	for n := range programs {
		ret = append(ret, n)
	}
	sort.Strings(ret)
	return ret
}

// Install 把所有内置程序装入 fs
func Install(fs *vfs.FS) error {
	for _, n := range Names() {
		if err := fs.Install(Dir+"/"+n, programs[n]()); err != nil {
			return err
		}
	}
	return nil
}

// Hello 输出一行问候
func Hello() *usermode.Program {
	a := usermode.NewAsm("hello")
	a.Print("hello, world\n")
	a.Exit(0)
	return a.Program()
}

// ArgTest 输出 argc 和每个参数
func ArgTest() *usermode.Program {
	a := usermode.NewAsm("argtest")
	a.Move(usermode.S0, usermode.A0)
	a.Move(usermode.S1, usermode.A1)
	a.Printf(func(c *usermode.CPU) string {
		argc, argv := c.TF.S[0], c.TF.S[1]
		var b strings.Builder
		fmt.Fprintf(&b, "argc=%d\n", argc)
		for i := uint32(0); i < argc; i++ {
			ptr, err := c.ReadWord(argv + 4*i)
			if err != nil {
				break
			}
			s, _ := c.ReadString(ptr)
			fmt.Fprintf(&b, "argv[%d]=%s\n", i, s)
		}
		if last, err := c.ReadWord(argv + 4*argc); err != nil || last != 0 {
			b.WriteString("argv not terminated\n")
		}
		return b.String()
	})
	a.Exit(0)
	return a.Program()
}

// ForkTest 创建 3 个子进程，子进程 i 以 10+i 退出，父进程依次等待并输出退出码
//
//	S0 循环计数  S1 当前子进程的 pid  S2 状态字地址
func ForkTest() *usermode.Program {
	const children = 3
	a := usermode.NewAsm("forktest")
	status := a.Buffer(4)
	a.Li(usermode.S0, 0)
	a.Li(usermode.S2, status)

	a.Label("loop")
	a.Syscall(kernel.SysFork)
	a.Beqz(usermode.V0, "child")
	a.Move(usermode.S1, usermode.V0)

	// 父进程：等待刚创建的子进程
	a.Move(usermode.A0, usermode.S1)
	a.Move(usermode.A1, usermode.S2)
	a.Li(usermode.A2, 0)
	a.Syscall(kernel.SysWaitpid)
	a.Printf(func(c *usermode.CPU) string {
		code, _ := c.ReadWord(c.TF.S[2])
		return fmt.Sprintf("child %d exited %d\n", c.TF.S[1], int32(code))
	})
	a.Addi(usermode.S0, 1)
	a.Do(func(c *usermode.CPU) {
		c.TF.V0 = 0
		if c.TF.S[0] < children {
			c.TF.V0 = 1
		}
	})
	a.Bnez(usermode.V0, "loop")
	a.Print("forktest done\n")
	a.Exit(0)

	// 子进程：退出码 10+i
	a.Label("child")
	a.Move(usermode.A0, usermode.S0)
	a.Addi(usermode.A0, 10)
	a.Syscall(kernel.SysExit)
	return a.Program()
}

// ExecTest 以参数 "one" "two" 替换为 /bin/argtest，失败时以 1 退出
func ExecTest() *usermode.Program {
	a := usermode.NewAsm("exectest")
	path := a.String(Dir + "/argtest")
	argv := a.Argv("argtest", "one", "two")
	a.Print("exec argtest\n")
	a.Li(usermode.A0, path)
	a.Li(usermode.A1, argv)
	a.Syscall(kernel.SysExecv)
	a.Print("exec failed\n")
	a.Exit(1)
	return a.Program()
}

// BadCall 发起一个不存在的系统调用并输出错误码
func BadCall() *usermode.Program {
	a := usermode.NewAsm("badcall")
	a.Syscall(999)
	a.Printf(func(c *usermode.CPU) string {
		return fmt.Sprintf("badcall: errno=%d status=%d\n", c.TF.V0, c.TF.A3)
	})
	a.Exit(0)
	return a.Program()
}

// Cat 把控制台输入原样输出，直到输入结束
func Cat() *usermode.Program {
	a := usermode.NewAsm("cat")
	buf := a.Buffer(4)
	a.Label("loop")
	a.Li(usermode.A0, 0).Li(usermode.A1, buf).Li(usermode.A2, 1)
	a.Syscall(kernel.SysRead)
	a.Bnez(usermode.A3, "done")
	a.Beqz(usermode.V0, "done")
	a.Li(usermode.A0, 1).Li(usermode.A1, buf).Li(usermode.A2, 1)
	a.Syscall(kernel.SysWrite)
	a.J("loop")
	a.Label("done")
	a.Exit(0)
	return a.Program()
}

// Halt 关闭机器
func Halt() *usermode.Program {
	a := usermode.NewAsm("halt")
	a.Li(usermode.A0, kernel.RBHalt)
	a.Syscall(kernel.SysReboot)
	a.Exit(0)
	return a.Program()
}
