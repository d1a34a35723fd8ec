// Command kernel 启动一个内核实例并运行内置的用户程序
//
//	kernel run forktest
//	kernel run --time-limit 1s --memory 1M exectest
//	kernel run --config boot.yaml
//	kernel ls
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// 退出码
const (
	exitFailed = 1 // 程序没有正常结束
	exitError  = 2 // 参数或运行器错误
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "kernel",
	Short:         "Boot a small kernel and run a user program in it",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every system call")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	}
	rootCmd.AddCommand(runCmd, lsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kernel:", err)
		os.Exit(exitError)
	}
}
