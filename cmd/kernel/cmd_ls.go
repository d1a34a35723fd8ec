package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zqzqsb/kernel/kernel"
	"github.com/zqzqsb/kernel/pkg/seccomp/libseccomp"
	"github.com/zqzqsb/kernel/pkg/usermode/bin"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List built-in programs and system calls",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "programs:")
		for _, n := range bin.Names() {
			fmt.Fprintf(out, "  %s/%s\n", bin.Dir, n)
		}
		fmt.Fprintln(out, "system calls:")
		names := kernel.SyscallNames()
		for _, n := range libseccomp.Names(names) {
			fmt.Fprintf(out, "  %2d %s\n", names[n], n)
		}
	},
}
