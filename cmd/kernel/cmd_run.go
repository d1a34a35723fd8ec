package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/zqzqsb/kernel/pkg/policy"
	"github.com/zqzqsb/kernel/runner"
	"github.com/zqzqsb/kernel/runner/boot"
)

var runFlags struct {
	config      string
	timeLimit   time.Duration
	memory      runner.Size
	output      runner.Size
	units       int64
	maxSteps    int64
	readable    []string
	softBan     []string
	allow       []string
	deny        []string
	filterDeflt string
	stdin       bool
}

var runCmd = &cobra.Command{
	Use:   "run [program [args...]]",
	Short: "Run a program as the root process",
	Long: `Run boots a fresh kernel, spawns program as pid 1 and waits until it
exits, the machine halts or the time limit expires. A program name without
a slash is looked up in /bin. The first argument after the program name is
argv[1]; argv[0] is the program name.`,
	Args: cobra.ArbitraryArgs,
	RunE: runProgram,
}

func init() {
	f := runCmd.Flags()
	f.SetInterspersed(false)
	f.StringVarP(&runFlags.config, "config", "c", "", "YAML boot config; flags override it")
	f.DurationVarP(&runFlags.timeLimit, "time-limit", "t", 0, "wall clock limit")
	f.VarP(&runFlags.memory, "memory", "m", "limit of all address spaces, e.g. 256k or 4M")
	f.Var(&runFlags.output, "output", "console output limit")
	f.Int64Var(&runFlags.units, "units", 0, "limit of live execution units")
	f.Int64Var(&runFlags.maxSteps, "max-steps", 0, "instructions per user mode entry")
	f.StringSliceVar(&runFlags.readable, "readable", nil, "paths execv may open")
	f.StringSliceVar(&runFlags.softBan, "soft-ban", nil, "paths that fail with EACCES instead of killing")
	f.StringSliceVar(&runFlags.allow, "allow", nil, "system calls the filter allows")
	f.StringSliceVar(&runFlags.deny, "deny", nil, "system calls the filter fails with EPERM")
	f.StringVar(&runFlags.filterDeflt, "filter-default", "", "filter action for other calls: allow, errno, trace or kill")
	f.BoolVar(&runFlags.stdin, "stdin", true, "connect the console input to stdin")
}

func runProgram(cmd *cobra.Command, args []string) error {
	cfg := new(boot.Config)
	if runFlags.config != "" {
		c, err := boot.LoadConfigFile(runFlags.config)
		if err != nil {
			return err
		}
		cfg = c
	}
	if err := applyFlags(cmd.Flags(), cfg, args); err != nil {
		return err
	}
	if cfg.Program == "" {
		return errors.New("no program given")
	}

	r := cfg.Runner()
	r.Output = os.Stdout
	if runFlags.stdin {
		r.Input = os.Stdin
	}
	r.ShowDetails = r.ShowDetails || verbose
	r.Logger = logrus.StandardLogger()
	if wd, err := os.Getwd(); err == nil {
		r.WorkDir = wd
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	res := r.Run(ctx)

	logrus.WithFields(logrus.Fields{
		"status":  res.Status.String(),
		"exit":    res.ExitStatus,
		"memory":  res.Memory.String(),
		"forks":   res.Processes,
		"output":  res.Output.String(),
		"setup":   res.SetUpTime,
		"running": res.RunningTime,
	}).Info("boot finished")

	switch res.Status {
	case runner.StatusNormal, runner.StatusHalted:
		return nil
	case runner.StatusRunnerError:
		return errors.New(res.Error)
	default:
		fmt.Fprintln(os.Stderr, res)
		os.Exit(exitFailed)
	}
	return nil
}

// applyFlags 把显式给出的参数覆盖到配置上
func applyFlags(fs *pflag.FlagSet, cfg *boot.Config, args []string) error {
	if len(args) > 0 {
		cfg.Program = args[0]
		cfg.Args = args
	}
	if fs.Changed("time-limit") {
		cfg.TimeLimit = runFlags.timeLimit
	}
	if fs.Changed("memory") {
		cfg.MemoryLimit = runFlags.memory
	}
	if fs.Changed("output") {
		cfg.RLimits.Output = int64(runFlags.output.Byte())
	}
	if fs.Changed("units") {
		cfg.RLimits.Units = runFlags.units
	}
	if fs.Changed("max-steps") {
		cfg.MaxSteps = runFlags.maxSteps
	}
	if fs.Changed("readable") || fs.Changed("soft-ban") {
		if cfg.Policy == nil {
			cfg.Policy = new(policy.Config)
		}
		cfg.Policy.Readable = append(cfg.Policy.Readable, runFlags.readable...)
		cfg.Policy.SoftBan = append(cfg.Policy.SoftBan, runFlags.softBan...)
	}
	if fs.Changed("allow") || fs.Changed("deny") || fs.Changed("filter-default") {
		if cfg.Filter == nil {
			cfg.Filter = new(boot.FilterConfig)
		}
		cfg.Filter.Allow = append(cfg.Filter.Allow, runFlags.allow...)
		cfg.Filter.Deny = append(cfg.Filter.Deny, runFlags.deny...)
		if fs.Changed("filter-default") {
			cfg.Filter.Default = runFlags.filterDeflt
		}
	}
	return nil
}
