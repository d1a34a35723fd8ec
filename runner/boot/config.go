package boot

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/zqzqsb/kernel/kernel"
	"github.com/zqzqsb/kernel/pkg/policy"
	"github.com/zqzqsb/kernel/pkg/rlimit"
	"github.com/zqzqsb/kernel/pkg/seccomp"
	"github.com/zqzqsb/kernel/pkg/seccomp/libseccomp"
	"github.com/zqzqsb/kernel/runner"
)

// Config 是启动配置的文件形式
//
//	program: forktest
//	time_limit: 2s
//	memory_limit: 4M
//	rlimits:
//	  units: 16
//	filter:
//	  default: kill
//	  allow: [_exit, write, fork, waitpid]
type Config struct {
	Program     string         `yaml:"program"`
	Args        []string       `yaml:"args"`
	TimeLimit   time.Duration  `yaml:"time_limit"`
	MemoryLimit runner.Size    `yaml:"memory_limit"`
	MaxSteps    int64          `yaml:"max_steps"`
	RLimits     rlimit.RLimits `yaml:"rlimits"`
	Policy      *policy.Config `yaml:"policy"`
	Filter      *FilterConfig  `yaml:"filter"`
	ShowDetails bool           `yaml:"show_details"`
}

// FilterConfig 描述根进程的系统调用过滤器，名字见 kernel.SyscallNames
type FilterConfig struct {
	Allow   []string `yaml:"allow"`
	Trace   []string `yaml:"trace"`
	Deny    []string `yaml:"deny"`
	Errno   uint16   `yaml:"errno"`
	Default string   `yaml:"default"` // allow、trace、errno 或 kill，空表示 allow
}

// LoadConfig 解析 YAML 配置，未知字段视为错误
func LoadConfig(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	c := new(Config)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode config")
	}
	return c, nil
}

// LoadConfigFile 从文件读取配置
func LoadConfigFile(fn string) (*Config, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadConfig(f)
}

// Runner 按配置创建 Runner，输入输出等运行时参数由调用者补充
func (c *Config) Runner() *Runner {
	return &Runner{
		Program:     c.Program,
		Args:        c.Args,
		RLimits:     c.RLimits,
		Limit:       runner.Limit{TimeLimit: c.TimeLimit, MemoryLimit: c.MemoryLimit},
		MaxSteps:    c.MaxSteps,
		Policy:      c.Policy,
		Filter:      c.Filter,
		ShowDetails: c.ShowDetails,
	}
}

// Build 编译过滤器，f 为 nil 时不过滤
func (f *FilterConfig) Build() (*seccomp.Filter, error) {
	if f == nil {
		return nil, nil
	}
	def, err := parseAction(f.Default)
	if err != nil {
		return nil, err
	}
	b := &libseccomp.Builder{
		Allow:   f.Allow,
		Trace:   f.Trace,
		Deny:    f.Deny,
		Errno:   f.Errno,
		Default: def,
	}
	if def == seccomp.ActionErrno {
		b.Default = def.WithReturnCode(f.errno())
	}
	return b.Build(kernel.SyscallNames())
}

func (f *FilterConfig) errno() uint16 {
	if f.Errno == 0 {
		return uint16(unix.EPERM)
	}
	return f.Errno
}

func parseAction(s string) (seccomp.Action, error) {
	switch strings.ToLower(s) {
	case "", "allow":
		return seccomp.ActionAllow, nil
	case "trace":
		return seccomp.ActionTrace, nil
	case "errno":
		return seccomp.ActionErrno, nil
	case "kill":
		return seccomp.ActionKill, nil
	}
	return seccomp.ActionInvalid, errors.Errorf("unknown filter action %q", s)
}
