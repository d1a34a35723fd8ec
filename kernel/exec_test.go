package kernel

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/pkg/policy"
	"github.com/zqzqsb/kernel/pkg/rlimit"
	"github.com/zqzqsb/kernel/pkg/seccomp"
	"github.com/zqzqsb/kernel/pkg/seccomp/libseccomp"
	"github.com/zqzqsb/kernel/pkg/vm"
	"github.com/zqzqsb/kernel/proc"
)

// checkArgs 检查用户栈上的参数布局
func checkArgs(t *testing.T, as proc.AddressSpace, argv uint32, want []string) {
	t.Helper()
	assert.Zero(t, argv%4)
	word := func(addr uint32) uint32 {
		var b [4]byte
		require.NoError(t, as.CopyIn(addr, b[:]))
		return ByteOrder.Uint32(b[:])
	}
	for i, w := range want {
		ptr := word(argv + uint32(4*i))
		assert.Zero(t, ptr%4, "argv[%d] not aligned", i)
		assert.Greater(t, ptr, argv)
		s, err := as.CopyInStr(ptr, rlimit.ArgMax)
		require.NoError(t, err)
		assert.Equal(t, w, s)
	}
	assert.Zero(t, word(argv+uint32(4*len(want))), "argv not terminated")
}

func TestExecv(t *testing.T) {
	e := newEnv(t, "")
	p := e.root(t)
	old := p.AddressSpace()
	path := e.str(t, p, "/bin/prog")
	argv := e.argv(t, p, "prog", "a", "hello world", "")

	_, returned := e.callInUnit(t, p, SysExecv, path, argv)
	assert.False(t, returned)

	got := <-e.user.entered
	assert.Same(t, p, got.p)
	assert.NotSame(t, old, p.AddressSpace())
	assert.Equal(t, int64(1), e.vm.Spaces(), "old address space destroyed")
	assert.Equal(t, int64(0), e.fs.OpenFiles())
	assert.Equal(t, "prog", p.Name())

	tf := got.tf
	assert.Equal(t, uint32(textBase), tf.EPC)
	assert.Equal(t, uint32(4), tf.A0)
	assert.Equal(t, tf.A1, tf.SP)
	assert.Less(t, tf.SP, uint32(vm.UserStack))
	checkArgs(t, p.AddressSpace(), tf.A1, []string{"prog", "a", "hello world", ""})
	assert.Equal(t, &image{name: "prog"}, p.AddressSpace().(*vm.AddressSpace).Image())
}

func TestExecvRelativePath(t *testing.T) {
	e := newEnv(t, "")
	p := e.root(t)
	p.SetCwd("/bin")
	_, returned := e.callInUnit(t, p, SysExecv, e.str(t, p, "prog"), e.argv(t, p))
	assert.False(t, returned)
	got := <-e.user.entered
	assert.Equal(t, uint32(0), got.tf.A0)
	checkArgs(t, p.AddressSpace(), got.tf.A1, nil)
}

func TestExecvFailureKeepsImage(t *testing.T) {
	long := strings.Repeat("x", rlimit.PathMax+10)
	big := strings.Repeat("y", 8000)

	tests := []struct {
		name  string
		setup func(e *env, p *proc.Process) (path, argv uint32)
		want  unix.Errno
	}{
		{
			name: "null path",
			setup: func(e *env, p *proc.Process) (uint32, uint32) {
				return 0, e.argv(t, p, "x")
			},
			want: unix.EFAULT,
		},
		{
			name: "null argv",
			setup: func(e *env, p *proc.Process) (uint32, uint32) {
				return e.str(t, p, "/bin/prog"), 0
			},
			want: unix.EFAULT,
		},
		{
			name: "bad argv pointer",
			setup: func(e *env, p *proc.Process) (uint32, uint32) {
				return e.str(t, p, "/bin/prog"), 0x3000
			},
			want: unix.EFAULT,
		},
		{
			name: "path too long",
			setup: func(e *env, p *proc.Process) (uint32, uint32) {
				return e.str(t, p, long), e.argv(t, p)
			},
			want: unix.ENAMETOOLONG,
		},
		{
			name: "args too long",
			setup: func(e *env, p *proc.Process) (uint32, uint32) {
				s := e.str(t, p, big)
				var words []byte
				for i := 0; i < 10; i++ {
					words = ByteOrder.AppendUint32(words, s)
				}
				words = ByteOrder.AppendUint32(words, 0)
				addr := e.next
				require.NoError(t, p.AddressSpace().CopyOut(addr, words))
				e.next += uint32(len(words))
				return e.str(t, p, "/bin/prog"), addr
			},
			want: unix.E2BIG,
		},
		{
			name: "missing",
			setup: func(e *env, p *proc.Process) (uint32, uint32) {
				return e.str(t, p, "/bin/nope"), e.argv(t, p)
			},
			want: unix.ENOENT,
		},
		{
			name: "directory",
			setup: func(e *env, p *proc.Process) (uint32, uint32) {
				return e.str(t, p, "/bin"), e.argv(t, p)
			},
			want: unix.EISDIR,
		},
		{
			name: "not executable",
			setup: func(e *env, p *proc.Process) (uint32, uint32) {
				return e.str(t, p, "/bin/junk"), e.argv(t, p)
			},
			want: unix.ENOEXEC,
		},
		{
			name: "out of memory",
			setup: func(e *env, p *proc.Process) (uint32, uint32) {
				path, argv := e.str(t, p, "/bin/prog"), e.argv(t, p)
				e.vm.MaxPages = e.vm.UsedPages()
				return path, argv
			},
			want: unix.ENOMEM,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, "")
			p := e.root(t)
			old := p.AddressSpace()
			path, argv := tt.setup(e, p)

			fails(t, e.call(p, SysExecv, path, argv), tt.want)
			assert.Same(t, old, p.AddressSpace())
			assert.Equal(t, "init", p.Name())
			assert.Equal(t, int64(1), e.vm.Spaces())
			assert.Equal(t, int64(0), e.fs.OpenFiles())
			assert.Len(t, e.user.entered, 0)
		})
	}
}

func TestExecvPolicy(t *testing.T) {
	fs := policy.NewFileSets()
	fs.Readable.Add("/bin/prog")
	fs.SoftBan.Add("/bin/")
	h := &policy.Handler{FileSet: fs}
	e := newEnv(t, "", func(c *Config) { c.Policy = h })
	require.NoError(t, e.fs.Install("/bin/other", &image{name: "other"}))
	require.NoError(t, e.fs.Install("/tmp/evil", &image{name: "evil"}))

	p := e.root(t)
	fails(t, e.call(p, SysExecv, e.str(t, p, "/bin/other"), e.argv(t, p)), unix.EACCES)

	_, returned := e.callInUnit(t, p, SysExecv, e.str(t, p, "/tmp/evil"), e.argv(t, p))
	assert.False(t, returned)
	code, _ := p.ExitCode()
	assert.Equal(t, 128+int(unix.SIGSYS), code)
	assert.Len(t, e.user.entered, 0)
}

func TestSpawn(t *testing.T) {
	f, err := (&libseccomp.Builder{Deny: []string{"reboot"}, Default: seccomp.ActionAllow}).Build(SyscallNames())
	require.NoError(t, err)
	e := newEnv(t, "", func(c *Config) { c.Filter = f })

	p, err := e.k.Spawn("/bin/prog", []string{"prog", "x"})
	require.NoError(t, err)
	got := <-e.user.entered
	e.sched.Wait()

	assert.Same(t, p, got.p)
	assert.Equal(t, 1, p.Pid())
	assert.Equal(t, proc.NoParent, p.ParentPid())
	assert.Equal(t, "prog", p.Name())
	assert.NotNil(t, p.Filter())
	assert.Equal(t, uint32(2), got.tf.A0)
	checkArgs(t, p.AddressSpace(), got.tf.A1, []string{"prog", "x"})
	assert.Equal(t, int64(1), e.vm.Activations())
}

func TestSpawnFailure(t *testing.T) {
	e := newEnv(t, "")
	_, err := e.k.Spawn("/bin/nope", nil)
	assert.Equal(t, unix.ENOENT, errors.Cause(err))

	e.spawner.fail = unix.EAGAIN
	_, err = e.k.Spawn("/bin/prog", nil)
	assert.Error(t, err)
	assert.Equal(t, 0, e.k.procs.Len())
	assert.Equal(t, int64(0), e.vm.Spaces())
}
