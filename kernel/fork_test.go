package kernel

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/pkg/rlimit"
)

func TestForkChildContext(t *testing.T) {
	e := newEnv(t, "")
	p := e.root(t)
	p.SetCwd("/home/u")
	marker := e.str(t, p, "parent")

	tf := frame(SysFork)
	tf.SP = 0x7ffffff0
	tf.S[3] = 0xdead
	e.k.Syscall(p, tf)
	pid := ok(t, tf)
	assert.Equal(t, uint32(textBase+0x44), tf.EPC)
	assert.True(t, p.Spl().Masked())

	got := <-e.user.entered
	child := got.p
	assert.Equal(t, int(pid), child.Pid())
	assert.Equal(t, p.Pid(), child.ParentPid())
	assert.Equal(t, "/home/u", child.Cwd())

	// 子进程从 fork 返回 0，恢复点与父进程相同
	assert.Equal(t, uint32(0), got.tf.V0)
	assert.Equal(t, uint32(0), got.tf.A3)
	assert.Equal(t, tf.EPC, got.tf.EPC)
	assert.Equal(t, tf.SP, got.tf.SP)
	assert.Equal(t, uint32(0xdead), got.tf.S[3])

	// 地址空间是独立的副本
	assert.NotSame(t, p.AddressSpace(), child.AddressSpace())
	s, err := child.AddressSpace().CopyInStr(marker, 16)
	require.NoError(t, err)
	assert.Equal(t, "parent", s)
	require.NoError(t, child.AddressSpace().CopyOut(marker, []byte("child\x00")))
	s, _ = p.AddressSpace().CopyInStr(marker, 16)
	assert.Equal(t, "parent", s)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.k.metrics.forks))
	assert.Equal(t, int64(2), e.vm.Spaces())
}

func TestForkManyUniquePids(t *testing.T) {
	e := newEnv(t, "")
	p := e.root(t)
	e.user.entered = make(chan entered, 100)

	seen := make(map[uint32]bool)
	for i := 0; i < 50; i++ {
		pid := ok(t, e.call(p, SysFork))
		assert.False(t, seen[pid], "pid %d issued twice", pid)
		assert.NotZero(t, pid)
		seen[pid] = true
	}
	e.sched.Wait()
	assert.Equal(t, 51, e.k.procs.Len())
}

func TestForkConcurrentParents(t *testing.T) {
	e := newEnv(t, "")
	e.user.entered = make(chan entered, 200)
	var g errgroup.Group
	for i := 0; i < 4; i++ {
		p := e.root(t)
		g.Go(func() error {
			for j := 0; j < 20; j++ {
				tf := frame(SysFork)
				e.k.Syscall(p, tf)
				if tf.Failed() {
					return unix.Errno(tf.V0)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	e.sched.Wait()
	assert.Equal(t, 4+80, e.k.procs.Len())
}

func TestForkQuota(t *testing.T) {
	e := newEnv(t, "", func(c *Config) { c.RLimits.PendingForks = 2 })
	p := e.root(t)
	require.True(t, e.k.forks.TryAcquire(2))

	tf := frame(SysFork)
	pid, err := e.k.fork(p, tf)
	assert.Zero(t, pid)
	var fe *ForkError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, LocQuota, fe.Location)
	assert.Equal(t, unix.ENOMEM, fe.Err)
	assert.Equal(t, "fork: quota: cannot allocate memory", err.Error())

	e.k.forks.Release(2)
	ok(t, e.call(p, SysFork))
}

func TestForkSpawnFailure(t *testing.T) {
	e := newEnv(t, "")
	p := e.root(t)
	e.spawner.fail = unix.EAGAIN

	tf := e.call(p, SysFork)
	fails(t, tf, unix.EAGAIN)
	assert.Equal(t, int64(1), e.vm.Spaces(), "duplicate address space destroyed")
	assert.Equal(t, 1, e.k.procs.Len())
	assert.True(t, p.Spl().Masked())

	e.spawner.fail = errors.New("no units")
	fails(t, e.call(p, SysFork), unix.ENOMEM)
}

func TestForkAddressSpaceFailure(t *testing.T) {
	e := newEnv(t, "")
	p := e.root(t)
	e.vm.MaxPages = e.vm.UsedPages()

	_, err := e.k.fork(p, frame(SysFork))
	var fe *ForkError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, LocAddrSpace, fe.Location)
	assert.Equal(t, unix.ENOMEM, fe.Err)
}

func TestForkPidExhaustion(t *testing.T) {
	e := newEnv(t, "")
	p := e.root(t)
	for i := 2; i < rlimit.PidMax; i++ {
		_, err := e.k.procs.Fork(p, nil)
		require.NoError(t, err)
	}

	_, err := e.k.fork(p, frame(SysFork))
	var fe *ForkError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, LocPidAlloc, fe.Location)
	e.sched.Wait()
	assert.Equal(t, int64(1), e.vm.Spaces())
	assert.Len(t, e.user.entered, 0)
}

func TestErrorLocationString(t *testing.T) {
	assert.Equal(t, "as_copy", LocAddrSpace.String())
	assert.Equal(t, "unknown", ErrorLocation(0).String())
	assert.Equal(t, "unknown", ErrorLocation(42).String())
}
