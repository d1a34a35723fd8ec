package kernel

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/pkg/console"
	"github.com/zqzqsb/kernel/pkg/thread"
	"github.com/zqzqsb/kernel/pkg/vfs"
	"github.com/zqzqsb/kernel/pkg/vm"
	"github.com/zqzqsb/kernel/proc"
	"github.com/zqzqsb/kernel/trap"
)

const (
	textBase = 0x00400000
	dataBase = 0x10000000
)

// image 是测试用的可执行文件内容
type image struct {
	name string
}

type testLoader struct{}

func (testLoader) Load(as proc.AddressSpace, v vfs.Vnode) (uint32, error) {
	img, ok := v.Data().(*image)
	if !ok {
		return 0, unix.ENOEXEC
	}
	space := as.(*vm.AddressSpace)
	if err := space.DefineRegion(textBase, vm.PageSize); err != nil {
		return 0, err
	}
	space.SetImage(img)
	return textBase, nil
}

// entered 记录一次进入用户态
type entered struct {
	p  *proc.Process
	tf trap.Frame
}

// testUser 记录进入用户态的上下文，然后结束执行单元
type testUser struct {
	sched   *thread.Scheduler
	entered chan entered
}

func (u *testUser) Enter(p *proc.Process, tf *trap.Frame) {
	p.Spl().Lower()
	u.entered <- entered{p: p, tf: *tf}
	u.sched.Exit()
}

type testSpawner struct {
	*thread.Scheduler
	fail error
}

func (s *testSpawner) Spawn(name string, entry func()) error {
	if s.fail != nil {
		return s.fail
	}
	return s.Scheduler.Spawn(name, entry)
}

type testMachine struct {
	codes []int
}

func (m *testMachine) Reboot(code int) {
	m.codes = append(m.codes, code)
}

type env struct {
	k       *Kernel
	vm      *vm.Manager
	fs      *vfs.FS
	out     *bytes.Buffer
	sched   *thread.Scheduler
	spawner *testSpawner
	user    *testUser
	machine *testMachine

	next uint32
}

func newEnv(t *testing.T, input string, opts ...func(*Config)) *env {
	t.Helper()
	e := &env{
		vm:      vm.NewManager(0),
		fs:      vfs.New(),
		out:     new(bytes.Buffer),
		sched:   new(thread.Scheduler),
		machine: new(testMachine),
		next:    dataBase,
	}
	e.spawner = &testSpawner{Scheduler: e.sched}
	e.user = &testUser{sched: e.sched, entered: make(chan entered, 16)}
	require.NoError(t, e.fs.Install("/bin/prog", &image{name: "prog"}))
	require.NoError(t, e.fs.Install("/bin/junk", "not a program"))
	require.NoError(t, e.fs.Mkdir("/home/u"))

	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.DebugLevel)

	c := Config{
		VM:          e.vm,
		FS:          e.fs,
		Loader:      testLoader{},
		Console:     console.New(strings.NewReader(input), e.out, 8),
		Spawner:     e.spawner,
		UserMode:    e.user,
		Machine:     e.machine,
		ShowDetails: true,
		Logger:      log,
	}
	for _, o := range opts {
		o(&c)
	}
	k, err := New(c)
	require.NoError(t, err)
	e.k = k
	return e
}

// root 创建一个带数据页和栈的根进程
func (e *env) root(t *testing.T) *proc.Process {
	t.Helper()
	as := e.vm.New()
	require.NoError(t, as.DefineRegion(dataBase, 4*vm.PageSize))
	_, err := as.DefineStack()
	require.NoError(t, err)
	p, err := e.k.procs.Bootstrap("init", as)
	require.NoError(t, err)
	return p
}

// str 把字符串写入 p 的数据页并返回地址
func (e *env) str(t *testing.T, p *proc.Process, s string) uint32 {
	t.Helper()
	addr := e.next
	require.NoError(t, p.AddressSpace().CopyOut(addr, append([]byte(s), 0)))
	e.next += uint32(len(s)+1+3) &^ 3
	return addr
}

// argv 写入字符串和以空指针结尾的指针数组
func (e *env) argv(t *testing.T, p *proc.Process, args ...string) uint32 {
	t.Helper()
	var words []byte
	for _, a := range args {
		words = ByteOrder.AppendUint32(words, e.str(t, p, a))
	}
	words = ByteOrder.AppendUint32(words, 0)
	addr := e.next
	require.NoError(t, p.AddressSpace().CopyOut(addr, words))
	e.next += uint32(len(words))
	return addr
}

func (e *env) word(t *testing.T, p *proc.Process, addr uint32) uint32 {
	t.Helper()
	var b [4]byte
	require.NoError(t, p.AddressSpace().CopyIn(addr, b[:]))
	return ByteOrder.Uint32(b[:])
}

func frame(no uint32, args ...uint32) *trap.Frame {
	tf := &trap.Frame{V0: no, EPC: textBase + 0x40}
	regs := []*uint32{&tf.A0, &tf.A1, &tf.A2, &tf.A3}
	for i, a := range args {
		*regs[i] = a
	}
	return tf
}

// call 在当前 goroutine 上发起系统调用
func (e *env) call(p *proc.Process, no uint32, args ...uint32) *trap.Frame {
	tf := frame(no, args...)
	e.k.Syscall(p, tf)
	return tf
}

// callInUnit 在新的执行单元中发起系统调用并等待单元结束
// 调用不返回 (_exit、成功的 execv) 时 returned 为 false
func (e *env) callInUnit(t *testing.T, p *proc.Process, no uint32, args ...uint32) (tf *trap.Frame, returned bool) {
	t.Helper()
	tf = frame(no, args...)
	require.NoError(t, e.sched.Spawn("test", func() {
		e.k.Syscall(p, tf)
		returned = true
	}))
	e.sched.Wait()
	return tf, returned
}

func ok(t *testing.T, tf *trap.Frame) uint32 {
	t.Helper()
	require.False(t, tf.Failed(), "syscall failed: %v", unix.Errno(tf.V0))
	return tf.V0
}

func fails(t *testing.T, tf *trap.Frame, want unix.Errno) {
	t.Helper()
	require.True(t, tf.Failed(), "syscall succeeded with %d, want %v", tf.V0, want)
	require.Equal(t, want, unix.Errno(tf.V0), "got %v, want %v", unix.Errno(tf.V0), want)
}
