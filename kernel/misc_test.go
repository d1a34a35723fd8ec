package kernel

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/pkg/console"
	"github.com/zqzqsb/kernel/pkg/policy"
	"github.com/zqzqsb/kernel/pkg/rlimit"
	"github.com/zqzqsb/kernel/pkg/vm"
)

func TestRead(t *testing.T) {
	e := newEnv(t, "a\rb")
	p := e.root(t)
	buf := e.str(t, p, "....")

	assert.Equal(t, uint32(0), ok(t, e.call(p, SysRead, 0, buf, 0)))
	for _, want := range []byte("a\nb") {
		assert.Equal(t, uint32(1), ok(t, e.call(p, SysRead, 0, buf, 1)))
		assert.Equal(t, uint32(want), e.word(t, p, buf)&0xff)
	}
	// 输入结束
	assert.Equal(t, uint32(0), ok(t, e.call(p, SysRead, 0, buf, 1)))
}

func TestReadBadBuffer(t *testing.T) {
	e := newEnv(t, "x")
	p := e.root(t)
	fails(t, e.call(p, SysRead, 0, 0x2000, 1), unix.EFAULT)
}

func TestWrite(t *testing.T) {
	e := newEnv(t, "")
	p := e.root(t)

	assert.Equal(t, uint32(0), ok(t, e.call(p, SysWrite, 1, e.str(t, p, "zzz"), 0)))
	assert.Equal(t, uint32(5), ok(t, e.call(p, SysWrite, 1, e.str(t, p, "hello"), 5)))
	fails(t, e.call(p, SysWrite, 1, 0x2000, 5), unix.EFAULT)
	// 输出上限是 8 字节
	assert.Equal(t, uint32(3), ok(t, e.call(p, SysWrite, 1, e.str(t, p, "abcdef"), 6)))
	fails(t, e.call(p, SysWrite, 1, e.str(t, p, "x"), 1), unix.EFBIG)
	assert.Equal(t, "helloabc", e.out.String())
}

func TestWriteUncappedConsole(t *testing.T) {
	var out bytes.Buffer
	e := newEnv(t, "", func(c *Config) {
		c.Console = console.New(nil, &out, 0)
		c.RLimits = rlimit.RLimits{Output: 4}
	})
	p := e.root(t)

	msg := strings.Repeat("0123456789", 150)
	assert.Equal(t, uint32(len(msg)), ok(t, e.call(p, SysWrite, 1, e.str(t, p, msg), uint32(len(msg)))))
	assert.Equal(t, msg, out.String())
}

func TestWriteFaultAfterChunk(t *testing.T) {
	var out bytes.Buffer
	e := newEnv(t, "", func(c *Config) { c.Console = console.New(nil, &out, 0) })
	p := e.root(t)

	// 第二块越过已映射的数据区
	end := uint32(dataBase + 4*vm.PageSize)
	start := end - writeChunk - 10
	assert.Equal(t, uint32(writeChunk), ok(t, e.call(p, SysWrite, 1, start, 600)))
	assert.Equal(t, writeChunk, out.Len())

	fails(t, e.call(p, SysWrite, 1, end-10, 600), unix.EFAULT)
	assert.Equal(t, writeChunk, out.Len())
}

func TestChdir(t *testing.T) {
	e := newEnv(t, "")
	p := e.root(t)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr unix.Errno
	}{
		{name: "absolute", path: "/home/u", want: "/home/u"},
		{name: "relative", path: "..", want: "/home"},
		{name: "missing", path: "/nope", wantErr: unix.ENOENT},
		{name: "file", path: "/bin/prog", wantErr: unix.ENOTDIR},
		{name: "empty", path: "", wantErr: unix.EINVAL},
		{name: "too long", path: strings.Repeat("d", rlimit.PathMax), wantErr: unix.ENAMETOOLONG},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := p.Cwd()
			tf := e.call(p, SysChdir, e.str(t, p, tt.path))
			if tt.wantErr != 0 {
				fails(t, tf, tt.wantErr)
				assert.Equal(t, before, p.Cwd())
				return
			}
			assert.Equal(t, uint32(0), ok(t, tf))
			assert.Equal(t, tt.want, p.Cwd())
		})
	}
}

func TestChdirNull(t *testing.T) {
	e := newEnv(t, "")
	p := e.root(t)
	fails(t, e.call(p, SysChdir, 0), unix.EFAULT)
	assert.Equal(t, "/", p.Cwd())
}

func TestChdirPolicy(t *testing.T) {
	fs := policy.NewFileSets()
	fs.Statable.Add("/bin/")
	fs.SoftBan.Add("/")
	e := newEnv(t, "", func(c *Config) { c.Policy = &policy.Handler{FileSet: fs} })
	p := e.root(t)

	ok(t, e.call(p, SysChdir, e.str(t, p, "/bin")))
	fails(t, e.call(p, SysChdir, e.str(t, p, "/home")), unix.EACCES)
	assert.Equal(t, "/bin", p.Cwd())
}

func TestReboot(t *testing.T) {
	e := newEnv(t, "")
	p := e.root(t)
	for _, code := range []uint32{RBReboot, RBHalt, RBPoweroff} {
		ok(t, e.call(p, SysReboot, code))
	}
	fails(t, e.call(p, SysReboot, 3), unix.EINVAL)
	assert.Equal(t, []int{RBReboot, RBHalt, RBPoweroff}, e.machine.codes)

	e = newEnv(t, "", func(c *Config) { c.Machine = nil })
	p = e.root(t)
	fails(t, e.call(p, SysReboot, RBHalt), unix.ENOSYS)
}
