package proc

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/pkg/future"
	"github.com/zqzqsb/kernel/pkg/rlimit"
)

/*
	Table 是进程表：按 pid 索引的定长数组，所有修改都经过同一把锁

	记录的生命周期：
	  1. Bootstrap / Fork 分配 pid，记录进入 running
	  2. Exit 发布退出码，记录进入 exited；同时把它的子进程标记为孤儿
	  3. 父进程 waitpid 成功后 Reap，或者父进程先退出 (孤儿) 时直接回收
	  4. 回收后 pid 才能被再次分配

	pid 0 是根进程的 parent 占位符，永远不会被分配。
*/
type Table struct {
	mu    sync.Mutex
	procs [rlimit.PidMax]*Process
	next  int
	live  int
}

// NewTable 创建空的进程表
func NewTable() *Table {
	return &Table{next: 1}
}

// Bootstrap 创建根进程，它的 parent pid 为 NoParent
func (t *Table) Bootstrap(name string, as AddressSpace) (*Process, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.alloc(NoParent, name, as)
	if err != nil {
		return nil, err
	}
	p.cwd = "/"
	return p, nil
}

// Fork 为 parent 分配一个子进程记录，子进程继承名字、工作目录和系统调用过滤器
// pid 用尽时返回 ENOMEM
func (t *Table) Fork(parent *Process, as AddressSpace) (*Process, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, err := t.alloc(parent.pid, parent.name, as)
	if err != nil {
		return nil, err
	}
	c.cwd = parent.cwd
	c.filter = parent.filter
	return c, nil
}

// alloc 从 next 开始轮转查找空槽，调用者持有 t.mu
func (t *Table) alloc(ppid int, name string, as AddressSpace) (*Process, error) {
	for i := 0; i < rlimit.PidMax-1; i++ {
		pid := t.next
		t.next++
		if t.next >= rlimit.PidMax {
			t.next = 1
		}
		if t.procs[pid] != nil {
			continue
		}
		p := &Process{
			pid:  pid,
			ppid: ppid,
			name: name,
			as:   as,
			exit: future.New[int](fmt.Sprintf("exit:%d", pid)),
		}
		// 新进程从内核态开始运行
		p.spl.Raise()
		t.procs[pid] = p
		t.live++
		return p, nil
	}
	return nil, unix.ENOMEM
}

// Lookup 返回 pid 对应的记录，不存在时返回 nil
func (t *Table) Lookup(pid int) *Process {
	if pid < 0 || pid >= rlimit.PidMax {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.procs[pid]
}

// Child 返回 parent 可以等待的子进程 pid
// 记录不存在、不是 parent 的子进程或已成为孤儿时返回 ECHILD
func (t *Table) Child(parent *Process, pid int) (*Process, error) {
	if pid < 0 || pid >= rlimit.PidMax {
		return nil, unix.ECHILD
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.procs[pid]
	if c == nil || c.ppid != parent.pid || c.orphan {
		return nil, unix.ECHILD
	}
	return c, nil
}

// Exit 发布 p 的退出码，只有第一次调用生效
// p 的子进程成为孤儿，其中已经退出的立即回收；p 自己是孤儿时也立即回收
func (t *Table) Exit(p *Process, code int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p.exited {
		return false
	}
	p.exited = true
	p.exit.Set(code)
	for _, c := range t.procs {
		if c == nil || c == p || c.ppid != p.pid || c.orphan {
			continue
		}
		c.orphan = true
		if c.exited {
			t.release(c)
		}
	}
	if p.orphan {
		t.release(p)
	}
	return true
}

// Reap 回收一个已经退出的记录，未退出或已回收时不做任何事
func (t *Table) Reap(p *Process) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !p.exited {
		return
	}
	t.release(p)
}

// release 把 p 的槽位归还，调用者持有 t.mu
func (t *Table) release(p *Process) {
	if p.reaped {
		return
	}
	p.reaped = true
	if t.procs[p.pid] == p {
		t.procs[p.pid] = nil
	}
	t.live--
}

// Reaped 报告记录是否已经被回收
func (t *Table) Reaped(p *Process) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return p.reaped
}

// Len 返回表中的记录数 (包括已退出但尚未回收的)
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Snapshot 返回按 pid 排序的所有记录
func (t *Table) Snapshot() []*Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	ret := make([]*Process, 0, t.live)
	for _, p := range t.procs {
		if p != nil {
			ret = append(ret, p)
		}
	}
	return ret
}
