// Package vfs 是内存中的命名空间：目录树加上装入的可执行文件
package vfs

import (
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/pkg/rlimit"
)

// Vnode 是打开的文件
type Vnode interface {
	// Path 返回打开时解析出的绝对路径
	Path() string
	// Data 返回文件内容
	Data() any
	Close() error
}

type node struct {
	dir      bool
	children map[string]*node
	data     any
}

// FS 是内存文件系统，可以被多个执行单元并发访问
type FS struct {
	mu   sync.RWMutex
	root *node

	open atomic.Int64
}

// New 创建只有根目录的文件系统
func New() *FS {
	return &FS{root: &node{dir: true, children: make(map[string]*node)}}
}

// absPath 计算相对于 cwd 的绝对路径，并检查长度限制
func absPath(cwd, p string) (string, error) {
	if p == "" {
		return "", unix.EINVAL
	}
	if len(p) >= rlimit.PathMax {
		return "", unix.ENAMETOOLONG
	}
	if !path.IsAbs(p) {
		p = path.Join(cwd, p)
	}
	p = path.Clean("/" + p)
	for _, c := range strings.Split(p, "/") {
		if len(c) > rlimit.NameMax {
			return "", unix.ENAMETOOLONG
		}
	}
	return p, nil
}

// walk 找到 p 对应的节点，调用者持有锁
func (fs *FS) walk(p string) (*node, error) {
	n := fs.root
	for _, c := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		if c == "" {
			continue
		}
		if !n.dir {
			return nil, unix.ENOTDIR
		}
		next, ok := n.children[c]
		if !ok {
			return nil, unix.ENOENT
		}
		n = next
	}
	return n, nil
}

// Mkdir 创建目录以及所有缺失的上级目录
func (fs *FS) Mkdir(p string) error {
	p, err := absPath("/", p)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, err = fs.mkdirAll(p)
	return err
}

func (fs *FS) mkdirAll(p string) (*node, error) {
	n := fs.root
	for _, c := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		if c == "" {
			continue
		}
		next, ok := n.children[c]
		if !ok {
			next = &node{dir: true, children: make(map[string]*node)}
			n.children[c] = next
		}
		if !next.dir {
			return nil, unix.ENOTDIR
		}
		n = next
	}
	return n, nil
}

// Install 在 p 处放置一个文件，上级目录不存在时自动创建，已有文件被覆盖
func (fs *FS) Install(p string, data any) error {
	p, err := absPath("/", p)
	if err != nil {
		return err
	}
	if p == "/" {
		return unix.EISDIR
	}
	dir, name := path.Split(p)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, err := fs.mkdirAll(dir)
	if err != nil {
		return err
	}
	if old, ok := parent.children[name]; ok && old.dir {
		return unix.EISDIR
	}
	parent.children[name] = &node{data: data}
	return nil
}

// Open 打开相对于 cwd 的文件
func (fs *FS) Open(cwd, p string) (Vnode, error) {
	abs, err := absPath(cwd, p)
	if err != nil {
		return nil, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	n, err := fs.walk(abs)
	if err != nil {
		return nil, err
	}
	if n.dir {
		return nil, unix.EISDIR
	}
	fs.open.Add(1)
	return &file{fs: fs, path: abs, data: n.data}, nil
}

// Chdir 解析相对于 cwd 的目录并返回新的工作目录
func (fs *FS) Chdir(cwd, p string) (string, error) {
	abs, err := absPath(cwd, p)
	if err != nil {
		return "", err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	n, err := fs.walk(abs)
	if err != nil {
		return "", err
	}
	if !n.dir {
		return "", unix.ENOTDIR
	}
	return abs, nil
}

// List 返回所有文件的绝对路径，按字典序排序
func (fs *FS) List() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var ret []string
	var visit func(prefix string, n *node)
	visit = func(prefix string, n *node) {
		for name, c := range n.children {
			p := path.Join(prefix, name)
			if c.dir {
				visit(p, c)
			} else {
				ret = append(ret, p)
			}
		}
	}
	visit("/", fs.root)
	sort.Strings(ret)
	return ret
}

// OpenFiles 返回尚未关闭的 Vnode 数
func (fs *FS) OpenFiles() int64 {
	return fs.open.Load()
}

type file struct {
	fs     *FS
	path   string
	data   any
	closed atomic.Bool
}

func (f *file) Path() string {
	return f.path
}

func (f *file) Data() any {
	return f.data
}

func (f *file) Close() error {
	if f.closed.CompareAndSwap(false, true) {
		f.fs.open.Add(-1)
	}
	return nil
}
