// Package console 提供单字节读写的控制台设备，并限制输出的总字节数
package console

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// Console 把 io.Reader / io.Writer 包装成字符设备
// 多个执行单元可以同时读写，每个字节的读写都是原子的
type Console struct {
	Max int64 // 最大允许输出的字节数，0 表示不限制

	rmu sync.Mutex
	r   *bufio.Reader

	wmu      sync.Mutex
	w        io.Writer
	written  int64
	exceeded bool
}

// New 创建控制台，r 为 nil 时读取立即得到 EOF
func New(r io.Reader, w io.Writer, max int64) *Console {
	if r == nil {
		r = eofReader{}
	}
	if w == nil {
		w = io.Discard
	}
	return &Console{Max: max, r: bufio.NewReader(r), w: w}
}

// Getch 读取一个字节，输入结束时返回 io.EOF
func (c *Console) Getch() (byte, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	return c.r.ReadByte()
}

// Putch 输出一个字节，超过 Max 时返回 EFBIG 并且不再输出
func (c *Console) Putch(ch byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.Max > 0 && c.written >= c.Max {
		c.exceeded = true
		return unix.EFBIG
	}
	if _, err := c.w.Write([]byte{ch}); err != nil {
		return err
	}
	c.written++
	return nil
}

// Written 返回已经输出的字节数
func (c *Console) Written() int64 {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.written
}

// Exceeded 报告是否有输出因为超过 Max 被丢弃
func (c *Console) Exceeded() bool {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.exceeded
}

// String 返回 Console[已输出/上限]
func (c *Console) String() string {
	return fmt.Sprintf("Console[%d/%d]", c.Written(), c.Max)
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) {
	return 0, io.EOF
}
