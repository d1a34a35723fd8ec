package vm

import (
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/proc"
)

// AddressSpace 是一个进程独占的地址空间
// 只由拥有它的执行单元访问，不加锁
type AddressSpace struct {
	m         *Manager
	pages     map[uint32][]byte
	image     any
	destroyed bool
}

var _ proc.AddressSpace = (*AddressSpace)(nil)

func pageOf(addr uint32) uint32 {
	return addr / PageSize
}

// DefineRegion 映射覆盖 [vaddr, vaddr+size) 的页，页内容为 0
// 0 页不能被映射
func (as *AddressSpace) DefineRegion(vaddr, size uint32) error {
	if size == 0 {
		return nil
	}
	end := uint64(vaddr) + uint64(size)
	if vaddr < PageSize || end > 1<<32 {
		return unix.EFAULT
	}
	first, last := pageOf(vaddr), pageOf(uint32(end-1))
	var fresh []uint32
	for pg := first; pg <= last; pg++ {
		if _, ok := as.pages[pg]; !ok {
			fresh = append(fresh, pg)
		}
	}
	if err := as.m.reserve(len(fresh)); err != nil {
		return err
	}
	for _, pg := range fresh {
		as.pages[pg] = make([]byte, PageSize)
	}
	return nil
}

// DefineStack 映射用户栈并返回初始栈指针
func (as *AddressSpace) DefineStack() (uint32, error) {
	n := uint32(as.m.stackPages())
	if err := as.DefineRegion(UserStack-n*PageSize, n*PageSize); err != nil {
		return 0, err
	}
	return UserStack, nil
}

// SetImage 记录装入该地址空间的程序映像
func (as *AddressSpace) SetImage(image any) {
	as.image = image
}

// Image 返回程序映像，未装入时为 nil
func (as *AddressSpace) Image() any {
	return as.image
}

// Pages 返回已映射的页数
func (as *AddressSpace) Pages() int {
	return len(as.pages)
}

// Copy 复制所有页，程序映像不可变，直接共享
func (as *AddressSpace) Copy() (proc.AddressSpace, error) {
	if err := as.m.reserve(len(as.pages)); err != nil {
		return nil, err
	}
	as.m.spaces.Add(1)
	c := &AddressSpace{
		m:     as.m,
		pages: make(map[uint32][]byte, len(as.pages)),
		image: as.image,
	}
	for pg, b := range as.pages {
		c.pages[pg] = append([]byte(nil), b...)
	}
	return c, nil
}

// Activate 让地址空间在当前执行单元上生效
func (as *AddressSpace) Activate() {
	as.m.activations.Add(1)
}

// Destroy 归还所有页，重复调用无效
func (as *AddressSpace) Destroy() {
	if as.destroyed {
		return
	}
	as.destroyed = true
	as.m.release(len(as.pages))
	as.m.spaces.Add(-1)
	as.pages = nil
	as.image = nil
}

// access 对 [uaddr, uaddr+n) 逐页调用 fn，任何一页未映射都返回 EFAULT 且不调用 fn
func (as *AddressSpace) access(uaddr uint32, n int, fn func(page []byte, off, pos, cnt int)) error {
	if n == 0 {
		return nil
	}
	if uint64(uaddr)+uint64(n) > 1<<32 {
		return unix.EFAULT
	}
	for pg := pageOf(uaddr); pg <= pageOf(uaddr+uint32(n-1)); pg++ {
		if _, ok := as.pages[pg]; !ok {
			return unix.EFAULT
		}
	}
	pos := 0
	for pos < n {
		addr := uaddr + uint32(pos)
		off := int(addr % PageSize)
		cnt := PageSize - off
		if cnt > n-pos {
			cnt = n - pos
		}
		fn(as.pages[pageOf(addr)], off, pos, cnt)
		pos += cnt
	}
	return nil
}

// CopyIn 从用户地址 uaddr 读取 len(dst) 字节
func (as *AddressSpace) CopyIn(uaddr uint32, dst []byte) error {
	return as.access(uaddr, len(dst), func(page []byte, off, pos, cnt int) {
		copy(dst[pos:pos+cnt], page[off:off+cnt])
	})
}

// CopyOut 把 src 写入用户地址 uaddr
func (as *AddressSpace) CopyOut(uaddr uint32, src []byte) error {
	return as.access(uaddr, len(src), func(page []byte, off, pos, cnt int) {
		copy(page[off:off+cnt], src[pos:pos+cnt])
	})
}

// CopyInStr 读取以 0 结尾的字符串，最多 max 字节 (含结尾的 0)
// 未映射返回 EFAULT，max 字节内没有结尾时返回 ENAMETOOLONG
func (as *AddressSpace) CopyInStr(uaddr uint32, max int) (string, error) {
	buf := make([]byte, 0, 64)
	for i := 0; i < max; i++ {
		addr := uint64(uaddr) + uint64(i)
		if addr >= 1<<32 {
			return "", unix.EFAULT
		}
		page, ok := as.pages[pageOf(uint32(addr))]
		if !ok {
			return "", unix.EFAULT
		}
		c := page[addr%PageSize]
		if c == 0 {
			return string(buf), nil
		}
		buf = append(buf, c)
	}
	return "", unix.ENAMETOOLONG
}
