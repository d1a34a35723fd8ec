package usermode

import (
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/kernel/pkg/vfs"
	"github.com/zqzqsb/kernel/pkg/vm"
	"github.com/zqzqsb/kernel/proc"
)

// Loader 把 *Program 装入 vm 地址空间
type Loader struct{}

// Load 映射代码段和数据段，写入初始数据并返回入口地址
// 文件内容不是 *Program 时返回 ENOEXEC
func (Loader) Load(as proc.AddressSpace, v vfs.Vnode) (uint32, error) {
	prog, ok := v.Data().(*Program)
	if !ok || prog == nil {
		return 0, unix.ENOEXEC
	}
	space, ok := as.(*vm.AddressSpace)
	if !ok {
		return 0, unix.EINVAL
	}
	// 代码段只是为了让 EPC 落在已映射的页上
	if err := space.DefineRegion(TextBase, uint32(len(prog.Text)+1)*InsnWidth); err != nil {
		return 0, err
	}
	if len(prog.Data) > BSSBase-DataBase {
		return 0, unix.ENOEXEC
	}
	if err := space.DefineRegion(DataBase, uint32(len(prog.Data))); err != nil {
		return 0, err
	}
	if err := space.CopyOut(DataBase, prog.Data); err != nil {
		return 0, err
	}
	if err := space.DefineRegion(BSSBase, prog.BSS); err != nil {
		return 0, err
	}
	space.SetImage(prog)
	return TextBase, nil
}
