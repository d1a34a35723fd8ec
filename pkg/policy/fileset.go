package policy

import (
	"path"
	"strings"
)

/*
FileSet 按目录层级保存路径权限：
	"/bin/hello"  只匹配这个文件
	"/bin/"       匹配 /bin 以及它下面的所有路径
	"/bin/*"      匹配 /bin 的直接子项
	"/"           匹配所有路径
*/
type FileSet struct {
	Set map[string]bool
}

// FilePerm 存储应用于文件的权限
type FilePerm int

// FilePermRead / Stat 是权限常量
const (
	FilePermRead FilePerm = iota + 1
	FilePermStat
)

// NewFileSet 创建新的文件集
func NewFileSet() FileSet {
	return FileSet{make(map[string]bool)}
}

/*
Contains 判断 name 是否在集合中，name 应当是绝对路径

	fs.Add("/usr/bin/*")
	Contains("/usr/bin/cc") 的处理过程：
	1. level=0: 检查 "/usr/bin/cc" 和 "/usr/bin/cc/"
	2. level=1: 检查 "/usr/bin/" 和 "/usr/bin/*" <- 匹配
	3. 否则继续检查 "/usr/"、"/"
*/
func (s *FileSet) Contains(name string) bool {
	if s.Set[name] {
		return true
	}
	name = path.Clean(name)
	if s.Set[name] {
		return true
	}
	for level := 0; ; level++ {
		dir := strings.TrimSuffix(name, "/") + "/"
		if s.Set[dir] {
			return true
		}
		if level == 1 && s.Set[dir+"*"] {
			return true
		}
		if name == "/" || name == "." {
			return false
		}
		name = path.Dir(name)
	}
}

// Add 将单个路径添加到 FileSet
func (s *FileSet) Add(name string) {
	s.Set[name] = true
}

// AddRange 将多个路径添加到 FileSet
// 相对路径基于 workPath 展开，并视为目录
func (s *FileSet) AddRange(names []string, workPath string) {
	for _, n := range names {
		if path.IsAbs(n) {
			s.Set[n] = true
		} else {
			s.Set[path.Join(workPath, n)+"/"] = true
		}
	}
}

// FileSets 聚合读取/状态/软禁止三类权限
// 不在软禁止集合中的违规访问直接终止进程
type FileSets struct {
	Readable, Statable, SoftBan FileSet
}

// NewFileSets 创建新的 FileSets 结构
func NewFileSets() *FileSets {
	return &FileSets{NewFileSet(), NewFileSet(), NewFileSet()}
}

// IsReadableFile 判断文件路径是否在读取集合中
func (s *FileSets) IsReadableFile(name string) bool {
	return s.Readable.Contains(name)
}

// IsStatableFile 判断文件路径是否在状态查看或读取集合中
func (s *FileSets) IsStatableFile(name string) bool {
	return s.IsReadableFile(name) || s.Statable.Contains(name)
}

// IsSoftBanFile 判断文件路径是否在软禁止集合中
func (s *FileSets) IsSoftBanFile(name string) bool {
	return s.SoftBan.Contains(name)
}

// AddFilePermission 根据给定的权限将文件添加到 fileSets
func (s *FileSets) AddFilePermission(name string, mode FilePerm) {
	switch mode {
	case FilePermRead:
		s.Readable.Add(name)
	case FilePermStat:
		s.Statable.Add(name)
	}
}
