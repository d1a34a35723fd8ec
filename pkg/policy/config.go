package policy

// Config 是策略的配置文件形式
type Config struct {
	Readable []string       `yaml:"readable"`
	Statable []string       `yaml:"statable"`
	SoftBan  []string       `yaml:"soft_ban"`
	Counters map[string]int `yaml:"counters"`
}

// Handler 按配置构建 Handler，三个路径列表都为空时不限制路径
// 相对路径基于 workPath 展开
func (c *Config) Handler(workPath string) *Handler {
	if c == nil {
		return nil
	}
	h := new(Handler)
	if len(c.Readable)+len(c.Statable)+len(c.SoftBan) > 0 {
		fs := NewFileSets()
		fs.Readable.AddRange(c.Readable, workPath)
		fs.Statable.AddRange(c.Statable, workPath)
		fs.SoftBan.AddRange(c.SoftBan, workPath)
		h.FileSet = fs
	}
	if len(c.Counters) > 0 {
		h.SyscallCounter = NewSyscallCounter()
		h.SyscallCounter.AddRange(c.Counters)
	}
	return h
}
