package kernel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics 只注册到内核实例自己的 registry，多个实例互不干扰
type metrics struct {
	registry  *prometheus.Registry
	syscalls  *prometheus.CounterVec
	forks     prometheus.Counter
	processes prometheus.Gauge
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		syscalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kernel_syscalls_total",
			Help: "System calls dispatched, by call and result.",
		}, []string{"call", "result"}),
		forks: factory.NewCounter(prometheus.CounterOpts{
			Name: "kernel_forks_total",
			Help: "Successful forks.",
		}),
		processes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kernel_processes",
			Help: "Processes that have been created and have not exited.",
		}),
	}
}

// syscall 的结果标签
const (
	resultOK       = "ok"
	resultError    = "error"
	resultNoReturn = "noreturn"
	resultKilled   = "killed"
)
