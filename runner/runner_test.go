package runner

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

var _ pflag.Value = (*Size)(nil)

func TestSizeSet(t *testing.T) {
	tests := []struct {
		in      string
		want    Size
		wantErr bool
	}{
		{in: "100", want: 100},
		{in: "1k", want: 1 << 10},
		{in: "64M", want: 64 << 20},
		{in: "2GB", want: 2 << 30},
		{in: "3kb", want: 3 << 10},
		{in: "", wantErr: true},
		{in: "B", wantErr: true},
		{in: "x1", wantErr: true},
		{in: "-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var s Size
			err := s.Set(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestSizeString(t *testing.T) {
	assert.Equal(t, "512 B", Size(512).String())
	assert.Equal(t, "1.5 KiB", Size(1536).String())
	assert.Equal(t, "64.0 MiB", Size(64<<20).String())
	assert.Equal(t, "2.0 GiB", Size(2<<30).String())
	assert.Equal(t, uint64(64), Size(64<<20).MiB())
}

func TestSizeYAML(t *testing.T) {
	var c struct {
		Memory Size `yaml:"memory"`
		Output Size `yaml:"output"`
	}
	assert.NoError(t, yaml.Unmarshal([]byte("memory: 16M\noutput: 4096\n"), &c))
	assert.Equal(t, Size(16<<20), c.Memory)
	assert.Equal(t, Size(4096), c.Output)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "关机", StatusHalted.String())
	assert.Equal(t, "无效", Status(99).String())
	assert.Equal(t, "运行器错误", StatusRunnerError.Error())
}

func TestResultString(t *testing.T) {
	r := Result{Status: StatusRunnerError, Error: "boom", SetUpTime: time.Millisecond}
	assert.Equal(t, "Result[RunnerFailed(boom)][1ms 0s]", r.String())

	r = Result{Status: StatusNormal, Memory: 4096, Processes: 2, Output: 13}
	assert.Equal(t, "Result[4.0 KiB forks=2 out=13 B][0s 0s]", r.String())
}
