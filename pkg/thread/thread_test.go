package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestSpawnAndExit(t *testing.T) {
	var s Scheduler
	reached := make(chan bool, 1)
	err := s.Spawn("unit", func() {
		defer func() { reached <- false }()
		s.Exit()
		reached <- true
	})
	assert.NoError(t, err)
	s.Wait()

	// Exit 之后的代码不会执行，但 defer 会
	assert.False(t, <-reached)
	assert.Equal(t, int64(0), s.Live())
}

func TestSpawnLimit(t *testing.T) {
	s := Scheduler{MaxUnits: 1}
	block := make(chan struct{})
	assert.NoError(t, s.Spawn("first", func() { <-block }))

	ran := false
	err := s.Spawn("second", func() { ran = true })
	assert.Equal(t, unix.ENOMEM, err)

	close(block)
	s.Wait()
	assert.False(t, ran)
}
