package safego

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not complete within timeout")
	}
}

func TestGo_RunsFunction(t *testing.T) {
	var ran atomic.Bool
	wait(t, Go("test", func() { ran.Store(true) }))
	assert.True(t, ran.Load())
}

func TestGo_RecoversPanic(t *testing.T) {
	wait(t, Go("test", func() { panic("intentional panic in test") }))
}
