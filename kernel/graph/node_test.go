package graph

import (
	"testing"
	"time"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/stretchr/testify/assert"
)

func TestNodeAwaitStartupSignalled(t *testing.T) {
	n := newNode(0, &configmodel.OsProcess{})
	n.resetWaiters()
	go func() {
		time.Sleep(time.Millisecond)
		n.signalStarted()
	}()
	assert.True(t, n.awaitStartup(time.Second))
}

func TestNodeAwaitStartupTimeout(t *testing.T) {
	n := newNode(0, &configmodel.OsProcess{})
	n.resetWaiters()
	assert.False(t, n.awaitStartup(5*time.Millisecond))
}

func TestNodeSignalIsIdempotent(t *testing.T) {
	n := newNode(0, &configmodel.OsProcess{})
	n.resetWaiters()
	n.signalStarted()
	assert.NotPanics(t, func() { n.signalStarted() })
}

func TestNodeDecrementRemaining(t *testing.T) {
	n := newNode(0, &configmodel.OsProcess{})
	n.dependenciesRemaining = 2
	assert.Equal(t, uint32(1), n.decrementRemaining())
	assert.Equal(t, uint32(0), n.decrementRemaining())
}
