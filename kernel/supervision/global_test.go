package supervision

import (
	"testing"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/observer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalDeactivatedToOK(t *testing.T) {
	g := NewGlobal(100)
	g.UpdateLocal("local1", OK, 0, ElemAlive, 0)
	assert.Equal(t, GOK, g.Status())
}

func TestGlobalWorstWins(t *testing.T) {
	g := NewGlobal(100)
	g.UpdateLocal("local1", OK, 0, ElemAlive, 0)
	g.UpdateLocal("local2", Failed, 5, ElemDeadline, 0)
	assert.Equal(t, GFailed, g.Status())
}

func TestGlobalExpiredThenDebounceToStopped(t *testing.T) {
	// invariant 9: from expired with tolerance T, no tick with
	// now-expired_start < T transitions to stopped; the first tick
	// satisfying >= T does.
	g := NewGlobal(100)
	g.UpdateLocal("local1", Expired, 9, ElemLogical, 0)
	require.Equal(t, GExpired, g.Status())

	g.Tick(50)
	assert.Equal(t, GExpired, g.Status())

	g.Tick(99)
	assert.Equal(t, GExpired, g.Status())

	g.Tick(100)
	assert.Equal(t, GStopped, g.Status())
}

func TestGlobalZeroToleranceImmediateStop(t *testing.T) {
	g := NewGlobal(0)
	g.UpdateLocal("local1", Expired, 1, ElemAlive, 10)
	g.Tick(10)
	assert.Equal(t, GStopped, g.Status())
}

func TestGlobalNeverExpireToleranceNeverStops(t *testing.T) {
	g := NewGlobal(NeverExpireTolerance)
	g.UpdateLocal("local1", Expired, 1, ElemAlive, 0)
	g.Tick(1 << 40)
	assert.Equal(t, GExpired, g.Status())
}

func TestGlobalStoppedDispatchesToRecoveryNotifier(t *testing.T) {
	g := NewGlobal(0)
	var got SupervisionErrorInfo
	g.AttachRecoveryNotifier(observer.ObserverFunc[SupervisionErrorInfo](func(e SupervisionErrorInfo) {
		got = e
	}))
	g.UpdateLocal("local1", Expired, 42, ElemDeadline, 0)
	g.Tick(0)
	assert.Equal(t, GStopped, g.Status())
	assert.Equal(t, uint32(42), got.FailedProcessExecutionError)
	assert.Equal(t, ElemDeadline, got.FailedSupervisionType)
}

func TestGlobalStoppedRecoversWhenAggregateMatches(t *testing.T) {
	g := NewGlobal(0)
	g.UpdateLocal("local1", Expired, 1, ElemAlive, 0)
	g.Tick(0)
	require.Equal(t, GStopped, g.Status())

	g.UpdateLocal("local1", OK, 0, ElemAlive, 1)
	assert.Equal(t, GOK, g.Status())
}
