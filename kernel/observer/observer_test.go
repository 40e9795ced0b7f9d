package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifyDeliversInOrder(t *testing.T) {
	var o Observable[int]
	var got []int
	o.Attach(ObserverFunc[int](func(e int) { got = append(got, e*10) }))
	o.Attach(ObserverFunc[int](func(e int) { got = append(got, e*100) }))

	o.Notify(1)

	assert.Equal(t, []int{10, 100}, got)
}

func TestDetachStopsDelivery(t *testing.T) {
	var o Observable[int]
	calls := 0
	h := o.Attach(ObserverFunc[int](func(e int) { calls++ }))
	o.Detach(h)
	o.Notify(1)
	assert.Equal(t, 0, calls)
}
