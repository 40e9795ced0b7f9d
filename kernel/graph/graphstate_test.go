package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraphStateTransitionTable(t *testing.T) {
	cases := []struct {
		current, request, want State
	}{
		{Success, Success, Success},
		{Success, InTransition, InTransition},
		{Success, Aborting, Undefined},
		{Success, Cancelled, Undefined},
		{InTransition, Aborting, Aborting},
		{InTransition, Cancelled, Cancelled},
		{Aborting, Success, Undefined},
		{Aborting, Cancelled, Cancelled},
		{Aborting, Aborting, Aborting},
		{Cancelled, Success, Undefined},
		{Cancelled, Cancelled, Cancelled},
		{Undefined, InTransition, InTransition},
		{Undefined, Success, Undefined},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, next(c.current, c.request), "current=%v request=%v", c.current, c.request)
	}
}
