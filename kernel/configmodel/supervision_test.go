package configmodel

import (
	"testing"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupWithSupervision() *ProcessGroup {
	g := validGroup()
	aliveName := idhash.Of("alive-A")
	g.Alives = []AliveSupervisionConfig{
		{Name: aliveName, Producers: []uint32{0}, ReferenceCycle: 0, MaxIndications: 1},
	}
	localName := idhash.Of("local-A")
	g.Locals = []LocalSupervisionConfig{
		{Name: localName, Alives: []idhash.Hash{aliveName}},
	}
	g.Global = GlobalSupervisionConfig{Locals: []idhash.Hash{localName}}
	return g
}

func TestValidateSupervisionOK(t *testing.T) {
	require.NoError(t, groupWithSupervision().Validate())
}

func TestValidateSupervisionUnknownLocalRef(t *testing.T) {
	g := groupWithSupervision()
	g.Global.Locals = append(g.Global.Locals, idhash.Of("no-such-local"))
	assert.Error(t, g.Validate())
}

func TestValidateSupervisionUnknownAliveRef(t *testing.T) {
	g := groupWithSupervision()
	g.Locals[0].Alives = append(g.Locals[0].Alives, idhash.Of("no-such-alive"))
	assert.Error(t, g.Validate())
}

func TestValidateSupervisionProducerOutOfRange(t *testing.T) {
	g := groupWithSupervision()
	g.Alives[0].Producers = []uint32{99}
	assert.Error(t, g.Validate())
}
