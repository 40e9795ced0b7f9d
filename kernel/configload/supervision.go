package configload

import (
	"bytes"
	"time"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/xerrors"
)

// writeSupervisionConfig appends one process group's monitor and
// supervision definitions (orig §3's "monitor interfaces, checkpoints,
// alive/deadline/logical/local/global supervisions, recovery
// notifications") to buf, following the same flat record shape as the rest
// of the process-group payload.
func writeSupervisionConfig(buf *bytes.Buffer, g *configmodel.ProcessGroup) {
	writeU32(buf, uint32(len(g.Monitors)))
	for _, m := range g.Monitors {
		writeU64(buf, uint64(m.Process))
		writeU32(buf, m.UID)
		writeU32(buf, m.RingSize)
	}

	writeU32(buf, uint32(len(g.Alives)))
	for _, a := range g.Alives {
		writeU64(buf, uint64(a.Name))
		writeU32List(buf, a.Producers)
		writeU64(buf, uint64(a.ReferenceCycle))
		writeU32(buf, a.MinIndications)
		writeU32(buf, a.MaxIndications)
		writeBool(buf, a.MinDisabled)
		writeBool(buf, a.MaxDisabled)
		writeU32(buf, a.FailedCyclesTolerance)
	}

	writeU32(buf, uint32(len(g.Deadlines)))
	for _, d := range g.Deadlines {
		writeU64(buf, uint64(d.Name))
		writeU32List(buf, d.Producers)
		writeU32(buf, d.SourceCheckpointID)
		writeU32(buf, d.TargetCheckpointID)
		writeU64(buf, uint64(d.MinDeadline))
		writeU64(buf, uint64(d.MaxDeadline))
		writeBool(buf, d.MinDisabled)
		writeBool(buf, d.MaxDisabled)
	}

	writeU32(buf, uint32(len(g.Logicals)))
	for _, l := range g.Logicals {
		writeU64(buf, uint64(l.Name))
		writeU32List(buf, l.Producers)
		writeU32(buf, uint32(len(l.Successors)))
		for key, vals := range l.Successors {
			writeU32(buf, key)
			writeU32List(buf, vals)
		}
		writeU32List(buf, l.Entries)
		writeU32List(buf, l.Finals)
	}

	writeU32(buf, uint32(len(g.Locals)))
	for _, loc := range g.Locals {
		writeU64(buf, uint64(loc.Name))
		writeHashList(buf, loc.Alives)
		writeHashList(buf, loc.Deadlines)
		writeHashList(buf, loc.Logicals)
	}

	writeHashList(buf, g.Global.Locals)
	writeU64(buf, uint64(g.Global.InitialTolerance))
	writeU32(buf, uint32(len(g.Global.StateTolerances)))
	for name, tol := range g.Global.StateTolerances {
		writeU64(buf, uint64(name))
		writeU64(buf, uint64(tol))
	}

	writeStr16(buf, g.Recovery.ConfigName)
	writeStr16(buf, g.Recovery.ServiceInstance)
	writeU64(buf, uint64(g.Recovery.Timeout))
}

// decodeSupervisionConfig reads the section written by
// writeSupervisionConfig into g.
func decodeSupervisionConfig(r *byteReader, g *configmodel.ProcessGroup) error {
	monitorCount, err := r.u32()
	if err != nil {
		return xerrors.New(xerrors.ErrConfiguration, uint64(g.Name), "truncated monitor count")
	}
	for i := uint32(0); i < monitorCount; i++ {
		proc, _ := r.u64()
		uid, _ := r.u32()
		ringSize, _ := r.u32()
		g.Monitors = append(g.Monitors, configmodel.MonitorConfig{
			Process: idhash.Hash(proc), UID: uid, RingSize: ringSize,
		})
	}

	aliveCount, err := r.u32()
	if err != nil {
		return xerrors.New(xerrors.ErrConfiguration, uint64(g.Name), "truncated alive count")
	}
	for i := uint32(0); i < aliveCount; i++ {
		name, _ := r.u64()
		producers, err := r.u32List()
		if err != nil {
			return xerrors.New(xerrors.ErrConfiguration, name, "truncated alive producers")
		}
		cycleNs, _ := r.u64()
		minInd, _ := r.u32()
		maxInd, _ := r.u32()
		minDisabled, _ := r.boolean()
		maxDisabled, _ := r.boolean()
		tolerance, _ := r.u32()
		g.Alives = append(g.Alives, configmodel.AliveSupervisionConfig{
			Name:                  idhash.Hash(name),
			Producers:             producers,
			ReferenceCycle:        time.Duration(cycleNs),
			MinIndications:        minInd,
			MaxIndications:        maxInd,
			MinDisabled:           minDisabled,
			MaxDisabled:           maxDisabled,
			FailedCyclesTolerance: tolerance,
		})
	}

	deadlineCount, err := r.u32()
	if err != nil {
		return xerrors.New(xerrors.ErrConfiguration, uint64(g.Name), "truncated deadline count")
	}
	for i := uint32(0); i < deadlineCount; i++ {
		name, _ := r.u64()
		producers, err := r.u32List()
		if err != nil {
			return xerrors.New(xerrors.ErrConfiguration, name, "truncated deadline producers")
		}
		srcID, _ := r.u32()
		tgtID, _ := r.u32()
		minNs, _ := r.u64()
		maxNs, _ := r.u64()
		minDisabled, _ := r.boolean()
		maxDisabled, _ := r.boolean()
		g.Deadlines = append(g.Deadlines, configmodel.DeadlineSupervisionConfig{
			Name:               idhash.Hash(name),
			Producers:          producers,
			SourceCheckpointID: srcID,
			TargetCheckpointID: tgtID,
			MinDeadline:        time.Duration(minNs),
			MaxDeadline:        time.Duration(maxNs),
			MinDisabled:        minDisabled,
			MaxDisabled:        maxDisabled,
		})
	}

	logicalCount, err := r.u32()
	if err != nil {
		return xerrors.New(xerrors.ErrConfiguration, uint64(g.Name), "truncated logical count")
	}
	for i := uint32(0); i < logicalCount; i++ {
		name, _ := r.u64()
		producers, err := r.u32List()
		if err != nil {
			return xerrors.New(xerrors.ErrConfiguration, name, "truncated logical producers")
		}
		successorCount, _ := r.u32()
		successors := make(map[uint32][]uint32, successorCount)
		for s := uint32(0); s < successorCount; s++ {
			key, _ := r.u32()
			vals, err := r.u32List()
			if err != nil {
				return xerrors.New(xerrors.ErrConfiguration, name, "truncated logical successors")
			}
			successors[key] = vals
		}
		entries, err := r.u32List()
		if err != nil {
			return xerrors.New(xerrors.ErrConfiguration, name, "truncated logical entries")
		}
		finals, err := r.u32List()
		if err != nil {
			return xerrors.New(xerrors.ErrConfiguration, name, "truncated logical finals")
		}
		g.Logicals = append(g.Logicals, configmodel.LogicalSupervisionConfig{
			Name:       idhash.Hash(name),
			Producers:  producers,
			Successors: successors,
			Entries:    entries,
			Finals:     finals,
		})
	}

	localCount, err := r.u32()
	if err != nil {
		return xerrors.New(xerrors.ErrConfiguration, uint64(g.Name), "truncated local count")
	}
	for i := uint32(0); i < localCount; i++ {
		name, _ := r.u64()
		alives, err := r.hashList()
		if err != nil {
			return xerrors.New(xerrors.ErrConfiguration, name, "truncated local alive refs")
		}
		deadlines, err := r.hashList()
		if err != nil {
			return xerrors.New(xerrors.ErrConfiguration, name, "truncated local deadline refs")
		}
		logicals, err := r.hashList()
		if err != nil {
			return xerrors.New(xerrors.ErrConfiguration, name, "truncated local logical refs")
		}
		g.Locals = append(g.Locals, configmodel.LocalSupervisionConfig{
			Name: idhash.Hash(name), Alives: alives, Deadlines: deadlines, Logicals: logicals,
		})
	}

	globalLocals, err := r.hashList()
	if err != nil {
		return xerrors.New(xerrors.ErrConfiguration, uint64(g.Name), "truncated global locals")
	}
	initialToleranceNs, _ := r.u64()
	stateToleranceCount, err := r.u32()
	if err != nil {
		return xerrors.New(xerrors.ErrConfiguration, uint64(g.Name), "truncated global state tolerances")
	}
	stateTolerances := make(map[idhash.Hash]time.Duration, stateToleranceCount)
	for i := uint32(0); i < stateToleranceCount; i++ {
		name, _ := r.u64()
		tolNs, _ := r.u64()
		stateTolerances[idhash.Hash(name)] = time.Duration(tolNs)
	}
	g.Global = configmodel.GlobalSupervisionConfig{
		Locals:           globalLocals,
		InitialTolerance: time.Duration(initialToleranceNs),
		StateTolerances:  stateTolerances,
	}

	configName, err := r.str16()
	if err != nil {
		return xerrors.New(xerrors.ErrConfiguration, uint64(g.Name), "truncated recovery config name")
	}
	serviceInstance, err := r.str16()
	if err != nil {
		return xerrors.New(xerrors.ErrConfiguration, uint64(g.Name), "truncated recovery service instance")
	}
	timeoutNs, _ := r.u64()
	g.Recovery = configmodel.RecoverySupervisionConfig{
		ConfigName:      configName,
		ServiceInstance: serviceInstance,
		Timeout:         time.Duration(timeoutNs),
	}
	return nil
}

func writeU32List(buf *bytes.Buffer, vs []uint32) {
	writeU32(buf, uint32(len(vs)))
	for _, v := range vs {
		writeU32(buf, v)
	}
}

func writeHashList(buf *bytes.Buffer, vs []idhash.Hash) {
	writeU32(buf, uint32(len(vs)))
	for _, v := range vs {
		writeU64(buf, uint64(v))
	}
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func (r *byteReader) boolean() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

func (r *byteReader) u32List() ([]uint32, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	vs := make([]uint32, n)
	for i := range vs {
		vs[i], err = r.u32()
		if err != nil {
			return nil, err
		}
	}
	return vs, nil
}

func (r *byteReader) hashList() ([]idhash.Hash, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	vs := make([]idhash.Hash, n)
	for i := range vs {
		v, err := r.u64()
		if err != nil {
			return nil, err
		}
		vs[i] = idhash.Hash(v)
	}
	return vs, nil
}
