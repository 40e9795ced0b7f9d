package configload

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
)

// SaveMachineConfig writes mc to path using the envelope format read by
// LoadMachineConfig. Primarily used by tests and by config-authoring
// tooling outside the daemon's read-only runtime path.
func SaveMachineConfig(path string, mc *configmodel.MachineConfig, compress bool) error {
	var buf bytes.Buffer
	var pathLen [2]byte
	binary.LittleEndian.PutUint16(pathLen[:], uint16(len(mc.WatchdogDevicePath)))
	buf.Write(pathLen[:])
	buf.WriteString(mc.WatchdogDevicePath)

	var rest [16]byte
	binary.LittleEndian.PutUint64(rest[0:8], uint64(mc.CycleTime))
	binary.LittleEndian.PutUint32(rest[8:12], mc.CheckpointRingCap)
	binary.LittleEndian.PutUint32(rest[12:16], mc.ProcessStateRingCap)
	buf.Write(rest[:])

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeEnvelope(f, buf.Bytes(), compress)
}

// SaveProcessGroups writes groups to path using the envelope format read
// by LoadProcessGroups.
func SaveProcessGroups(path string, groups []*configmodel.ProcessGroup, compress bool) error {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(groups)))
	for _, g := range groups {
		writeU64(&buf, uint64(g.Name))
		writeU64(&buf, uint64(g.SoftwareCluster))
		writeU64(&buf, uint64(g.OffState))
		writeU64(&buf, uint64(g.RecoveryState))

		writeU32(&buf, uint32(len(g.States)))
		for _, st := range g.States {
			writeU64(&buf, uint64(st.Name))
			writeU32(&buf, uint32(len(st.ActiveProcesses)))
			for _, idx := range st.ActiveProcesses {
				writeU32(&buf, idx)
			}
		}

		writeU32(&buf, uint32(len(g.Processes)))
		for _, p := range g.Processes {
			writeU64(&buf, uint64(p.ProcessID))
			writeU32(&buf, p.UniqueIndex)
			writeStr16(&buf, p.Startup.ExecutablePath)
			writeU32(&buf, uint32(p.Manager.StartupTimeout.Milliseconds()))
			writeU32(&buf, uint32(p.Manager.TerminationTimeout.Milliseconds()))
			writeU32(&buf, p.Manager.RestartAttempts)
			writeU32(&buf, p.Manager.ExecutionErrorCode)
			if p.Manager.IsSelfTerminating {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}

			writeU32(&buf, uint32(len(p.Dependencies)))
			for _, dep := range p.Dependencies {
				trigger := byte(0)
				if dep.Trigger == configmodel.StateTerminated {
					trigger = 1
				}
				buf.WriteByte(trigger)
				writeU64(&buf, uint64(dep.TargetProcess))
				writeU32(&buf, dep.TargetIndex)
			}
		}

		writeSupervisionConfig(&buf, g)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeEnvelope(f, buf.Bytes(), compress)
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeStr16(buf *bytes.Buffer, s string) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(len(s)))
	buf.Write(b[:])
	buf.WriteString(s)
}
