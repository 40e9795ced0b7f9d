// Package configload reads the two flat binary configuration files of
// orig §6: the machine-level settings file and the per-process-group
// definitions file. Each file is a small self-describing envelope (format
// version, optional-brotli flag, payload length) framed with
// zombiezen.com/go/capnproto2's low-level message API, wrapping the actual
// typed records, which are decoded with encoding/binary — mirroring the
// teacher's own layered envelope-around-raw-buffer approach
// (kernel/threads/supervisor/sab_bridge.go's capnp request/response
// framing around a raw byte payload).
package configload

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/andybalholm/brotli"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/xerrors"
	"zombiezen.com/go/capnproto2"
)

const (
	envelopeFormatVersion uint32 = 1
	flagBrotli            uint32 = 1 << 0
)

// writeEnvelope frames payload behind a capnp-encoded header carrying the
// format version, compression flag and payload length, preceded by a
// 4-byte little-endian length of the capnp header bytes so the reader can
// split header from payload without relying on capnp's own stream framing.
func writeEnvelope(w io.Writer, payload []byte, compress bool) error {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return fmt.Errorf("configload: new message: %w", err)
	}
	root, err := capnp.NewRootStruct(seg, capnp.ObjectSize{DataSize: 16})
	if err != nil {
		return fmt.Errorf("configload: new root struct: %w", err)
	}
	flags := uint32(0)
	body := payload
	if compress {
		flags |= flagBrotli
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		if _, err := bw.Write(payload); err != nil {
			return fmt.Errorf("configload: brotli compress: %w", err)
		}
		if err := bw.Close(); err != nil {
			return fmt.Errorf("configload: brotli close: %w", err)
		}
		body = buf.Bytes()
	}
	root.SetUint32(0, envelopeFormatVersion)
	root.SetUint32(4, flags)
	root.SetUint64(8, uint64(len(body)))

	headerBytes, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("configload: marshal header: %w", err)
	}
	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(headerBytes)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	if _, err := w.Write(headerBytes); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// readEnvelope reads the envelope written by writeEnvelope and returns the
// decompressed payload.
func readEnvelope(r io.Reader) ([]byte, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, xerrors.New(xerrors.ErrConfiguration, 0, "truncated envelope length prefix")
	}
	headerLen := binary.LittleEndian.Uint32(lenPrefix[:])
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, xerrors.New(xerrors.ErrConfiguration, 0, "truncated envelope header")
	}
	msg, err := capnp.Unmarshal(headerBytes)
	if err != nil {
		return nil, xerrors.New(xerrors.ErrConfiguration, 0, "malformed envelope header: "+err.Error())
	}
	rootPtr, err := msg.Root()
	if err != nil {
		return nil, xerrors.New(xerrors.ErrConfiguration, 0, "missing envelope root")
	}
	st := rootPtr.Struct()
	version := st.Uint32(0)
	if version != envelopeFormatVersion {
		return nil, xerrors.New(xerrors.ErrConfiguration, 0, fmt.Sprintf("unsupported envelope version %d", version))
	}
	flags := st.Uint32(4)
	payloadLen := st.Uint64(8)

	body := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, xerrors.New(xerrors.ErrConfiguration, 0, "truncated envelope payload")
	}
	if flags&flagBrotli != 0 {
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, xerrors.New(xerrors.ErrConfiguration, 0, "brotli decompress: "+err.Error())
		}
		return out, nil
	}
	return body, nil
}

// LoadMachineConfig reads the machine-level settings file at path.
func LoadMachineConfig(path string) (*configmodel.MachineConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("configload: open %s: %w", path, err)
	}
	defer f.Close()
	payload, err := readEnvelope(f)
	if err != nil {
		return nil, err
	}
	return decodeMachineConfig(payload)
}

// machineConfig fixed binary layout: watchdogPathLen u16, watchdogPath
// bytes, cycleTimeNs u64, checkpointRingCap u32, processStateRingCap u32.
func decodeMachineConfig(b []byte) (*configmodel.MachineConfig, error) {
	if len(b) < 2 {
		return nil, xerrors.New(xerrors.ErrConfiguration, 0, "machine config truncated")
	}
	pathLen := int(binary.LittleEndian.Uint16(b[0:2]))
	off := 2
	if len(b) < off+pathLen+16 {
		return nil, xerrors.New(xerrors.ErrConfiguration, 0, "machine config truncated")
	}
	path := string(b[off : off+pathLen])
	off += pathLen
	cycleNs := binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	ckptCap := binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	psCap := binary.LittleEndian.Uint32(b[off : off+4])

	return &configmodel.MachineConfig{
		WatchdogDevicePath:  path,
		CycleTime:           nsToDuration(cycleNs),
		CheckpointRingCap:   ckptCap,
		ProcessStateRingCap: psCap,
	}, nil
}

// LoadProcessGroups reads the per-process-group definitions file at path.
func LoadProcessGroups(path string) ([]*configmodel.ProcessGroup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("configload: open %s: %w", path, err)
	}
	defer f.Close()
	payload, err := readEnvelope(f)
	if err != nil {
		return nil, err
	}
	groups, err := decodeProcessGroups(payload)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if verr := g.Validate(); verr != nil {
			return nil, verr
		}
	}
	return groups, nil
}

// decodeProcessGroups parses the process-group definitions payload.
// Layout: u32 groupCount, then per group:
//   u64 name, u64 cluster, u64 offState, u64 recoveryState,
//   u32 stateCount, per state: u64 name, u32 activeCount, [u32 index]*,
//   u32 processCount, per process: u64 processID, u32 uniqueIndex,
//     u16 execPathLen, [bytes], u32 startupTimeoutMs, u32 terminationTimeoutMs,
//     u32 restartAttempts, u32 execErrCode, bool isSelfTerminating,
//     u32 depCount, per dep: u8 trigger, u64 targetProcess, u32 targetIndex.
func decodeProcessGroups(b []byte) ([]*configmodel.ProcessGroup, error) {
	r := &byteReader{b: b}
	groupCount, err := r.u32()
	if err != nil {
		return nil, xerrors.New(xerrors.ErrConfiguration, 0, "truncated group count")
	}
	groups := make([]*configmodel.ProcessGroup, 0, groupCount)
	for i := uint32(0); i < groupCount; i++ {
		g := &configmodel.ProcessGroup{}
		name, _ := r.u64()
		cluster, _ := r.u64()
		off, _ := r.u64()
		rec, _ := r.u64()
		g.Name = idhash.Hash(name)
		g.SoftwareCluster = idhash.Hash(cluster)
		g.OffState = idhash.Hash(off)
		g.RecoveryState = idhash.Hash(rec)

		stateCount, err := r.u32()
		if err != nil {
			return nil, xerrors.New(xerrors.ErrConfiguration, name, "truncated state count")
		}
		for s := uint32(0); s < stateCount; s++ {
			stName, _ := r.u64()
			activeCount, _ := r.u32()
			active := make([]uint32, activeCount)
			for a := range active {
				active[a], _ = r.u32()
			}
			g.States = append(g.States, configmodel.ProcessGroupState{
				Name: idhash.Hash(stName), ActiveProcesses: active,
			})
		}

		processCount, err := r.u32()
		if err != nil {
			return nil, xerrors.New(xerrors.ErrConfiguration, name, "truncated process count")
		}
		for p := uint32(0); p < processCount; p++ {
			procID, _ := r.u64()
			uniqueIdx, _ := r.u32()
			execPath, err := r.str16()
			if err != nil {
				return nil, xerrors.New(xerrors.ErrConfiguration, procID, "truncated exec path")
			}
			startupMs, _ := r.u32()
			termMs, _ := r.u32()
			restartAttempts, _ := r.u32()
			execErr, _ := r.u32()
			isSelfTerm, _ := r.u8()

			depCount, _ := r.u32()
			deps := make([]configmodel.Dependency, 0, depCount)
			for d := uint32(0); d < depCount; d++ {
				trigger, _ := r.u8()
				target, _ := r.u64()
				targetIdx, _ := r.u32()
				state := configmodel.StateRunning
				if trigger == 1 {
					state = configmodel.StateTerminated
				}
				deps = append(deps, configmodel.Dependency{
					Trigger:       state,
					TargetProcess: idhash.Hash(target),
					TargetIndex:   targetIdx,
				})
			}

			g.Processes = append(g.Processes, configmodel.OsProcess{
				ProcessID:   idhash.Hash(procID),
				UniqueIndex: uniqueIdx,
				Startup: configmodel.OsalConfig{
					ExecutablePath: execPath,
				},
				Manager: configmodel.PgManagerConfig{
					IsSelfTerminating:  isSelfTerm != 0,
					StartupTimeout:     msToDuration(startupMs),
					TerminationTimeout: msToDuration(termMs),
					RestartAttempts:    restartAttempts,
					ExecutionErrorCode: execErr,
				},
				Dependencies: deps,
			})
		}

		if err := decodeSupervisionConfig(r, g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if r.err != nil {
		return nil, xerrors.New(xerrors.ErrConfiguration, 0, "truncated process group payload")
	}
	return groups, nil
}
