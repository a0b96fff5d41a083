package engine

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sigreer/ledgod/internal/device"
	"github.com/sigreer/ledgod/internal/ibpi"
)

// Transport pushes derived patterns to hardware. The dispatch layer
// implements it; tests substitute a recorder.
type Transport interface {
	Send(b *device.BlockDevice, p ibpi.Pattern) error
	Flush(b *device.BlockDevice) error
}

// tracked is one drive remembered across scan passes, with the array it was
// last known to belong to.
type tracked struct {
	block *device.BlockDevice
	raid  *RaidDevice
}

// Monitor keeps LED state alive across scans: a drive that disappears keeps
// its failure visible, a drive that recovers gets exactly one clearing write.
type Monitor struct {
	transport Transport
	tracked   []*tracked
}

func NewMonitor(t Transport) *Monitor {
	return &Monitor{transport: t}
}

// find matches a scanned drive against the tracked list.
func (m *Monitor) find(b *device.BlockDevice) *tracked {
	for _, t := range m.tracked {
		if device.Compare(t.block, b) {
			return t
		}
	}
	return nil
}

// updatePattern applies one scan's derived pattern on top of the remembered
// one. Oneshot states decay toward Unknown; a remembered failure is sticky
// until the drive reports anything but hotspare.
func updatePattern(remembered, derived ibpi.Pattern) ibpi.Pattern {
	switch {
	case remembered == ibpi.Added:
		return ibpi.OneshotNormal
	case remembered == ibpi.OneshotNormal:
		return ibpi.Unknown
	case remembered != ibpi.FailedDrive:
		if derived == ibpi.Unknown {
			if remembered != ibpi.Unknown && remembered != ibpi.Normal {
				return ibpi.OneshotNormal
			}
			return ibpi.Unknown
		}
		return derived
	case derived != ibpi.Hotspare:
		return derived
	}
	return remembered
}

// handleFailState reconciles the tracked drive's array membership with the
// current scan, deriving failure or hotspare states for drives that moved
// between volume and container.
func (m *Monitor) handleFailState(t *tracked, scanRaid *RaidDevice, s *Snapshot) {
	if t.raid == nil {
		t.raid = scanRaid.Duplicate()
	}
	if t.raid == nil {
		return
	}
	current := s.FindVolume(t.raid.SysfsPath)

	if scanRaid == nil {
		if t.raid.Type == TypeVolume && current != nil {
			// removed from a still-running volume (mdadm -If)
			t.block.IBPI = ibpi.FailedDrive
			// flag the association so a return to the container
			// clears the failure
			t.raid.Type = TypeContainer
		} else {
			// back in the container, or the volume is gone
			t.raid = nil
		}
		return
	}

	if t.raid.Type == TypeVolume && scanRaid.Type == TypeContainer {
		newLevel := LevelUnknown
		if current != nil {
			newLevel = current.Level
		}
		if (t.raid.Level == Level10 || t.raid.Level == Level1) &&
			newLevel == Level0 {
			// volume migrated to raid0, the drive became a spare
			t.block.IBPI = ibpi.Hotspare
		} else if current != nil {
			// dropped from a volume that still runs
			t.block.IBPI = ibpi.FailedDrive
		}
	} else if t.raid.Type == TypeContainer && scanRaid.Type == TypeVolume {
		t.raid = scanRaid.Duplicate()
	}
}

// addBlock folds one scanned drive into the tracked list.
func (m *Monitor) addBlock(b *device.BlockDevice, s *Snapshot) {
	t := m.find(b)
	if t == nil {
		t = &tracked{block: b.Duplicate(), raid: s.RaidOf(b).Duplicate()}
		log.WithFields(log.Fields{
			"device": t.block.Name(),
			"state":  t.block.IBPI.String(),
		}).Info("new device")
		m.tracked = append(m.tracked, t)
		return
	}

	prev := t.block.IBPI
	t.block.Timestamp = b.Timestamp
	t.block.IBPI = updatePattern(t.block.IBPI, b.IBPI)
	m.handleFailState(t, s.RaidOf(b), s)

	if prev != t.block.IBPI && prev <= ibpi.Removed {
		log.WithFields(log.Fields{
			"device": t.block.Name(),
			"from":   prev.String(),
			"to":     t.block.IBPI.String(),
		}).Info("state change")
	}
	if t.block.SysfsPath != b.SysfsPath {
		log.WithFields(log.Fields{
			"from": t.block.SysfsPath,
			"to":   b.SysfsPath,
		}).Info("device name changed")
		t.block.SysfsPath = b.SysfsPath
	}
}

// sendMsg pushes a tracked drive's pattern. A drive missing from the current
// scan is promoted to the failed rendering before sending.
func (m *Monitor) sendMsg(t *tracked, ts time.Time) {
	b := t.block
	if b.Cntrl == nil {
		log.WithField("device", b.Name()).
			Debug("missing controller, not sending")
		return
	}
	if !b.Timestamp.Equal(ts) || b.IBPI == ibpi.Removed {
		if b.IBPI != ibpi.FailedDrive {
			log.WithFields(log.Fields{
				"device": b.Name(),
				"from":   b.IBPI.String(),
				"to":     ibpi.FailedDrive.String(),
			}).Info("device detached")
			b.IBPI = ibpi.FailedDrive
		} else {
			log.WithField("device", b.Name()).
				Debug("detached device in failed state")
		}
	}
	if err := m.transport.Send(b, b.IBPI); err != nil {
		log.WithField("device", b.Name()).WithError(err).Debug("send failed")
	}
	b.IBPIPrev = b.IBPI
}

// Execute runs one monitor pass over a derived snapshot: revalidate tracked
// drives, fold in the scan, send and flush, then drop the list when any
// tracked drive lost its controller.
func (m *Monitor) Execute(s *Snapshot) {
	for _, t := range m.tracked {
		t.block.Revalidate(s.Registry)
	}
	for _, b := range s.Registry.Blocks {
		m.addBlock(b, s)
	}
	for _, t := range m.tracked {
		m.sendMsg(t, s.Registry.Timestamp)
	}
	for _, t := range m.tracked {
		if t.block.Cntrl != nil {
			if err := m.transport.Flush(t.block); err != nil {
				log.WithField("device", t.block.Name()).
					WithError(err).Debug("flush failed")
			}
		}
	}

	restart := false
	for _, t := range m.tracked {
		if t.block.Cntrl == nil {
			restart = true
			break
		}
	}
	if restart {
		m.tracked = nil
		return
	}
	for _, t := range m.tracked {
		t.block.Invalidate()
	}
}

// Tracked returns the drives currently remembered, for status listings.
func (m *Monitor) Tracked() []*device.BlockDevice {
	out := make([]*device.BlockDevice, 0, len(m.tracked))
	for _, t := range m.tracked {
		out = append(out, t.block)
	}
	return out
}
