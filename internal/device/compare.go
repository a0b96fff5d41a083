package device

import (
	log "github.com/sirupsen/logrus"

	"github.com/sigreer/ledgod/internal/ibpi"
	"github.com/sigreer/ledgod/internal/vmd"
)

// hostIDSupported mirrors which protocols carry a scsi_host on the device
// path; the rest identify drives another way.
func hostIDSupported(b *BlockDevice) bool {
	if b.Cntrl == nil {
		return false
	}
	switch b.Cntrl.Type {
	case CntrlDellSSD, CntrlVMD, CntrlNPEM:
		return false
	}
	return true
}

// Compare reports whether two discovered drives are the same physical device.
// Kernel names move around across hotplug, so identity is judged by the
// protocol's stable coordinates instead of the path alone.
func Compare(prev, cur *BlockDevice) bool {
	if hostIDSupported(prev) && prev.HostID == -1 {
		log.WithField("path", prev.SysfsPath).Debug("device has no host id")
		return false
	}
	if hostIDSupported(cur) && cur.HostID == -1 {
		log.WithField("path", cur.SysfsPath).Debug("device has no host id")
		return false
	}
	if prev.Cntrl == nil || cur.Cntrl == nil ||
		prev.Cntrl.Type != cur.Cntrl.Type {
		return false
	}

	switch prev.Cntrl.Type {
	case CntrlAHCI:
		// no port multiplier support, the host is enough
		return prev.HostID == cur.HostID

	case CntrlSCSI:
		prevDirect := DirectlyAttached(prev.SysfsPath)
		curDirect := DirectlyAttached(cur.SysfsPath)
		if prevDirect != curDirect {
			return false
		}
		if prev.HostID != cur.HostID || prev.PhyIndex != cur.PhyIndex {
			return false
		}
		if prevDirect {
			return true
		}
		return prev.Enclosure == cur.Enclosure && prev.EnclIndex == cur.EnclIndex

	case CntrlVMD:
		if prev.SysfsPath == cur.SysfsPath {
			return true
		}
		prevSlot, err1 := vmd.FindSlot(prev.SysfsPath, prev.Cntrl.Domain)
		curSlot, err2 := vmd.FindSlot(cur.SysfsPath, cur.Cntrl.Domain)
		return err1 == nil && err2 == nil && prevSlot == curSlot

	case CntrlNPEM:
		return prev.CntrlPath == cur.CntrlPath

	default:
		return prev.SysfsPath == cur.SysfsPath
	}
}

// Duplicate copies a drive for tracking across scans. Unknown requests
// collapse to a one-shot normal so a fresh tracker clears the LED once.
func (b *BlockDevice) Duplicate() *BlockDevice {
	d := *b
	if b.IBPI == ibpi.Unknown {
		d.IBPI = ibpi.OneshotNormal
	}
	return &d
}

// Revalidate rebinds a tracked drive to the controllers of the current scan.
// The controller and host references go stale every pass.
func (b *BlockDevice) Revalidate(r *Registry) {
	b.Cntrl = r.ControllerFor(b.CntrlPath)
	if b.Cntrl == nil {
		log.WithFields(log.Fields{
			"path":       b.SysfsPath,
			"cntrl_path": b.CntrlPath,
		}).Debug("failed to get controller for device")
		return
	}
	if b.Cntrl.Type != CntrlSCSI {
		return
	}
	b.Host = b.Cntrl.Host(b.HostID)
	if b.Host == nil {
		log.WithFields(log.Fields{
			"path": b.SysfsPath,
			"host": b.HostID,
		}).Debug("failed to get host for device")
		b.Cntrl = nil
		return
	}
	if !DirectlyAttached(b.SysfsPath) {
		r.findEnclosure(b)
	}
}

// Invalidate clears the per-scan references.
func (b *BlockDevice) Invalidate() {
	b.Cntrl = nil
	b.Host = nil
	b.Enclosure = nil
	b.EnclIndex = -1
}
