// Package dispatch routes derived patterns to the encoder of each drive's
// controller family, tracks what was last sent, and batches the flushes of
// the buffered protocols.
package dispatch

import (
	"errors"
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/sigreer/ledgod/internal/ahci"
	"github.com/sigreer/ledgod/internal/amd"
	"github.com/sigreer/ledgod/internal/dell"
	"github.com/sigreer/ledgod/internal/device"
	"github.com/sigreer/ledgod/internal/ibpi"
	"github.com/sigreer/ledgod/internal/npem"
	"github.com/sigreer/ledgod/internal/vmd"
)

var (
	ErrNoController = errors.New("device has no controller")
	ErrNoEnclosure  = errors.New("device is not enclosure managed")
	ErrNoHost       = errors.New("device has no sgpio host")
)

// Dispatcher sends patterns through the per-family encoders.
type Dispatcher struct {
	// ExtendedAHCI enables the vendor-extended AHCI message table for
	// patterns the standard registers cannot express.
	ExtendedAHCI bool
}

// pciAddress splits a controller's PCI function name into bus, device and
// function numbers.
func pciAddress(cntrlPath string) (bus, dev, fn int, err error) {
	var domain int
	_, err = fmt.Sscanf(filepath.Base(cntrlPath), "%x:%x:%x.%x",
		&domain, &bus, &dev, &fn)
	return bus, dev, fn, err
}

// Send pushes one pattern to the drive's LED. Identical consecutive requests
// are dropped; buffered families only stage here and transmit on Flush.
func (d *Dispatcher) Send(b *device.BlockDevice, p ibpi.Pattern) error {
	if b.Cntrl == nil {
		return ErrNoController
	}
	if p == b.IBPIPrev {
		return nil
	}

	switch b.Cntrl.Type {
	case device.CntrlAHCI:
		return ahci.Write(b.CntrlPath, p, d.ExtendedAHCI)

	case device.CntrlSCSI:
		if device.DirectlyAttached(b.SysfsPath) {
			if b.Host == nil {
				return ErrNoHost
			}
			return b.Host.Fill(b.PhyIndex, p)
		}
		if b.Enclosure == nil || b.EnclIndex == -1 {
			return ErrNoEnclosure
		}
		return b.Enclosure.Stage(p, b.EnclIndex)

	case device.CntrlDellSSD:
		bus, dev, fn, err := pciAddress(b.Cntrl.SysfsPath)
		if err != nil {
			return err
		}
		return dell.SetLED(bus, dev, fn, p)

	case device.CntrlVMD:
		return vmd.SetSlot(b.SysfsPath, b.Cntrl.Domain, p)

	case device.CntrlNPEM:
		return npem.SetSlot(b.CntrlPath, p)

	case device.CntrlAMD:
		return amd.SetIBPI(b.SysfsPath, b.CntrlPath, p)
	}

	log.WithFields(log.Fields{
		"device": b.Name(),
		"type":   b.Cntrl.Type.String(),
	}).Warn("no encoder for controller family, skipping")
	return nil
}

// Flush transmits buffered state. Only the SCSI family batches: SMP hosts
// accumulate TX registers, enclosures accumulate control pages.
func (d *Dispatcher) Flush(b *device.BlockDevice) error {
	if b.Cntrl == nil || b.Cntrl.Type != device.CntrlSCSI {
		return nil
	}
	if device.DirectlyAttached(b.SysfsPath) {
		if b.Host == nil {
			return ErrNoHost
		}
		return b.Host.Flush()
	}
	if b.Enclosure == nil {
		return ErrNoEnclosure
	}
	return b.Enclosure.Flush()
}
