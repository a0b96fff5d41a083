// Package npem drives drive bay LEDs through the PCIe Native Enclosure
// Management extended capability. Registers are accessed via the device's
// sysfs config file, so no external PCI library is needed.
package npem

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sigreer/ledgod/internal/ibpi"
)

const (
	extCapID = 0x29

	capReg    = 0x04
	ctrlReg   = 0x08
	statusReg = 0x0c

	capNPEM     = 0x001
	capOK       = 0x004
	capLocate   = 0x008
	capFail     = 0x010
	capRebuild  = 0x020
	capPFA      = 0x040
	capHotspare = 0x080
	capCRA      = 0x100
	capFA       = 0x200

	reservedMask = ^uint32(0xfff)

	statusCC = 0x01

	extCfgStart = 0x100

	// PCIe r4.0 sec 7.9.20.4: wait up to a second for command completion
	// before issuing the next command.
	commandTimeout = time.Second
	commandPoll    = 10 * time.Millisecond
)

var (
	ErrPatternRange = errors.New("pattern outside npem range")
	ErrNotSupported = errors.New("pattern not supported by npem controller")
	ErrNoCapability = errors.New("device has no npem capability")
)

type capEntry struct {
	pattern ibpi.Pattern
	bit     uint32
}

// capabilityTable is ordered; state decoding returns the first entry whose
// bit is latched in the control register. OneshotNormal and LocateOff share
// capOK with Normal, so decoding a latched capOK always reports Normal.
var capabilityTable = []capEntry{
	{ibpi.Normal, capOK},
	{ibpi.OneshotNormal, capOK},
	{ibpi.Degraded, capCRA},
	{ibpi.Hotspare, capHotspare},
	{ibpi.Rebuild, capRebuild},
	{ibpi.FailedArray, capFA},
	{ibpi.PFA, capPFA},
	{ibpi.FailedDrive, capFail},
	{ibpi.Locate, capLocate},
	{ibpi.LocateOff, capOK},
}

// CapabilityBit resolves the control bit for a pattern.
func CapabilityBit(p ibpi.Pattern) (uint32, error) {
	if p < ibpi.Normal || p > ibpi.LocateOff {
		return 0, ErrPatternRange
	}
	for _, e := range capabilityTable {
		if e.pattern == p {
			return e.bit, nil
		}
	}
	return 0, ErrNotSupported
}

// DecodeControl maps a latched control register back to a pattern.
func DecodeControl(reg uint32) ibpi.Pattern {
	for _, e := range capabilityTable {
		if reg&e.bit != 0 {
			return e.pattern
		}
	}
	return ibpi.Unknown
}

// device wraps one open PCI config space.
type device struct {
	f      *os.File
	capOff int64
}

func openDevice(pciPath string) (*device, error) {
	f, err := os.OpenFile(filepath.Join(pciPath, "config"), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	d := &device{f: f}
	d.capOff, err = d.findCapability()
	if err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

func (d *device) close() { d.f.Close() }

func (d *device) readDword(off int64) (uint32, error) {
	var buf [4]byte
	if _, err := d.f.ReadAt(buf[:], off); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (d *device) writeDword(off int64, val uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], val)
	_, err := d.f.WriteAt(buf[:], off)
	return err
}

// findCapability walks the extended capability chain from 0x100.
func (d *device) findCapability() (int64, error) {
	off := int64(extCfgStart)
	for off != 0 {
		hdr, err := d.readDword(off)
		if err != nil || hdr == 0 {
			return 0, ErrNoCapability
		}
		if hdr&0xffff == extCapID {
			return off, nil
		}
		off = int64(hdr >> 20)
	}
	return 0, ErrNoCapability
}

func (d *device) readReg(reg int64) (uint32, error) {
	return d.readDword(d.capOff + reg)
}

func (d *device) writeReg(reg int64, val uint32) error {
	return d.writeDword(d.capOff+reg, val)
}

// waitCommand polls the status register until the previous command completes
// or the one second budget runs out.
func (d *device) waitCommand() {
	deadline := time.Now().Add(commandTimeout)
	for {
		status, err := d.readReg(statusReg)
		if err != nil || status&statusCC != 0 {
			return
		}
		if time.Now().After(deadline) {
			return
		}
		time.Sleep(commandPoll)
	}
}

// IsCapable reports whether the PCI device at pciPath implements NPEM.
func IsCapable(pciPath string) bool {
	d, err := openDevice(pciPath)
	if err != nil {
		return false
	}
	defer d.close()
	cap, err := d.readReg(capReg)
	return err == nil && cap&capNPEM != 0
}

// GetState reads back the pattern latched in the control register.
func GetState(pciPath string) ibpi.Pattern {
	d, err := openDevice(pciPath)
	if err != nil {
		return ibpi.Unknown
	}
	defer d.close()
	reg, err := d.readReg(ctrlReg)
	if err != nil {
		return ibpi.Unknown
	}
	return DecodeControl(reg)
}

// SetSlot latches one pattern on the device. Reserved control bits are
// preserved; the enable bit rides along with the pattern bit.
func SetSlot(pciPath string, p ibpi.Pattern) error {
	bit, err := CapabilityBit(p)
	if err != nil {
		return err
	}
	d, err := openDevice(pciPath)
	if err != nil {
		return err
	}
	defer d.close()

	cap, err := d.readReg(capReg)
	if err != nil {
		return err
	}
	if cap&bit == 0 {
		log.WithFields(log.Fields{
			"device":  filepath.Base(pciPath),
			"pattern": p.String(),
		}).Info("npem controller does not support pattern")
		return ErrNotSupported
	}

	d.waitCommand()

	reg, err := d.readReg(ctrlReg)
	if err != nil {
		return err
	}
	val := (reg & reservedMask) | capNPEM | bit
	return d.writeReg(ctrlReg, val)
}
