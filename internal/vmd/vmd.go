// Package vmd drives LEDs on NVMe drives behind Intel Volume Management
// Device domains. The pciehp slot of the drive exposes an attention
// attribute; the VMD LED nibble combines the attention and power indicators.
package vmd

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sigreer/ledgod/internal/ibpi"
	"github.com/sigreer/ledgod/internal/sysfs"
)

// Attention nibble values: bit pairs are (attention indicator, power
// indicator), each 01 on / 11 off.
const (
	AttentionOff     = 0xf
	AttentionLocate  = 0x7
	AttentionRebuild = 0x5
	AttentionFailure = 0xd
)

var (
	ErrPatternRange = errors.New("pattern outside vmd range")
	ErrNotSupported = errors.New("pattern not supported by vmd slot")
	ErrNoSlot       = errors.New("pci hotplug slot not found")
)

var attentionFor = map[ibpi.Pattern]int{
	ibpi.Normal:        AttentionOff,
	ibpi.OneshotNormal: AttentionOff,
	ibpi.LocateOff:     AttentionOff,
	ibpi.Locate:        AttentionLocate,
	ibpi.Rebuild:       AttentionRebuild,
	ibpi.FailedDrive:   AttentionFailure,
}

// Attention resolves the nibble for a pattern.
func Attention(p ibpi.Pattern) (int, error) {
	if p < ibpi.Normal || p > ibpi.LocateOff {
		return 0, ErrPatternRange
	}
	v, ok := attentionFor[p]
	if !ok {
		return 0, ErrNotSupported
	}
	return v, nil
}

// Decode maps an attention value back to the pattern it shows. Values
// outside the table decode to Unknown.
func Decode(attention int) ibpi.Pattern {
	switch attention {
	case AttentionOff:
		return ibpi.Normal
	case AttentionLocate:
		return ibpi.Locate
	case AttentionRebuild:
		return ibpi.Rebuild
	case AttentionFailure:
		return ibpi.FailedDrive
	default:
		return ibpi.Unknown
	}
}

// GetState reads the pattern currently latched on a pciehp slot directory.
func GetState(slotPath string) ibpi.Pattern {
	attention := sysfs.ReadInt(slotPath, -1, "attention")
	if attention == -1 {
		return ibpi.Unknown
	}
	return Decode(attention)
}

// WriteAttention pushes a pattern to a pciehp slot directory.
func WriteAttention(slotPath string, p ibpi.Pattern) error {
	value, err := Attention(p)
	if err != nil {
		return err
	}
	before := sysfs.ReadInt(slotPath, 0, "attention")
	if err := sysfs.WriteText(filepath.Join(slotPath, "attention"),
		strconv.Itoa(value)); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"slot":   filepath.Base(slotPath),
		"before": before,
		"after":  value,
	}).Debug("vmd attention updated")
	return nil
}

// slotAddressOf extracts the PCI address of the hotplug slot a drive sits
// in: the path component right before the nvme subdirectory, with the
// function suffix stripped.
func slotAddressOf(devPath string) string {
	parts := strings.Split(devPath, "/")
	addr := ""
	for i := 0; i < len(parts); i++ {
		if parts[i] == "nvme" && i > 0 {
			addr = parts[i-1]
			break
		}
	}
	if addr == "" && len(parts) > 0 {
		addr = parts[len(parts)-1]
	}
	if j := strings.IndexByte(addr, '.'); j >= 0 {
		addr = addr[:j]
	}
	return addr
}

// FindSlot locates the pciehp slot directory holding the drive at devPath.
// When domain is non-empty the slot address must belong to that VMD domain.
func FindSlot(devPath, domain string) (string, error) {
	want := slotAddressOf(devPath)
	if want == "" {
		return "", ErrNoSlot
	}
	for _, slot := range sysfs.ScanDir("/sys/bus/pci/slots") {
		address := sysfs.ReadText(slot, "address")
		if address != want {
			continue
		}
		if domain != "" && !strings.HasPrefix(address, domain) {
			continue
		}
		return slot, nil
	}
	return "", ErrNoSlot
}

// SetSlot resolves the drive's hotplug slot and pushes a pattern to it.
func SetSlot(devPath, domain string, p ibpi.Pattern) error {
	slot, err := FindSlot(devPath, domain)
	if err != nil {
		log.WithField("device", filepath.Base(devPath)).
			Debug("pci hotplug slot not found")
		return err
	}
	return WriteAttention(slot, p)
}

// DomainOf resolves the PCI domain a VMD controller exports. The controller's
// sysfs directory carries a domain symlink whose resolved name starts with
// the domain number.
func DomainOf(cntrlPath string) string {
	real, err := filepath.EvalSymlinks(filepath.Join(cntrlPath, "domain"))
	if err != nil {
		return ""
	}
	base := filepath.Base(real)
	for i := 0; i < len(base); i++ {
		if base[i] == ':' {
			return base[:i]
		}
	}
	return base
}
