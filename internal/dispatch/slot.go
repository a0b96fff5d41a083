package dispatch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sigreer/ledgod/internal/device"
	"github.com/sigreer/ledgod/internal/ibpi"
	"github.com/sigreer/ledgod/internal/npem"
	"github.com/sigreer/ledgod/internal/ses"
	"github.com/sigreer/ledgod/internal/sysfs"
	"github.com/sigreer/ledgod/internal/vmd"
)

// Slot is one LED-addressable drive bay, occupied or not. Slots exist for
// the families that can address a bay without a drive in it.
type Slot interface {
	// ID names the slot uniquely within its controller family.
	ID() string

	// Device is the devnode of the occupying drive, or "".
	Device() string

	// CntrlType is the family the slot belongs to.
	CntrlType() device.CntrlType

	// State reads the pattern currently latched on the slot.
	State() ibpi.Pattern

	// SetState latches a pattern on the slot, drive or no drive.
	SetState(p ibpi.Pattern) error
}

// sesSlot is one array device slot of a SES enclosure.
type sesSlot struct {
	encl  *ses.Enclosure
	index int
	reg   *device.Registry
}

func (s *sesSlot) ID() string {
	return fmt.Sprintf("%s-%d", filepath.Base(s.encl.DevPath), s.index)
}

func (s *sesSlot) CntrlType() device.CntrlType { return device.CntrlSCSI }

func (s *sesSlot) Device() string {
	for _, b := range s.reg.Blocks {
		if b.Enclosure == s.encl && b.EnclIndex == s.index {
			return b.DevNode
		}
	}
	return ""
}

func (s *sesSlot) State() ibpi.Pattern {
	slot, err := s.encl.SlotByIndex(s.index)
	if err != nil {
		return ibpi.Unknown
	}
	return slot.Status
}

func (s *sesSlot) SetState(p ibpi.Pattern) error {
	return s.encl.SetSlot(p, s.index)
}

// vmdSlot is one pciehp slot inside a VMD domain.
type vmdSlot struct {
	path string
	reg  *device.Registry
}

func (s *vmdSlot) ID() string                  { return filepath.Base(s.path) }
func (s *vmdSlot) CntrlType() device.CntrlType { return device.CntrlVMD }

func (s *vmdSlot) Device() string {
	address := sysfs.ReadText(s.path, "address")
	for _, b := range s.reg.Blocks {
		if b.Cntrl == nil || b.Cntrl.Type != device.CntrlVMD {
			continue
		}
		if slot, err := vmd.FindSlot(b.SysfsPath, b.Cntrl.Domain); err == nil &&
			sysfs.ReadText(slot, "address") == address {
			return b.DevNode
		}
	}
	return ""
}

func (s *vmdSlot) State() ibpi.Pattern { return vmd.GetState(s.path) }

func (s *vmdSlot) SetState(p ibpi.Pattern) error {
	return vmd.WriteAttention(s.path, p)
}

// npemSlot is one NPEM-capable PCIe function; the function is the bay.
type npemSlot struct {
	cntrl *device.Controller
	reg   *device.Registry
}

func (s *npemSlot) ID() string                  { return filepath.Base(s.cntrl.SysfsPath) }
func (s *npemSlot) CntrlType() device.CntrlType { return device.CntrlNPEM }

func (s *npemSlot) Device() string {
	for _, b := range s.reg.Blocks {
		if b.Cntrl == s.cntrl {
			return b.DevNode
		}
	}
	return ""
}

func (s *npemSlot) State() ibpi.Pattern { return npem.GetState(s.cntrl.SysfsPath) }

func (s *npemSlot) SetState(p ibpi.Pattern) error {
	return npem.SetSlot(s.cntrl.SysfsPath, p)
}

// ListSlots enumerates every addressable bay of the scan.
func ListSlots(r *device.Registry) []Slot {
	var slots []Slot
	for _, e := range r.Enclosures {
		for _, s := range e.Slots {
			slots = append(slots, &sesSlot{encl: e, index: s.Index, reg: r})
		}
	}
	for _, c := range r.Controllers {
		switch c.Type {
		case device.CntrlVMD:
			for _, path := range sysfs.ScanDir("/sys/bus/pci/slots") {
				address := sysfs.ReadText(path, "address")
				if c.Domain != "" && !strings.HasPrefix(address, c.Domain) {
					continue
				}
				slots = append(slots, &vmdSlot{path: path, reg: r})
			}
		case device.CntrlNPEM:
			slots = append(slots, &npemSlot{cntrl: c, reg: r})
		}
	}
	return slots
}

// FindSlotByID locates a slot by family and id.
func FindSlotByID(r *device.Registry, t device.CntrlType, id string) Slot {
	for _, s := range ListSlots(r) {
		if s.CntrlType() == t && s.ID() == id {
			return s
		}
	}
	return nil
}

// FindSlotByDevice locates the slot holding a drive.
func FindSlotByDevice(r *device.Registry, devNode string) Slot {
	for _, s := range ListSlots(r) {
		if s.Device() != "" && filepath.Base(s.Device()) == filepath.Base(devNode) {
			return s
		}
	}
	return nil
}
