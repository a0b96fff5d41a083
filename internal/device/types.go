// Package device discovers LED-capable storage controllers and the block
// devices behind them, binding every drive to the control endpoint its LED
// protocol talks to.
package device

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sigreer/ledgod/internal/ibpi"
	"github.com/sigreer/ledgod/internal/ses"
	"github.com/sigreer/ledgod/internal/smp"
)

// CntrlType identifies the LED management protocol of a controller.
type CntrlType int

const (
	CntrlUnknown CntrlType = iota
	CntrlAHCI
	CntrlSCSI
	CntrlVMD
	CntrlNPEM
	CntrlDellSSD
	CntrlAMD
)

var cntrlNames = map[CntrlType]string{
	CntrlUnknown: "unknown",
	CntrlAHCI:    "AHCI",
	CntrlSCSI:    "SCSI",
	CntrlVMD:     "VMD",
	CntrlNPEM:    "NPEM",
	CntrlDellSSD: "Dell SSD",
	CntrlAMD:     "AMD",
}

func (t CntrlType) String() string {
	if name, ok := cntrlNames[t]; ok {
		return name
	}
	return "unknown"
}

// Controller is one LED-capable storage controller found on the PCI bus.
type Controller struct {
	Type      CntrlType
	SysfsPath string

	// Domain is the PCI domain a VMD controller exports; empty otherwise.
	Domain string

	// ISCI marks SCSI controllers bound to the isci driver, whose
	// direct-attached ports take raw GP bitstreams.
	ISCI bool

	// Hosts holds per-host SGPIO state for SCSI controllers.
	Hosts []*smp.Host
}

// Host returns the SGPIO state for a scsi_host id, or nil.
func (c *Controller) Host(id int) *smp.Host {
	for _, h := range c.Hosts {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// BlockDevice is one drive bound to its controller and control endpoint.
type BlockDevice struct {
	SysfsPath string
	DevNode   string

	Cntrl *Controller

	// CntrlPath is the endpoint LED writes go through: the host bsg
	// directory for SCSI, the scsi_host directory for AHCI, the em_buffer
	// file for AMD, or the controller path itself.
	CntrlPath string

	HostID int
	Host   *smp.Host

	// PhyIndex is the drive's phy behind a SCSI controller.
	PhyIndex int

	// Enclosure and EnclIndex bind expander-attached drives to their SES
	// slot. EnclIndex is -1 when not enclosure-managed.
	Enclosure *ses.Enclosure
	EnclIndex int

	// IBPI is the pattern requested for this pass; IBPIPrev the pattern
	// last sent to hardware.
	IBPI     ibpi.Pattern
	IBPIPrev ibpi.Pattern

	// Timestamp is the scan pass that last saw the drive.
	Timestamp time.Time
}

// Name is the drive's kernel name.
func (b *BlockDevice) Name() string {
	return filepath.Base(b.SysfsPath)
}

// DirectlyAttached reports whether a drive hangs off its controller without
// an expander in between.
func DirectlyAttached(path string) bool {
	return !strings.Contains(path, "/expander")
}

// IsVirtNVMe reports whether a block name is a multipath nvme namespace
// (nvmeXcYnZ), which maps to a shared nvmeXnZ devnode.
func IsVirtNVMe(name string) bool {
	return strings.HasPrefix(name, "nvme") && strings.ContainsRune(name, 'c')
}

// DevNodeFor resolves the /dev node of a block sysfs entry, collapsing
// multipath nvme namespaces onto their controller-independent name.
func DevNodeFor(sysfsPath string) string {
	name := filepath.Base(sysfsPath)
	if IsVirtNVMe(name) {
		c := strings.LastIndexByte(name, 'c')
		n := strings.LastIndexByte(name, 'n')
		if c < 0 || n < 0 || n <= c {
			return ""
		}
		name = name[:c] + name[n:]
	}
	node := filepath.Join("/dev", name)
	if _, err := os.Stat(node); err != nil {
		return ""
	}
	return node
}
