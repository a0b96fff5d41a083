package device

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sigreer/ledgod/internal/amd"
	"github.com/sigreer/ledgod/internal/dell"
	"github.com/sigreer/ledgod/internal/npem"
	"github.com/sigreer/ledgod/internal/ses"
	"github.com/sigreer/ledgod/internal/smp"
	"github.com/sigreer/ledgod/internal/sysfs"
	"github.com/sigreer/ledgod/internal/vmd"
)

const (
	pciDevicesDir   = "/sys/bus/pci/devices"
	libahciParamDir = "/sys/module/libahci/parameters"
	libahciHolders  = "/sys/module/libahci/holders"
)

// Filter narrows controller discovery. A non-empty allowlist admits exactly
// the listed sysfs paths; otherwise the excludelist rejects listed paths.
type Filter struct {
	Allowlist   []string
	Excludelist []string
}

func (f Filter) admits(path string) bool {
	if len(f.Allowlist) > 0 {
		for _, p := range f.Allowlist {
			if p == path {
				return true
			}
		}
		log.WithField("path", path).Debug("controller not on allowlist, ignoring")
		return false
	}
	for _, p := range f.Excludelist {
		if p == path {
			log.WithField("path", path).Debug("controller on excludelist, ignoring")
			return false
		}
	}
	return true
}

// isStorageController checks the PCI class for mass storage (base class 01).
func isStorageController(path string) bool {
	class := sysfs.ReadUint64(path, 0, "class")
	return class&0xff0000 == 0x010000
}

func isIntelAHCI(path string) bool {
	return sysfs.DriverName(path) == "ahci" &&
		sysfs.ReadUint64(path, 0, "vendor") == 0x8086
}

// isAMDCntrl matches AMD SATA controllers and AMD NVMe drives, whose vendor
// id sits on the parent bridge.
func isAMDCntrl(path string) bool {
	switch sysfs.DriverName(path) {
	case "ahci":
		return sysfs.ReadUint64(path, 0, "vendor") == 0x1022
	case "nvme":
		return sysfs.ReadUint64(filepath.Dir(path), 0, "vendor") == 0x1022
	}
	return false
}

func isDellSSD(path string) bool {
	vendor := sysfs.ReadUint64(path, 0, "vendor")
	dev := sysfs.ReadUint64(path, 0, "device")
	class := sysfs.ReadUint64(path, 0, "class")
	subVendor := sysfs.ReadUint64(path, 0, "subsystem_vendor")

	gen := 0
	if class == 0x10802 {
		gen = dell.ServerGeneration()
	}
	return (vendor == 0x1344 && dev == 0x5150) || // micron ssd
		gen != 0 || // Dell server + NVMe
		(subVendor == 0x1028 && class == 0x10802)
}

// hostBsgPath is the bsg endpoint SMP frames travel through for a host.
func hostBsgPath(cntrlPath, host string) string {
	return filepath.Join(cntrlPath, host, "bsg", "sas_"+host)
}

// isSMPCntrl probes every host below the controller with an empty WRITE GPIO
// frame; a controller that accepts one speaks SGPIO over SMP.
func isSMPCntrl(path string) bool {
	for _, sub := range sysfs.ScanDir(path) {
		name := filepath.Base(sub)
		if !strings.HasPrefix(name, "host") {
			continue
		}
		if smp.WriteGPIO(hostBsgPath(path, name), smp.RegTypeTx, 0, 0, nil) == nil {
			return true
		}
	}
	return false
}

func enclosureAttached(path string, enclosures []*ses.Enclosure) bool {
	for _, e := range enclosures {
		if strings.HasPrefix(e.SysfsPath, path) {
			return true
		}
	}
	return false
}

// DetectType classifies the PCI device at path. NPEM takes priority over
// every legacy protocol.
func DetectType(path string, enclosures []*ses.Enclosure) CntrlType {
	switch {
	case npem.IsCapable(path):
		return CntrlNPEM
	case sysfs.DriverName(path) == "vmd":
		return CntrlVMD
	case isDellSSD(path):
		return CntrlDellSSD
	case isStorageController(path):
		switch {
		case isIntelAHCI(path):
			return CntrlAHCI
		case isAMDCntrl(path):
			return CntrlAMD
		case sysfs.DriverName(path) == "isci",
			enclosureAttached(path, enclosures),
			isSMPCntrl(path):
			return CntrlSCSI
		}
	}
	return CntrlUnknown
}

// ahciEMMessages checks whether the kernel exposes AHCI enclosure management
// messaging for the controller: either the driver carries its own legacy
// parameter, or libahci has it enabled and holds the controller's driver.
func ahciEMMessages(path string) bool {
	// pre-2.6.36 kernels kept the parameter on the driver module
	if sysfs.ReadInt(path, 0, "driver/module/parameters/ahci_em_messages") != 0 {
		return true
	}
	// the libahci parameter changed from int to bool in v3.13
	if sysfs.ReadInt(libahciParamDir, 0, "ahci_em_messages") == 0 &&
		!sysfs.ReadBool(libahciParamDir, false, "ahci_em_messages") {
		return false
	}

	driver := sysfs.DriverName(path)
	if driver == "" {
		return false
	}
	holders, err := os.ReadDir(libahciHolders)
	if err != nil {
		return true
	}
	for _, h := range holders {
		if h.Name() == driver {
			return true
		}
	}
	return false
}

// discoverHosts builds SGPIO state for every scsi_host below a controller.
// The port count is the number of phys the host exposes.
func discoverHosts(path string, isci bool) []*smp.Host {
	var hosts []*smp.Host
	for _, sub := range sysfs.ScanDir(path) {
		name := filepath.Base(sub)
		if !strings.HasPrefix(name, "host") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(name, "host"))
		if err != nil {
			continue
		}
		ports := 0
		for _, entry := range sysfs.ScanDir(sub) {
			if strings.HasPrefix(filepath.Base(entry), "phy-") {
				ports++
			}
		}
		hosts = append(hosts, smp.NewHost(hostBsgPath(path, name), id, ports, isci))
	}
	return hosts
}

// NewController classifies one PCI device and, when it is a supported
// controller with enclosure management enabled, builds its state. Returns nil
// for unsupported or filtered devices.
func NewController(path string, filter Filter, enclosures []*ses.Enclosure) *Controller {
	t := DetectType(path, enclosures)
	if t == CntrlUnknown {
		return nil
	}
	if !filter.admits(path) {
		return nil
	}

	emEnabled := false
	switch t {
	case CntrlDellSSD, CntrlSCSI, CntrlVMD, CntrlNPEM:
		emEnabled = true
	case CntrlAHCI:
		emEnabled = ahciEMMessages(path)
	case CntrlAMD:
		emEnabled = amd.EMEnabled(path)
	}
	if !emEnabled {
		log.WithField("path", path).
			Error("controller discovery: enclosure management not supported")
		return nil
	}

	c := &Controller{Type: t, SysfsPath: path}
	switch t {
	case CntrlSCSI:
		c.ISCI = sysfs.DriverName(path) == "isci"
		c.Hosts = discoverHosts(path, c.ISCI)
	case CntrlVMD:
		c.Domain = vmd.DomainOf(path)
	}
	log.WithFields(log.Fields{
		"path": path,
		"type": t.String(),
	}).Debug("controller discovered")
	return c
}
