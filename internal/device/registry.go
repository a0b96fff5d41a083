package device

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sigreer/ledgod/internal/ahci"
	"github.com/sigreer/ledgod/internal/ibpi"
	"github.com/sigreer/ledgod/internal/ses"
	"github.com/sigreer/ledgod/internal/sysfs"
	"github.com/sigreer/ledgod/internal/vmd"
)

const blockClassDir = "/sys/class/block"

// Registry is one pass over the system's LED-capable hardware.
type Registry struct {
	Controllers []*Controller
	Enclosures  []*ses.Enclosure
	Blocks      []*BlockDevice

	// Timestamp marks the scan pass; drives carrying an older stamp have
	// disappeared since.
	Timestamp time.Time
}

// ScanAll discovers enclosures, controllers and block devices, in that
// order: the SCSI classification needs the enclosure list and the blocks
// need the controllers.
func ScanAll(filter Filter) *Registry {
	r := &Registry{Enclosures: ses.DiscoverEnclosures()}

	for _, path := range sysfs.ScanDir(pciDevicesDir) {
		if c := NewController(path, filter, r.Enclosures); c != nil {
			r.Controllers = append(r.Controllers, c)
		}
	}

	r.Timestamp = time.Now()
	for _, path := range sysfs.ScanDir(blockClassDir) {
		if b := r.newBlockDevice(path, r.Timestamp); b != nil {
			r.Blocks = append(r.Blocks, b)
		}
	}
	return r
}

// ControllerFor finds the controller owning a device path. Paths can run
// through more than one discovered controller (a VMD domain containing an
// NPEM-capable port, say); NPEM wins over anything else on the path.
func (r *Registry) ControllerFor(devPath string) *Controller {
	var nonNPEM *Controller
	for _, c := range r.Controllers {
		if !strings.HasPrefix(devPath, c.SysfsPath) {
			continue
		}
		if c.Type == CntrlNPEM {
			return c
		}
		nonNPEM = c
	}
	return nonNPEM
}

// BlockByName finds a discovered drive by kernel name or devnode.
func (r *Registry) BlockByName(name string) *BlockDevice {
	base := filepath.Base(name)
	for _, b := range r.Blocks {
		if b.Name() == base || filepath.Base(b.DevNode) == base {
			return b
		}
	}
	return nil
}

// BlockByPath finds a discovered drive whose sysfs path contains sub as a
// whole path component.
func (r *Registry) BlockByPath(sub string) *BlockDevice {
	for _, b := range r.Blocks {
		i := strings.Index(b.SysfsPath, sub)
		if i < 0 {
			continue
		}
		rest := b.SysfsPath[i+len(sub):]
		if rest == "" || rest[0] == '/' {
			return b
		}
	}
	return nil
}

// hostNameOf extracts the hostN path component of a device path.
func hostNameOf(path string) string {
	i := strings.Index(path, "host")
	if i < 0 {
		return ""
	}
	rest := path[i:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// scsiHostPath builds the bsg control endpoint for a SCSI-attached drive.
// The drive must live below the controller.
func scsiHostPath(devPath, cntrlPath string) string {
	if !strings.HasPrefix(devPath, cntrlPath) {
		return ""
	}
	host := hostNameOf(devPath)
	if host == "" {
		return ""
	}
	return hostBsgPath(cntrlPath, host)
}

// phyIndexOf finds the phy number of a drive behind a SAS port: the port-X:Y
// directory on the drive's path carries a phy-X:Z link whose Z is the index.
func phyIndexOf(devPath string) int {
	i := strings.Index(devPath, "port-")
	if i < 0 {
		return 0
	}
	portDir := devPath
	if j := strings.IndexByte(devPath[i:], '/'); j >= 0 {
		portDir = devPath[:i+j]
	}
	for _, entry := range sysfs.ScanDir(portDir) {
		name := filepath.Base(entry)
		if !strings.HasPrefix(name, "phy-") {
			continue
		}
		k := strings.IndexByte(name, ':')
		if k < 0 {
			continue
		}
		phy, err := strconv.Atoi(name[k+1:])
		if err != nil {
			continue
		}
		return phy
	}
	return 0
}

// DriveSASAddress reads the SAS address of the drive's end device, or 0 when
// the drive has none.
func DriveSASAddress(devPath string) uint64 {
	i := strings.Index(devPath, "end_device")
	if i < 0 {
		return 0
	}
	ed := devPath[i:]
	if j := strings.IndexByte(ed, '/'); j >= 0 {
		ed = ed[:j]
	}
	dir := filepath.Join("/sys/class/sas_end_device", ed, "device", "sas_device", ed)
	return sysfs.ReadUint64(dir, 0, "sas_address")
}

// findEnclosure binds an expander-attached drive to the enclosure slot
// holding its SAS address.
func (r *Registry) findEnclosure(b *BlockDevice) bool {
	addr := DriveSASAddress(b.SysfsPath)
	if addr == 0 {
		return false
	}
	for _, e := range r.Enclosures {
		slot, err := e.SlotBySASAddr(addr)
		if err != nil {
			continue
		}
		b.Enclosure = e
		b.EnclIndex = slot.Index
		return true
	}
	return false
}

// controlPathFor resolves the endpoint LED writes travel through for one
// drive. An empty result means the protocol has no usable endpoint here.
func controlPathFor(c *Controller, devPath string) string {
	switch c.Type {
	case CntrlSCSI:
		return scsiHostPath(devPath, c.SysfsPath)
	case CntrlAHCI:
		return ahci.PortPath(devPath)
	case CntrlAMD:
		if dir, ok := sysfs.FindFile(c.SysfsPath, "em_buffer"); ok {
			return filepath.Join(dir, "em_buffer")
		}
		return ""
	default:
		return c.SysfsPath
	}
}

// newBlockDevice builds the drive living at a /sys/class/block entry, or nil
// when it sits behind no supported controller.
func (r *Registry) newBlockDevice(path string, ts time.Time) *BlockDevice {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil
	}
	c := r.ControllerFor(real)
	if c == nil {
		return nil
	}
	if c.Type == CntrlVMD {
		if _, err := vmd.FindSlot(real, c.Domain); err != nil {
			return nil
		}
	}
	cntrlPath := controlPathFor(c, real)
	if cntrlPath == "" {
		return nil
	}

	b := &BlockDevice{
		SysfsPath: real,
		DevNode:   DevNodeFor(real),
		Cntrl:     c,
		CntrlPath: cntrlPath,
		HostID:    -1,
		IBPI:      ibpi.Unknown,
		IBPIPrev:  ibpi.None,
		EnclIndex: -1,
		Timestamp: ts,
	}
	switch c.Type {
	case CntrlDellSSD, CntrlVMD, CntrlNPEM:
		// no scsi_host on these paths
	default:
		if host := hostNameOf(real); host != "" {
			if id, err := strconv.Atoi(strings.TrimPrefix(host, "host")); err == nil {
				b.HostID = id
				b.Host = c.Host(id)
			}
		}
	}
	if c.Type == CntrlSCSI {
		b.PhyIndex = phyIndexOf(real)
		if !DirectlyAttached(real) && !r.findEnclosure(b) {
			log.WithField("path", path).Debug("device initialization failed")
			return nil
		}
	}
	return b
}
