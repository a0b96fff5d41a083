package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sasDrivePath = "/sys/devices/pci0000:00/0000:00:17.0/host2/port-2:0" +
	"/expander-2:0/port-2:0:3/end_device-2:0:3/target2:0:3/2:0:3:0/block/sdc"

const sataDrivePath = "/sys/devices/pci0000:00/0000:00:17.0/ata3/host2" +
	"/target2:0:0/2:0:0:0/block/sdb"

func TestDirectlyAttached(t *testing.T) {
	assert.False(t, DirectlyAttached(sasDrivePath))
	assert.True(t, DirectlyAttached(sataDrivePath))
}

func TestIsVirtNVMe(t *testing.T) {
	assert.True(t, IsVirtNVMe("nvme0c0n1"))
	assert.False(t, IsVirtNVMe("nvme0n1"))
	assert.False(t, IsVirtNVMe("sdc"))
}

func TestHostNameOf(t *testing.T) {
	assert.Equal(t, "host2", hostNameOf(sasDrivePath))
	assert.Equal(t, "", hostNameOf("/sys/devices/pci0000:00/0000:00:17.0"))
}

func TestScsiHostPath(t *testing.T) {
	cntrl := "/sys/devices/pci0000:00/0000:00:17.0"
	assert.Equal(t,
		cntrl+"/host2/bsg/sas_host2",
		scsiHostPath(sasDrivePath, cntrl))

	assert.Equal(t, "", scsiHostPath(sasDrivePath, "/sys/devices/pci0000:00/0000:00:18.0"))
}

func TestControllerForPrefersNPEM(t *testing.T) {
	vmdCntrl := &Controller{Type: CntrlVMD, SysfsPath: "/sys/devices/pci0000:00/0000:00:0e.0"}
	npemCntrl := &Controller{Type: CntrlNPEM, SysfsPath: "/sys/devices/pci0000:00/0000:00:0e.0/10000:00:02.0"}
	r := &Registry{Controllers: []*Controller{vmdCntrl, npemCntrl}}

	devPath := npemCntrl.SysfsPath + "/10000:01:00.0/nvme/nvme0/nvme0n1"
	assert.Same(t, npemCntrl, r.ControllerFor(devPath))

	other := vmdCntrl.SysfsPath + "/10000:00:03.0/10000:02:00.0/nvme/nvme1/nvme1n1"
	assert.Same(t, vmdCntrl, r.ControllerFor(other))

	assert.Nil(t, r.ControllerFor("/sys/devices/pci0000:00/0000:00:17.0/ata1"))
}

func TestFilterAdmits(t *testing.T) {
	path := "/sys/devices/pci0000:00/0000:00:17.0"

	assert.True(t, Filter{}.admits(path))
	assert.True(t, Filter{Allowlist: []string{path}}.admits(path))
	assert.False(t, Filter{Allowlist: []string{"/other"}}.admits(path))
	assert.False(t, Filter{Excludelist: []string{path}}.admits(path))

	// allowlist wins over excludelist
	assert.True(t, Filter{
		Allowlist:   []string{path},
		Excludelist: []string{path},
	}.admits(path))
}

func TestBlockByPath(t *testing.T) {
	b := &BlockDevice{SysfsPath: sasDrivePath}
	r := &Registry{Blocks: []*BlockDevice{b}}

	assert.Same(t, b, r.BlockByPath("end_device-2:0:3"))
	assert.Same(t, b, r.BlockByPath("block/sdc"))
	assert.Nil(t, r.BlockByPath("end_device-2:0"))
}

func TestCntrlTypeString(t *testing.T) {
	assert.Equal(t, "SCSI", CntrlSCSI.String())
	assert.Equal(t, "unknown", CntrlUnknown.String())
	assert.Equal(t, "unknown", CntrlType(99).String())
}
