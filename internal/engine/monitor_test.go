package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/ledgod/internal/device"
	"github.com/sigreer/ledgod/internal/ibpi"
)

// recorder captures what the monitor pushed to hardware.
type recorder struct {
	sent    map[string][]ibpi.Pattern
	flushed int
}

func newRecorder() *recorder {
	return &recorder{sent: make(map[string][]ibpi.Pattern)}
}

func (r *recorder) Send(b *device.BlockDevice, p ibpi.Pattern) error {
	r.sent[b.Name()] = append(r.sent[b.Name()], p)
	return nil
}

func (r *recorder) Flush(b *device.BlockDevice) error {
	r.flushed++
	return nil
}

func (r *recorder) last(name string) ibpi.Pattern {
	s := r.sent[name]
	if len(s) == 0 {
		return ibpi.None
	}
	return s[len(s)-1]
}

// testRig builds a registry with one AHCI controller and one drive.
func testRig(name string, hostID int) (*device.Registry, *device.BlockDevice) {
	cntrl := &device.Controller{
		Type:      device.CntrlAHCI,
		SysfsPath: "/sys/devices/pci0000:00/0000:00:17.0",
	}
	b := testBlock(name)
	b.Cntrl = cntrl
	b.CntrlPath = cntrl.SysfsPath + "/ata1/host0/scsi_host/host0"
	b.HostID = hostID
	reg := &device.Registry{
		Controllers: []*device.Controller{cntrl},
		Blocks:      []*device.BlockDevice{b},
		Timestamp:   time.Now(),
	}
	b.Timestamp = reg.Timestamp
	return reg, b
}

func snapshotFor(reg *device.Registry) *Snapshot {
	return &Snapshot{
		Registry: reg,
		raidOf:   make(map[*device.BlockDevice]*RaidDevice),
	}
}

func TestMonitorNewDeviceGetsOneshotClear(t *testing.T) {
	rec := newRecorder()
	m := NewMonitor(rec)
	reg, _ := testRig("sda", 0)

	m.Execute(snapshotFor(reg))

	require.Len(t, m.tracked, 1)
	// a fresh drive with no request gets exactly one clearing write
	assert.Equal(t, []ibpi.Pattern{ibpi.OneshotNormal}, rec.sent["sda"])
	assert.Equal(t, ibpi.OneshotNormal, m.tracked[0].block.IBPIPrev)
}

func TestMonitorOneshotDecaysToUnknown(t *testing.T) {
	rec := newRecorder()
	m := NewMonitor(rec)

	reg, _ := testRig("sda", 0)
	m.Execute(snapshotFor(reg))

	reg2, _ := testRig("sda", 0)
	m.Execute(snapshotFor(reg2))

	require.Len(t, m.tracked, 1)
	assert.Equal(t, ibpi.Unknown, rec.last("sda"))
}

func TestMonitorFailureIsSticky(t *testing.T) {
	rec := newRecorder()
	m := NewMonitor(rec)

	reg, b := testRig("sda", 0)
	b.IBPI = ibpi.FailedDrive
	m.Execute(snapshotFor(reg))
	assert.Equal(t, ibpi.FailedDrive, rec.last("sda"))

	// the drive comes back as a hotspare; the failure stays latched
	reg2, b2 := testRig("sda", 0)
	b2.IBPI = ibpi.Hotspare
	m.Execute(snapshotFor(reg2))
	assert.Equal(t, ibpi.FailedDrive, rec.last("sda"))

	// an explicit normal clears it
	reg3, b3 := testRig("sda", 0)
	b3.IBPI = ibpi.Normal
	m.Execute(snapshotFor(reg3))
	assert.Equal(t, ibpi.Normal, rec.last("sda"))
}

func TestMonitorMissingDriveFails(t *testing.T) {
	rec := newRecorder()
	m := NewMonitor(rec)

	reg, b := testRig("sda", 0)
	b.IBPI = ibpi.Normal
	m.Execute(snapshotFor(reg))

	// next scan does not see the drive but its controller survives
	reg2, _ := testRig("sdb", 1)
	reg2.Controllers = append(reg2.Controllers, reg.Controllers...)
	m.Execute(snapshotFor(reg2))

	assert.Equal(t, ibpi.FailedDrive, rec.last("sda"))
}

func TestMonitorRestartsOnLostController(t *testing.T) {
	rec := newRecorder()
	m := NewMonitor(rec)

	reg, _ := testRig("sda", 0)
	m.Execute(snapshotFor(reg))
	require.Len(t, m.tracked, 1)

	// controller disappears entirely; the tracked list is rebuilt
	empty := &device.Registry{Timestamp: time.Now()}
	m.Execute(snapshotFor(empty))
	assert.Empty(t, m.tracked)
}

func TestMonitorFailStateOnVolumeRemoval(t *testing.T) {
	rec := newRecorder()
	m := NewMonitor(rec)

	volume := &RaidDevice{
		Type: TypeVolume, Level: Level1,
		SysfsPath: "/sys/class/block/md0", RaidDisks: 2,
	}

	reg, b := testRig("sda", 0)
	b.IBPI = ibpi.Normal
	s := snapshotFor(reg)
	s.Volumes = []*RaidDevice{volume}
	s.raidOf[b] = volume
	m.Execute(s)

	// the drive is still present but no longer a member, while the
	// volume keeps running: mdadm -If removal, blink failure
	reg2, b2 := testRig("sda", 0)
	s2 := snapshotFor(reg2)
	s2.Volumes = []*RaidDevice{volume}
	m.Execute(s2)

	_ = b2
	assert.Equal(t, ibpi.FailedDrive, rec.last("sda"))
}

func TestUpdatePattern(t *testing.T) {
	cases := []struct {
		remembered, derived, want ibpi.Pattern
	}{
		{ibpi.Added, ibpi.Unknown, ibpi.OneshotNormal},
		{ibpi.OneshotNormal, ibpi.FailedDrive, ibpi.Unknown},
		{ibpi.Locate, ibpi.Unknown, ibpi.OneshotNormal},
		{ibpi.Normal, ibpi.Unknown, ibpi.Unknown},
		{ibpi.Unknown, ibpi.Degraded, ibpi.Degraded},
		{ibpi.FailedDrive, ibpi.Hotspare, ibpi.FailedDrive},
		{ibpi.FailedDrive, ibpi.Normal, ibpi.Normal},
		{ibpi.FailedDrive, ibpi.None, ibpi.None},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, updatePattern(c.remembered, c.derived),
			"%s + %s", c.remembered, c.derived)
	}
}
