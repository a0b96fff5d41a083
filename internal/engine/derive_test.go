package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sigreer/ledgod/internal/device"
	"github.com/sigreer/ledgod/internal/ibpi"
)

func newTestSnapshot() *Snapshot {
	return &Snapshot{
		raidOf: make(map[*device.BlockDevice]*RaidDevice),
	}
}

func testBlock(name string) *device.BlockDevice {
	return &device.BlockDevice{
		SysfsPath: "/sys/devices/pci0000:00/0000:00:17.0/ata1/host0" +
			"/target0:0:0/0:0:0:0/block/" + name,
		IBPI:     ibpi.Unknown,
		IBPIPrev: ibpi.None,
	}
}

func TestFailedArray(t *testing.T) {
	cases := []struct {
		name string
		raid RaidDevice
		want int
	}{
		{"healthy", RaidDevice{Level: Level5, Degraded: 0}, -1},
		{"raid1 one missing", RaidDevice{Level: Level1, Degraded: 1, RaidDisks: 2}, 0},
		{"raid1 all missing", RaidDevice{Level: Level1, Degraded: 2, RaidDisks: 2}, 1},
		{"raid10 degraded", RaidDevice{Level: Level10, Degraded: 2, RaidDisks: 4}, 0},
		{"raid5 one missing", RaidDevice{Level: Level5, Degraded: 1, RaidDisks: 3}, 0},
		{"raid5 two missing", RaidDevice{Level: Level5, Degraded: 2, RaidDisks: 3}, 1},
		{"raid6 two missing", RaidDevice{Level: Level6, Degraded: 2, RaidDisks: 4}, 0},
		{"raid6 three missing", RaidDevice{Level: Level6, Degraded: 3, RaidDisks: 4}, 1},
		{"raid0 degraded", RaidDevice{Level: Level0, Degraded: 1, RaidDisks: 2}, -1},
		{"faulty personality", RaidDevice{Level: LevelFaulty, Degraded: 1}, 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, failedArray(&c.raid), c.name)
	}
}

func TestParseMemberState(t *testing.T) {
	assert.Equal(t, MemberInSync, parseMemberState("in_sync"))
	assert.Equal(t, MemberFaulty|MemberBlocked, parseMemberState("faulty,blocked"))
	assert.Equal(t, MemberState(0), parseMemberState("bogus"))
	assert.Equal(t, MemberSpare|MemberWriteMostly, parseMemberState("spare,write_mostly"))
}

func TestDetermineFaultyMember(t *testing.T) {
	s := newTestSnapshot()
	raid := &RaidDevice{Type: TypeVolume, Level: Level1, Degraded: 1, RaidDisks: 2}
	b := testBlock("sda")

	s.determine(DefaultPolicy, &Member{State: MemberFaulty, Block: b, Raid: raid})
	assert.Equal(t, ibpi.FailedDrive, b.IBPI)
}

func TestDetermineRaid1Degraded(t *testing.T) {
	// RAID1 with one member lost: the survivor shows the degraded pattern.
	s := newTestSnapshot()
	raid := &RaidDevice{
		Type: TypeVolume, Level: Level1,
		Degraded: 1, RaidDisks: 2, SyncAction: ActionIdle,
	}
	survivor := testBlock("sda")

	s.determine(DefaultPolicy, &Member{State: MemberInSync, Block: survivor, Raid: raid})
	assert.Equal(t, ibpi.Degraded, survivor.IBPI)
}

func TestDetermineRaid5Rebuild(t *testing.T) {
	// RAID5 rebuilding onto a spare with recovery blink narrowed to the
	// rebuilt drive: the spare blinks rebuild, in-sync members show
	// degraded.
	s := newTestSnapshot()
	raid := &RaidDevice{
		Type: TypeVolume, Level: Level5,
		Degraded: 1, RaidDisks: 3, SyncAction: ActionRecover,
	}
	spare := testBlock("sdd")
	member := testBlock("sda")

	policy := DefaultPolicy
	policy.RebuildBlinkOnAll = false
	s.determine(policy, &Member{State: MemberSpare, Block: spare, Raid: raid})
	s.determine(policy, &Member{State: MemberInSync, Block: member, Raid: raid})

	assert.Equal(t, ibpi.Rebuild, spare.IBPI)
	assert.Equal(t, ibpi.Degraded, member.IBPI)
}

func TestDetermineRebuildBlinkOnAll(t *testing.T) {
	s := newTestSnapshot()
	raid := &RaidDevice{
		Type: TypeVolume, Level: Level5,
		Degraded: 1, RaidDisks: 3, SyncAction: ActionRecover,
	}
	member := testBlock("sda")

	s.determine(DefaultPolicy, &Member{State: MemberInSync, Block: member, Raid: raid})

	// rebuild outranks degraded in the merge
	assert.Equal(t, ibpi.Rebuild, member.IBPI)
}

func TestDetermineFailedArray(t *testing.T) {
	s := newTestSnapshot()
	raid := &RaidDevice{
		Type: TypeVolume, Level: Level5,
		Degraded: 2, RaidDisks: 3, SyncAction: ActionIdle,
	}
	b := testBlock("sda")

	s.determine(DefaultPolicy, &Member{State: MemberInSync, Block: b, Raid: raid})
	assert.Equal(t, ibpi.FailedArray, b.IBPI)
}

func TestDetermineHotspare(t *testing.T) {
	// A spare of a healthy array idles as hotspare.
	s := newTestSnapshot()
	raid := &RaidDevice{Type: TypeVolume, Level: Level5, Degraded: 0, RaidDisks: 3}
	b := testBlock("sdd")

	s.determine(DefaultPolicy, &Member{State: MemberSpare, Block: b, Raid: raid})
	assert.Equal(t, ibpi.Hotspare, b.IBPI)
}

func TestDetermineReshapePolicy(t *testing.T) {
	raid := &RaidDevice{
		Type: TypeVolume, Level: Level5,
		Degraded: 0, RaidDisks: 3, SyncAction: ActionReshape,
	}

	s := newTestSnapshot()
	b := testBlock("sda")
	s.determine(DefaultPolicy, &Member{State: MemberInSync, Block: b, Raid: raid})
	assert.Equal(t, ibpi.Rebuild, b.IBPI, "migration blinks by default")

	s = newTestSnapshot()
	b = testBlock("sda")
	policy := DefaultPolicy
	policy.BlinkOnMigration = false
	s.determine(policy, &Member{State: MemberInSync, Block: b, Raid: raid})
	assert.Equal(t, ibpi.Unknown, b.IBPI, "no request without the policy")
}

func TestDetermineMaxWins(t *testing.T) {
	// The same drive seen by two arrays keeps the higher-priority pattern.
	s := newTestSnapshot()
	healthy := &RaidDevice{Type: TypeVolume, Level: Level1, Degraded: 0, RaidDisks: 2, SyncAction: ActionIdle}
	broken := &RaidDevice{Type: TypeVolume, Level: Level1, Degraded: 1, RaidDisks: 2, SyncAction: ActionIdle}
	b := testBlock("sda")

	s.determine(DefaultPolicy, &Member{State: MemberInSync, Block: b, Raid: broken})
	s.determine(DefaultPolicy, &Member{State: MemberInSync, Block: b, Raid: healthy})

	assert.Equal(t, ibpi.Degraded, b.IBPI)
}

func TestDetermineWriteMostly(t *testing.T) {
	s := newTestSnapshot()
	raid := &RaidDevice{Type: TypeVolume, Level: Level1, Degraded: 0, RaidDisks: 2}
	b := testBlock("sdb")

	s.determine(DefaultPolicy, &Member{State: MemberWriteMostly, Block: b, Raid: raid})
	assert.Equal(t, ibpi.Normal, b.IBPI)
}

func TestRaidAssociationUpgrade(t *testing.T) {
	// A container association is replaced once the drive joins a volume.
	s := newTestSnapshot()
	container := &RaidDevice{Type: TypeContainer, SysfsPath: "/sys/class/block/md127"}
	volume := &RaidDevice{Type: TypeVolume, SysfsPath: "/sys/class/block/md126", Level: Level1, RaidDisks: 2}
	b := testBlock("sda")

	s.determine(DefaultPolicy, &Member{State: MemberInSync, Block: b, Raid: container})
	assert.Equal(t, TypeContainer, s.RaidOf(b).Type)

	s.determine(DefaultPolicy, &Member{State: MemberInSync, Block: b, Raid: volume})
	assert.Equal(t, TypeVolume, s.RaidOf(b).Type)
	assert.Equal(t, volume.SysfsPath, s.RaidOf(b).SysfsPath)
}
