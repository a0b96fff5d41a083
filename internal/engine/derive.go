package engine

import (
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sigreer/ledgod/internal/device"
	"github.com/sigreer/ledgod/internal/ibpi"
	"github.com/sigreer/ledgod/internal/sysfs"
)

// Policy holds the knobs that decide which array activity blinks.
type Policy struct {
	// BlinkOnInit blinks rebuild on resync, check and repair passes.
	BlinkOnInit bool

	// BlinkOnMigration blinks rebuild while an array reshapes.
	BlinkOnMigration bool

	// RebuildBlinkOnAll blinks every member during a recovery, not just
	// the rebuilt drive.
	RebuildBlinkOnAll bool

	// RaidMembersOnly drops drives outside any array from monitoring.
	RaidMembersOnly bool
}

// DefaultPolicy matches the monitor's traditional behavior.
var DefaultPolicy = Policy{
	BlinkOnInit:       true,
	BlinkOnMigration:  true,
	RebuildBlinkOnAll: true,
}

// Snapshot couples one hardware scan with the md topology seen at the same
// moment.
type Snapshot struct {
	Registry   *device.Registry
	Volumes    []*RaidDevice
	Containers []*RaidDevice
	Members    []*Member

	raidOf map[*device.BlockDevice]*RaidDevice
}

const mdMajor = "9"

// NewSnapshot scans md arrays and their members on top of a device scan.
func NewSnapshot(reg *device.Registry) *Snapshot {
	s := &Snapshot{
		Registry: reg,
		raidOf:   make(map[*device.BlockDevice]*RaidDevice),
	}
	for _, path := range sysfs.ScanDir("/sys/class/block") {
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			continue
		}
		major, minor, ok := strings.Cut(sysfs.ReadText(real, "dev"), ":")
		if !ok || major != mdMajor {
			continue
		}
		t := raidTypeOf(real)
		if t == TypeUnknown {
			continue
		}
		minorNum, _ := strconv.Atoi(minor)
		r := NewRaidDevice(real, minorNum, t)
		if r == nil {
			continue
		}
		if t == TypeVolume {
			s.Volumes = append(s.Volumes, r)
		} else {
			s.Containers = append(s.Containers, r)
		}
	}
	for _, r := range s.Volumes {
		s.linkMembers(r)
	}
	for _, r := range s.Containers {
		s.linkMembers(r)
	}
	return s
}

// linkMembers walks an array's md/dev-* entries and binds them to discovered
// drives. A drive already claimed by a volume is not claimed again by its
// container.
func (s *Snapshot) linkMembers(r *RaidDevice) {
	for _, entry := range sysfs.ScanDir(filepath.Join(r.SysfsPath, "md")) {
		if !strings.HasPrefix(filepath.Base(entry), "dev-") {
			continue
		}
		m := newMember(entry, r, s.Registry)
		if m == nil {
			continue
		}
		if r.Type == TypeContainer && s.claimed(m.Block) {
			continue
		}
		s.Members = append(s.Members, m)
	}
}

func (s *Snapshot) claimed(b *device.BlockDevice) bool {
	for _, m := range s.Members {
		if m.Block == b {
			return true
		}
	}
	return false
}

// FindVolume returns the running volume at an md sysfs path, or nil.
func (s *Snapshot) FindVolume(path string) *RaidDevice {
	for _, r := range s.Volumes {
		if r.SysfsPath == path {
			return r
		}
	}
	return nil
}

// RaidOf returns the array a drive was associated with during derivation.
func (s *Snapshot) RaidOf(b *device.BlockDevice) *RaidDevice {
	return s.raidOf[b]
}

// failedArray classifies a degraded array: 1 when the redundancy is gone,
// 0 when members are missing but the array survives, -1 when healthy.
func failedArray(r *RaidDevice) int {
	if r.Degraded <= 0 {
		return -1
	}
	switch r.Level {
	case Level1, Level10:
		if r.Degraded == r.RaidDisks {
			return 1
		}
		return 0
	case Level4, Level5:
		if r.Degraded > 1 {
			return 1
		}
		return 0
	case Level6:
		if r.Degraded > 2 {
			return 1
		}
		return 0
	case LevelFaulty:
		return 1
	}
	return -1
}

// setBlockState raises a drive's requested pattern; a higher-priority request
// never loses to a lower one within a pass.
func setBlockState(b *device.BlockDevice, p ibpi.Pattern) {
	log.WithFields(log.Fields{
		"device": b.Name(),
		"state":  p.String(),
	}).Debug("block state derived")
	if b.IBPI < p {
		b.IBPI = p
	}
}

// overlaySyncAction raises the pattern for array-wide activity on in-sync
// members, honoring the blink policy knobs.
func overlaySyncAction(policy Policy, r *RaidDevice, b *device.BlockDevice) {
	switch r.SyncAction {
	case ActionUnknown, ActionIdle, ActionFrozen:
		setBlockState(b, ibpi.Normal)
	case ActionReshape:
		if policy.BlinkOnMigration {
			setBlockState(b, ibpi.Rebuild)
		}
	case ActionCheck, ActionResync, ActionRepair:
		if policy.BlinkOnInit {
			setBlockState(b, ibpi.Rebuild)
		}
	case ActionRecover:
		if policy.RebuildBlinkOnAll {
			setBlockState(b, ibpi.Rebuild)
		}
	}
}

// determine derives one member's pattern from its state bits and the health
// of its array.
func (s *Snapshot) determine(policy Policy, m *Member) {
	prev := s.raidOf[m.Block]
	if prev == nil || (prev.Type == TypeContainer && m.Raid.Type == TypeVolume) {
		s.raidOf[m.Block] = m.Raid.Duplicate()
	}

	switch {
	case m.State&MemberFaulty != 0:
		setBlockState(m.Block, ibpi.FailedDrive)

	case m.State&(MemberBlocked|MemberWriteMostly) != 0:
		setBlockState(m.Block, ibpi.Normal)

	case m.State&MemberSpare != 0:
		if failedArray(m.Raid) == 0 {
			if m.Raid.SyncAction != ActionReshape || policy.BlinkOnMigration {
				setBlockState(m.Block, ibpi.Rebuild)
			}
		} else {
			setBlockState(m.Block, ibpi.Hotspare)
		}

	case m.State&MemberInSync != 0:
		switch failedArray(m.Raid) {
		case 0:
			setBlockState(m.Block, ibpi.Degraded)
		case 1:
			setBlockState(m.Block, ibpi.FailedArray)
		}
		overlaySyncAction(policy, m.Raid, m.Block)
	}
}

// Derive computes the requested pattern for every drive in the snapshot.
// With RaidMembersOnly set, drives outside any array are dropped from the
// registry first.
func (s *Snapshot) Derive(policy Policy) {
	if policy.RaidMembersOnly {
		kept := s.Registry.Blocks[:0]
		for _, b := range s.Registry.Blocks {
			if s.claimed(b) {
				kept = append(kept, b)
			}
		}
		s.Registry.Blocks = kept
	}
	for _, m := range s.Members {
		s.determine(policy, m)
	}
}
