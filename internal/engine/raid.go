// Package engine turns md RAID topology and member health into LED pattern
// requests, and tracks drives across scan passes so removals and failures
// stay visible after the kernel forgets the device.
package engine

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sigreer/ledgod/internal/device"
	"github.com/sigreer/ledgod/internal/sysfs"
)

// RaidType distinguishes md volumes from external-metadata containers.
type RaidType int

const (
	TypeUnknown RaidType = iota
	TypeVolume
	TypeContainer
)

// RaidLevel is the md personality of an array.
type RaidLevel int

const (
	LevelUnknown RaidLevel = iota
	Level0
	Level1
	Level4
	Level5
	Level6
	Level10
	LevelLinear
	LevelFaulty
)

var levelNames = map[string]RaidLevel{
	"raid0":  Level0,
	"raid1":  Level1,
	"raid10": Level10,
	"raid4":  Level4,
	"raid5":  Level5,
	"raid6":  Level6,
	"linear": LevelLinear,
	"faulty": LevelFaulty,
}

// SyncAction is the md sync thread state.
type SyncAction int

const (
	ActionUnknown SyncAction = iota
	ActionIdle
	ActionReshape
	ActionFrozen
	ActionResync
	ActionCheck
	ActionRecover
	ActionRepair
)

var actionNames = map[string]SyncAction{
	"idle":    ActionIdle,
	"reshape": ActionReshape,
	"frozen":  ActionFrozen,
	"resync":  ActionResync,
	"check":   ActionCheck,
	"recover": ActionRecover,
	"repair":  ActionRepair,
}

// ArrayState is the md array_state attribute.
type ArrayState int

const (
	StateUnknown ArrayState = iota
	StateClear
	StateInactive
	StateSuspended
	StateReadonly
	StateReadAuto
	StateClean
	StateActive
	StateWritePending
	StateActiveIdle
)

var arrayStateNames = map[string]ArrayState{
	"clear":         StateClear,
	"inactive":      StateInactive,
	"suspended":     StateSuspended,
	"readonly":      StateReadonly,
	"read-auto":     StateReadAuto,
	"clean":         StateClean,
	"active":        StateActive,
	"write-pending": StateWritePending,
	"active-idle":   StateActiveIdle,
}

// RaidDevice is one md array with the attributes LED derivation needs.
type RaidDevice struct {
	SysfsPath  string
	DeviceNum  int
	Type       RaidType
	Level      RaidLevel
	State      ArrayState
	SyncAction SyncAction
	Degraded   int
	RaidDisks  int
}

// raidTypeOf classifies an md device by its metadata version: external
// metadata with a parent reference is a volume inside a container, external
// metadata without one is the container itself.
func raidTypeOf(path string) RaidType {
	meta := sysfs.ReadText(path, "md/metadata_version")
	if meta == "" {
		return TypeUnknown
	}
	if rest, ok := strings.CutPrefix(meta, "external:"); ok {
		if strings.HasPrefix(rest, "/") || strings.HasPrefix(rest, "-") {
			return TypeVolume
		}
		return TypeContainer
	}
	return TypeVolume
}

// NewRaidDevice reads one md array. Arrays that are not running (and
// containers that are not at least inactive) yield nil.
func NewRaidDevice(path string, deviceNum int, t RaidType) *RaidDevice {
	state := arrayStateNames[sysfs.ReadText(path, "md/array_state")]
	if state <= StateInactive && !(t == TypeContainer && state > StateClear) {
		return nil
	}
	r := &RaidDevice{
		SysfsPath:  path,
		DeviceNum:  deviceNum,
		Type:       t,
		Level:      levelNames[sysfs.ReadText(path, "md/level")],
		State:      state,
		SyncAction: actionNames[sysfs.ReadText(path, "md/sync_action")],
		Degraded:   sysfs.ReadInt(path, -1, "md/degraded"),
		RaidDisks:  sysfs.ReadInt(path, 0, "md/raid_disks"),
	}
	log.WithFields(log.Fields{
		"path":     filepath.Base(path),
		"level":    r.Level,
		"state":    r.State,
		"degraded": r.Degraded,
		"disks":    r.RaidDisks,
	}).Debug("raid device discovered")
	return r
}

// Duplicate copies the array metadata for a tracked drive.
func (r *RaidDevice) Duplicate() *RaidDevice {
	if r == nil {
		return nil
	}
	d := *r
	return &d
}

// MemberState is the bitmask parsed from an md member's state attribute.
type MemberState uint8

const (
	MemberSpare MemberState = 1 << iota
	MemberInSync
	MemberFaulty
	MemberWriteMostly
	MemberBlocked
)

func parseMemberState(text string) MemberState {
	var state MemberState
	for _, s := range strings.Split(text, ",") {
		switch strings.TrimSpace(s) {
		case "spare":
			state |= MemberSpare
		case "in_sync":
			state |= MemberInSync
		case "faulty":
			state |= MemberFaulty
		case "write_mostly":
			state |= MemberWriteMostly
		case "blocked":
			state |= MemberBlocked
		}
	}
	return state
}

// Member is one md member slot bound to its discovered drive.
type Member struct {
	Slot   int
	State  MemberState
	Errors int
	Block  *device.BlockDevice
	Raid   *RaidDevice
}

// memberBlockPath resolves an md dev-XXX entry to the drive it lives on,
// collapsing partitions onto the whole-disk device.
func memberBlockPath(devDir string) string {
	link, err := filepath.EvalSymlinks(filepath.Join(devDir, "block"))
	if err != nil {
		return ""
	}
	if _, err := os.Stat(filepath.Join(link, "partition")); err == nil {
		link = filepath.Dir(link)
	}
	return link
}

// newMember reads one md/dev-XXX directory. Members without a slot or whose
// drive was not discovered yield nil.
func newMember(devDir string, raid *RaidDevice, r *device.Registry) *Member {
	slotText := sysfs.ReadText(devDir, "slot")
	if slotText == "" || slotText == "none" {
		return nil
	}
	slot, err := strconv.Atoi(slotText)
	if err != nil {
		return nil
	}
	blockPath := memberBlockPath(devDir)
	if blockPath == "" {
		return nil
	}
	var block *device.BlockDevice
	for _, b := range r.Blocks {
		if b.SysfsPath == blockPath {
			block = b
			break
		}
	}
	if block == nil {
		return nil
	}
	return &Member{
		Slot:   slot,
		State:  parseMemberState(sysfs.ReadText(devDir, "state")),
		Errors: sysfs.ReadInt(devDir, 0, "errors"),
		Block:  block,
		Raid:   raid,
	}
}
