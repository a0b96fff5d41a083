// Package ahci drives LEDs on Intel AHCI controllers through the em_message
// sysfs attribute. The controller transmits the written 32-bit value as an
// LED message over its enclosure management port.
package ahci

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sigreer/ledgod/internal/ibpi"
	"github.com/sigreer/ledgod/internal/sysfs"
)

// emMsgWait is the settle delay before each write; back-to-back messages get
// dropped by the controller without it.
const emMsgWait = 1500 * time.Microsecond

var (
	ErrPatternRange  = errors.New("pattern outside ahci range")
	ErrNotSupported  = errors.New("pattern not supported by ahci controller")
	ErrNoControlPath = errors.New("ahci control path not set")
)

// messages maps patterns to em_message values. The extended entries past
// LocateOff's zero are only reachable when the caller enables them; stock
// firmware ignores their blink codes.
var messages = map[ibpi.Pattern]uint32{
	ibpi.Normal:        0x00000000,
	ibpi.OneshotNormal: 0x00000000,
	ibpi.Rebuild:       0x00480000,
	ibpi.FailedDrive:   0x00400000,
	ibpi.Locate:        0x00080000,
	ibpi.LocateOff:     0x00000000,
}

// extendedMessages carries the debug-only renderings for patterns most AHCI
// enclosures cannot show.
var extendedMessages = map[ibpi.Pattern]uint32{
	ibpi.Degraded:    0x00200000,
	ibpi.FailedArray: 0x00280000,
	ibpi.Hotspare:    0x01800000,
	ibpi.PFA:         0x01400000,
}

// Message resolves the em_message value for a pattern. extended widens the
// table with the debug renderings.
func Message(p ibpi.Pattern, extended bool) (uint32, error) {
	if p < ibpi.Normal || p > ibpi.LocateOff {
		return 0, ErrPatternRange
	}
	if v, ok := messages[p]; ok {
		return v, nil
	}
	if extended {
		if v, ok := extendedMessages[p]; ok {
			return v, nil
		}
	}
	return 0, ErrNotSupported
}

// Write sends one LED message through the controller owning controlPath,
// which is the scsi_host directory exposing em_message.
func Write(controlPath string, p ibpi.Pattern, extended bool) error {
	if controlPath == "" {
		return ErrNoControlPath
	}
	value, err := Message(p, extended)
	if err != nil {
		return err
	}
	time.Sleep(emMsgWait)
	return sysfs.WriteText(filepath.Join(controlPath, "em_message"),
		strconv.FormatUint(uint64(value), 10))
}

// PortPath rewrites a block device's device path into its scsi_host control
// directory: the hostN component moves under a scsi_host subdirectory and
// everything past it is dropped.
func PortPath(devPath string) string {
	hostIdx := strings.Index(devPath, "/host")
	if hostIdx < 0 {
		return ""
	}
	targetIdx := strings.Index(devPath[hostIdx:], "/target")
	if targetIdx < 0 {
		return ""
	}
	host := devPath[hostIdx+1 : hostIdx+targetIdx]
	return filepath.Join(devPath[:hostIdx+targetIdx], "scsi_host", host)
}
