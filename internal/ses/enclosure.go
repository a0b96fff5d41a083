package ses

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sigreer/ledgod/internal/ibpi"
	"github.com/sigreer/ledgod/internal/sysfs"
)

// Enclosure is one SES-capable enclosure processor with its cached diagnostic
// pages and slot map.
type Enclosure struct {
	SysfsPath  string
	DevPath    string // /dev/sgN control node
	SASAddress uint64

	Pages *Pages
	Slots []Slot
}

// sasAddressOf reads the expander SAS address that owns the enclosure. The
// enclosure's sysfs path runs through an expander-H:N component; the address
// lives under the expander's sas_device directory.
func sasAddressOf(path string) uint64 {
	i := strings.Index(path, "/expander")
	if i < 0 {
		return 0
	}
	j := strings.IndexByte(path[i+1:], '/')
	if j < 0 {
		return 0
	}
	expander := path[i+1 : i+1+j]
	dir := filepath.Join(path[:i], "sas_device", expander)
	return sysfs.ReadUint64(dir, 0, "sas_address")
}

// devNodeOf maps an enclosure class device to its /dev/sgN node via the
// scsi_generic subdirectory.
func devNodeOf(enclPath string) string {
	entries := sysfs.ScanDir(filepath.Join(enclPath, "device", "scsi_generic"))
	if len(entries) == 0 {
		return ""
	}
	return filepath.Join("/dev", filepath.Base(entries[0]))
}

// NewEnclosure initializes an enclosure from its /sys/class/enclosure entry
// and performs the first page load.
func NewEnclosure(path string) (*Enclosure, error) {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, fmt.Errorf("enclosure %s: %w", path, err)
	}
	e := &Enclosure{
		SysfsPath:  real,
		DevPath:    devNodeOf(real),
		SASAddress: sasAddressOf(real),
	}
	if e.DevPath == "" {
		return nil, fmt.Errorf("%w: no sg node under %s", ErrEnclosureNotFound, real)
	}
	if err := e.Reload(); err != nil {
		log.WithFields(log.Fields{
			"enclosure": real,
			"dev":       e.DevPath,
		}).WithError(err).Warn("failed to initialize enclosure")
		return nil, err
	}
	return e, nil
}

func (e *Enclosure) open() (*os.File, error) {
	return os.OpenFile(e.DevPath, os.O_RDWR, 0)
}

// Reload refetches the diagnostic pages and rebuilds the slot map, dropping
// any staged but unflushed changes.
func (e *Enclosure) Reload() error {
	f, err := e.open()
	if err != nil {
		return err
	}
	defer f.Close()

	pages, err := LoadPages(int(f.Fd()))
	if err != nil {
		return err
	}
	slots, err := pages.Slots()
	if err != nil {
		return err
	}
	e.Pages = pages
	e.Slots = slots
	return nil
}

// SlotByIndex returns the slot with the given element index.
func (e *Enclosure) SlotByIndex(index int) (Slot, error) {
	for _, s := range e.Slots {
		if s.Index == index {
			return s, nil
		}
	}
	return Slot{}, ErrSlotNotFound
}

// SlotBySASAddr returns the slot holding the device with the given address.
func (e *Enclosure) SlotBySASAddr(addr uint64) (Slot, error) {
	if addr == 0 {
		return Slot{}, ErrSlotNotFound
	}
	for _, s := range e.Slots {
		if s.SASAddr == addr {
			return s, nil
		}
	}
	return Slot{}, ErrSlotNotFound
}

// inControlRange reports whether the pattern can be expressed on the control
// page. Direct SES requests past Fault are status-only.
func inControlRange(p ibpi.Pattern) bool {
	return p >= ibpi.Normal && p <= ibpi.SESFault
}

// Stage records a pattern for a slot without touching hardware.
func (e *Enclosure) Stage(p ibpi.Pattern, index int) error {
	if !inControlRange(p) {
		return ErrUnsupportedPattern
	}
	if e.Pages == nil {
		return ErrEnclosureNotFound
	}
	return e.Pages.StageMsg(p, index)
}

// Flush sends the staged control page and reloads state from hardware so the
// slot map reflects what the enclosure actually latched.
func (e *Enclosure) Flush() error {
	if e.Pages == nil || !e.Pages.Dirty() {
		return nil
	}
	f, err := e.open()
	if err != nil {
		return err
	}
	err = e.Pages.SendDiag(int(f.Fd()))
	f.Close()
	if err != nil {
		return err
	}
	return e.Reload()
}

// SetSlot stages one pattern and flushes immediately. Used by the one-shot
// CLI path; the monitor loop batches with Stage/Flush instead.
func (e *Enclosure) SetSlot(p ibpi.Pattern, index int) error {
	if err := e.Stage(p, index); err != nil {
		return err
	}
	return e.Flush()
}

// DiscoverEnclosures scans /sys/class/enclosure and initializes every entry
// that exposes a usable sg node.
func DiscoverEnclosures() []*Enclosure {
	var out []*Enclosure
	for _, path := range sysfs.ScanDir("/sys/class/enclosure") {
		e, err := NewEnclosure(path)
		if err != nil {
			log.WithField("path", path).WithError(err).Debug("skipping enclosure")
			continue
		}
		out = append(out, e)
	}
	return out
}
