package amd

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	log "github.com/sirupsen/logrus"

	"github.com/sigreer/ledgod/internal/ibpi"
	"github.com/sigreer/ledgod/internal/sysfs"
)

const hostCapEMS = 1 << 6

var (
	ErrPatternRange = errors.New("pattern outside amd sgpio range")
	ErrNotSupported = errors.New("pattern not supported by amd sgpio")
	ErrNoATAPort    = errors.New("no ata port in device path")
)

// Drive locates a SATA drive within the controller's SGPIO topology.
type Drive struct {
	// ATAPort is the kernel's ataN number, which selects the cache bank.
	ATAPort int

	// Port is the controller-local port number.
	Port int

	// Bay is the drive's position within its 4-drive bank.
	Bay int

	// Initiator selects which of the two banks the AMD register
	// addresses.
	Initiator int
}

// BankIndex is the cache slot for the drive's bank: ata ports 0..3 share
// bank 0, ports 4..7 share bank 1.
func (d Drive) BankIndex() int {
	return d.ATAPort / 4
}

// ResolveDrive derives the SGPIO addressing of the drive living at a sysfs
// path containing an ataN component.
func ResolveDrive(devPath string) (Drive, error) {
	var d Drive

	i := strings.Index(devPath, "ata")
	if i < 0 {
		return d, ErrNoATAPort
	}
	ataDir := devPath
	if j := strings.IndexByte(devPath[i:], '/'); j >= 0 {
		ataDir = devPath[:i+j]
	}
	port, err := strconv.Atoi(strings.TrimPrefix(ataDir[i:], "ata"))
	if err != nil {
		return d, ErrNoATAPort
	}
	d.ATAPort = port

	portDir, ok := sysfs.FindFile(ataDir, "port_no")
	if !ok {
		return d, ErrNoATAPort
	}
	d.Port = sysfs.ReadInt(portDir, -1, "port_no")
	if d.Port == -1 {
		return d, ErrNoATAPort
	}

	// Ports number down from 8; the upper bank is the initiator.
	d.Bay = 8 - d.Port
	if d.Bay < 4 {
		d.Initiator = 1
	} else {
		d.Bay -= 4
		d.Initiator = 0
	}
	return d, nil
}

// writeRegister pushes one serialized register into the em_buffer. The
// controller reports EBUSY while digesting the previous message, so writes
// retry briefly.
func writeRegister(emBufferPath string, reg []byte) error {
	return retry.Do(
		func() error {
			f, err := os.OpenFile(emBufferPath, os.O_WRONLY, 0)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			_, err = f.Write(reg)
			f.Close()
			// give the hardware time to latch the message
			time.Sleep(time.Millisecond)
			return err
		},
		retry.Attempts(3),
		retry.Delay(time.Millisecond),
		retry.LastErrorOnly(true),
	)
}

// stageBank renders the pattern for one drive into its bank's cache entry
// and returns the TX register contents for the whole bank. The second blink
// generator is allocated when the first already carries a different rate.
func stageBank(entry *CacheEntry, bay int, p ibpi.Pattern) [4]DriveLeds {
	if entry.BlinkGenA != 0 {
		entry.BlinkGenB = blinkRate[p]
	} else {
		entry.BlinkGenA = blinkRate[p]
	}

	var leds DriveLeds
	if entry.BlinkGenA != 0 {
		leds = ledsGenB[p]
	} else {
		leds = ledsGenA[p]
	}
	entry.Leds[bay] = leds
	return entry.Leds
}

// SetIBPI renders a pattern on the drive at devPath through the controller's
// em_buffer. On a write failure the cached bank state is rolled back so the
// next attempt reprograms from a consistent view.
func SetIBPI(devPath, emBufferPath string, p ibpi.Pattern) error {
	if p < ibpi.Normal || p > ibpi.LocateOff {
		return ErrPatternRange
	}
	if p == ibpi.Degraded || p == ibpi.FailedArray {
		return ErrNotSupported
	}

	drive, err := ResolveDrive(devPath)
	if err != nil {
		return err
	}
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.close()

	bank := drive.BankIndex()
	saved := c.entry(bank)
	entry := saved

	leds := stageBank(&entry, drive.Bay, p)
	c.setEntry(bank, entry)

	err = writeRegister(emBufferPath, marshalAMDRegister(drive.Initiator))
	if err == nil {
		err = writeRegister(emBufferPath,
			marshalCfgRegister(entry.BlinkGenA, entry.BlinkGenB))
	}
	if err == nil {
		err = writeRegister(emBufferPath, marshalTxRegister(leds))
	}
	if err != nil {
		c.setEntry(bank, saved)
		return err
	}

	log.WithFields(log.Fields{
		"ata_port": drive.ATAPort,
		"bay":      drive.Bay,
		"pattern":  p.String(),
	}).Debug("amd sgpio LEDs updated")
	return nil
}

// initBank primes every untouched drive of a bank with the idle rendering.
func initBank(emBufferPath string, drive Drive, c *bankCache) error {
	bank := drive.BankIndex()
	saved := c.entry(bank)
	entry := saved

	dirty := false
	for i := 0; i < 4; i++ {
		l := entry.Leds[i]
		if l.Error != 0 || l.Locate != 0 || l.Activity != 0 {
			continue
		}
		entry.Leds[i] = idleLeds
		dirty = true
	}
	if !dirty {
		return nil
	}
	c.setEntry(bank, entry)

	err := writeRegister(emBufferPath, marshalAMDRegister(drive.Initiator))
	if err == nil {
		err = writeRegister(emBufferPath,
			marshalCfgRegister(entry.BlinkGenA, entry.BlinkGenB))
	}
	if err == nil {
		err = writeRegister(emBufferPath, marshalTxRegister(entry.Leds))
	}
	if err != nil {
		c.setEntry(bank, saved)
	}
	return err
}

// InitController primes both 4-drive banks behind one em_buffer so that
// drives with no pending request show the idle pattern.
func InitController(emBufferDir string) error {
	emBufferPath := emBufferDir + "/em_buffer"
	drive, err := ResolveDrive(emBufferPath)
	if err != nil {
		return err
	}
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.close()

	if err := initBank(emBufferPath, drive, c); err != nil {
		return err
	}

	// The sibling bank shares the buffer with flipped initiator.
	if drive.Initiator == 1 {
		drive.ATAPort -= 4
		drive.Initiator = 0
	} else {
		drive.ATAPort += 4
		drive.Initiator = 1
	}
	return initBank(emBufferPath, drive, c)
}

// EMEnabled reports whether the controller at path exposes a usable SGPIO
// enclosure management buffer, and initializes it when it does.
func EMEnabled(path string) bool {
	// libahci must be loaded with ahci_em_messages=1
	if !sysfs.ReadBool("/sys/module/libahci/parameters", false, "ahci_em_messages") {
		log.Debug("kernel libahci enclosure management messaging not enabled")
		return false
	}
	emDir, ok := sysfs.FindFile(path, "em_buffer")
	if !ok {
		return false
	}
	if !strings.Contains(sysfs.ReadText(emDir, "em_message_supported"), "sgpio") {
		log.WithField("path", path).Debug("sgpio EM not supported")
		return false
	}
	// ahci_host_caps prints bare hex
	caps, err := strconv.ParseUint(
		strings.TrimPrefix(sysfs.ReadText(emDir, "ahci_host_caps"), "0x"), 16, 64)
	if err != nil || caps&hostCapEMS == 0 {
		return false
	}
	if err := InitController(emDir); err != nil {
		log.WithField("path", emDir).WithError(err).Debug("sgpio bank init failed")
		return false
	}
	return true
}
