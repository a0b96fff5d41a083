package dell

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/sigreer/ledgod/internal/cache"
	"github.com/sigreer/ledgod/internal/ibpi"
)

// Backplane status flags.
const (
	bpPresent       = 1 << 0
	bpOnline        = 1 << 1
	bpHotspare      = 1 << 2
	bpIdentify      = 1 << 3
	bpRebuilding    = 1 << 4
	bpFault         = 1 << 5
	bpPredict       = 1 << 6
	bpCriticalArray = 1 << 9
	bpFailedArray   = 1 << 10
)

// Dell OEM command bytes.
const (
	oemNetFn     = 0x30
	oemStorage   = 0xd5
	getDrvMap12G = 0x07
	setDrvStat12 = 0x04
	getDrvMap13G = 0x17
	setDrvStat13 = 0x14
	getDrvMap14G = 0x37
	setDrvStat14 = 0x34

	appNetFn      = 0x06
	getSystemInfo = 0x59
	getIDRACInfo  = 0xdd
)

// Server generation codes as reported by iDRAC.
const (
	Gen12Monolithic = 0x10
	Gen12Modular    = 0x11
	Gen13Monolithic = 0x20
	Gen13Modular    = 0x21
	Gen14Monolithic = 0x30
	Gen14Modular    = 0x31
	Gen15Monolithic = 0x40
	Gen15Modular    = 0x41
)

var (
	ErrPatternRange = errors.New("pattern outside dell range")
	ErrUnknownModel = errors.New("unable to determine dell server type")
	ErrNoBaySlot    = errors.New("unable to determine bay and slot for device")
)

var stateFor = map[ibpi.Pattern]uint16{
	ibpi.Normal:        bpOnline,
	ibpi.OneshotNormal: bpOnline,
	ibpi.Degraded:      bpCriticalArray | bpOnline,
	ibpi.Hotspare:      bpHotspare | bpOnline,
	ibpi.Rebuild:       bpRebuilding | bpOnline,
	ibpi.FailedArray:   bpFailedArray | bpOnline,
	ibpi.PFA:           bpPredict | bpOnline,
	ibpi.FailedDrive:   bpFault | bpOnline,
	ibpi.Locate:        bpIdentify | bpOnline,
	ibpi.LocateOff:     bpOnline,
}

// BackplaneState resolves the 16-bit drive status mask for a pattern.
func BackplaneState(p ibpi.Pattern) (uint16, error) {
	if p < ibpi.Normal || p > ibpi.LocateOff {
		return 0, ErrPatternRange
	}
	state, ok := stateFor[p]
	if !ok {
		return 0, ErrPatternRange
	}
	return state, nil
}

// ServerGeneration queries iDRAC for the server generation code. The answer
// is cached for the life of the process; hardware does not change generation.
func ServerGeneration() int {
	c := cache.Global()
	if v := c.Get("dell:generation"); v != nil {
		return v.(int)
	}

	data := []byte{0x00, getIDRACInfo, 0x02, 0x00}
	rdata, err := command(appNetFn, getSystemInfo, data, 20)
	if err != nil || len(rdata) < 11 {
		log.WithError(err).Debug("unable to issue IPMI GetSystemInfo")
		return 0
	}
	switch gen := int(rdata[10]); gen {
	case Gen12Monolithic, Gen12Modular,
		Gen13Monolithic, Gen13Modular,
		Gen14Monolithic, Gen14Modular,
		Gen15Monolithic, Gen15Modular:
		c.Set("dell:generation", gen, cache.TTLIdentity)
		return gen
	default:
		log.WithField("code", fmt.Sprintf("0x%02x", rdata[10])).
			Debug("unrecognized dell server generation")
		return 0
	}
}

func drvMapCmd(gen int) byte {
	switch gen {
	case Gen12Monolithic, Gen12Modular:
		return getDrvMap12G
	case Gen13Monolithic, Gen13Modular:
		return getDrvMap13G
	default:
		return getDrvMap14G
	}
}

func setDrvStatusCmd(gen int) byte {
	switch gen {
	case Gen12Monolithic, Gen12Modular:
		return setDrvStat12
	case Gen13Monolithic, Gen13Modular:
		return setDrvStat13
	default:
		return setDrvStat14
	}
}

// baySlot asks the BMC which backplane bay and slot hold the drive at the
// given PCI bus/device/function.
func baySlot(gen, bus, dev, fn int) (byte, byte, error) {
	devfn := byte((dev&0x1f)<<3 | fn&0x7)
	data := make([]byte, 8)
	data[0] = 0x01 // get
	data[1] = drvMapCmd(gen)
	data[2] = 0x06 // length lsb
	data[6] = byte(bus)
	data[7] = devfn
	rdata, err := command(oemNetFn, oemStorage, data, 20)
	if err != nil {
		return 0, 0, err
	}
	if len(rdata) < 9 || rdata[7] == 0xff || rdata[8] == 0xff {
		return 0, 0, fmt.Errorf("%w %02x:%02x.%x", ErrNoBaySlot, bus, dev, fn)
	}
	return rdata[7], rdata[8], nil
}

// SetLED latches a pattern on the backplane slot owning the NVMe drive at
// the given PCI address.
func SetLED(bus, dev, fn int, p ibpi.Pattern) error {
	state, err := BackplaneState(p)
	if err != nil {
		return err
	}
	gen := ServerGeneration()
	if gen == 0 {
		return ErrUnknownModel
	}
	bay, slot, err := baySlot(gen, bus, dev, fn)
	if err != nil {
		return err
	}

	data := make([]byte, 20)
	data[0] = 0x00 // set
	data[1] = setDrvStatusCmd(gen)
	data[2] = 0x0e // length lsb
	data[6] = 0x0e
	data[8] = bay
	data[9] = slot
	data[10] = byte(state & 0xff)
	data[11] = byte(state >> 8)
	if _, err := command(oemNetFn, oemStorage, data, 20); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"bay":     bay,
		"slot":    slot,
		"pattern": p.String(),
	}).Debug("dell backplane LED updated")
	return nil
}
