// Package smp drives backplane LEDs behind SAS expanders and host adapters
// that speak the SFF-8485 SGPIO protocol over SMP WRITE GPIO frames. Frames
// travel through the kernel bsg layer to the HBA driver.
package smp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/sigreer/ledgod/internal/ibpi"
	"github.com/sigreer/ledgod/internal/sgio"
	"github.com/sigreer/ledgod/internal/sysfs"
)

// SMP frame constants.
const (
	frameTypeRequest  = 0x40
	frameTypeResponse = 0x41

	funcGPIOWrite = 0x82

	frameCRCLen   = 4
	dataChunkSize = 4
	headerLen     = 8
)

// GPIO register types.
const (
	RegTypeCfg  = 0x00
	RegTypeTx   = 0x03
	RegTypeTxGP = 0x04
)

// GPIOTxGP1 is the first general purpose TX register index; GP registers are
// 1-based on the wire.
const GPIOTxGP1 = 0x01

// LED blink codes from SFF-8485.
const (
	LEDOff  = 0
	LEDOn   = 1
	LED4Hz  = 2
	LEDI4Hz = 3
	LEDEOF  = 4
	LEDSOF  = 5
	LED2Hz  = 6
	LEDI2Hz = 7
)

var (
	ErrPatternRange  = errors.New("pattern outside sgpio range")
	ErrNotSupported  = errors.New("pattern not supported by this controller")
	ErrFrameRejected = errors.New("smp write gpio frame rejected")
)

// TxPattern is the (activity, locate, error) LED triple for one drive.
type TxPattern struct {
	Activity uint8
	Locate   uint8
	Error    uint8
}

// Encode packs the triple into the SFF-8485 TX register byte: error in bits
// 0-2, locate in bits 3-4, activity in bits 5-7.
func (p TxPattern) Encode() byte {
	return p.Error&0x07 | (p.Locate&0x03)<<3 | (p.Activity&0x07)<<5
}

type patternEntry struct {
	tx        TxPattern
	supported bool
}

// patternTable maps patterns to LED triples. Unsupported entries carry a
// best-effort rendering for expander-attached drives; direct-attached isci
// ports reject them instead.
var patternTable = map[ibpi.Pattern]patternEntry{
	ibpi.Unknown:       {TxPattern{LEDSOF, LEDOff, LEDOff}, true},
	ibpi.OneshotNormal: {TxPattern{LEDSOF, LEDOff, LEDOff}, true},
	ibpi.Normal:        {TxPattern{LEDSOF, LEDOff, LEDOff}, true},
	ibpi.Degraded:      {TxPattern{LEDSOF, LEDOff, LEDOff}, false},
	ibpi.Rebuild:       {TxPattern{LEDSOF, LEDOn, LEDOn}, true},
	ibpi.FailedArray:   {TxPattern{LEDSOF, LED4Hz, LEDOff}, false},
	ibpi.Hotspare:      {TxPattern{LEDSOF, LEDOff, LED4Hz}, false},
	ibpi.PFA:           {TxPattern{LEDSOF, LEDOff, LED2Hz}, false},
	ibpi.FailedDrive:   {TxPattern{LEDSOF, LEDOff, LEDOn}, true},
	ibpi.Locate:        {TxPattern{LEDSOF, LEDOn, LEDOff}, true},
	ibpi.LocateOff:     {TxPattern{LEDSOF, LEDOff, LEDOff}, true},
}

// gpBitPos locates output-data bit od inside a GP register bitstream. GP
// registers start at index 1; within each 32-bit register, bit 0 of byte 3
// carries the first od bit and bit 7 of byte 0 the last (SFF-8485 v0.7).
func gpBitPos(od uint, index, count int) (byteIdx int, bit uint, ok bool) {
	if index == 0 {
		return 0, 0, false
	}
	index--
	if od < uint(index)*32 {
		return 0, 0, false
	}
	od -= uint(index) * 32
	reg := int(od >> 5)
	if reg >= count {
		return 0, 0, false
	}
	od &= 31
	return reg*4 + int(3-(od>>3)), od & 7, true
}

func setGPBit(od uint, data []byte, index, count int, on bool) bool {
	byteIdx, bit, ok := gpBitPos(od, index, count)
	if !ok {
		return false
	}
	if on {
		data[byteIdx] |= 1 << bit
	} else {
		data[byteIdx] &^= 1 << bit
	}
	return true
}

// SetRawPattern renders a TX triple into the GP bitstream for the drive at
// phy index. Only the ON level maps to a set bit; blink codes collapse to
// off, which is what the raw stream can express.
func SetRawPattern(phy int, data []byte, p TxPattern) bool {
	od := uint(phy) * 3
	ok := setGPBit(od, data, GPIOTxGP1, 1, p.Activity == LEDOn)
	ok = setGPBit(od+1, data, GPIOTxGP1, 1, p.Locate == LEDOn) && ok
	ok = setGPBit(od+2, data, GPIOTxGP1, 1, p.Error == LEDOn) && ok
	return ok
}

// openSMPDevice opens the bsg node for a sysfs bsg directory by reading its
// dev attribute and creating a transient device node, the same dance the
// kernel's smp_utils performs. The node is unlinked as soon as it is open.
func openSMPDevice(sysfsPath string) (*os.File, error) {
	var major, minor uint32
	dev := sysfs.ReadText(sysfsPath, "dev")
	if _, err := fmt.Sscanf(dev, "%d:%d", &major, &minor); err != nil {
		return nil, fmt.Errorf("no dev attribute under %s: %w", sysfsPath, err)
	}
	node := filepath.Join("/var/tmp",
		fmt.Sprintf("led.%d.%d.%d", major, minor, os.Getpid()))
	if err := unix.Mknod(node, unix.S_IFCHR|0600, int(unix.Mkdev(major, minor))); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(node, os.O_RDWR, 0)
	os.Remove(node)
	return f, err
}

// WriteGPIO sends one SMP WRITE GPIO REGISTER frame. data holds regCount
// 32-bit register values.
func WriteGPIO(sysfsPath string, regType, regIndex, regCount int, data []byte) error {
	f, err := openSMPDevice(sysfsPath)
	if err != nil {
		return err
	}
	defer f.Close()

	frame := make([]byte, headerLen+len(data)+frameCRCLen)
	frame[0] = frameTypeRequest
	frame[1] = funcGPIOWrite
	frame[2] = byte(regType)
	frame[3] = byte(regIndex)
	frame[4] = byte(regCount)
	copy(frame[headerLen:], data)

	response := make([]byte, headerLen)
	n, err := sgio.ExchangeBSG(int(f.Fd()), frame, response)
	if err != nil {
		return err
	}
	if n < 3 || response[0] != frameTypeResponse || response[1] != funcGPIOWrite {
		return ErrFrameRejected
	}
	if response[2] != 0 {
		return fmt.Errorf("%w: function result 0x%02x", ErrFrameRejected, response[2])
	}
	return nil
}
