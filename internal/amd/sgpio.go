// Package amd drives LEDs on AMD SATA controllers whose AHCI enclosure
// management buffer speaks SGPIO. Registers are serialized into the
// controller's em_buffer sysfs file; two blink generators are shared by each
// 4-drive bank, so programmed rates are tracked in a shared cache.
package amd

import (
	"encoding/binary"

	"github.com/sigreer/ledgod/internal/ibpi"
)

// Register type codes carried in the request dword.
const (
	regTypeCfg = 0x00
	regTypeTx  = 0x03
	regTypeAMD = 0xc0
)

const (
	msgTypeSGPIO = 0x03

	frameTypeRequest = 0x40
	funcWriteGPIO    = 0x82
)

const (
	amdRegisterLen = 16
	cfgRegisterLen = 20
	txRegisterLen  = 16
)

// header packs the em_buffer message header dword.
func header(dataSize, msgSize int) uint32 {
	return uint32(msgTypeSGPIO)<<4 |
		uint32(dataSize&0xff)<<8 |
		uint32(msgSize&0xff)<<16
}

// request packs the SGPIO request qword.
func request(regType, regIndex, regCount int) uint64 {
	return uint64(frameTypeRequest) |
		uint64(funcWriteGPIO)<<8 |
		uint64(regType&0xff)<<16 |
		uint64(regIndex&0xff)<<24 |
		uint64(regCount&0xff)<<32
}

// configReg packs the SGPIO configuration qword: enable plus blink generator
// rates and the fixed activity timing the hardware expects.
func configReg(blinkA, blinkB uint8) uint64 {
	const (
		maxOn      = 1
		forceOff   = 2
		stretchOn  = 0
		stretchOff = 0
	)
	return 1<<23 |
		uint64(blinkA&0xf)<<40 |
		uint64(blinkB&0xf)<<44 |
		uint64(maxOn)<<48 |
		uint64(forceOff)<<52 |
		uint64(stretchOn)<<56 |
		uint64(stretchOff)<<60
}

// amdReg packs the vendor register selecting the bank initiator. Bypass and
// return-to-normal stay enabled; polarity is never flipped.
func amdReg(initiator int) uint32 {
	return uint32(initiator&0x1) |
		0<<4 | // polarity
		1<<5 | // return to normal
		1<<6 // bypass enable
}

// encodeLED packs one drive's LED triple into its TX byte.
func encodeLED(l DriveLeds) byte {
	return l.Error&0x07 | (l.Locate&0x03)<<3 | (l.Activity&0x07)<<5
}

// blinkRate is the blink generator nibble a pattern needs.
var blinkRate = map[ibpi.Pattern]uint8{
	ibpi.None:        0x00,
	ibpi.Rebuild:     0x07,
	ibpi.Hotspare:    0x02,
	ibpi.PFA:         0x03,
	ibpi.FailedDrive: 0x00,
	ibpi.Locate:      0x07,
	ibpi.LocateOff:   0x00,
}

// idleLeds is the steady-activity rendering for drives with no request.
var idleLeds = DriveLeds{Error: 0, Locate: 0, Activity: 0b101}

// ledsGenA maps patterns to LED triples when blink generator A carries the
// bank's rate; ledsGenB is the equivalent for generator B.
var ledsGenA = map[ibpi.Pattern]DriveLeds{
	ibpi.Normal:        idleLeds,
	ibpi.OneshotNormal: idleLeds,
	ibpi.Rebuild:       {Error: 0b010},
	ibpi.Hotspare:      {Error: 0b010},
	ibpi.PFA:           {Error: 0b010},
	ibpi.FailedDrive:   {Error: 0b001},
	ibpi.Locate:        {Error: 0b010, Activity: 0b010},
	ibpi.LocateOff:     idleLeds,
}

var ledsGenB = map[ibpi.Pattern]DriveLeds{
	ibpi.Normal:        idleLeds,
	ibpi.OneshotNormal: idleLeds,
	ibpi.Rebuild:       {Error: 0b110},
	ibpi.Hotspare:      {Error: 0b110},
	ibpi.PFA:           {Error: 0b110},
	ibpi.FailedDrive:   {Error: 0b001},
	ibpi.Locate:        {Error: 0b110, Activity: 0b110},
	ibpi.LocateOff:     idleLeds,
}

func marshalAMDRegister(initiator int) []byte {
	buf := make([]byte, amdRegisterLen)
	binary.LittleEndian.PutUint32(buf[0:], header(0, amdRegisterLen))
	binary.LittleEndian.PutUint64(buf[4:], request(regTypeAMD, 0, 1))
	binary.LittleEndian.PutUint32(buf[12:], amdReg(initiator))
	return buf
}

func marshalCfgRegister(blinkA, blinkB uint8) []byte {
	buf := make([]byte, cfgRegisterLen)
	binary.LittleEndian.PutUint32(buf[0:], header(0, cfgRegisterLen))
	binary.LittleEndian.PutUint64(buf[4:], request(regTypeCfg, 0, 2))
	binary.LittleEndian.PutUint64(buf[12:], configReg(blinkA, blinkB))
	return buf
}

func marshalTxRegister(leds [4]DriveLeds) []byte {
	buf := make([]byte, txRegisterLen)
	binary.LittleEndian.PutUint32(buf[0:], header(0, txRegisterLen))
	binary.LittleEndian.PutUint64(buf[4:], request(regTypeTx, 0, 1))
	for i, l := range leds {
		buf[12+i] = encodeLED(l)
	}
	return buf
}
