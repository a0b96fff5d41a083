// Package sgio issues raw SCSI generic commands. The SES backend uses the v3
// interface (sg_io_hdr against /dev/sgN) for SEND/RECEIVE DIAGNOSTIC; the SMP
// backend uses the v4 bsg interface to push SFF-8485 frames at a SAS host.
package sgio

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	sgIO = 0x2285 // SG_IO ioctl

	// dxfer directions, v3 interface
	sgDxferToDev   = -2
	sgDxferFromDev = -3

	bsgProtocolSCSI          = 0
	bsgSubProtocolTransport  = 2
	defaultTimeoutMillis     = 20000
	senseBufLen              = 32
	maxCDBLen                = 16
)

var (
	ErrTransport = errors.New("scsi transport failure")
	ErrCheck     = errors.New("scsi check condition")
)

// sg_io_hdr, 64-bit layout. Field order matters; Go's natural alignment
// matches the C struct so no explicit padding is required.
type sgIoHdr struct {
	interfaceID    int32
	dxferDirection int32
	cmdLen         uint8
	mxSbLen        uint8
	iovecCount     uint16
	dxferLen       uint32
	dxferp         uintptr
	cmdp           uintptr
	sbp            uintptr
	timeout        uint32
	flags          uint32
	packID         int32
	usrPtr         uintptr
	status         uint8
	maskedStatus   uint8
	msgStatus      uint8
	sbLenWr        uint8
	hostStatus     uint16
	driverStatus   uint16
	resid          int32
	duration       uint32
	info           uint32
}

// sg_io_v4 from linux/bsg.h. All fields fixed width.
type sgIoV4 struct {
	guard           int32
	protocol        uint32
	subprotocol     uint32
	requestLen      uint32
	request         uint64
	requestTag      uint64
	requestAttr     uint32
	requestPriority uint32
	requestExtra    uint32
	maxResponseLen  uint32
	response        uint64
	doutIovecCount  uint32
	doutXferLen     uint32
	dinIovecCount   uint32
	dinXferLen      uint32
	doutXferp       uint64
	dinXferp        uint64
	timeout         uint32
	flags           uint32
	usrPtr          uint64
	spareIn         uint32
	dinResid        uint32
	doutResid       uint32
	spareOut        uint32
	padding         uint32
}

func ioctlSG(fd int, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(sgIO), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// exec runs one v3 SG_IO round trip.
func exec(fd int, cdb []byte, buf []byte, direction int32) error {
	if len(cdb) > maxCDBLen {
		return unix.EINVAL
	}
	sense := make([]byte, senseBufLen)
	hdr := sgIoHdr{
		interfaceID:    'S',
		dxferDirection: direction,
		cmdLen:         uint8(len(cdb)),
		mxSbLen:        senseBufLen,
		timeout:        defaultTimeoutMillis,
	}
	if len(buf) > 0 {
		hdr.dxferLen = uint32(len(buf))
		hdr.dxferp = uintptr(unsafe.Pointer(&buf[0]))
	}
	hdr.cmdp = uintptr(unsafe.Pointer(&cdb[0]))
	hdr.sbp = uintptr(unsafe.Pointer(&sense[0]))

	if err := ioctlSG(fd, unsafe.Pointer(&hdr)); err != nil {
		return err
	}
	if hdr.status != 0 {
		return ErrCheck
	}
	if hdr.hostStatus != 0 || hdr.driverStatus != 0 {
		return ErrTransport
	}
	return nil
}

// ReceiveDiag issues RECEIVE DIAGNOSTIC RESULTS for the given page code and
// returns the number of valid bytes in buf.
func ReceiveDiag(fd int, pageCode byte, buf []byte) (int, error) {
	cdb := []byte{0x1c, 0x01, pageCode,
		byte(len(buf) >> 8), byte(len(buf)), 0x00}
	if err := exec(fd, cdb, buf, sgDxferFromDev); err != nil {
		return 0, err
	}
	if len(buf) < 4 {
		return 0, ErrTransport
	}
	n := int(buf[2])<<8 + int(buf[3]) + 4
	if n > len(buf) {
		n = len(buf)
	}
	return n, nil
}

// SendDiag issues SEND DIAGNOSTIC with the PF bit set, pushing a full control
// page to the enclosure.
func SendDiag(fd int, page []byte) error {
	cdb := []byte{0x1d, 0x10, 0x00,
		byte(len(page) >> 8), byte(len(page)), 0x00}
	return exec(fd, cdb, page, sgDxferToDev)
}

// ExchangeBSG sends a raw transport frame over the bsg v4 interface and fills
// response, returning the number of response bytes received.
func ExchangeBSG(fd int, frame, response []byte) (int, error) {
	request := make([]byte, maxCDBLen)
	v4 := sgIoV4{
		guard:          'Q',
		protocol:       bsgProtocolSCSI,
		subprotocol:    bsgSubProtocolTransport,
		requestLen:     uint32(len(request)),
		request:        uint64(uintptr(unsafe.Pointer(&request[0]))),
		doutXferLen:    uint32(len(frame)),
		doutXferp:      uint64(uintptr(unsafe.Pointer(&frame[0]))),
		dinXferLen:     uint32(len(response)),
		dinXferp:       uint64(uintptr(unsafe.Pointer(&response[0]))),
		timeout:        defaultTimeoutMillis,
	}
	if err := ioctlSG(fd, unsafe.Pointer(&v4)); err != nil {
		return 0, err
	}
	if v4.dinResid > v4.dinXferLen {
		return 0, ErrTransport
	}
	return int(v4.dinXferLen - v4.dinResid), nil
}
