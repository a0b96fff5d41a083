// Package dell drives backplane LEDs on Dell PowerEdge servers through iDRAC
// OEM IPMI commands. The BMC owns the backplane, so requests travel over the
// local IPMI device instead of a storage transport.
package dell

import (
	"errors"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	ipmiSystemInterfaceAddrType = 0x0c
	ipmiBMCChannel              = 0xf

	// BMCAddr is the BMC slave address.
	BMCAddr = 0x20

	ipmiMaxAddrSize = 32
	ipmiIOCMagic    = 'i'
)

var ErrNoBMC = errors.New("no ipmi device available")

// Kernel ABI structs from linux/ipmi.h, 64-bit layout.

type ipmiMsg struct {
	netfn   uint8
	cmd     uint8
	dataLen uint16
	_       [4]byte
	data    *byte
}

type ipmiReq struct {
	addr    *byte
	addrLen uint32
	_       [4]byte
	msgid   int64
	msg     ipmiMsg
}

type ipmiRecv struct {
	recvType int32
	_        [4]byte
	addr     *byte
	addrLen  uint32
	_        [4]byte
	msgid    int64
	msg      ipmiMsg
}

type ipmiSystemInterfaceAddr struct {
	addrType int32
	channel  int16
	lun      uint8
	_        [1]byte
}

type ipmiAddr struct {
	addrType int32
	channel  int16
	data     [ipmiMaxAddrSize]byte
	_        [2]byte
}

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | ipmiIOCMagic<<8 | nr
}

var (
	ioctlSendCommand    = ioc(2, 13, unsafe.Sizeof(ipmiReq{}))
	ioctlReceiveMsgTrun = ioc(3, 11, unsafe.Sizeof(ipmiRecv{}))
)

var ipmiDevNodes = []string{
	"/dev/ipmi0",
	"/dev/ipmidev/0",
	"/dev/ipmidev0",
	"/dev/bmc",
}

func openBMC() (*os.File, error) {
	for _, node := range ipmiDevNodes {
		f, err := os.OpenFile(node, os.O_RDWR, 0)
		if err == nil {
			return f, nil
		}
	}
	return nil, ErrNoBMC
}

var msgid int64

// command sends one IPMI request to the BMC system interface and returns the
// response body with the completion code stripped.
func command(netfn, cmd byte, data []byte, resplen int) ([]byte, error) {
	f, err := openBMC()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fd := int(f.Fd())

	saddr := ipmiSystemInterfaceAddr{
		addrType: ipmiSystemInterfaceAddrType,
		channel:  ipmiBMCChannel,
	}
	msgid++
	req := ipmiReq{
		addr:    (*byte)(unsafe.Pointer(&saddr)),
		addrLen: uint32(unsafe.Sizeof(saddr)),
		msgid:   msgid,
		msg: ipmiMsg{
			netfn:   netfn,
			cmd:     cmd,
			dataLen: uint16(len(data)),
		},
	}
	if len(data) > 0 {
		req.msg.data = &data[0]
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd),
		ioctlSendCommand, uintptr(unsafe.Pointer(&req))); errno != 0 {
		return nil, errno
	}

	var rfd unix.FdSet
	rfd.Set(fd)
	if _, err := unix.Select(fd+1, &rfd, nil, nil, nil); err != nil {
		return nil, err
	}

	var raddr ipmiAddr
	buf := make([]byte, resplen+1)
	rcv := ipmiRecv{
		addr:    (*byte)(unsafe.Pointer(&raddr)),
		addrLen: uint32(unsafe.Sizeof(raddr)),
		msg: ipmiMsg{
			dataLen: uint16(len(buf)),
			data:    &buf[0],
		},
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd),
		ioctlReceiveMsgTrun, uintptr(unsafe.Pointer(&rcv)))
	if errno != 0 && errno != unix.EMSGSIZE {
		return nil, errno
	}
	n := int(rcv.msg.dataLen)
	if n < 1 {
		return nil, errors.New("empty ipmi response")
	}
	// buf[0] is the completion code; non-zero responses still carry data.
	return buf[1:n], nil
}
