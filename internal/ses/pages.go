package ses

import (
	"github.com/sigreer/ledgod/internal/ibpi"
	"github.com/sigreer/ledgod/internal/sgio"
)

// Diagnostic page codes.
const (
	pageConfig     = 0x01
	pageEnclStatus = 0x02
	pageAddlStatus = 0x0a
)

const (
	pageBufLen    = 4096
	recvRetries   = 3
	elementLen    = 4
	pageHeaderLen = 8
)

// page is one raw diagnostic page plus its valid length.
type page struct {
	buf []byte
	len int
}

// Pages holds the three diagnostic pages needed to read and control slot
// LEDs. Page 2 doubles as status (as read) and control (as written); staged
// changes accumulate in it until Flush.
type Pages struct {
	page1  page
	page2  page
	page10 page

	// types are the leading type descriptor headers from page 1, in
	// enclosure order.
	types []TypeDescriptor

	changes int
}

func receivePage(fd int, pg byte) (page, error) {
	var p page
	var err error
	p.buf = make([]byte, pageBufLen)
	for attempt := 0; attempt <= recvRetries; attempt++ {
		p.len, err = sgio.ReceiveDiag(fd, pg, p.buf)
		if err == nil {
			return p, nil
		}
	}
	return p, err
}

// LoadPages reads the configuration, enclosure status and additional element
// status pages from an open enclosure device.
func LoadPages(fd int) (*Pages, error) {
	sp := &Pages{}
	var err error

	if sp.page1, err = receivePage(fd, pageConfig); err != nil {
		return nil, err
	}
	if sp.types, err = parseConfig(sp.page1); err != nil {
		return nil, err
	}
	if sp.page2, err = receivePage(fd, pageEnclStatus); err != nil {
		return nil, err
	}
	if sp.page10, err = receivePage(fd, pageAddlStatus); err != nil {
		return nil, err
	}
	return sp, nil
}

// parseConfig walks the enclosure descriptor list of the configuration page
// and returns the type descriptor headers that follow it.
func parseConfig(p page) ([]TypeDescriptor, error) {
	if p.len < pageHeaderLen {
		return nil, ErrPageTruncated
	}
	numEncl := int(p.buf[1]) + 1
	off := pageHeaderLen
	sumHeaders := 0
	for i := 0; i < numEncl; i++ {
		if off+4 > p.len {
			return nil, ErrPageTruncated
		}
		sumHeaders += int(p.buf[off+2])
		off += int(p.buf[off+3]) + 4
	}

	types := make([]TypeDescriptor, 0, sumHeaders)
	for i := 0; i < sumHeaders; i++ {
		if off+elementLen > p.len {
			return nil, ErrPageTruncated
		}
		types = append(types, TypeDescriptor{
			ElementType: p.buf[off],
			Count:       int(p.buf[off+1]),
		})
		off += elementLen
	}
	return types, nil
}

// element returns the 4-byte control/status element for the device-slot
// element at idx, preferring the Array Device Slot descriptor when both kinds
// are present. The bool reports whether the owning type is Array Device Slot.
func (sp *Pages) element(idx int) ([]byte, bool, error) {
	// Elements for each type follow an overall element; device-slot types
	// always lead the descriptor list.
	off := pageHeaderLen
	var found []byte
	var foundType byte
	for _, t := range sp.types {
		off += elementLen // overall element
		if t.ElementType != ElementDeviceSlot &&
			t.ElementType != ElementArrayDeviceSlot {
			break
		}
		if t.ElementType > foundType && idx < t.Count {
			start := off + idx*elementLen
			if start+elementLen > sp.page2.len {
				return nil, false, ErrPageTruncated
			}
			found = sp.page2.buf[start : start+elementLen]
			foundType = t.ElementType
		}
		off += t.Count * elementLen
	}
	if found == nil {
		return nil, false, ErrSlotNotFound
	}
	return found, foundType == ElementArrayDeviceSlot, nil
}

func requestFor(p ibpi.Pattern) ibpi.Pattern {
	switch p {
	case ibpi.Unknown, ibpi.OneshotNormal, ibpi.Normal:
		return ibpi.SESOK
	case ibpi.FailedArray:
		return ibpi.SESIFA
	case ibpi.Degraded:
		return ibpi.SESICA
	case ibpi.Rebuild:
		return ibpi.SESRebuild
	case ibpi.FailedDrive:
		return ibpi.SESFault
	case ibpi.Locate:
		return ibpi.SESIdent
	case ibpi.Hotspare:
		return ibpi.SESHotspare
	case ibpi.PFA:
		return ibpi.SESPrdFail
	case ibpi.LocateAndFail:
		return ibpi.SESIdentAndFault
	default:
		return p
	}
}

// setMessage rewrites one control element for the given pattern. LocateOff is
// surgical: it clears the IDENT bit plus the bits whose meaning differs
// between the status and control pages, and preserves everything else.
func setMessage(p ibpi.Pattern, el []byte) error {
	if p == ibpi.LocateOff {
		el[2] &^= 1 << 1
		el[2] &= 0x4e
		el[3] &= 0x3c
		return nil
	}

	var b [elementLen]byte
	switch requestFor(p) {
	case ibpi.SESAbort:
		b[1] |= 1 << 0
	case ibpi.SESRebuild:
		b[1] |= 1 << 1
	case ibpi.SESIFA:
		b[1] |= 1 << 2
	case ibpi.SESICA:
		b[1] |= 1 << 3
	case ibpi.SESConsCheck:
		b[1] |= 1 << 4
	case ibpi.SESHotspare:
		b[1] |= 1 << 5
	case ibpi.SESRsvdDev:
		b[1] |= 1 << 6
	case ibpi.SESOK:
		b[1] |= 1 << 7
	case ibpi.SESIdent:
		b[2] |= 1 << 1
	case ibpi.SESRemove:
		b[2] |= 1 << 2
	case ibpi.SESInsert:
		b[2] |= 1 << 3
	case ibpi.SESMissing:
		b[2] |= 1 << 4
	case ibpi.SESDoNotRemove:
		b[2] |= 1 << 6
	case ibpi.SESActive:
		b[2] |= 1 << 7
	case ibpi.SESEnableBB:
		b[3] |= 1 << 2
	case ibpi.SESEnableBA:
		b[3] |= 1 << 3
	case ibpi.SESDevOff:
		b[3] |= 1 << 4
	case ibpi.SESFault:
		b[3] |= 1 << 5
	case ibpi.SESPrdFail:
		b[0] |= 1 << 6
	case ibpi.SESIdentAndFault:
		b[2] |= 1 << 1
		b[3] |= 1 << 5
	default:
		return ErrUnsupportedPattern
	}
	copy(el, b[:])
	return nil
}

// StageMsg stages a pattern for the device-slot element at idx. The change
// stays local to the in-memory page until Flush pushes it to the enclosure.
func (sp *Pages) StageMsg(p ibpi.Pattern, idx int) error {
	el, isArraySlot, err := sp.element(idx)
	if err != nil {
		return err
	}
	if err := setMessage(p, el); err != nil {
		return err
	}
	sp.changes++

	// keep PRDFAIL, clear rest, then select the element for control
	el[0] &= 0x40
	el[0] |= 0x80

	// second byte is valid only for Array Device Slot
	if !isArraySlot {
		el[1] = 0
	}
	return nil
}

// Dirty reports whether staged changes are waiting for a Flush.
func (sp *Pages) Dirty() bool {
	return sp.changes > 0
}

// SendDiag pushes the staged control page to the enclosure. Callers should
// reload the pages afterwards so that status reflects hardware.
func (sp *Pages) SendDiag(fd int) error {
	if err := sgio.SendDiag(fd, sp.page2.buf[:sp.page2.len]); err != nil {
		return err
	}
	sp.changes = 0
	return nil
}

// LEDStatus decodes the visible pattern of the device-slot element at idx.
func (sp *Pages) LEDStatus(idx int) ibpi.Pattern {
	start := pageHeaderLen + elementLen + idx*elementLen
	if start+elementLen > sp.page2.len {
		return ibpi.Unknown
	}
	el := sp.page2.buf[start : start+elementLen]

	switch {
	case el[2]&0x02 != 0 && el[3]&0x60 != 0:
		return ibpi.LocateAndFail
	case el[2]&0x02 != 0:
		return ibpi.Locate
	case el[3]&0x60 != 0:
		return ibpi.FailedDrive
	default:
		return ibpi.Normal
	}
}

// Slots walks the additional element status page and returns one Slot per
// device-slot element of the first device-slot type descriptor.
func (sp *Pages) Slots() ([]Slot, error) {
	off := pageHeaderLen
	for _, t := range sp.types {
		if t.ElementType != ElementDeviceSlot &&
			t.ElementType != ElementArrayDeviceSlot {
			continue
		}

		slots := make([]Slot, t.Count)
		for j := 0; j < t.Count; j++ {
			if off+2 > sp.page10.len {
				return nil, ErrPageTruncated
			}
			ap := sp.page10.buf[off:]
			descLen := int(ap[1]) + 2
			off += descLen
			if ap[0]&0xf != scsiProtocolSAS {
				slots[j].Index = -1
				continue
			}
			var addr []byte
			if ap[0]&0x10 != 0 { // EIP
				addr = ap[8:]
				slots[j].Index = int(ap[3])
			} else {
				addr = ap[4:]
				slots[j].Index = j
			}
			if len(addr) < 20 {
				return nil, ErrPageTruncated
			}
			// Only the PHY 0 descriptor is considered.
			slots[j].SASAddr = uint64(addr[12])<<56 |
				uint64(addr[13])<<48 |
				uint64(addr[14])<<40 |
				uint64(addr[15])<<32 |
				uint64(addr[16])<<24 |
				uint64(addr[17])<<16 |
				uint64(addr[18])<<8 |
				uint64(addr[19])
			slots[j].Status = sp.LEDStatus(slots[j].Index)
		}
		return slots, nil
	}
	return nil, ErrSlotNotFound
}
