package smp

import (
	log "github.com/sirupsen/logrus"

	"github.com/sigreer/ledgod/internal/ibpi"
)

// Host is the outbound LED state of one SAS host. Expander-attached drives
// accumulate TX register bytes in states; direct-attached isci ports share a
// single raw GP bitstream. Writes are deferred until Flush so that one frame
// covers a whole pass over the host's drives.
type Host struct {
	// SysfsPath is the bsg directory frames are sent through.
	SysfsPath string

	// ID is the scsi_host number.
	ID int

	// Ports is the number of phys on the host.
	Ports int

	// ISCI marks hosts driven by the isci driver, which take the raw
	// GP bitstream instead of per-drive TX bytes.
	ISCI bool

	states    []byte
	bitstream [4]byte
	dirty     bool
}

// NewHost allocates LED state for a host and primes every port with the
// activity-only idle pattern.
func NewHost(sysfsPath string, id, ports int, isci bool) *Host {
	h := &Host{
		SysfsPath: sysfsPath,
		ID:        id,
		Ports:     ports,
		ISCI:      isci,
		states:    make([]byte, (ports+3)/4*4),
	}
	idle := patternTable[ibpi.OneshotNormal].tx
	for i := 0; i < ports; i++ {
		SetRawPattern(i, h.bitstream[:], idle)
	}
	return h
}

// Fill stages a pattern for the drive at the given phy index. The host is
// only marked for flushing when the staged bytes actually change.
func (h *Host) Fill(phy int, p ibpi.Pattern) error {
	if p < ibpi.Normal || p > ibpi.LocateOff {
		return ErrPatternRange
	}
	entry := patternTable[p]
	if h.ISCI && !entry.supported {
		log.WithFields(log.Fields{
			"host":    h.ID,
			"phy":     phy,
			"pattern": p.String(),
		}).Debug("pattern not supported on direct-attached port")
		return ErrNotSupported
	}

	if h.ISCI {
		before := h.bitstream
		SetRawPattern(phy, h.bitstream[:], entry.tx)
		if h.bitstream != before {
			h.dirty = true
		}
		return nil
	}

	// A TX register carries the highest numbered drive of its four in the
	// first byte and the lowest in the fourth (SFF-8485 Rev. 0.7 Table 24).
	idx := phy + 3 - (phy%4)*2
	if idx < 0 || idx >= len(h.states) {
		return ErrPatternRange
	}
	b := entry.tx.Encode()
	if h.states[idx] != b {
		h.states[idx] = b
		h.dirty = true
	}
	return nil
}

// Flush retransmits the staged LED state when anything changed since the
// last flush.
func (h *Host) Flush() error {
	if !h.dirty {
		return nil
	}
	h.dirty = false

	if h.ISCI {
		return WriteGPIO(h.SysfsPath, RegTypeTxGP, GPIOTxGP1, 1, h.bitstream[:])
	}
	regCount := (h.Ports + 3) / 4
	return WriteGPIO(h.SysfsPath, RegTypeTx, 0, regCount, h.states[:regCount*4])
}

// Dirty reports whether a Flush would transmit.
func (h *Host) Dirty() bool {
	return h.dirty
}
