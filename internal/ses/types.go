// Package ses implements the SES-2 diagnostic page codec used to drive
// enclosure slot LEDs. Pages are fetched and pushed over SG_IO against the
// enclosure's /dev/sgN node; staged control elements are batched and written
// with a single SEND DIAGNOSTIC.
package ses

import (
	"errors"

	"github.com/sigreer/ledgod/internal/ibpi"
)

// Common errors
var (
	ErrEnclosureNotFound  = errors.New("enclosure not found")
	ErrSlotNotFound       = errors.New("slot not found in enclosure")
	ErrPageTruncated      = errors.New("ses page truncated")
	ErrUnsupportedPattern = errors.New("pattern not supported by ses backend")
)

// Element type codes from the configuration page.
const (
	ElementDeviceSlot      byte = 0x01
	ElementArrayDeviceSlot byte = 0x17
)

const scsiProtocolSAS = 6

// Slot is one device bay of an enclosure as reported by the additional
// element status page.
type Slot struct {
	// Index is the element index the enclosure itself reports. It is the
	// value used when staging control elements, and -1 for descriptors
	// carried over a non-SAS protocol.
	Index int

	// SASAddr is the SAS address of the device in the bay, 0 when empty.
	SASAddr uint64

	// Status is the pattern decoded from the slot's status element.
	Status ibpi.Pattern
}

// TypeDescriptor is one type descriptor header from the configuration page.
type TypeDescriptor struct {
	ElementType byte
	Count       int
}
