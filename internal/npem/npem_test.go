package npem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/ledgod/internal/ibpi"
)

func TestCapabilityBits(t *testing.T) {
	cases := map[ibpi.Pattern]uint32{
		ibpi.Normal:        capOK,
		ibpi.OneshotNormal: capOK,
		ibpi.LocateOff:     capOK,
		ibpi.Locate:        capLocate,
		ibpi.FailedDrive:   capFail,
		ibpi.Rebuild:       capRebuild,
		ibpi.PFA:           capPFA,
		ibpi.Hotspare:      capHotspare,
		ibpi.Degraded:      capCRA,
		ibpi.FailedArray:   capFA,
	}
	for p, want := range cases {
		got, err := CapabilityBit(p)
		require.NoError(t, err, p.String())
		assert.Equal(t, want, got, p.String())
	}
}

func TestCapabilityBitRange(t *testing.T) {
	_, err := CapabilityBit(ibpi.Unknown)
	assert.ErrorIs(t, err, ErrPatternRange)

	_, err = CapabilityBit(ibpi.Added)
	assert.ErrorIs(t, err, ErrPatternRange)
}

func TestDecodeControl(t *testing.T) {
	assert.Equal(t, ibpi.Normal, DecodeControl(capNPEM|capOK))
	assert.Equal(t, ibpi.Locate, DecodeControl(capNPEM|capLocate))
	assert.Equal(t, ibpi.FailedDrive, DecodeControl(capNPEM|capFail))
	assert.Equal(t, ibpi.Unknown, DecodeControl(capNPEM))
	assert.Equal(t, ibpi.Unknown, DecodeControl(0))

	// Reserved bits do not confuse decoding.
	assert.Equal(t, ibpi.Rebuild, DecodeControl(0xffff_f000|capRebuild))
}

func TestControlWritePreservesReserved(t *testing.T) {
	reg := uint32(0xabcd_e000) | capLocate
	val := (reg & reservedMask) | capNPEM | capFail
	assert.Equal(t, uint32(0xabcd_e000)|capNPEM|capFail, val)
}
