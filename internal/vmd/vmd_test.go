package vmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/ledgod/internal/ibpi"
)

func TestAttentionTable(t *testing.T) {
	cases := map[ibpi.Pattern]int{
		ibpi.Normal:        AttentionOff,
		ibpi.OneshotNormal: AttentionOff,
		ibpi.LocateOff:     AttentionOff,
		ibpi.Locate:        AttentionLocate,
		ibpi.Rebuild:       AttentionRebuild,
		ibpi.FailedDrive:   AttentionFailure,
	}
	for p, want := range cases {
		got, err := Attention(p)
		require.NoError(t, err, p.String())
		assert.Equal(t, want, got, p.String())
	}
}

func TestAttentionErrors(t *testing.T) {
	_, err := Attention(ibpi.Unknown)
	assert.ErrorIs(t, err, ErrPatternRange)

	_, err = Attention(ibpi.Removed)
	assert.ErrorIs(t, err, ErrPatternRange)

	_, err = Attention(ibpi.Hotspare)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestDecodeRoundTrip(t *testing.T) {
	// Only the four defined nibbles decode; Normal wins the shared zero
	// rendering for off.
	for _, p := range []ibpi.Pattern{
		ibpi.Locate, ibpi.Rebuild, ibpi.FailedDrive,
	} {
		v, err := Attention(p)
		require.NoError(t, err)
		assert.Equal(t, p, Decode(v))
	}
	assert.Equal(t, ibpi.Normal, Decode(AttentionOff))
	assert.Equal(t, ibpi.Unknown, Decode(0x3))
	assert.Equal(t, ibpi.Unknown, Decode(-1))
}

func TestSlotAddressOf(t *testing.T) {
	path := "/sys/devices/pci0000:00/0000:00:0e.0/10000:00:02.0" +
		"/10000:01:00.0/nvme/nvme0/nvme0n1"
	assert.Equal(t, "10000:01:00", slotAddressOf(path))

	// no nvme component falls back to the last one
	assert.Equal(t, "0000:00:0e", slotAddressOf("/sys/devices/pci0000:00/0000:00:0e.0"))
}
