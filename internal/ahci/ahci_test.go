package ahci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/ledgod/internal/ibpi"
)

func TestMessageTable(t *testing.T) {
	cases := map[ibpi.Pattern]uint32{
		ibpi.Normal:        0x00000000,
		ibpi.OneshotNormal: 0x00000000,
		ibpi.Rebuild:       0x00480000,
		ibpi.FailedDrive:   0x00400000,
		ibpi.Locate:        0x00080000,
		ibpi.LocateOff:     0x00000000,
	}
	for p, want := range cases {
		got, err := Message(p, false)
		require.NoError(t, err, p.String())
		assert.Equal(t, want, got, p.String())
	}
}

func TestMessageRange(t *testing.T) {
	_, err := Message(ibpi.Unknown, false)
	assert.ErrorIs(t, err, ErrPatternRange)

	_, err = Message(ibpi.Added, false)
	assert.ErrorIs(t, err, ErrPatternRange)

	_, err = Message(ibpi.Hotspare, false)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestMessageExtended(t *testing.T) {
	got, err := Message(ibpi.Hotspare, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01800000), got)

	got, err = Message(ibpi.PFA, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01400000), got)

	got, err = Message(ibpi.Degraded, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00200000), got)

	got, err = Message(ibpi.FailedArray, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00280000), got)
}

func TestPortPath(t *testing.T) {
	dev := "/sys/devices/pci0000:00/0000:00:17.0/ata3/host2/target2:0:0/2:0:0:0"
	assert.Equal(t,
		"/sys/devices/pci0000:00/0000:00:17.0/ata3/host2/scsi_host/host2",
		PortPath(dev))

	assert.Equal(t, "", PortPath("/sys/devices/pci0000:00/0000:00:17.0"))
	assert.Equal(t, "", PortPath("/sys/devices/.../host2/2:0:0:0"))
}
