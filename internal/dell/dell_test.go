package dell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/ledgod/internal/ibpi"
)

func TestBackplaneState(t *testing.T) {
	cases := map[ibpi.Pattern]uint16{
		ibpi.Normal:      bpOnline,
		ibpi.LocateOff:   bpOnline,
		ibpi.Locate:      bpIdentify | bpOnline,
		ibpi.FailedDrive: bpFault | bpOnline,
		ibpi.Rebuild:     bpRebuilding | bpOnline,
		ibpi.Hotspare:    bpHotspare | bpOnline,
		ibpi.PFA:         bpPredict | bpOnline,
		ibpi.Degraded:    bpCriticalArray | bpOnline,
		ibpi.FailedArray: bpFailedArray | bpOnline,
	}
	for p, want := range cases {
		got, err := BackplaneState(p)
		require.NoError(t, err, p.String())
		assert.Equal(t, want, got, p.String())
		assert.NotZero(t, got&bpOnline, "every state keeps the drive online")
	}
}

func TestBackplaneStateRange(t *testing.T) {
	_, err := BackplaneState(ibpi.Unknown)
	assert.ErrorIs(t, err, ErrPatternRange)

	_, err = BackplaneState(ibpi.Added)
	assert.ErrorIs(t, err, ErrPatternRange)
}

func TestGenerationCommands(t *testing.T) {
	assert.Equal(t, byte(getDrvMap12G), drvMapCmd(Gen12Modular))
	assert.Equal(t, byte(getDrvMap13G), drvMapCmd(Gen13Monolithic))
	assert.Equal(t, byte(getDrvMap14G), drvMapCmd(Gen14Monolithic))
	assert.Equal(t, byte(getDrvMap14G), drvMapCmd(Gen15Modular))

	assert.Equal(t, byte(setDrvStat12), setDrvStatusCmd(Gen12Monolithic))
	assert.Equal(t, byte(setDrvStat13), setDrvStatusCmd(Gen13Modular))
	assert.Equal(t, byte(setDrvStat14), setDrvStatusCmd(Gen15Monolithic))
}

func TestDevfnPacking(t *testing.T) {
	devfn := byte((0x1f&0x1f)<<3 | 0x7&0x7)
	assert.Equal(t, byte(0xff), devfn)

	devfn = byte((2&0x1f)<<3 | 1&0x7)
	assert.Equal(t, byte(0x11), devfn)
}
