package main

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/ledgod/internal/ahci"
	"github.com/sigreer/ledgod/internal/amd"
	"github.com/sigreer/ledgod/internal/dell"
	"github.com/sigreer/ledgod/internal/device"
	"github.com/sigreer/ledgod/internal/npem"
	"github.com/sigreer/ledgod/internal/ses"
	"github.com/sigreer/ledgod/internal/smp"
	"github.com/sigreer/ledgod/internal/vmd"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitSuccess},
		{"invalid input", fmt.Errorf("%w: bogus", errInvalidInput), exitInvalidInput},
		{"ahci range", ahci.ErrPatternRange, exitInvalidInput},
		{"amd range", amd.ErrPatternRange, exitInvalidInput},
		{"dell range", dell.ErrPatternRange, exitInvalidInput},
		{"npem range", fmt.Errorf("sdb: %w", npem.ErrPatternRange), exitInvalidInput},
		{"smp range", smp.ErrPatternRange, exitInvalidInput},
		{"vmd range", vmd.ErrPatternRange, exitInvalidInput},
		{"ahci unsupported", ahci.ErrNotSupported, exitNotSupported},
		{"amd unsupported", amd.ErrNotSupported, exitNotSupported},
		{"ses unsupported", ses.ErrUnsupportedPattern, exitNotSupported},
		{"not found", fmt.Errorf("%w: sdz", errNotFound), exitNotFound},
		{"permission", fmt.Errorf("open: %w", fs.ErrPermission), exitPermission},
		{"other", errors.New("sg_io failed"), exitOther},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, exitCode(c.err), c.name)
	}
}

func TestParseCntrlType(t *testing.T) {
	typ, err := parseCntrlType("scsi")
	require.NoError(t, err)
	assert.Equal(t, device.CntrlSCSI, typ)

	typ, err = parseCntrlType("dellssd")
	require.NoError(t, err)
	assert.Equal(t, device.CntrlDellSSD, typ)

	_, err = parseCntrlType("floppy")
	assert.Equal(t, exitInvalidInput, exitCode(err))
}
