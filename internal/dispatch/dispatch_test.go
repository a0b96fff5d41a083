package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/ledgod/internal/device"
	"github.com/sigreer/ledgod/internal/ibpi"
)

func TestPCIAddress(t *testing.T) {
	bus, dev, fn, err := pciAddress("/sys/devices/pci0000:00/0000:02:1f.3")
	require.NoError(t, err)
	assert.Equal(t, 0x02, bus)
	assert.Equal(t, 0x1f, dev)
	assert.Equal(t, 3, fn)

	_, _, _, err = pciAddress("/sys/devices/bogus")
	assert.Error(t, err)
}

func TestSendRequiresController(t *testing.T) {
	var d Dispatcher
	b := &device.BlockDevice{IBPIPrev: ibpi.None}
	assert.ErrorIs(t, d.Send(b, ibpi.Locate), ErrNoController)
}

func TestSendSkipsRepeatedPattern(t *testing.T) {
	var d Dispatcher
	b := &device.BlockDevice{
		Cntrl:    &device.Controller{Type: device.CntrlAHCI},
		IBPIPrev: ibpi.Locate,
	}
	// same pattern again is a no-op, no endpoint is touched
	assert.NoError(t, d.Send(b, ibpi.Locate))
}

func TestSendSCSIDirectNeedsHost(t *testing.T) {
	var d Dispatcher
	b := &device.BlockDevice{
		SysfsPath: "/sys/devices/pci0000:00/0000:00:17.0/host0/target0:0:0/0:0:0:0/block/sda",
		Cntrl:     &device.Controller{Type: device.CntrlSCSI},
		IBPIPrev:  ibpi.None,
		EnclIndex: -1,
	}
	assert.ErrorIs(t, d.Send(b, ibpi.Locate), ErrNoHost)
}

func TestSendSCSIExpanderNeedsEnclosure(t *testing.T) {
	var d Dispatcher
	b := &device.BlockDevice{
		SysfsPath: "/sys/devices/pci0000:00/0000:00:17.0/host0/port-0:0" +
			"/expander-0:0/port-0:0:1/end_device-0:0:1/target0:0:1/0:0:1:0/block/sdb",
		Cntrl:     &device.Controller{Type: device.CntrlSCSI},
		IBPIPrev:  ibpi.None,
		EnclIndex: -1,
	}
	assert.ErrorIs(t, d.Send(b, ibpi.Locate), ErrNoEnclosure)
}

func TestFlushOnlyBuffersSCSI(t *testing.T) {
	var d Dispatcher
	for _, typ := range []device.CntrlType{
		device.CntrlAHCI, device.CntrlVMD, device.CntrlNPEM,
		device.CntrlDellSSD, device.CntrlAMD,
	} {
		b := &device.BlockDevice{Cntrl: &device.Controller{Type: typ}}
		assert.NoError(t, d.Flush(b), typ.String())
	}
	assert.NoError(t, d.Flush(&device.BlockDevice{}))
}
