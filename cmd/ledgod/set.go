package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigreer/ledgod/internal/device"
	"github.com/sigreer/ledgod/internal/dispatch"
	"github.com/sigreer/ledgod/internal/ibpi"
)

var setCmd = &cobra.Command{
	Use:   "set <pattern> <device>...",
	Short: "Set an LED pattern on one or more drives",
	Long: `Set latches an LED pattern on the bays holding the named drives.
Devices may be given as device nodes (/dev/sda), kernel names (sda) or
sysfs paths. Pattern names follow the IBPI taxonomy: locate, locate_off,
normal, off, degraded/ica, failed_array/ifa, rebuild, hotspare, pfa,
failure/disk_failed, plus the ses_* direct requests.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := ibpi.Parse(args[0])
		if p == ibpi.Unknown {
			return fmt.Errorf("%w: unknown pattern %q", errInvalidInput, args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg := device.ScanAll(cfg.Filter())

		var d dispatch.Dispatcher
		targets := make([]*device.BlockDevice, 0, len(args)-1)
		for _, arg := range args[1:] {
			b := findBlock(reg, arg)
			if b == nil {
				return fmt.Errorf("%w: %s", errNotFound, arg)
			}
			targets = append(targets, b)
		}

		for _, b := range targets {
			if err := d.Send(b, p); err != nil {
				return fmt.Errorf("%s: %w", b.Name(), err)
			}
		}
		for _, b := range targets {
			if err := d.Flush(b); err != nil {
				return fmt.Errorf("%s: %w", b.Name(), err)
			}
		}
		return nil
	},
}

// findBlock resolves a command line device argument against the scan.
func findBlock(reg *device.Registry, arg string) *device.BlockDevice {
	for _, b := range reg.Blocks {
		if b.DevNode == arg || b.SysfsPath == arg {
			return b
		}
	}
	if strings.HasPrefix(arg, "/sys/") {
		return reg.BlockByPath(arg)
	}
	return reg.BlockByName(filepath.Base(arg))
}
