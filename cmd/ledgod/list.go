package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sigreer/ledgod/internal/device"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered controllers and drives",
}

var listControllersCmd = &cobra.Command{
	Use:     "controllers",
	Aliases: []string{"cntrls"},
	Short:   "List LED-capable controllers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg := device.ScanAll(cfg.Filter())

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tPATH")
		for _, c := range reg.Controllers {
			fmt.Fprintf(w, "%s\t%s\n", c.Type, c.SysfsPath)
		}
		return w.Flush()
	},
}

var listDevicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"drives"},
	Short:   "List drives on LED-capable controllers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg := device.ScanAll(cfg.Filter())

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DEVICE\tTYPE\tPATH")
		for _, b := range reg.Blocks {
			typ := "-"
			if b.Cntrl != nil {
				typ = b.Cntrl.Type.String()
			}
			dev := b.DevNode
			if dev == "" {
				dev = b.Name()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", dev, typ, b.SysfsPath)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.AddCommand(listControllersCmd)
	listCmd.AddCommand(listDevicesCmd)
}
