package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sigreer/ledgod/internal/device"
	"github.com/sigreer/ledgod/internal/dispatch"
	"github.com/sigreer/ledgod/internal/ibpi"
)

var (
	slotID     string
	slotDevice string
	slotFamily string
)

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Inspect and drive bay slots, occupied or empty",
	Long: `Slots addresses drive bays directly. SES enclosures, VMD domains and
NPEM controllers can light a bay with no drive in it; these commands
work on the bay rather than the drive.`,
}

var slotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every addressable slot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg := device.ScanAll(cfg.Filter())

		var family device.CntrlType
		if slotFamily != "" {
			if family, err = parseCntrlType(slotFamily); err != nil {
				return err
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tSLOT\tDEVICE\tSTATE")
		for _, s := range dispatch.ListSlots(reg) {
			if slotFamily != "" && s.CntrlType() != family {
				continue
			}
			dev := s.Device()
			if dev == "" {
				dev = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				s.CntrlType(), s.ID(), dev, s.State())
		}
		return w.Flush()
	},
}

var slotsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show one slot",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := resolveSlot()
		if err != nil {
			return err
		}
		dev := s.Device()
		if dev == "" {
			dev = "-"
		}
		fmt.Printf("%s %s %s %s\n", s.CntrlType(), s.ID(), dev, s.State())
		return nil
	},
}

var slotsSetCmd = &cobra.Command{
	Use:   "set <pattern>",
	Short: "Set the LED of one slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := ibpi.Parse(args[0])
		if p == ibpi.Unknown {
			return fmt.Errorf("%w: unknown pattern %q", errInvalidInput, args[0])
		}
		s, err := resolveSlot()
		if err != nil {
			return err
		}
		return s.SetState(p)
	},
}

// resolveSlot finds the slot addressed by the --slot or --device flags.
func resolveSlot() (dispatch.Slot, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	reg := device.ScanAll(cfg.Filter())

	switch {
	case slotID != "":
		if slotFamily == "" {
			return nil, fmt.Errorf("%w: --slot requires --controller-type",
				errInvalidInput)
		}
		family, err := parseCntrlType(slotFamily)
		if err != nil {
			return nil, err
		}
		if s := dispatch.FindSlotByID(reg, family, slotID); s != nil {
			return s, nil
		}
		return nil, fmt.Errorf("%w: slot %s", errNotFound, slotID)

	case slotDevice != "":
		if s := dispatch.FindSlotByDevice(reg, slotDevice); s != nil {
			return s, nil
		}
		return nil, fmt.Errorf("%w: %s", errNotFound, slotDevice)
	}
	return nil, fmt.Errorf("%w: --slot or --device required", errInvalidInput)
}

func init() {
	slotsCmd.PersistentFlags().StringVar(&slotID, "slot", "", "slot identifier")
	slotsCmd.PersistentFlags().StringVar(&slotDevice, "device", "",
		"device node occupying the slot")
	slotsCmd.PersistentFlags().StringVar(&slotFamily, "controller-type", "",
		"controller family (SCSI, VMD, NPEM)")

	slotsCmd.AddCommand(slotsListCmd)
	slotsCmd.AddCommand(slotsGetCmd)
	slotsCmd.AddCommand(slotsSetCmd)
}
