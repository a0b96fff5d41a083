package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sigreer/ledgod/internal/ledger"
)

var (
	historyLimit int
	historyScans bool
)

var historyCmd = &cobra.Command{
	Use:   "history [device]",
	Short: "Show recorded LED transitions",
	Long: `History renders the transition journal written by the monitor.
With a device argument only that drive's transitions are shown; with
--scans the monitor pass summaries are shown instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		l, err := ledger.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer l.Close()

		if historyScans {
			return printScans(l)
		}

		var transitions []*ledger.Transition
		if len(args) == 1 {
			transitions, err = l.TransitionsByDevice(args[0], historyLimit)
		} else {
			transitions, err = l.RecentTransitions(historyLimit)
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "EVENT\tWHEN\tDEVICE\tTYPE\tCHANGE")
		for _, t := range transitions {
			fmt.Fprintf(w, "%.8s\t%s\t%s\t%s\t%s -> %s\n",
				t.ID, humanize.Time(t.Timestamp), t.Device,
				t.CntrlType, t.OldPattern, t.NewPattern)
		}
		return w.Flush()
	},
}

func printScans(l *ledger.Ledger) error {
	scans, err := l.RecentScans(historyLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tWHEN\tCNTRLS\tDRIVES\tVOLUMES\tCHANGES\tTOOK")
	for _, s := range scans {
		fmt.Fprintf(w, "%.8s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			s.ID, humanize.Time(s.Timestamp), s.Controllers,
			s.Blocks, s.Volumes, s.Transitions, s.Duration)
	}
	return w.Flush()
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50,
		"maximum number of rows")
	historyCmd.Flags().BoolVar(&historyScans, "scans", false,
		"show monitor pass summaries instead of transitions")
}
