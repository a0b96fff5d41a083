package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sigreer/ledgod/internal/device"
	"github.com/sigreer/ledgod/internal/dispatch"
	"github.com/sigreer/ledgod/internal/engine"
	"github.com/sigreer/ledgod/internal/ibpi"
	"github.com/sigreer/ledgod/internal/ledger"
)

var monitorVerbose bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor md arrays and drive bay LEDs",
	Long: `Monitor rescans the storage topology on an interval, derives a
pattern for every drive from the health of its md arrays, and pushes
the changes to the bay LEDs. Pattern transitions and pass summaries are
recorded in the history database. SIGTERM and SIGINT stop the loop at
the next cycle boundary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if monitorVerbose {
			log.SetLevel(log.DebugLevel)
		}

		l, err := ledger.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer l.Close()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGTERM, os.Interrupt)

		transport := &recordingTransport{inner: &dispatch.Dispatcher{}, ledger: l}
		m := engine.NewMonitor(transport)

		log.WithField("interval", cfg.Interval()).Info("monitor started")
		for {
			start := time.Now()
			transport.transitions = 0

			reg := device.ScanAll(cfg.Filter())
			snap := engine.NewSnapshot(reg)
			snap.Derive(cfg.Policy())
			m.Execute(snap)

			scan := ledger.Scan{
				Controllers: len(reg.Controllers),
				Blocks:      len(reg.Blocks),
				Volumes:     len(snap.Volumes),
				Transitions: transport.transitions,
				Duration:    time.Since(start),
			}
			if err := l.RecordScan(scan); err != nil {
				log.WithError(err).Warn("failed to record scan summary")
			}

			select {
			case s := <-sig:
				log.WithField("signal", s.String()).Info("monitor stopping")
				return nil
			case <-time.After(cfg.Interval()):
			}
		}
	},
}

// recordingTransport journals every pattern change the monitor pushes out.
type recordingTransport struct {
	inner       engine.Transport
	ledger      *ledger.Ledger
	transitions int
}

func (t *recordingTransport) Send(b *device.BlockDevice, p ibpi.Pattern) error {
	prev := b.IBPIPrev
	if err := t.inner.Send(b, p); err != nil {
		return err
	}
	if p == prev {
		return nil
	}
	t.transitions++
	cntrlType := ""
	if b.Cntrl != nil {
		cntrlType = b.Cntrl.Type.String()
	}
	err := t.ledger.RecordTransition(ledger.Transition{
		Device:     b.Name(),
		DevNode:    b.DevNode,
		CntrlType:  cntrlType,
		OldPattern: prev.String(),
		NewPattern: p.String(),
	})
	if err != nil {
		log.WithError(err).Warn("failed to record transition")
	}
	return nil
}

func (t *recordingTransport) Flush(b *device.BlockDevice) error {
	return t.inner.Flush(b)
}

func init() {
	monitorCmd.Flags().BoolVarP(&monitorVerbose, "verbose", "v", false,
		"log every derivation decision")
}
