package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sigreer/ledgod/internal/ahci"
	"github.com/sigreer/ledgod/internal/amd"
	"github.com/sigreer/ledgod/internal/config"
	"github.com/sigreer/ledgod/internal/dell"
	"github.com/sigreer/ledgod/internal/device"
	"github.com/sigreer/ledgod/internal/npem"
	"github.com/sigreer/ledgod/internal/ses"
	"github.com/sigreer/ledgod/internal/smp"
	"github.com/sigreer/ledgod/internal/version"
	"github.com/sigreer/ledgod/internal/vmd"
)

// Exit codes of every command.
const (
	exitSuccess      = 0
	exitOther        = 1
	exitInvalidInput = 2
	exitNotSupported = 3
	exitNotFound     = 4
	exitPermission   = 5
)

var (
	errNotFound     = errors.New("device not found")
	errInvalidInput = errors.New("invalid input")
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ledgod",
	Short: "Drive bay LED control for storage enclosures",
	Long: `Ledgod drives the status LEDs of drive bays behind SES enclosures,
SAS expanders, AHCI and AMD SGPIO controllers, Intel VMD domains, NPEM
capable PCIe slots and Dell backplanes. It sets patterns on demand and
can monitor md RAID arrays, deriving bay patterns from member health.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is /etc/ledgod/ledgod.conf)")

	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(slotsCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the configuration and applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyLogLevel(); err != nil {
		log.WithError(err).Warn("ignoring configured log level")
	}
	return cfg, nil
}

// exitCode classifies an error into the documented exit codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, errInvalidInput),
		errors.Is(err, ahci.ErrPatternRange),
		errors.Is(err, amd.ErrPatternRange),
		errors.Is(err, dell.ErrPatternRange),
		errors.Is(err, npem.ErrPatternRange),
		errors.Is(err, smp.ErrPatternRange),
		errors.Is(err, vmd.ErrPatternRange):
		return exitInvalidInput
	case errors.Is(err, ahci.ErrNotSupported),
		errors.Is(err, amd.ErrNotSupported),
		errors.Is(err, npem.ErrNotSupported),
		errors.Is(err, vmd.ErrNotSupported),
		errors.Is(err, smp.ErrNotSupported),
		errors.Is(err, ses.ErrUnsupportedPattern):
		return exitNotSupported
	case errors.Is(err, errNotFound):
		return exitNotFound
	case errors.Is(err, fs.ErrPermission):
		return exitPermission
	}
	return exitOther
}

// parseCntrlType resolves a family name given on the command line.
func parseCntrlType(name string) (device.CntrlType, error) {
	name = strings.ReplaceAll(name, " ", "")
	for t := device.CntrlUnknown + 1; t <= device.CntrlAMD; t++ {
		if strings.EqualFold(strings.ReplaceAll(t.String(), " ", ""), name) {
			return t, nil
		}
	}
	return device.CntrlUnknown, fmt.Errorf("%w: unknown controller type %q",
		errInvalidInput, name)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
