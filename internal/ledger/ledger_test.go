package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledgod.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestTransitionRoundTrip(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.RecordTransition(Transition{
		Device:     "sda",
		DevNode:    "/dev/sda",
		CntrlType:  "SCSI",
		OldPattern: "NORMAL",
		NewPattern: "FAILED_DRIVE",
	}))
	require.NoError(t, l.RecordTransition(Transition{
		Device:     "sdb",
		DevNode:    "/dev/sdb",
		CntrlType:  "AHCI",
		NewPattern: "LOCATE",
	}))

	all, err := l.RecentTransitions(10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, tr := range all {
		assert.NotEmpty(t, tr.ID)
		assert.WithinDuration(t, time.Now(), tr.Timestamp, time.Minute)
	}

	byDev, err := l.TransitionsByDevice("sda", 10)
	require.NoError(t, err)
	require.Len(t, byDev, 1)
	assert.Equal(t, "FAILED_DRIVE", byDev[0].NewPattern)
	assert.Equal(t, "NORMAL", byDev[0].OldPattern)

	byNode, err := l.TransitionsByDevice("/dev/sdb", 10)
	require.NoError(t, err)
	require.Len(t, byNode, 1)
	assert.Equal(t, "LOCATE", byNode[0].NewPattern)
}

func TestScanRoundTrip(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.RecordScan(Scan{
		Controllers: 2,
		Blocks:      12,
		Volumes:     1,
		Transitions: 3,
		Duration:    42 * time.Millisecond,
	}))

	scans, err := l.RecentScans(5)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, 12, scans[0].Blocks)
	assert.Equal(t, 42*time.Millisecond, scans[0].Duration)
	assert.NotEmpty(t, scans[0].ID)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgod.db")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.RecordTransition(Transition{Device: "sda", NewPattern: "LOCATE"}))
	require.NoError(t, l.Close())

	// reopening migrates nothing and keeps the rows
	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()

	all, err := l.RecentTransitions(10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
