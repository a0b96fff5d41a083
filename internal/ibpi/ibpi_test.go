package ibpi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAliases(t *testing.T) {
	cases := map[string]Pattern{
		"locate":             Locate,
		"LOCATE":             Locate,
		"locate_off":         LocateOff,
		"normal":             Normal,
		"off":                Normal,
		"ica":                Degraded,
		"degraded":           Degraded,
		"ifa":                FailedArray,
		"failed_array":       FailedArray,
		"hotspare":           Hotspare,
		"pfa":                PFA,
		"failure":            FailedDrive,
		"disk_failed":        FailedDrive,
		"rebuild":            Rebuild,
		"locate_and_failure": LocateAndFail,
		"ses_ident":          SESIdent,
		"ses_prdfail":        SESPrdFail,
		"bogus":              Unknown,
		"":                   Unknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, Parse(in), "input %q", in)
	}
}

func TestStringTotal(t *testing.T) {
	for p := Unknown; p < Count; p++ {
		assert.NotEmpty(t, p.String())
	}
	assert.Equal(t, "FAILURE", FailedDrive.String())
	assert.Equal(t, "ICA", Degraded.String())
	assert.Equal(t, "IFA", FailedArray.String())
	assert.Equal(t, "ONESHOT_NORMAL", OneshotNormal.String())
}

func TestMaxNeverLowers(t *testing.T) {
	assert.Equal(t, FailedDrive, Max(FailedDrive, Normal, Degraded))
	assert.Equal(t, FailedDrive, Max(Normal, FailedDrive))
	assert.Equal(t, Rebuild, Max(Unknown, Normal, Rebuild, Degraded))
	assert.Equal(t, Unknown, Max(Unknown))
}

func TestSeverityOrdering(t *testing.T) {
	// The derivation engine relies on this ordering.
	assert.True(t, Normal < Degraded)
	assert.True(t, Degraded < Hotspare)
	assert.True(t, Hotspare < Rebuild)
	assert.True(t, Rebuild < FailedArray)
	assert.True(t, FailedArray < PFA)
	assert.True(t, PFA < FailedDrive)
	assert.True(t, FailedDrive < Locate)
}

func TestInRange(t *testing.T) {
	assert.False(t, Unknown.InRange())
	assert.False(t, None.InRange())
	assert.True(t, Normal.InRange())
	assert.True(t, LocateOff.InRange())
	assert.False(t, Added.InRange())
	assert.False(t, SESIdent.InRange())
}
