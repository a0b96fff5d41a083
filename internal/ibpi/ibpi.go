// Package ibpi defines the vendor-neutral LED pattern taxonomy shared by all
// protocol backends. Patterns are ordered by severity: when several conditions
// compete for one physical slot the numerically higher pattern wins.
package ibpi

import "strings"

// Pattern is a single visualized LED state.
type Pattern int

const (
	Unknown Pattern = iota
	None            // used only to initialize the previous-pattern field
	Normal
	OneshotNormal
	Degraded
	Hotspare
	Rebuild
	FailedArray
	PFA
	FailedDrive
	Locate
	LocateOff
	Added
	Removed
	LocateAndFail
)

// SES-2 request codes. Most IBPI patterns are translated into SES requests
// when needed, but these can also be requested directly.
const (
	SESAbort Pattern = iota + 20
	SESRebuild
	SESIFA
	SESICA
	SESConsCheck
	SESHotspare
	SESRsvdDev
	SESOK
	SESIdent
	SESRemove
	SESInsert
	SESMissing
	SESDoNotRemove
	SESActive
	SESEnableBB
	SESEnableBA
	SESDevOff
	SESFault
	SESPrdFail
	SESIdentAndFault
)

// Count is one past the highest defined pattern value.
const Count Pattern = 50

type nameEntry struct {
	pattern Pattern
	logName string
	input   string // empty for print-only patterns
}

// names maps patterns to log names and accepted CLI input names. Patterns
// with several input aliases appear more than once; the first logName match
// wins for String().
var names = []nameEntry{
	{Rebuild, "REBUILD", "rebuild"},
	{Locate, "LOCATE", "locate"},
	{LocateOff, "LOCATE_OFF", "locate_off"},
	{LocateAndFail, "LOCATE_AND_FAIL", "locate_and_failure"},
	{SESAbort, "SES_ABORT", "ses_abort"},
	{SESRebuild, "SES_REBUILD", "ses_rebuild"},
	{SESIFA, "SES_IFA", "ses_ifa"},
	{SESICA, "SES_ICA", "ses_ica"},
	{SESConsCheck, "SES_CONS_CHECK", "ses_cons_check"},
	{SESHotspare, "SES_HOTSPARE", "ses_hotspare"},
	{SESRsvdDev, "SES_RSVD_DEV", "ses_rsvd_dev"},
	{SESOK, "SES_OK", "ses_ok"},
	{SESIdent, "SES_IDENT", "ses_ident"},
	{SESRemove, "SES_RM", "ses_rm"},
	{SESInsert, "SES_INSERT", "ses_insert"},
	{SESMissing, "SES_MISSING", "ses_missing"},
	{SESDoNotRemove, "SES_DNR", "ses_dnr"},
	{SESActive, "SES_ACTIVE", "ses_active"},
	{SESEnableBB, "SES_ENABLE_BB", "ses_enable_bb"},
	{SESEnableBA, "SES_ENABLE_BA", "ses_enable_ba"},
	{SESDevOff, "SES_DEVOFF", "ses_devoff"},
	{SESFault, "SES_FAULT", "ses_fault"},
	{SESPrdFail, "SES_PRDFAIL", "ses_prdfail"},
	{SESIdentAndFault, "SES_IDENT_AND_FAULT", "ses_ident_and_fault"},

	// Internal transients, print-only.
	{Unknown, "UNKNOWN", ""},
	{None, "NONE", ""},
	{Added, "ADDED", ""},
	{Removed, "REMOVED", ""},
	{OneshotNormal, "ONESHOT_NORMAL", ""},

	{Normal, "NORMAL", "normal"},
	{Normal, "NORMAL", "off"},

	{Degraded, "ICA", "ica"},
	{Degraded, "ICA", "degraded"},

	{FailedArray, "IFA", "ifa"},
	{FailedArray, "IFA", "failed_array"},

	{Hotspare, "HOTSPARE", "hotspare"},
	{PFA, "PFA", "pfa"},

	{FailedDrive, "FAILURE", "failure"},
	{FailedDrive, "FAILURE", "disk_failed"},
}

// String returns the log-friendly name of a pattern.
func (p Pattern) String() string {
	for _, e := range names {
		if e.pattern == p {
			return e.logName
		}
	}
	return "UNKNOWN"
}

// Parse translates a display name or legacy alias into a pattern. Matching is
// case-insensitive. Unrecognized input yields Unknown; that is a legitimate
// answer for CLI parsing, not an error.
func Parse(name string) Pattern {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, e := range names {
		if e.input != "" && e.input == name {
			return e.pattern
		}
	}
	return Unknown
}

// Max returns the most severe of the given patterns. The merge rule of the
// derivation engine is a fold over Max: a device pattern is only ever raised
// within one pass, never lowered.
func Max(current Pattern, computed ...Pattern) Pattern {
	for _, p := range computed {
		if p > current {
			current = p
		}
	}
	return current
}

// InRange reports whether p is inside the common encoder-supported window
// [Normal, LocateOff]. Individual backends may extend or shrink this.
func (p Pattern) InRange() bool {
	return p >= Normal && p <= LocateOff
}
