package engine

import (
	"sort"

	"github.com/use-agent/harvest/models"
)

// FeatureFlag is one capability a request may require from an engine.
// The set is closed; the capability matrix in matrix.go must cover every
// flag for every engine.
type FeatureFlag string

const (
	FlagActions             FeatureFlag = "actions"
	FlagWaitFor             FeatureFlag = "waitFor"
	FlagScreenshot          FeatureFlag = "screenshot"
	FlagScreenshotFullPage  FeatureFlag = "screenshotFullPage"
	FlagAntiBotSolver       FeatureFlag = "antiBotSolver"
	FlagLocation            FeatureFlag = "location"
	FlagMobile              FeatureFlag = "mobile"
	FlagSkipTLSVerification FeatureFlag = "skipTlsVerification"
	FlagFastMode            FeatureFlag = "fastMode"
	FlagStealthProxy        FeatureFlag = "stealthProxy"
	FlagBranding            FeatureFlag = "branding"
	FlagDisableAdblock      FeatureFlag = "disableAdblock"
)

// AllFlags lists every feature flag, in a stable order.
var AllFlags = []FeatureFlag{
	FlagActions,
	FlagWaitFor,
	FlagScreenshot,
	FlagScreenshotFullPage,
	FlagAntiBotSolver,
	FlagLocation,
	FlagMobile,
	FlagSkipTLSVerification,
	FlagFastMode,
	FlagStealthProxy,
	FlagBranding,
	FlagDisableAdblock,
}

// FlagSet is a set of feature flags.
type FlagSet map[FeatureFlag]struct{}

// NewFlagSet builds a set from the given flags.
func NewFlagSet(flags ...FeatureFlag) FlagSet {
	s := make(FlagSet, len(flags))
	for _, f := range flags {
		s[f] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s FlagSet) Has(f FeatureFlag) bool {
	_, ok := s[f]
	return ok
}

// Add inserts a flag.
func (s FlagSet) Add(f FeatureFlag) { s[f] = struct{}{} }

// Clone returns an independent copy, so per-engine invocations cannot
// observe each other's mutations.
func (s FlagSet) Clone() FlagSet {
	c := make(FlagSet, len(s))
	for f := range s {
		c[f] = struct{}{}
	}
	return c
}

// Sorted returns the flags in a deterministic order.
func (s FlagSet) Sorted() []FeatureFlag {
	out := make([]FeatureFlag, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DeriveFlags converts request options into the set of required
// capability flags. Pure function; absent options simply omit flags.
func DeriveFlags(opts models.ScrapeOptions, internal models.InternalOptions) FlagSet {
	flags := make(FlagSet)

	if len(opts.Actions) > 0 {
		flags.Add(FlagActions)
	}
	if opts.HasFormat(models.FormatScreenshot) {
		if opts.Screenshot != nil && opts.Screenshot.FullPage {
			flags.Add(FlagScreenshotFullPage)
		} else {
			flags.Add(FlagScreenshot)
		}
	}
	if opts.WaitFor > 0 {
		flags.Add(FlagWaitFor)
	}
	if internal.AntiBotSolver {
		flags.Add(FlagAntiBotSolver)
	}
	if opts.Location != nil {
		flags.Add(FlagLocation)
	}
	if opts.Mobile {
		flags.Add(FlagMobile)
	}
	if opts.SkipTLSVerification {
		flags.Add(FlagSkipTLSVerification)
	}
	if opts.FastMode {
		flags.Add(FlagFastMode)
	}
	if opts.Proxy == models.ProxyStealth {
		flags.Add(FlagStealthProxy)
	}
	if opts.HasFormat(models.FormatBranding) {
		flags.Add(FlagBranding)
	}
	if !opts.AdblockEnabled() {
		flags.Add(FlagDisableAdblock)
	}

	return flags
}
