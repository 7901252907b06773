package engine

import "fmt"

// Name identifies a fetch engine.
type Name string

const (
	// EngineIndex is the read-through cache engine.
	EngineIndex Name = "index"

	// EngineBrowser is the full-capability headless browser backend.
	EngineBrowser Name = "browser"

	// EngineHeadless is the lightweight headless backend.
	EngineHeadless Name = "headless"

	// EngineHTTP is the plain HTTP fetch backend.
	EngineHTTP Name = "http"
)

// LiveEngines is the fixed live-engine priority order: most capable
// first, plain HTTP fetch as the floor.
var LiveEngines = []Name{EngineBrowser, EngineHeadless, EngineHTTP}

// capabilities declares, per engine and flag, whether the capability is
// supported. The init check below guarantees the table is exhaustive.
var capabilities = map[Name]map[FeatureFlag]bool{
	EngineIndex: {
		FlagActions:             false,
		FlagWaitFor:             false,
		FlagScreenshot:          false,
		FlagScreenshotFullPage:  false,
		FlagAntiBotSolver:       false,
		FlagLocation:            false,
		FlagMobile:              false,
		FlagSkipTLSVerification: true,
		FlagFastMode:            true,
		FlagStealthProxy:        false,
		FlagBranding:            false,
		FlagDisableAdblock:      false,
	},
	EngineBrowser: {
		FlagActions:             true,
		FlagWaitFor:             true,
		FlagScreenshot:          true,
		FlagScreenshotFullPage:  true,
		FlagAntiBotSolver:       true,
		FlagLocation:            true,
		FlagMobile:              true,
		FlagSkipTLSVerification: true,
		FlagFastMode:            false,
		FlagStealthProxy:        true,
		FlagBranding:            true,
		FlagDisableAdblock:      true,
	},
	EngineHeadless: {
		FlagActions:             false,
		FlagWaitFor:             true,
		FlagScreenshot:          true,
		FlagScreenshotFullPage:  false,
		FlagAntiBotSolver:       false,
		FlagLocation:            true,
		FlagMobile:              true,
		FlagSkipTLSVerification: true,
		FlagFastMode:            false,
		FlagStealthProxy:        true,
		FlagBranding:            false,
		FlagDisableAdblock:      true,
	},
	EngineHTTP: {
		FlagActions:             false,
		FlagWaitFor:             false,
		FlagScreenshot:          false,
		FlagScreenshotFullPage:  false,
		FlagAntiBotSolver:       false,
		FlagLocation:            false,
		FlagMobile:              false,
		FlagSkipTLSVerification: true,
		FlagFastMode:            true,
		FlagStealthProxy:        false,
		FlagBranding:            false,
		FlagDisableAdblock:      false,
	},
}

func init() {
	// The flag union is closed; a missing cell would turn into a silent
	// run-time "unsupported", so fail loudly at startup instead.
	for name, caps := range capabilities {
		for _, f := range AllFlags {
			if _, ok := caps[f]; !ok {
				panic(fmt.Sprintf("engine: capability table for %q is missing flag %q", name, f))
			}
		}
		if len(caps) != len(AllFlags) {
			panic(fmt.Sprintf("engine: capability table for %q has unknown flags", name))
		}
	}
}

// Supports reports whether the engine supports the flag. Unknown engines
// support nothing.
func Supports(name Name, f FeatureFlag) bool {
	caps, ok := capabilities[name]
	if !ok {
		return false
	}
	return caps[f]
}

// Unsupported returns the requested flags the engine does not support,
// in deterministic order. Must be computed fresh per attempted engine.
func Unsupported(flags FlagSet, name Name) []FeatureFlag {
	var missing []FeatureFlag
	for _, f := range flags.Sorted() {
		if !Supports(name, f) {
			missing = append(missing, f)
		}
	}
	return missing
}
