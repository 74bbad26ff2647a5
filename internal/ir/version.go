package ir

// Version constants stamped onto persisted runs.
const (
	// IRVersion is the ruleset IR schema version.
	IRVersion = "1"

	// EngineVersion is the rulescript engine version.
	EngineVersion = "0.1.0"
)
