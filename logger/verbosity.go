package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts.
const (
	VerbosityUser  = 0 // No flags: rendered pages, advisories and errors
	VerbosityInfo  = 1 // -v: + session lifecycle, submissions, cancellations
	VerbosityDebug = 2 // -vv: + every reconciled push message, HTTP calls
	VerbosityTrace = 3 // -vvv: + request/response bodies
)

// VerbosityToLevel maps verbosity flags (-v, -vv, etc.) to zap log levels
//
//	0 (none)  -> WarnLevel
//	1 (-v)    -> InfoLevel
//	2+ (-vv)  -> DebugLevel
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// OutputCategory defines a category of terminal output that can be enabled/disabled.
// Unlike log levels, categories control WHAT is printed by the CLI renderer.
type OutputCategory int

const (
	OutputResults    OutputCategory = iota // Rendered pages, command results
	OutputAdvisories                       // Refusals, cancel confirmations, channel loss
	OutputProgress                         // Snapshot loaded, channel attached
	OutputPushEvents                       // One line per reconciled push message
	OutputHTTPCalls                        // Outbound backend requests
	OutputBodies                           // Raw request/response bodies
)

var categoryLevels = map[OutputCategory]int{
	OutputResults:    VerbosityUser,
	OutputAdvisories: VerbosityUser,
	OutputProgress:   VerbosityInfo,
	OutputPushEvents: VerbosityDebug,
	OutputHTTPCalls:  VerbosityDebug,
	OutputBodies:     VerbosityTrace,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		return verbosity >= VerbosityTrace
	}
	return verbosity >= minLevel
}
