package main

import (
	"arc-framework/rsinit/internal/replset"
)

// Process exit codes. Each failure kind has its own code so callers such as
// container entrypoints can react without parsing output.
const (
	exitOK                 = 0
	exitGeneric            = 1
	exitReadinessTimeout   = 2
	exitConfigRejected     = 3
	exitAlreadyInitialized = 4
	exitConvergenceTimeout = 5
	exitUnreachable        = 6
)

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch replset.Kind(err) {
	case replset.ErrReadinessTimeout:
		return exitReadinessTimeout
	case replset.ErrConfigurationRejected:
		return exitConfigRejected
	case replset.ErrAlreadyInitializedDifferently:
		return exitAlreadyInitialized
	case replset.ErrConvergenceTimeout:
		return exitConvergenceTimeout
	case replset.ErrUnreachable:
		return exitUnreachable
	default:
		return exitGeneric
	}
}
