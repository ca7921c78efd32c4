package replset

import "errors"

// Failure kinds surfaced to the operator. Every error returned by the
// bootstrap sequence wraps exactly one of these together with its cause.
var (
	ErrReadinessTimeout              = errors.New("readiness timeout")
	ErrConfigurationRejected         = errors.New("configuration rejected")
	ErrAlreadyInitializedDifferently = errors.New("replica set already initialized differently")
	ErrConvergenceTimeout            = errors.New("convergence timeout")
	ErrUnreachable                   = errors.New("node unreachable")
)

// Node-level signals used between the client and the initiator. They never
// leave the bootstrap package unwrapped.
var (
	// ErrNotInitialized means the node has not received a replica set config.
	ErrNotInitialized = errors.New("replica set not initialized")

	// ErrAlreadyInitialized means replSetInitiate found an existing config.
	ErrAlreadyInitialized = errors.New("replica set already initialized")
)

// Kind returns the operator-facing failure kind wrapped by err, or nil if err
// carries none of them.
func Kind(err error) error {
	for _, kind := range []error{
		ErrReadinessTimeout,
		ErrConfigurationRejected,
		ErrAlreadyInitializedDifferently,
		ErrConvergenceTimeout,
		ErrUnreachable,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
