// Package origin decides which origin serves an image request: the storage
// origin, the compute origin, or the default fallback image.
package origin

import (
	"errors"
	"fmt"
	"net/http"
)

// State is a node of the fallback state machine.
type State int

const (
	Idle State = iota
	CacheLookup
	CacheHit
	ComputeDispatch
	ComputeSuccess
	ComputeFailure
	DefaultImageFallback
	PropagateError
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CacheLookup:
		return "cache_lookup"
	case CacheHit:
		return "cache_hit"
	case ComputeDispatch:
		return "compute_dispatch"
	case ComputeSuccess:
		return "compute_success"
	case ComputeFailure:
		return "compute_failure"
	case DefaultImageFallback:
		return "default_image_fallback"
	case PropagateError:
		return "propagate_error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no event can leave s.
func (s State) Terminal() bool {
	switch s {
	case CacheHit, ComputeSuccess, DefaultImageFallback, PropagateError:
		return true
	default:
		return false
	}
}

// EventKind is what happened while in a state.
type EventKind int

const (
	// EventStart begins a lookup.
	EventStart EventKind = iota
	// EventPrimaryFound means the storage origin returned a live object.
	EventPrimaryFound
	// EventPrimaryStatus carries the storage origin's failure status.
	EventPrimaryStatus
	EventComputeSucceeded
	EventComputeFailed
	EventFallbackEnabled
	EventFallbackDisabled
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventPrimaryFound:
		return "primary_found"
	case EventPrimaryStatus:
		return "primary_status"
	case EventComputeSucceeded:
		return "compute_succeeded"
	case EventComputeFailed:
		return "compute_failed"
	case EventFallbackEnabled:
		return "fallback_enabled"
	case EventFallbackDisabled:
		return "fallback_disabled"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event drives a Transition. Status is only read for EventPrimaryStatus.
type Event struct {
	Kind   EventKind
	Status int
}

// ErrInvalidTransition is returned for an event the current state does not accept.
var ErrInvalidTransition = errors.New("origin: invalid transition")

// Transition returns the state that follows s on e. The machine has no
// cycles: once ComputeDispatch is reached the storage origin is never
// consulted again.
func Transition(s State, e Event) (State, error) {
	switch s {
	case Idle:
		if e.Kind == EventStart {
			return CacheLookup, nil
		}
	case CacheLookup:
		switch e.Kind {
		case EventPrimaryFound:
			return CacheHit, nil
		case EventPrimaryStatus:
			if FallbackEligible(e.Status) {
				return ComputeDispatch, nil
			}
			return PropagateError, nil
		}
	case ComputeDispatch:
		switch e.Kind {
		case EventComputeSucceeded:
			return ComputeSuccess, nil
		case EventComputeFailed:
			return ComputeFailure, nil
		}
	case ComputeFailure:
		switch e.Kind {
		case EventFallbackEnabled:
			return DefaultImageFallback, nil
		case EventFallbackDisabled:
			return PropagateError, nil
		}
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e.Kind, s)
}

// FallbackEligible reports whether a storage origin status sends the request
// to the compute origin. The set is a wire contract; every other status,
// 401 included, is propagated to the client.
func FallbackEligible(status int) bool {
	switch status {
	case http.StatusBadRequest,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusRequestedRangeNotSatisfiable,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Decision is the externally observable outcome of a resolution.
type Decision int

const (
	DecisionCacheHit Decision = iota
	DecisionComputeFallback
	DecisionDefaultImageFallback
	DecisionError
)

func (d Decision) String() string {
	switch d {
	case DecisionCacheHit:
		return "cache-hit"
	case DecisionComputeFallback:
		return "compute-fallback"
	case DecisionDefaultImageFallback:
		return "default-image-fallback"
	default:
		return "error"
	}
}

// DecisionFor maps a terminal state to the decision reported to clients.
func DecisionFor(s State) Decision {
	switch s {
	case CacheHit:
		return DecisionCacheHit
	case ComputeSuccess:
		return DecisionComputeFallback
	case DefaultImageFallback:
		return DecisionDefaultImageFallback
	default:
		return DecisionError
	}
}
