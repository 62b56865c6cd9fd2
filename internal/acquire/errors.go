package acquire

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
)

var (
	// ErrTierTimeout marks an attempt that exceeded the per-tier timeout.
	ErrTierTimeout = eris.New("acquire: tier attempt timed out")
	// ErrNotApplicable marks a fetcher that cannot serve the domain.
	ErrNotApplicable = eris.New("acquire: fetcher does not support domain")
	// ErrUnknownTier marks a chain entry with no registered fetcher.
	ErrUnknownTier = eris.New("acquire: no fetcher registered for tier")
	// ErrNoDomains is returned for an invocation without target domains.
	ErrNoDomains = eris.New("acquire: at least one domain is required")
	// ErrDuplicateDomain is returned when a domain appears twice in one run.
	ErrDuplicateDomain = eris.New("acquire: domain requested more than once")
)

// FetchError describes a failed tier attempt.
type FetchError struct {
	Tier   model.TierID
	Domain model.Domain
	Kind   resilience.ErrorKind
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s/%s (%s): %v", e.Tier, e.Domain, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a panicking fetcher.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fetcher panic: %v", e.Value)
}

func newFetchError(tier model.TierID, domain model.Domain, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := resilience.Classify(err)
	if errors.Is(err, ErrTierTimeout) {
		kind = resilience.KindNetwork
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		kind = resilience.KindUnknown
	}
	return &FetchError{Tier: tier, Domain: domain, Kind: kind, Err: err}
}
