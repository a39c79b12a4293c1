package upload

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/mediaup/internal/models"
)

// Result is what a transport returns on success.
type Result struct {
	RemoteID  string
	RemoteURL string
}

// Transport is one concrete strategy for getting bytes to the remote
// store. Implementations own every protocol detail; the orchestrator only
// sees the contract "accepts a file, returns an id and URL, may fail".
type Transport interface {
	Name() string
	Upload(ctx context.Context, src models.SourceFile, body []byte) (*Result, error)
}

// Tier pairs a transport with its attempt budget and per-attempt timeout.
// The orchestrator walks tiers in order, so adding a third tier is a data
// change, not a control-flow change.
type Tier struct {
	Transport   Transport
	MaxAttempts int
	Timeout     time.Duration
}

// Backoff parameterizes the wait between attempts within a tier. The wait
// grows linearly with the attempt number and never exceeds Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// permanentError marks failures retrying cannot fix (rejected content,
// malformed response, quota exceeded). The orchestrator escalates straight
// to the next tier instead of burning the remaining attempts.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// MarkPermanent wraps err so that IsPermanent reports true for it.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked permanent by a transport.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
