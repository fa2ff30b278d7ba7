package oracle

import (
	"errors"

	"github.com/edgeandnode/block-oracle/utils/fast"
	"github.com/edgeandnode/block-oracle/utils/varint"
)

// Failure kinds of an invocation, per the error taxonomy:
//
//   - truncation: a decode read past the payload end; abort and roll back
//   - unknown tag: non-fatal, terminates the current MessageBlock only
//   - invariant violation: list/count disagreement, out-of-range swap index,
//     non-monotonic version; abort and roll back
//   - entity store failure: fatal, the invocation is abandoned with no commit
var (
	ErrInvariantViolation = errors.New("invariant violation")
)

// failureKindTruncation and failureKindInvariant are the Payload.errorMessage
// values recorded on rollback.
const (
	failureKindTruncation = "truncation"
	failureKindInvariant  = "invariant violation"
)

// failureKind classifies a decoder-signalled error into the recorded
// Payload.errorMessage. Store failures never reach here; they abort the
// invocation without a payload write.
func failureKind(err error) string {
	switch {
	case errors.Is(err, varint.ErrTruncated), errors.Is(err, fast.ErrOutOfBounds):
		return failureKindTruncation
	case errors.Is(err, ErrInvariantViolation):
		return failureKindInvariant
	}
	return err.Error()
}

// isDecoderError reports whether the error is one an executor may signal,
// i.e. one that rolls the invocation back but still records the Payload.
// Anything else (store failures included) is fatal.
func isDecoderError(err error) bool {
	return errors.Is(err, varint.ErrTruncated) ||
		errors.Is(err, fast.ErrOutOfBounds) ||
		errors.Is(err, ErrInvariantViolation)
}
