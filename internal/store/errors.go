package store

import "errors"

// ErrNotFound is returned by any lookup-by-id/key method that finds nothing.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned on a uniqueness or invariant violation other than
// the ledger's idempotency key (bundle code collision, a second ACTIVE
// contract for the same billToId).
var ErrConflict = errors.New("store: conflict")

// ErrDuplicateLedgerEntry is returned by CreateLedgerEntry when the supplied
// idempotencyKey already exists. Spec §4.4: this is the one error every
// caller is expected to swallow or treat as a successful replay.
var ErrDuplicateLedgerEntry = errors.New("store: duplicate ledger entry")

// ErrDuplicateEvent is returned when an UsageEvent with the same
// (appId, idempotencyKey) already exists.
var ErrDuplicateEvent = errors.New("store: duplicate usage event")

// ErrReplayed is returned by InsertJti when the jti has already been
// consumed.
var ErrReplayed = errors.New("store: jti replayed")
