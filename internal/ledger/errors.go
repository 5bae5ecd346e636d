package ledger

import "errors"

// Every mutating operation returns either a success value or one of
// these errors (possibly wrapped with context via fmt.Errorf and %w).
// Callers branch with errors.Is.
var (
	ErrNotFound                 = errors.New("not found")
	ErrAlreadyExists            = errors.New("already exists")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrInvalidState             = errors.New("operation not valid for current escrow status")
	ErrUnauthorized             = errors.New("caller is not authorized")
	ErrAlreadyApproved          = errors.New("already approved")
	ErrNoArbitratorAssigned     = errors.New("no arbitrator assigned")
	ErrInvalidDeadline          = errors.New("deadline must be in the future")
	ErrOnlyArbitratorCanResolve = errors.New("only the assigned arbitrator can resolve a dispute")
)
