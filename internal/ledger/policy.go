package ledger

import (
	"fmt"
	"time"
)

// DisputeTiming restricts when a party may raise a dispute relative to
// the agreement deadline. The restriction is deployment policy, supplied
// through configuration rather than hard-coded.
type DisputeTiming string

const (
	DisputeAnytime        DisputeTiming = "anytime"
	DisputeBeforeDeadline DisputeTiming = "before_deadline"
	DisputeAfterDeadline  DisputeTiming = "after_deadline"
)

func ParseDisputeTiming(s string) (DisputeTiming, error) {
	switch DisputeTiming(s) {
	case DisputeAnytime, DisputeBeforeDeadline, DisputeAfterDeadline:
		return DisputeTiming(s), nil
	case "":
		return DisputeAnytime, nil
	}
	return "", fmt.Errorf("unknown dispute timing policy: %q", s)
}

// Allows reports whether a dispute may be raised at now given the
// agreement deadline.
func (p DisputeTiming) Allows(now, deadline time.Time) bool {
	switch p {
	case DisputeBeforeDeadline:
		return now.Before(deadline)
	case DisputeAfterDeadline:
		return !now.Before(deadline)
	case DisputeAnytime:
		return true
	}
	return true
}
