package validator

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrEmptyAccountID  = errors.New("account id is required")
	ErrAccountIDFormat = errors.New("account id contains invalid characters")
	ErrSameAccount     = errors.New("accounts must differ")
)

// InputValidator checks the opaque identifiers callers supply. IDs may
// be emails or wallet identities minted elsewhere; the only constraints
// here are non-empty, no whitespace, and a length cap.
type InputValidator struct {
	idRegex *regexp.Regexp
}

func NewInputValidator() *InputValidator {
	return &InputValidator{
		idRegex: regexp.MustCompile(`^\S{1,128}$`),
	}
}

func (v *InputValidator) AccountID(id string) error {
	if id == "" {
		return ErrEmptyAccountID
	}
	if !v.idRegex.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrAccountIDFormat, id)
	}
	return nil
}

// Parties validates a pair of accounts on opposite sides of a movement.
func (v *InputValidator) Parties(from, to string) error {
	if err := v.AccountID(from); err != nil {
		return err
	}
	if err := v.AccountID(to); err != nil {
		return err
	}
	if from == to {
		return fmt.Errorf("%w: %q", ErrSameAccount, from)
	}
	return nil
}
