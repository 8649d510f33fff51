package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Specific validation failures wrap ErrValidation so callers
// can branch on the class with errors.Is.
var (
	ErrValidation         = errors.New("validation error")
	ErrSync               = errors.New("sync error")
	ErrLoad               = errors.New("load error")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrBudgetBelowSpend   = errors.New("budget is less than current expenses")
)

var (
	ErrEmptyTitle       = fmt.Errorf("%w: empty title", ErrValidation)
	ErrInvalidAmount    = fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	ErrInvalidTarget    = fmt.Errorf("%w: target amount must be greater than zero", ErrValidation)
	ErrNegativeProgress = fmt.Errorf("%w: current amount cannot be negative", ErrValidation)
	ErrUnknownCategory  = fmt.Errorf("%w: unknown category", ErrValidation)
	ErrUnknownPriority  = fmt.Errorf("%w: unknown priority", ErrValidation)
	ErrUnknownFrequency = fmt.Errorf("%w: unknown frequency", ErrValidation)
	ErrUnknownTag       = fmt.Errorf("%w: unknown tag", ErrValidation)
	ErrEmptyEmail       = fmt.Errorf("%w: empty email", ErrValidation)
	ErrEmptyName        = fmt.Errorf("%w: empty name", ErrValidation)
	ErrInvalidBudget    = fmt.Errorf("%w: budget must be greater than zero", ErrValidation)
	ErrShortPassword    = fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	ErrPasswordMismatch = fmt.Errorf("%w: passwords don't match", ErrValidation)
	ErrUnknownCurrency  = fmt.Errorf("%w: unknown currency", ErrValidation)
)
