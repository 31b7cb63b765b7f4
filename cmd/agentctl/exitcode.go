package main

import (
	"errors"

	"github.com/agentforge/pipeline/pkg/taxonomy"
)

// Exit codes returned to the shell for each class of failure.
const (
	exitSuccess              = 0
	exitValidation           = 1
	exitAPIOrBudgetOrBreaker = 2
	exitStrictVerification   = 3
	exitUnexpected           = 4
)

// exitCodeFor maps a returned error onto the closed exit-code set. nil maps
// to success; callers only invoke this on a non-nil error.
func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}

	var valErr *taxonomy.ValidationError
	if errors.As(err, &valErr) {
		return exitValidation
	}

	var verifyErr *taxonomy.VerificationError
	if errors.As(err, &verifyErr) {
		return exitStrictVerification
	}

	var apiErr *taxonomy.APIError
	if errors.As(err, &apiErr) {
		return exitAPIOrBudgetOrBreaker
	}
	var timeoutErr *taxonomy.TimeoutError
	if errors.As(err, &timeoutErr) {
		return exitAPIOrBudgetOrBreaker
	}
	var limitErr *taxonomy.LimitExceededError
	if errors.As(err, &limitErr) {
		return exitAPIOrBudgetOrBreaker
	}
	var breakerErr *taxonomy.CircuitBreakerError
	if errors.As(err, &breakerErr) {
		return exitAPIOrBudgetOrBreaker
	}

	return exitUnexpected
}
