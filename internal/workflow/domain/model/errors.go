package model

import "errors"

// Sentinel errors for the §7 error kinds shared across the Manager,
// Executor, and Persistence Adapter. Callers use errors.Is against these;
// wrapped context is added with fmt.Errorf("%w: ...", ErrX, ...).
var (
	ErrNotFound                  = errors.New("not_found")
	ErrValidation                = errors.New("validation")
	ErrInvalidState              = errors.New("invalid_state")
	ErrNoStart                   = errors.New("no_start")
	ErrUnsatisfiableDependencies = errors.New("unsatisfiable_dependencies")
	ErrHandlerFailure            = errors.New("handler_failure")
	ErrTimeout                   = errors.New("timeout")
	ErrCancelled                 = errors.New("cancelled")
	ErrPersistence               = errors.New("persistence")
)
