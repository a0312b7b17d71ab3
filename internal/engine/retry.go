// Package engine hosts the Graph Executor, Debugger, and Scheduler (§4.D-E,
// §9). This file keeps only the CircuitBreaker: the sequential, no-backoff
// node retry mandated by §4.D lives in executor.go, not here, so the
// teacher's exponential-backoff Retry helper and its parallel ErrorPolicy
// type (redundant with model.ErrorHandler) were dropped. The CircuitBreaker
// is wired into the http_request node handler to protect against a
// persistently failing downstream URL across executions.
package engine

import (
	"context"
	"fmt"
	"time"
)

// CircuitOpenError indicates circuit breaker is open
type CircuitOpenError struct{}

func (e *CircuitOpenError) Error() string {
	return "circuit breaker is open"
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name        string
	state       CircuitState
	failCount   int
	successCount int
	lastFailure time.Time
	
	maxFailures    int
	resetTimeout   time.Duration
	halfOpenMax    int
}

// CircuitState represents circuit state
type CircuitState string

const (
	CircuitStateClosed   CircuitState = "closed"
	CircuitStateOpen     CircuitState = "open"
	CircuitStateHalfOpen CircuitState = "half_open"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
	HalfOpenMax  int
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = &CircuitBreakerConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  1,
		}
	}

	return &CircuitBreaker{
		name:         name,
		state:        CircuitStateClosed,
		maxFailures:  config.MaxFailures,
		resetTimeout: config.ResetTimeout,
		halfOpenMax:  config.HalfOpenMax,
	}
}

// Execute executes a function through the circuit breaker
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.canExecute() {
		return &CircuitOpenError{}
	}

	err := fn()

	if err != nil {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}

	return err
}

func (cb *CircuitBreaker) canExecute() bool {
	switch cb.state {
	case CircuitStateClosed:
		return true
	case CircuitStateOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = CircuitStateHalfOpen
			cb.successCount = 0
			return true
		}
		return false
	case CircuitStateHalfOpen:
		return cb.successCount < cb.halfOpenMax
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failCount++
	cb.lastFailure = time.Now()

	if cb.state == CircuitStateHalfOpen {
		cb.state = CircuitStateOpen
		return
	}

	if cb.failCount >= cb.maxFailures {
		cb.state = CircuitStateOpen
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.successCount++

	if cb.state == CircuitStateHalfOpen && cb.successCount >= cb.halfOpenMax {
		cb.state = CircuitStateClosed
		cb.failCount = 0
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	return cb.state
}

// Reset resets the circuit breaker
func (cb *CircuitBreaker) Reset() {
	cb.state = CircuitStateClosed
	cb.failCount = 0
	cb.successCount = 0
}

// ExecutionError wraps execution errors with context
type ExecutionError struct {
	ExecutionID string
	WorkflowID  string
	NodeID      string
	NodeType    string
	Message     string
	Cause       error
	Timestamp   time.Time
	Recoverable bool
}

func (e *ExecutionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("execution error in node %s (%s): %s", e.NodeID, e.NodeType, e.Message)
	}
	return fmt.Sprintf("execution error: %s", e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates a new execution error
func NewExecutionError(executionID, workflowID, nodeID, nodeType, message string, cause error) *ExecutionError {
	return &ExecutionError{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		NodeID:      nodeID,
		NodeType:    nodeType,
		Message:     message,
		Cause:       cause,
		Timestamp:   time.Now(),
		Recoverable: true,
	}
}
