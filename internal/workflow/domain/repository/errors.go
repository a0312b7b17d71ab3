// Package repository declares the narrow Persistence Adapter contract the
// Workflow Manager (F) depends on (§4.G); concrete backends live under
// internal/adapters/persistence.
package repository

import "errors"

// ErrOptimisticLock is returned when a concurrent update raced the caller's
// read-modify-write of a workflow row.
var ErrOptimisticLock = errors.New("optimistic lock: record was modified by another process")

// ErrNotFound is returned when a workflow or execution row does not exist.
var ErrNotFound = errors.New("persistence: record not found")
