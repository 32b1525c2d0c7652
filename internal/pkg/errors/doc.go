// Package errors provides application error types for PromptLoop.
//
// This package defines:
//   - AppError type with error classification
//   - Error constructors for common error types
//   - Error type checking helpers
//   - HTTP status code mapping
//
// # Error Types
//
//   - NotFound: Resource does not exist (404)
//   - Validation: Invalid input data (400)
//   - LockTimeout: Lock acquisition deadline passed (409)
//   - Conflict: Concurrent modification conflict (409)
//   - Internal: Unexpected server error (500)
//
// # Usage
//
// Create errors using constructor functions:
//
//	return apperrors.NotFound("iteration")
//	return apperrors.LockTimeout("lock:iteration:iter-1")
//
// Check error types:
//
//	if apperrors.IsLockTimeout(err) {
//	    // Retry with backoff
//	}
//
// # Error Wrapping
//
// Errors support wrapping with fmt.Errorf:
//
//	return fmt.Errorf("aggregation failed: %w", apperrors.NotFound("rubric"))
package errors
