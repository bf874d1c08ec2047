package protocol

// Error codes classifying terminal stream failures. The wire carries a
// human-readable message; these codes are used for logging and tests.
const (
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCapacityExceeded   = "CAPACITY_EXCEEDED"
	ErrIterationLimit     = "ITERATION_LIMIT"
	ErrTimeout            = "TIMEOUT"
	ErrWorkerError        = "WORKER_ERROR"
)
