package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrUnknownService     = fmt.Errorf("unknown service")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrUnsupported        = fmt.Errorf("operation not supported by backend")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")

	// Snapshot and sync errors
	ErrServerNotFound   = fmt.Errorf("server not found")
	ErrSnapshotNotFound = fmt.Errorf("no complete snapshot found")
	ErrReorderAborted   = fmt.Errorf("track reordering aborted")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
