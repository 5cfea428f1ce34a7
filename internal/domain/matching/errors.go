package matching

import "errors"

// Sentinel kinds for matching errors.
var (
	ErrUnknownStrategy  = errors.New("unknown matching strategy")
	ErrInvalidSettings  = errors.New("invalid matching settings")
	ErrInvalidBatchSize = errors.New("batch size must be positive")
	ErrIncompleteEnv    = errors.New("matching environment is incomplete")
)
