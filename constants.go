package kaio

import "github.com/ehrlich-b/go-kaio/internal/constants"

// Re-export constants for public API
const (
	DefaultDepth        = constants.DefaultDepth
	DefaultBlockSize    = constants.DefaultBlockSize
	DefaultMaxBlockSize = constants.DefaultMaxBlockSize
	StallBudget         = constants.StallBudget
)
