package observability

import "go.uber.org/zap"

// Field aliases so callers do not need a direct zap import.
//
//nolint:gochecknoglobals // Aliases of pure constructors
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Float64  = zap.Float64
	Bool     = zap.Bool
	Time     = zap.Time
	Duration = zap.Duration
	Error    = zap.Error
)
