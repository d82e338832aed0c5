package cachefs

// Logger is the minimal logging seam cachefs depends on, satisfied by
// *log.Logger and most structured-logging adapters. A nil Logger (the
// Cache default) silently drops diagnostics.
//
// Grounded in the same shape used by SnellerInc/sneller's tenant/dcache
// package for its own best-effort error reporting.
type Logger interface {
	Printf(format string, args ...any)
}
