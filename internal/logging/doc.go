// Package logging wraps zap with context-aware methods. Run and request ids
// stored in the context are attached to every entry.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig())
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "run finished", zap.Int("k", k))
package logging
