// Package logger provides slog attribute helpers shared across the module.
//
// Helpers return an empty slog.Attr for zero-value inputs so call sites never
// need nil checks:
//
//	log.Info("command completed",
//	    logger.CommandName(cmd.Name),
//	    logger.Version(cmd.Version),
//	    logger.Certname(certname),
//	    logger.Elapsed(start))
package logger
