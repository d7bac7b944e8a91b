// Package logging is pimgr's diagnostic log: JSON lines written through
// log/slog to <log dir>/debug.log, rotated by size.
//
// It is separate from the session log. The session log is the operator's
// audit trail; this log carries the details needed to debug a failing
// command, query or probe.
//
//	logger, err := logging.NewLogger(dir, "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	log := logger.WithComponent("appliance")
//	log.Warn("query failed", "db", path, "error", err)
//
// Use [NopLogger] in tests. [ReadEntries] and [FilterEntries] back the
// "pimgr logs debug" command.
package logging
