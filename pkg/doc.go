// Package pkg provides shared utilities for the picousb transfer engine.
//
// This package contains common functionality used by both the device and
// host roles, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors and the [FatalError] type for hardware desynchronization
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentDevice, "device configured", "config", 1)
//
// Interrupt handlers only log at debug level. The default level is warn.
//
// # Errors
//
// Common errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrTransferTooLarge) {
//	    // split the payload
//	}
//
// Conditions that leave the controller in an unknown state (an interrupt
// bit no handler claims, a DATA0/DATA1 sequence error) are reported as a
// [*FatalError] to a fault handler. The default handler, [Abort], panics.
package pkg
