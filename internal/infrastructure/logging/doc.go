// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// The level is atomic so the hub's debug toggle can switch verbose logging
// without rebuilding loggers. Components take a child via Named.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	hubLog := logger.Named("hub")
//	hubLog.Info("participant joined", logging.User("alice"))
package logging
