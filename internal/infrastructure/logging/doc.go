// Package logging builds the service's zap loggers.
//
// Production output is JSON; development output is colored console text.
// Components take a *zap.Logger named after themselves:
//
//	logger := logging.NewDefault()
//	engineLog := logger.Component("engine")
//	sourceLog := logger.Source("alerts")
//
// The level can change at runtime through SetLevel.
package logging
